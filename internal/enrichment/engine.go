// Package enrichment derives merchant, category and location metadata from
// the free-text fields of a transaction using ordered substring tables.
//
// Matching is plain case-insensitive substring search. Incidental overlaps
// ("coffee" inside an unrelated description) do produce matches; that is the
// documented precision of the approach.
package enrichment

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dvloznov/effortless/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Engine applies a fixed set of pattern tables.
type Engine struct {
	tables Tables
}

// NewEngine creates an Engine over the given tables.
func NewEngine(tables Tables) *Engine {
	return &Engine{tables: tables}
}

// Tables returns the tables the engine was built with.
func (e *Engine) Tables() Tables {
	return e.tables
}

// NormalizeMerchant returns the canonical merchant for the description and
// memo. The first merchant pattern (in table order) found in the combined
// text wins. Without a hit the first word of the text is used, capitalized.
// Empty text yields no merchant.
func (e *Engine) NormalizeMerchant(description, memo string) (string, bool) {
	text := strings.ToLower(description + " " + memo)

	for _, p := range e.tables.merchants {
		if strings.Contains(text, p.Keyword) {
			return p.Name, true
		}
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return "", false
	}
	return capitalize(words[0]), true
}

// InferCategory returns the first category whose keyword list has a hit in
// the combined description, memo and merchant text.
func (e *Engine) InferCategory(description, memo, merchant string) (string, bool) {
	text := strings.ToLower(description + " " + memo + " " + merchant)

	for _, rule := range e.tables.categories {
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw) {
				return rule.Category, true
			}
		}
	}
	return "", false
}

// InferLocation returns the first known city mentioned in the text,
// title-cased.
func (e *Engine) InferLocation(description, memo string) (string, bool) {
	text := strings.ToLower(description + " " + memo)

	for _, city := range e.tables.cities {
		if strings.Contains(text, city) {
			return cases.Title(language.Und).String(city), true
		}
	}
	return "", false
}

// Changes records which derived fields Enrich populated.
type Changes struct {
	Merchant bool
	Category bool
	Location bool
}

// Any reports whether anything changed.
func (c Changes) Any() bool {
	return c.Merchant || c.Category || c.Location
}

// Enrich fills the merchant, category and location of tx when they are not
// already set. Populated fields are left untouched, so a second call is a
// no-op.
func (e *Engine) Enrich(tx *domain.Transaction) Changes {
	var ch Changes

	if tx.MerchantNormalized == nil {
		if m, ok := e.NormalizeMerchant(tx.Description, tx.Memo); ok {
			tx.MerchantNormalized = domain.StringPtr(m)
			ch.Merchant = true
		}
	}

	if tx.Category == nil {
		merchant, _ := tx.GetMerchant()
		if c, ok := e.InferCategory(tx.Description, tx.Memo, merchant); ok {
			tx.Category = domain.StringPtr(c)
			ch.Category = true
		}
	}

	if tx.LocationInferred == nil {
		if l, ok := e.InferLocation(tx.Description, tx.Memo); ok {
			tx.LocationInferred = domain.StringPtr(l)
			ch.Location = true
		}
	}

	return ch
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
