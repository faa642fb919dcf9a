package enrichment

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// MerchantPattern maps a lower-case substring to a canonical merchant name.
type MerchantPattern struct {
	Keyword string `mapstructure:"keyword"`
	Name    string `mapstructure:"name"`
}

// CategoryRule lists the keywords that place a transaction in a category.
type CategoryRule struct {
	Category string   `mapstructure:"category"`
	Keywords []string `mapstructure:"keywords"`
}

// Tables holds the ordered pattern tables used by the Engine. Order is part
// of the behaviour: the first matching entry wins. A Tables value is never
// mutated after construction and is safe to share between goroutines.
type Tables struct {
	merchants  []MerchantPattern
	categories []CategoryRule
	cities     []string
}

// NewTables validates and copies the given tables. Keywords are lower-cased.
func NewTables(merchants []MerchantPattern, categories []CategoryRule, cities []string) (Tables, error) {
	t := Tables{
		merchants:  make([]MerchantPattern, 0, len(merchants)),
		categories: make([]CategoryRule, 0, len(categories)),
		cities:     make([]string, 0, len(cities)),
	}

	for i, m := range merchants {
		kw := strings.ToLower(strings.TrimSpace(m.Keyword))
		if kw == "" || strings.TrimSpace(m.Name) == "" {
			return Tables{}, fmt.Errorf("NewTables: merchant pattern %d: keyword and name are required", i)
		}
		t.merchants = append(t.merchants, MerchantPattern{Keyword: kw, Name: strings.TrimSpace(m.Name)})
	}

	for i, c := range categories {
		name := strings.TrimSpace(c.Category)
		if name == "" {
			return Tables{}, fmt.Errorf("NewTables: category rule %d: category is required", i)
		}
		kws := make([]string, 0, len(c.Keywords))
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				return Tables{}, fmt.Errorf("NewTables: category %q: empty keyword", name)
			}
			kws = append(kws, kw)
		}
		t.categories = append(t.categories, CategoryRule{Category: name, Keywords: kws})
	}

	for i, city := range cities {
		city = strings.ToLower(strings.TrimSpace(city))
		if city == "" {
			return Tables{}, fmt.Errorf("NewTables: city %d is empty", i)
		}
		t.cities = append(t.cities, city)
	}

	return t, nil
}

// DefaultTables returns the built-in merchant, category and city tables.
func DefaultTables() Tables {
	t, err := NewTables(defaultMerchants, defaultCategories, defaultCities)
	if err != nil {
		panic(fmt.Sprintf("enrichment: invalid default tables: %v", err))
	}
	return t
}

// LoadTables reads pattern tables from a YAML, TOML or JSON file. Sections
// missing from the file fall back to the defaults.
//
//	merchants:
//	  - keyword: starbucks
//	    name: Starbucks
//	categories:
//	  - category: dining
//	    keywords: [restaurant, cafe]
//	cities: [new york, nyc]
func LoadTables(path string) (Tables, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Tables{}, fmt.Errorf("LoadTables: reading %s: %w", path, err)
	}

	merchants := defaultMerchants
	if v.IsSet("merchants") {
		merchants = nil
		if err := v.UnmarshalKey("merchants", &merchants); err != nil {
			return Tables{}, fmt.Errorf("LoadTables: merchants: %w", err)
		}
	}

	categories := defaultCategories
	if v.IsSet("categories") {
		categories = nil
		if err := v.UnmarshalKey("categories", &categories); err != nil {
			return Tables{}, fmt.Errorf("LoadTables: categories: %w", err)
		}
	}

	cities := defaultCities
	if v.IsSet("cities") {
		cities = v.GetStringSlice("cities")
	}

	t, err := NewTables(merchants, categories, cities)
	if err != nil {
		return Tables{}, fmt.Errorf("LoadTables: %w", err)
	}
	return t, nil
}

// Merchants returns a copy of the merchant table.
func (t Tables) Merchants() []MerchantPattern {
	return append([]MerchantPattern(nil), t.merchants...)
}

// Categories returns the category names in evaluation order.
func (t Tables) Categories() []string {
	names := make([]string, len(t.categories))
	for i, c := range t.categories {
		names[i] = c.Category
	}
	return names
}

// Cities returns a copy of the city table.
func (t Tables) Cities() []string {
	return append([]string(nil), t.cities...)
}

var defaultMerchants = []MerchantPattern{
	{Keyword: "starbucks", Name: "Starbucks"},
	{Keyword: "sbux", Name: "Starbucks"},
	{Keyword: "coffee", Name: "Coffee Shop"},
	{Keyword: "mcdonald", Name: "McDonald's"},
	{Keyword: "mcd", Name: "McDonald's"},
	{Keyword: "uber", Name: "Uber"},
	{Keyword: "lyft", Name: "Lyft"},
	{Keyword: "amazon", Name: "Amazon"},
	{Keyword: "whole foods", Name: "Whole Foods"},
	{Keyword: "target", Name: "Target"},
	{Keyword: "walmart", Name: "Walmart"},
	{Keyword: "restaurant", Name: "Restaurant"},
	{Keyword: "dining", Name: "Restaurant"},
	{Keyword: "hotel", Name: "Hotel"},
	{Keyword: "airline", Name: "Airline"},
	{Keyword: "gas", Name: "Gas Station"},
	{Keyword: "shell", Name: "Shell"},
	{Keyword: "exxon", Name: "Exxon"},
	{Keyword: "grocery", Name: "Grocery Store"},
}

var defaultCategories = []CategoryRule{
	{Category: "dining", Keywords: []string{"restaurant", "cafe", "coffee", "starbucks", "mcdonald", "dining", "food", "pizza", "burger"}},
	{Category: "travel", Keywords: []string{"hotel", "airline", "uber", "lyft", "taxi", "airport", "travel", "booking"}},
	{Category: "groceries", Keywords: []string{"grocery", "whole foods", "safeway", "kroger", "walmart", "target", "supermarket"}},
	{Category: "entertainment", Keywords: []string{"movie", "theater", "cinema", "netflix", "spotify", "entertainment", "concert"}},
	{Category: "shopping", Keywords: []string{"amazon", "retail", "store", "shopping", "mall"}},
	{Category: "gas", Keywords: []string{"gas", "shell", "exxon", "chevron", "bp", "fuel"}},
	{Category: "utilities", Keywords: []string{"electric", "water", "gas bill", "utility", "internet", "phone"}},
}

var defaultCities = []string{
	"new york",
	"nyc",
	"san francisco",
	"sf",
	"los angeles",
	"la",
	"chicago",
	"boston",
	"miami",
}
