package notionsync

import (
	"time"

	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/effortless/internal/domain"
)

// Property names of the transactions database.
const (
	PropDescription   = "Description"
	PropTransactionID = "Transaction ID"
	PropUser          = "User"
	PropDate          = "Date"
	PropAmount        = "Amount"
	PropMerchant      = "Merchant"
	PropCategory      = "Category"
	PropLocation      = "Location"
	PropReward        = "Reward"
	PropRewardID      = "Reward ID"
	PropApplied       = "Reward Applied"
	PropSavings       = "Savings"
	PropNotified      = "Notified"
)

// Property names of the rewards database.
const (
	PropRewardTitle = "Name"
	PropType        = "Type"
	PropStart       = "Start"
	PropEnd         = "End"
	PropAutoApply   = "Auto Apply"
	PropGeo         = "Geo"
)

// TransactionColumns are the properties a transactions database must define.
// The Reward relation is only required when rewards are synced.
var TransactionColumns = []string{
	PropDescription, PropTransactionID, PropUser, PropDate, PropAmount,
	PropMerchant, PropCategory, PropLocation, PropRewardID, PropApplied,
	PropSavings, PropNotified,
}

// RewardColumns are the properties a rewards database must define.
var RewardColumns = []string{
	PropRewardTitle, PropRewardID, PropMerchant, PropType, PropCategory,
	PropStart, PropEnd, PropAutoApply, PropGeo,
}

func title(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Title: []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}},
	}
}

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}},
	}
}

func selectOption(s string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Select: notionapi.Option{Name: s}}
}

func number(d decimal.Decimal) notionapi.NumberProperty {
	f, _ := d.Float64()
	return notionapi.NumberProperty{Number: f}
}

// date converts t to a Notion date. Floating times keep their wall clock.
func date(t time.Time) notionapi.DateProperty {
	if domain.IsFloating(t) {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	}
	d := notionapi.Date(t)
	return notionapi.DateProperty{Date: &notionapi.DateObject{Start: &d}}
}

// TransactionToNotionProperties converts a decorated transaction to Notion
// properties. rewardPages maps reward ids to their page in the rewards
// database; when the matched reward has a page it is linked as a relation.
func TransactionToNotionProperties(tx *domain.Transaction, rewardPages map[string]string) notionapi.Properties {
	props := notionapi.Properties{
		PropDescription:   title(tx.Description),
		PropTransactionID: richText(tx.ID),
		PropAmount:        number(tx.Amount),
		PropApplied:       notionapi.CheckboxProperty{Checkbox: tx.RewardApplied},
		PropNotified:      notionapi.CheckboxProperty{Checkbox: tx.NotificationTriggered},
	}

	if !tx.TransactionAt.IsZero() {
		props[PropDate] = date(tx.TransactionAt)
	}
	if tx.UserID != "" {
		props[PropUser] = richText(tx.UserID)
	}
	if m, ok := tx.GetMerchant(); ok {
		props[PropMerchant] = richText(m)
	}
	if c, ok := tx.GetCategory(); ok {
		props[PropCategory] = selectOption(c)
	}
	if l, ok := tx.GetLocation(); ok {
		props[PropLocation] = richText(l)
	}

	if tx.MatchedRewardID != nil {
		id := *tx.MatchedRewardID
		props[PropRewardID] = richText(id)
		if pageID, ok := rewardPages[id]; ok {
			props[PropReward] = notionapi.RelationProperty{
				Relation: []notionapi.Relation{{ID: notionapi.PageID(pageID)}},
			}
		}
	}

	if tx.RewardSavingsAmount != nil {
		props[PropSavings] = number(*tx.RewardSavingsAmount)
	}

	return props
}

// RewardToNotionProperties converts a catalog reward to Notion properties.
func RewardToNotionProperties(r *domain.Reward) notionapi.Properties {
	name := r.MerchantName
	if r.Label != "" {
		name += ": " + r.Label
	}

	props := notionapi.Properties{
		PropRewardTitle: title(name),
		PropRewardID:    richText(r.ID),
		PropMerchant:    richText(r.MerchantName),
		PropType:        selectOption(string(r.Type)),
		PropAutoApply:   notionapi.CheckboxProperty{Checkbox: r.AutoApplicable()},
		PropGeo:         selectOption(geoLabel(r)),
	}

	if r.Category != "" {
		props[PropCategory] = selectOption(r.Category)
	}
	if !r.StartDate.IsZero() {
		props[PropStart] = date(r.StartDate)
	}
	if r.EndDate != nil {
		props[PropEnd] = date(*r.EndDate)
	}

	return props
}

func geoLabel(r *domain.Reward) string {
	switch {
	case r.IsGlobal():
		return string(domain.GeoScopeGlobal)
	case r.GeoScope == domain.GeoScopeCity && r.GeoCity != "":
		return r.GeoCity
	case r.GeoScope == domain.GeoScopeCountry && r.GeoCountry != "":
		return r.GeoCountry
	default:
		return string(r.GeoScope)
	}
}

// plainText returns the text of a title or rich text property, or "" when
// the page has no such property.
func plainText(page notionapi.Page, name string) string {
	var texts []notionapi.RichText
	switch p := page.Properties[name].(type) {
	case *notionapi.RichTextProperty:
		texts = p.RichText
	case notionapi.RichTextProperty:
		texts = p.RichText
	case *notionapi.TitleProperty:
		texts = p.Title
	case notionapi.TitleProperty:
		texts = p.Title
	}

	if len(texts) == 0 {
		return ""
	}
	if texts[0].PlainText != "" {
		return texts[0].PlainText
	}
	if texts[0].Text != nil {
		return texts[0].Text.Content
	}
	return ""
}
