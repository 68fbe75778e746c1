package receipt

import "strings"

// Status is the lifecycle tag of a record.
type Status string

const (
	StatusProcessing   Status = "Processing"
	StatusVerified     Status = "Verified"
	StatusReviewNeeded Status = "ReviewNeeded"
)

// Category is one of the fixed expense categories.
type Category string

const (
	CategoryFood      Category = "Food"
	CategoryTransport Category = "Transport"
	CategoryServices  Category = "Services"
	CategorySoftware  Category = "Software"
	CategoryOffice    Category = "Office"
	CategoryOther     Category = "Other"
)

var allCategories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryServices,
	CategorySoftware,
	CategoryOffice,
	CategoryOther,
}

// Categories returns the fixed category set in display order.
func Categories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// CategoryStrings returns the category set as plain strings, for prompts and schemas.
func CategoryStrings() []string {
	out := make([]string, len(allCategories))
	for i, c := range allCategories {
		out[i] = string(c)
	}
	return out
}

// ParseCategory canonicalizes a free-form label into the fixed set.
// Unknown or empty input maps to Other; the boolean reports a recognized match.
func ParseCategory(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return CategoryOther, false
	}

	// Labels the extraction model or older data sets may use.
	synonyms := map[string]Category{
		"alimentación": CategoryFood,
		"alimentacion": CategoryFood,
		"meals":        CategoryFood,
		"restaurant":   CategoryFood,
		"transporte":   CategoryTransport,
		"travel":       CategoryTransport,
		"servicios":    CategoryServices,
		"utilities":    CategoryServices,
		"oficina":      CategoryOffice,
		"supplies":     CategoryOffice,
		"otros":        CategoryOther,
	}
	if c, ok := synonyms[normalized]; ok {
		return c, true
	}

	for _, c := range allCategories {
		if normalized == strings.ToLower(string(c)) {
			return c, true
		}
	}
	return CategoryOther, false
}

// Item is one line item on a receipt.
type Item struct {
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Record is a committed receipt. Records are immutable after commit: they are
// created by review staging on confirm and destroyed only by explicit deletion.
type Record struct {
	ID               string   `json:"id"`
	MerchantName     string   `json:"merchantName"`
	TotalAmount      float64  `json:"totalAmount"`
	Currency         string   `json:"currency"`
	Date             string   `json:"date"` // YYYY-MM-DD
	Category         Category `json:"category"`
	CustomerDocument string   `json:"customerDocument"`
	Items            []Item   `json:"items"`
	ImageURL         string   `json:"imageUrl"` // data URI of the normalized image
	Status           Status   `json:"status"`
	UploadTimestamp  int64    `json:"uploadTimestamp"` // milliseconds since epoch
}

// Matches reports whether the record matches a search query: case-insensitive
// substring over merchant name and category, raw substring over the customer
// document. An empty query matches everything.
func (r *Record) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(r.MerchantName), q) {
		return true
	}
	if strings.Contains(strings.ToLower(string(r.Category)), q) {
		return true
	}
	return r.CustomerDocument != "" && strings.Contains(r.CustomerDocument, query)
}
