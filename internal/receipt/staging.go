package receipt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/falvarez/receipt-manager/internal/extraction"
	"github.com/falvarez/receipt-manager/internal/imaging"
)

// PlaceholderMerchant is used when neither extraction nor the reviewer
// supplies a merchant name.
const PlaceholderMerchant = "Unknown Merchant"

// Staging validation failures, surfaced to the review form.
var (
	// ErrDocumentRequired blocks commit while the customer document is empty.
	ErrDocumentRequired = errors.New("customer document is required")

	// ErrInvalidAmount reports amount input that is not a non-negative number.
	// Invalid input is rejected outright, never coerced.
	ErrInvalidAmount = errors.New("total amount must be a non-negative number")

	// ErrNothingStaged means there is no candidate awaiting review.
	ErrNothingStaged = errors.New("no receipt is awaiting review")
)

// Draft is the editable form state seeded from a candidate, with
// type-appropriate defaults already applied.
type Draft struct {
	MerchantName     string   `json:"merchantName"`
	TotalAmount      float64  `json:"totalAmount"`
	Currency         string   `json:"currency"`
	Date             string   `json:"date"`
	Category         Category `json:"category"`
	CustomerDocument string   `json:"customerDocument"`
	Items            []Item   `json:"items"`
	ImageURL         string   `json:"imageUrl"`
}

// ReviewEdits carries the reviewer's final field values. Amount arrives as
// text from the form and is coerced here under the staging validation rules.
type ReviewEdits struct {
	MerchantName     string `json:"merchantName"`
	TotalAmount      string `json:"totalAmount"`
	Currency         string `json:"currency"`
	Date             string `json:"date"`
	Category         string `json:"category"`
	CustomerDocument string `json:"customerDocument"`
	Items            []Item `json:"items"`
}

// Staging holds at most one candidate pending human confirmation. The
// candidate is owned wholly by staging: discarded on cancel, never partially
// persisted. Callers serialize access (see Service).
type Staging struct {
	draft      *Draft
	generation uint64
}

// Begin seeds staging from an extraction candidate, applying defaults for
// everything the model omitted. Any previously staged candidate is replaced.
func (s *Staging) Begin(candidate *extraction.Candidate, img *imaging.Image, generation uint64, today time.Time) {
	draft := &Draft{
		MerchantName:     PlaceholderMerchant,
		Currency:         "USD",
		Date:             today.Format("2006-01-02"),
		Category:         CategoryOther,
		Items:            []Item{},
		ImageURL:         img.DataURI(),
		CustomerDocument: candidate.CustomerDocument,
	}
	if candidate.MerchantName != nil {
		draft.MerchantName = *candidate.MerchantName
	}
	if candidate.TotalAmount != nil && *candidate.TotalAmount >= 0 {
		draft.TotalAmount = *candidate.TotalAmount
	}
	if candidate.Currency != "" {
		draft.Currency = candidate.Currency
	}
	if candidate.Date != nil {
		draft.Date = *candidate.Date
	}
	if candidate.Category != nil {
		draft.Category, _ = ParseCategory(*candidate.Category)
	}
	for _, item := range candidate.Items {
		draft.Items = append(draft.Items, Item{Description: item.Description, Price: item.Price})
	}

	s.draft = draft
	s.generation = generation
}

// Pending reports whether a candidate is awaiting review.
func (s *Staging) Pending() bool {
	return s.draft != nil
}

// Generation returns the upload generation of the staged candidate.
func (s *Staging) Generation() uint64 {
	return s.generation
}

// Snapshot returns the seeded form state, or ErrNothingStaged.
func (s *Staging) Snapshot() (*Draft, error) {
	if s.draft == nil {
		return nil, ErrNothingStaged
	}
	copied := *s.draft
	copied.Items = append([]Item(nil), s.draft.Items...)
	return &copied, nil
}

// Confirm validates the reviewer's edits and builds the committed record.
// The customer document gate and the amount coercion policy are the only
// validation; every other field falls back to its default. The caller clears
// staging once the record has actually been persisted, so a failed append
// does not lose the candidate.
func (s *Staging) Confirm(edits ReviewEdits, id string, now time.Time) (*Record, error) {
	if s.draft == nil {
		return nil, ErrNothingStaged
	}

	if strings.TrimSpace(edits.CustomerDocument) == "" {
		return nil, ErrDocumentRequired
	}

	amount, err := parseAmount(edits.TotalAmount)
	if err != nil {
		return nil, err
	}

	merchant := strings.TrimSpace(edits.MerchantName)
	if merchant == "" {
		merchant = PlaceholderMerchant
	}
	currency := strings.ToUpper(strings.TrimSpace(edits.Currency))
	if currency == "" {
		currency = "USD"
	}
	date := strings.TrimSpace(edits.Date)
	if _, parseErr := time.Parse("2006-01-02", date); parseErr != nil {
		date = now.Format("2006-01-02")
	}
	category, _ := ParseCategory(edits.Category)
	items := edits.Items
	if items == nil {
		items = s.draft.Items
	}
	if items == nil {
		items = []Item{}
	}

	record := &Record{
		ID:               id,
		MerchantName:     merchant,
		TotalAmount:      amount,
		Currency:         currency,
		Date:             date,
		Category:         category,
		CustomerDocument: strings.TrimSpace(edits.CustomerDocument),
		Items:            items,
		ImageURL:         s.draft.ImageURL,
		Status:           StatusVerified,
		UploadTimestamp:  now.UnixMilli(),
	}
	return record, nil
}

// Cancel discards the staged candidate with no persisted side effect.
func (s *Staging) Cancel() {
	s.draft = nil
}

// parseAmount coerces the form's amount text into a non-negative number.
// Empty input means the reviewer left the default zero in place.
func parseAmount(text string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	amount, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	// ParseFloat accepts "NaN" and "Inf"; neither is a spendable amount.
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, text)
	}
	return amount, nil
}
