// Package extraction sends normalized receipt images to a multimodal model
// and parses the structured response into a candidate record.
package extraction

import (
	"context"

	"github.com/falvarez/receipt-manager/internal/imaging"
)

// CandidateItem is one extracted line item.
type CandidateItem struct {
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// Candidate is the partial record produced by extraction, pending human
// review. Fields the schema requires are pointers so "model supplied nothing"
// stays distinguishable from a zero value; optional fields carry their
// documented defaults (currency "USD", empty document, empty items).
type Candidate struct {
	MerchantName     *string         `json:"merchantName"`
	TotalAmount      *float64        `json:"totalAmount"`
	Date             *string         `json:"date"`
	Category         *string         `json:"category"`
	Currency         string          `json:"currency"`
	CustomerDocument string          `json:"customerDocument"`
	Items            []CandidateItem `json:"items"`
}

// Extractor analyzes a normalized receipt image. One attempt per call; any
// retry policy belongs to the caller.
type Extractor interface {
	Extract(ctx context.Context, img *imaging.Image) (*Candidate, error)
	Close() error
}
