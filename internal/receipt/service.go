package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/falvarez/receipt-manager/internal/extraction"
	"github.com/falvarez/receipt-manager/internal/imaging"
)

// Pipeline coordination failures.
var (
	// ErrUploadInFlight rejects a second upload while one is being processed.
	ErrUploadInFlight = errors.New("an upload is already being processed")

	// ErrUploadSuperseded reports an extraction result that arrived after the
	// reviewer moved on; the late result is discarded, never staged.
	ErrUploadSuperseded = errors.New("upload was superseded")
)

// IDGenerator generates unique IDs for committed records.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

// Normalizer converts a raw upload into a bounded, displayable image.
type Normalizer func(data []byte, contentType string) (*imaging.Image, error)

// Service runs the upload → extraction → review → commit pipeline over a
// single store. All staging access goes through the service mutex.
type Service struct {
	store      Store
	extractor  extraction.Extractor
	normalize  Normalizer
	idGen      IDGenerator
	timeSource TimeSource

	mu         sync.Mutex
	staging    Staging
	inFlight   bool
	generation uint64
}

// NewService creates a Service with the production ID generator and clock.
func NewService(store Store, extractor extraction.Extractor) *Service {
	return NewServiceWithDeps(store, extractor, imaging.Normalize, uuidGenerator{}, realClock{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(store Store, extractor extraction.Extractor, normalize Normalizer, idGen IDGenerator, timeSource TimeSource) *Service {
	return &Service{
		store:      store,
		extractor:  extractor,
		normalize:  normalize,
		idGen:      idGen,
		timeSource: timeSource,
	}
}

// Upload runs one pass of the extraction pipeline: normalize the image, send
// it to the model, seed review staging with the candidate. At most one upload
// is processed at a time; failures abort the attempt and leave the store
// untouched. No automatic retries.
func (s *Service) Upload(ctx context.Context, filename string, data []byte, contentType string) (*Draft, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return nil, ErrUploadInFlight
	}
	s.inFlight = true
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	img, err := s.normalize(data, contentType)
	if err != nil {
		slog.Error("Failed to normalize upload",
			"filename", filename,
			"content_type", contentType,
			"size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("normalizing image: %w", err)
	}

	candidate, err := s.extractor.Extract(ctx, img)
	if err != nil {
		slog.Error("Failed to extract receipt fields",
			"filename", filename,
			"error", err,
		)
		return nil, fmt.Errorf("extracting receipt: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		// A cancel bumped the generation while extraction was running.
		return nil, ErrUploadSuperseded
	}
	s.staging.Begin(candidate, img, generation, s.timeSource.Now())

	draft, err := s.staging.Snapshot()
	if err != nil {
		return nil, err
	}
	return draft, nil
}

// Review returns the staged form state awaiting confirmation.
func (s *Service) Review() (*Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staging.Snapshot()
}

// ConfirmReview validates the reviewer's edits, commits the record to the
// store, and clears staging. The record is immutable from here on.
func (s *Service) ConfirmReview(edits ReviewEdits) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.staging.Confirm(edits, s.idGen.Generate(), s.timeSource.Now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Append(record); err != nil {
		return nil, fmt.Errorf("committing receipt: %w", err)
	}
	s.staging.Cancel()
	return record, nil
}

// CancelReview discards the staged candidate and invalidates any extraction
// still in flight.
func (s *Service) CancelReview() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staging.Cancel()
	s.generation++
}

// Delete removes a committed record. Deleting an unknown ID is a no-op.
func (s *Service) Delete(id string) error {
	if err := s.store.Delete(id); err != nil {
		return fmt.Errorf("deleting receipt: %w", err)
	}
	return nil
}

// List returns all committed records, most-recent-first.
func (s *Service) List() ([]*Record, error) {
	records, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return records, nil
}

// Search returns the records matching the query, preserving store order.
func (s *Service) Search(query string) ([]*Record, error) {
	records, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	matched := make([]*Record, 0, len(records))
	for _, r := range records {
		if r.Matches(query) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// CategoryTotal is the spend accumulated in one category.
type CategoryTotal struct {
	Category Category `json:"category"`
	Total    float64  `json:"total"`
}

// TrendPoint is one month on the dashboard trend chart.
type TrendPoint struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

// Summary is the dashboard tile data.
type Summary struct {
	TotalSpend      float64         `json:"totalSpend"`
	ReceiptCount    int             `json:"receiptCount"`
	MissingDocument int             `json:"missingDocument"`
	CategoryTotals  []CategoryTotal `json:"categoryTotals"`
	MonthlyTrend    []TrendPoint    `json:"monthlyTrend"`
}

// monthlyTrend is fixed placeholder data; the dashboard shows it for visual
// continuity only and no real trend analytics are computed.
var monthlyTrend = []TrendPoint{
	{Month: "Jun", Total: 320.00},
	{Month: "Jul", Total: 410.50},
	{Month: "Aug", Total: 275.25},
	{Month: "Sep", Total: 498.75},
	{Month: "Oct", Total: 182.25},
}

// Summarize computes the dashboard tiles from the current collection.
func (s *Service) Summarize() (*Summary, error) {
	records, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	summary := &Summary{
		ReceiptCount: len(records),
		MonthlyTrend: monthlyTrend,
	}
	byCategory := make(map[Category]float64)
	for _, r := range records {
		summary.TotalSpend += r.TotalAmount
		if r.CustomerDocument == "" {
			summary.MissingDocument++
		}
		byCategory[r.Category] += r.TotalAmount
	}
	for _, c := range Categories() {
		if total, ok := byCategory[c]; ok {
			summary.CategoryTotals = append(summary.CategoryTotals, CategoryTotal{Category: c, Total: total})
		}
	}
	return summary, nil
}
