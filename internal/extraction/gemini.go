package extraction

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/falvarez/receipt-manager/internal/imaging"
)

// Gemini implements Extractor using Google Gemini structured output.
type Gemini struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	contract map[string]any
	prompt   string
}

// NewGemini creates a Gemini extractor constrained to the given category set.
// An empty API key fails here, before any network call.
func NewGemini(apiKey, modelName string, categories []string) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = responseSchema(categories)

	return &Gemini{
		client:   client,
		model:    model,
		contract: contractSchema(categories),
		prompt:   extractionPrompt(categories),
	}, nil
}

// Extract sends the normalized image and the field instructions to the model
// and parses the structured response. Single attempt, no retries.
func (g *Gemini) Extract(ctx context.Context, img *imaging.Image) (*Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// genai.ImageData takes the format suffix, not the full MIME type.
	// The normalizer guarantees JPEG.
	parts := []genai.Part{
		genai.ImageData("jpeg", img.Data),
		genai.Text(g.prompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, classifyServiceError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	text, err := extractJSON(responseText.String())
	if err != nil {
		return nil, err
	}
	if err := validateContract(g.contract, []byte(text)); err != nil {
		return nil, err
	}
	return parseCandidate(text)
}

// Close closes the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

// classifyServiceError maps transport failures onto the extraction taxonomy
// so the caller can present an actionable message.
func classifyServiceError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
	}
	// Some transports surface bare status text rather than a typed error.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "403") || strings.Contains(msg, "401"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case strings.Contains(msg, "429"):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return fmt.Errorf("generating content: %w", err)
}
