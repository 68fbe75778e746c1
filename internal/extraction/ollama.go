package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/falvarez/receipt-manager/internal/imaging"
)

// Ollama implements Extractor against a local Ollama vision model (llava and
// friends). Ollama cannot enforce a response schema server-side, so the
// response is checked against the extraction contract locally.
type Ollama struct {
	baseURL  string
	model    string
	client   *http.Client
	contract map[string]any
	prompt   string
}

// NewOllama creates an Ollama extractor. Vision models can be slow, hence the
// generous client timeout.
func NewOllama(baseURL, modelName string, categories []string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL:  baseURL,
		model:    modelName,
		client:   &http.Client{Timeout: 120 * time.Second},
		contract: contractSchema(categories),
		prompt:   extractionPrompt(categories) + "\n\nReturn ONLY the JSON object, no markdown code blocks.",
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Images   []string        `json:"images,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Extract sends the normalized image to the local model and parses the reply.
func (o *Ollama) Extract(ctx context.Context, img *imaging.Image) (*Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, 120*time.Second)
	defer cancel()

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Format: "json",
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading receipts and invoices. Extract accurate information from the image.",
			},
			{
				Role:    "user",
				Content: o.prompt,
			},
		},
		Images: []string{base64.StdEncoding.EncodeToString(img.Data)},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama API: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		return nil, ErrQuotaExceeded
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	text, err := extractJSON(chatResp.Message.Content)
	if err != nil {
		return nil, err
	}
	if err := validateContract(o.contract, []byte(text)); err != nil {
		return nil, err
	}
	return parseCandidate(text)
}

// Close is a no-op for the HTTP client.
func (o *Ollama) Close() error {
	return nil
}
