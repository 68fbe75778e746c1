package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// extractJSON isolates the JSON object in a model reply. Models occasionally
// wrap JSON in markdown fences or surrounding prose despite instructions.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}

	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}
	return text[start : end+1], nil
}

// parseCandidate parses an isolated JSON object into a Candidate and applies
// the documented defaults: currency "USD", empty customer document, empty item
// list. Dates are normalized to YYYY-MM-DD where a known format matches.
func parseCandidate(text string) (*Candidate, error) {
	var c Candidate
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if c.Date != nil {
		if normalized, ok := normalizeDate(*c.Date); ok {
			c.Date = &normalized
		} else {
			c.Date = nil
		}
	}
	if c.MerchantName != nil {
		trimmed := strings.TrimSpace(*c.MerchantName)
		if trimmed == "" {
			c.MerchantName = nil
		} else {
			c.MerchantName = &trimmed
		}
	}

	if c.Currency == "" {
		c.Currency = "USD"
	}
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	c.CustomerDocument = strings.TrimSpace(c.CustomerDocument)
	if c.Items == nil {
		c.Items = []CandidateItem{}
	}

	return &c, nil
}

// normalizeDate converts a date string into YYYY-MM-DD, trying the formats
// receipts commonly carry.
func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	formats := []string{
		"2006-01-02",
		"2006/01/02",
		"01/02/2006",
		"02-01-2006",
	}
	for _, format := range formats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02"), true
		}
	}
	return "", false
}
