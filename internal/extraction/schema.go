package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractionPrompt enumerates the exact field set the model must return.
// The response shape itself is constrained by the schema; the prompt carries
// the reading instructions the schema cannot express.
func extractionPrompt(categories []string) string {
	return `Analyze this receipt image and extract the following details as JSON:
- Merchant or vendor name (merchantName)
- Total amount (totalAmount, numeric)
- Currency code (currency, e.g. USD, EUR, COP)
- Date (date, YYYY-MM-DD format)
- Category (category, choose one of: ` + strings.Join(categories, ", ") + `)
- Customer document or tax ID if visible (customerDocument)
- Line items (items) with description and price

If a field is not present on the receipt, use null or a reasonable empty value.
Never invent values that are not on the receipt.`
}

// responseSchema is the structured-output contract handed to the model.
// merchantName, totalAmount, date and category are mandatory; the rest are
// defaulted locally when absent.
func responseSchema(categories []string) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"merchantName":     {Type: genai.TypeString},
			"totalAmount":      {Type: genai.TypeNumber},
			"currency":         {Type: genai.TypeString},
			"date":             {Type: genai.TypeString},
			"category":         {Type: genai.TypeString, Enum: categories},
			"customerDocument": {Type: genai.TypeString, Nullable: true},
			"items": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"description": {Type: genai.TypeString},
						"price":       {Type: genai.TypeNumber},
					},
				},
			},
		},
		Required: []string{"merchantName", "totalAmount", "date", "category"},
	}
}

// contractSchema is the same contract as a JSON-Schema document, used to
// validate the raw response locally before parsing. Providers that cannot
// enforce structured output (Ollama) get checked by the same contract.
func contractSchema(categories []string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"merchantName":     map[string]any{"type": []any{"string", "null"}},
			"totalAmount":      map[string]any{"type": []any{"number", "null"}, "minimum": 0},
			"currency":         map[string]any{"type": "string"},
			"date":             map[string]any{"type": []any{"string", "null"}},
			"category":         map[string]any{"type": []any{"string", "null"}},
			"customerDocument": map[string]any{"type": []any{"string", "null"}},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description": map[string]any{"type": "string"},
						"price":       map[string]any{"type": "number"},
					},
				},
			},
		},
	}
}

// validateContract checks data against the extraction contract. A violation
// is a malformed response by definition.
func validateContract(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("contract.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("contract.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
