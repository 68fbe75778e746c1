package extraction

import "errors"

// Classified extraction failures. The pipeline maps these onto user-facing
// notifications; everything else propagates as a generic wrapped error.
var (
	// ErrMissingAPIKey means the extractor was constructed without a
	// credential. Raised before any network call is attempted.
	ErrMissingAPIKey = errors.New("extraction: api key is required")

	// ErrUnauthorized means the service rejected the credential.
	ErrUnauthorized = errors.New("extraction: api key is invalid or lacks permissions")

	// ErrQuotaExceeded means the service rate-limited or exhausted quota.
	ErrQuotaExceeded = errors.New("extraction: quota exceeded")

	// ErrEmptyResponse means the service returned no content at all.
	ErrEmptyResponse = errors.New("extraction: empty response from model")

	// ErrMalformedResponse means the response violated the structured output
	// contract and could not be parsed.
	ErrMalformedResponse = errors.New("extraction: malformed response from model")
)
