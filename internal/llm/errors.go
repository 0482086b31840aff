package llm

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse matches every MalformedResponseError with errors.Is.
var ErrMalformedResponse = errors.New("malformed model response")

// ProviderError is a transport, authentication, quota or server failure
// reported by the model provider. It is not retried.
type ProviderError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Type != "":
		return fmt.Sprintf("%s API error (%d, %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s API error (%d): %s", e.Provider, e.StatusCode, e.Message)
	case e.Type != "":
		return fmt.Sprintf("%s API error (%s): %s", e.Provider, e.Type, e.Message)
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s request failed: %s: %v", e.Provider, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports a response whose shape matches no known
// content variant.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed model response: %s: %v", e.Reason, e.Err)
	}
	return "malformed model response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}
