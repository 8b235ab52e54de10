package llm

import "fmt"

// GenerationError is returned when a completion request fails for any
// reason: network, auth, a provider-side tool failure, or step-limit
// exhaustion without a final answer. Message carries the provider's error
// text and is what adapters surface to the user.
type GenerationError struct {
	Provider string
	Message  string
	Err      error
}

func (e *GenerationError) Error() string {
	return e.Message
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// generationError wraps a provider failure, preserving the underlying error.
func generationError(provider string, err error) *GenerationError {
	return &GenerationError{Provider: provider, Message: err.Error(), Err: err}
}

// generationErrorf builds a GenerationError from a format string.
func generationErrorf(provider, format string, args ...any) *GenerationError {
	err := fmt.Errorf(format, args...)
	return &GenerationError{Provider: provider, Message: err.Error(), Err: err}
}
