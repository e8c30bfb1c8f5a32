package repositories

import "fmt"

// CounterErrorCode enumerates failure reasons for counter operations.
type CounterErrorCode string

const (
	// CounterErrorInvalidInput indicates the caller supplied an unusable counter name.
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
	// CounterErrorCorrupt indicates the stored counter cannot be decoded or went negative.
	CounterErrorCorrupt CounterErrorCode = "counter_corrupt"
)

// CounterError wraps counter-specific failures with machine readable codes.
type CounterError struct {
	Name    string
	Code    CounterErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.Name != "" {
		return fmt.Sprintf("counter %s: %s", e.Name, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCounterError constructs a typed counter error.
func NewCounterError(name string, code CounterErrorCode, message string, err error) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{
		Name:    name,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
