package textutil

import (
	"errors"
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

// ErrMarkup reports text that carries HTML markup.
var ErrMarkup = errors.New("text contains markup")

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy
)

func plainTextPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// ContainsMarkup reports whether the strict policy would change value. Plain text that the
// policy only escapes, such as "A & B" or "5 < 6", is not markup.
func ContainsMarkup(value string) bool {
	return html.UnescapeString(plainTextPolicy().Sanitize(value)) != value
}

// CleanText trims value and normalises it to NFC. Text carrying markup is refused with
// ErrMarkup rather than rewritten.
func CleanText(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	if ContainsMarkup(trimmed) {
		return "", ErrMarkup
	}
	return norm.NFC.String(trimmed), nil
}

// CleanTextPtr applies CleanText to an optional value. Blank results become nil.
func CleanTextPtr(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	cleaned, err := CleanText(*value)
	if err != nil || cleaned == "" {
		return nil, err
	}
	return &cleaned, nil
}
