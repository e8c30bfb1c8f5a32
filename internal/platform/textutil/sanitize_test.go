package textutil

import (
	"errors"
	"testing"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"blank", "   ", ""},
		{"trims", "  Blue  mug\n", "Blue  mug"},
		{"keeps ampersand", "Salt & Pepper", "Salt & Pepper"},
		{"keeps comparison", "Bolts 5 < 6 mm", "Bolts 5 < 6 mm"},
		{"keeps quotes", `12" ruler`, `12" ruler`},
		{"composes accents", "Café", "Café"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CleanText(tc.input)
			if err != nil {
				t.Fatalf("CleanText(%q) returned error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("CleanText(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestCleanTextRejectsMarkup(t *testing.T) {
	for _, input := range []string{"Bolts <M6>", "a<b>c", "<script>alert(1)</script>"} {
		if _, err := CleanText(input); !errors.Is(err, ErrMarkup) {
			t.Fatalf("CleanText(%q) error = %v, want ErrMarkup", input, err)
		}
	}
}

func TestCleanTextPtr(t *testing.T) {
	if got, err := CleanTextPtr(nil); got != nil || err != nil {
		t.Fatalf("expected nil for nil input, got %v, %v", got, err)
	}
	blank := "   "
	if got, err := CleanTextPtr(&blank); got != nil || err != nil {
		t.Fatalf("expected nil for blank input, got %v, %v", got, err)
	}
	markup := "<i>1Z</i>"
	if _, err := CleanTextPtr(&markup); !errors.Is(err, ErrMarkup) {
		t.Fatalf("expected ErrMarkup, got %v", err)
	}
	value := " 1Z999 "
	got, err := CleanTextPtr(&value)
	if err != nil || got == nil || *got != "1Z999" {
		t.Fatalf("unexpected result %v, %v", got, err)
	}
}
