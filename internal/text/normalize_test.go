package text

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text unchanged",
			input: "Hello world.",
			want:  "Hello world.",
		},
		{
			name:  "trims surrounding whitespace",
			input: "  Hello.  ",
			want:  "Hello.",
		},
		{
			name:  "collapses newlines to single spaces",
			input: "Hello\r\nworld\nagain",
			want:  "Hello world again",
		},
		{
			name:  "collapses repeated spaces",
			input: "Hello    world",
			want:  "Hello world",
		},
		{
			name:  "folds smart quotes",
			input: "“Hello” — it’s me…",
			want:  `"Hello" - it's me...`,
		},
		{
			name:  "drops control characters",
			input: "Hel\x00lo\x07",
			want:  "Hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if err != nil {
				t.Fatalf("Normalize(%q): %v", tt.input, err)
			}

			if got != tt.want {
				t.Errorf("Normalize(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_EmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t\r\n"} {
		_, err := Normalize(input)
		if !errors.Is(err, ErrEmptyText) {
			t.Errorf("Normalize(%q) err = %v; want ErrEmptyText", input, err)
		}
	}
}
