package text

import (
	"errors"
	"strings"
	"unicode"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// quoteFolder maps typographic quotes and dashes to their ASCII forms so the
// synthesis backend sees plain punctuation.
var quoteFolder = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"–", "-",
	"—", "-",
	"…", "...",
)

// Normalize prepares raw input text for synthesis.
// It folds typographic punctuation, turns all whitespace runs (including
// newlines) into single spaces, drops control characters, and rejects empty
// or whitespace-only input.
func Normalize(s string) (string, error) {
	s = quoteFolder.Replace(s)

	var b strings.Builder
	b.Grow(len(s))

	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsControl(r):
			// skip
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}

	out := b.String()
	if out == "" {
		return "", ErrEmptyText
	}

	return out, nil
}
