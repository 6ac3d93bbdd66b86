package heuristic

import (
	"strings"

	"github.com/zombor/receipt-extractor/internal/receipt"
)

// matcher tries to pull a field out of the input. ok is false when it has nothing to offer.
type matcher[T any] func(lines []string) (field receipt.Field[T], ok bool)

// firstMatch evaluates matchers in order and returns the first hit
func firstMatch[T any](lines []string, chain ...matcher[T]) (receipt.Field[T], bool) {
	for _, m := range chain {
		if field, ok := m(lines); ok {
			return field, true
		}
	}
	var zero receipt.Field[T]
	return zero, false
}

// splitLines splits text into trimmed lines, keeping empty ones so offsets stay meaningful
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}

// nonEmpty returns up to n non-empty lines
func nonEmpty(lines []string, n int) []string {
	out := make([]string, 0, n)
	for _, line := range lines {
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}
