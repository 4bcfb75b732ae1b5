package chunking

import "strings"

const defaultMaxRunes = 2000

// separators are tried in order when looking for a natural break inside a
// window; a window with none of them is cut hard at the limit.
var separators = []string{"\n\n", "\n", ". ", ", ", " "}

// Splitter cuts text into chunks of at most MaxRunes runes without overlap.
type Splitter struct {
	MaxRunes int
}

func NewSplitter(maxRunes int) *Splitter {
	if maxRunes <= 0 {
		maxRunes = defaultMaxRunes
	}
	return &Splitter{MaxRunes: maxRunes}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.MaxRunes+1)
	for len(runes) > 0 {
		if len(runes) <= s.MaxRunes {
			out = appendChunk(out, runes)
			break
		}
		cut := breakPoint(runes[:s.MaxRunes])
		out = appendChunk(out, runes[:cut])
		runes = runes[cut:]
	}
	return out
}

// breakPoint returns the length of the longest prefix of window that ends
// right after a separator, or the whole window.
func breakPoint(window []rune) int {
	text := string(window)
	for _, sep := range separators {
		idx := strings.LastIndex(text, sep)
		if idx <= 0 {
			continue
		}
		return len([]rune(text[:idx+len(sep)]))
	}
	return len(window)
}

func appendChunk(out []string, runes []rune) []string {
	chunk := strings.TrimSpace(string(runes))
	if chunk == "" {
		return out
	}
	return append(out, chunk)
}
