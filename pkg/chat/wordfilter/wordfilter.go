// Package wordfilter is the default chat.Filter: a case-insensitive
// substring match against a configured block-list.
package wordfilter

import "strings"

type Filter struct {
	words []string
}

// New lowercases and trims the block-list once up front. Empty entries are
// dropped; an empty list allows everything.
func New(words []string) *Filter {
	normalized := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			normalized = append(normalized, w)
		}
	}
	return &Filter{words: normalized}
}

func (f *Filter) Allowed(text string) bool {
	if len(f.words) == 0 || text == "" {
		return true
	}
	lower := strings.ToLower(text)
	for _, w := range f.words {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}
