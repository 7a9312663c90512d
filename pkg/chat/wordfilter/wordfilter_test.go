package wordfilter_test

import (
	"testing"

	"github.com/Shadowcake59/ChatVerse/pkg/chat/wordfilter"
)

func TestBlocksConfiguredWords(t *testing.T) {
	f := wordfilter.New([]string{"spam", "scam"})

	cases := []struct {
		text    string
		allowed bool
	}{
		{"hello there", true},
		{"this is spam", false},
		{"THIS IS SPAM", false},
		{"a ScAm artist", false},
		{"spamalot", false}, // substring match is intentional
		{"", true},
	}

	for _, c := range cases {
		if got := f.Allowed(c.text); got != c.allowed {
			t.Errorf("Allowed(%q) = %v, want %v", c.text, got, c.allowed)
		}
	}
}

func TestEmptyBlockListAllowsEverything(t *testing.T) {
	f := wordfilter.New(nil)
	if !f.Allowed("anything at all") {
		t.Error("empty block-list should allow all text")
	}
}

func TestBlockListEntriesAreNormalized(t *testing.T) {
	f := wordfilter.New([]string{"  BadWord  ", ""})
	if f.Allowed("contains badword inside") {
		t.Error("expected trimmed, lowercased entry to match")
	}
	if !f.Allowed("perfectly fine") {
		t.Error("empty entries must not block everything")
	}
}
