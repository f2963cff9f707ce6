package tokenizer

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenizeSplitsAndStems(t *testing.T) {
	tok := NewEnglish()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"simple sentence", "The quick brown fox", []string{"the", "quick", "brown", "fox"}},
		{"stemming", "jumps gathering", []string{"jump", "gather"}},
		{"punctuation splits", "magic, the. gathering!", []string{"magic", "the", "gather"}},
		{"digits kept", "top 10 results", []string{"top", "10", "result"}},
		{"empty input", "", []string{}},
		{"only separators", " ,.;! ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Tokenize(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTokenizeDropsLongTokens(t *testing.T) {
	tok := NewEnglish()

	long := strings.Repeat("a", 41)
	got := tok.Tokenize("fox " + long + " dog")

	if len(got) != 2 {
		t.Fatalf("Tokenize kept %d tokens, want 2: %v", len(got), got)
	}
	if got[0] != "fox" || got[1] != "dog" {
		t.Errorf("Tokenize = %v, want [fox dog]", got)
	}

	// Exactly at the limit is kept.
	kept := tok.Tokenize(strings.Repeat("b", 40))
	if len(kept) != 1 {
		t.Errorf("40-byte token should be kept, got %v", kept)
	}
}

func TestTokenizeStableAcrossCalls(t *testing.T) {
	tok := NewEnglish()
	text := "The Quick BROWN fox jumps over the lazy dog"

	a := tok.Tokenize(text)
	b := tok.Tokenize(text)
	if !reflect.DeepEqual(a, b) {
		t.Error("Tokenize is not stable for identical input")
	}
}

func TestFrequencies(t *testing.T) {
	got := Frequencies([]string{"quick", "brown", "quick", "fox", "quick"})

	want := map[string]uint64{"quick": 3, "brown": 1, "fox": 1}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Frequencies = %v, want %v", got, want)
	}
}

func TestFrequenciesEmpty(t *testing.T) {
	if got := Frequencies(nil); len(got) != 0 {
		t.Errorf("Frequencies(nil) = %v, want empty", got)
	}
}
