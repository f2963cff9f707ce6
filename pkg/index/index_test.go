package index

import "testing"

func TestDictionaryBump(t *testing.T) {
	d := NewDictionary()

	if got := d.Freq("fox"); got != 0 {
		t.Errorf("Freq on empty dictionary = %d, want 0", got)
	}

	if got := d.Bump("fox"); got != 1 {
		t.Errorf("first Bump = %d, want 1", got)
	}
	if got := d.Bump("fox"); got != 2 {
		t.Errorf("second Bump = %d, want 2", got)
	}
	if got := d.Bump("dog"); got != 1 {
		t.Errorf("Bump of fresh term = %d, want 1", got)
	}

	if got := d.Freq("fox"); got != 2 {
		t.Errorf("Freq(fox) = %d, want 2", got)
	}
	if got := d.Len(); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}
}

func TestDictionaryMonotonic(t *testing.T) {
	d := NewDictionary()

	prev := uint64(0)
	for i := 0; i < 100; i++ {
		got := d.Bump("term")
		if got != prev+1 {
			t.Fatalf("Bump #%d = %d, want %d", i+1, got, prev+1)
		}
		prev = got
	}
}

func TestDictionarySnapshotRestore(t *testing.T) {
	d := NewDictionary()
	d.Bump("alpha")
	d.Bump("alpha")
	d.Bump("beta")

	snap := d.Snapshot()

	// Snapshot must be a copy, not a view.
	snap["alpha"] = 99
	if got := d.Freq("alpha"); got != 2 {
		t.Errorf("Freq(alpha) after mutating snapshot = %d, want 2", got)
	}

	restored := NewDictionary()
	restored.Restore(map[string]uint64{"alpha": 2, "beta": 1})
	if got := restored.Freq("alpha"); got != 2 {
		t.Errorf("restored Freq(alpha) = %d, want 2", got)
	}
	if got := restored.Bump("beta"); got != 2 {
		t.Errorf("Bump(beta) after restore = %d, want 2", got)
	}
}

func TestCorpusStatsAvgDocLen(t *testing.T) {
	tests := []struct {
		name  string
		stats CorpusStats
		want  float64
	}{
		{"empty corpus", CorpusStats{}, 0},
		{"single document", CorpusStats{Documents: 1, TotalSize: 40}, 40},
		{"several documents", CorpusStats{Documents: 4, TotalSize: 100}, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stats.AvgDocLen(); got != tt.want {
				t.Errorf("AvgDocLen() = %v, want %v", got, tt.want)
			}
		})
	}
}
