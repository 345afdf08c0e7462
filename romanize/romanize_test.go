package romanize

import (
	"strings"
	"sync"
	"testing"
)

func TestNeedsRomanization(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{input: "One Piece", expected: false},
		{input: "ゆるキャン△", expected: true},
		{input: "ゲート―自衛隊彼の地にて、斯く戦えり", expected: true},
		{input: "進撃の巨人", expected: true},
		{input: "Wan Pīsu", expected: false},
		{input: "", expected: false},
	}

	for _, tt := range tests {
		if got := NeedsRomanization(tt.input); got != tt.expected {
			t.Errorf("NeedsRomanization(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

type countingRomanizer struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingRomanizer) Romanize(text string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[text]++
	return strings.ToUpper(text)
}

func TestCachedRomanizerComputesOnce(t *testing.T) {
	inner := &countingRomanizer{}
	cached, err := NewCached(inner, 8)
	if err != nil {
		t.Fatalf("new cached: %v", err)
	}

	for i := 0; i < 3; i++ {
		if got := cached.Romanize("abc"); got != "ABC" {
			t.Fatalf("Romanize = %q, want ABC", got)
		}
	}
	if inner.calls["abc"] != 1 {
		t.Fatalf("inner calls = %d, want 1", inner.calls["abc"])
	}
	if got := cached.Romanize("xyz"); got != "XYZ" || inner.calls["xyz"] != 1 {
		t.Fatalf("second key: got %q after %d calls", got, inner.calls["xyz"])
	}
}

func TestCachedRomanizerEvicts(t *testing.T) {
	inner := &countingRomanizer{}
	cached, err := NewCached(inner, 1)
	if err != nil {
		t.Fatalf("new cached: %v", err)
	}

	cached.Romanize("a")
	cached.Romanize("b")
	cached.Romanize("a")
	if inner.calls["a"] != 2 {
		t.Fatalf("inner calls for evicted key = %d, want 2", inner.calls["a"])
	}
}

func TestNewCachedValidation(t *testing.T) {
	if _, err := NewCached(nil, 4); err == nil {
		t.Fatalf("expected error for nil romanizer")
	}
	if _, err := NewCached(&countingRomanizer{}, 0); err == nil {
		t.Fatalf("expected error for zero size")
	}
}

func TestKagomeRomanizeKana(t *testing.T) {
	k, err := NewKagome()
	if err != nil {
		t.Fatalf("new kagome: %v", err)
	}

	got := k.Romanize("ひらがな")
	if NeedsRomanization(got) {
		t.Fatalf("Romanize left kana behind: %q", got)
	}
	if strings.ReplaceAll(got, " ", "") != "hiragana" {
		t.Fatalf("Romanize(ひらがな) = %q, want hiragana", got)
	}
	if again := k.Romanize("ひらがな"); again != got {
		t.Fatalf("Romanize not deterministic: %q vs %q", again, got)
	}
}
