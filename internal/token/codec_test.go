package token

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateLengthAndAlphabet(t *testing.T) {
	c := New(10, 24)
	for _, length := range []int{8, 10, 12, 24, 64} {
		tok, err := c.Generate(length)
		if err != nil {
			t.Fatalf("Generate(%d) error: %v", length, err)
		}
		if len(tok) != length {
			t.Errorf("Generate(%d) length = %d", length, len(tok))
		}
		for _, ch := range tok {
			if !strings.ContainsRune(alphabet, ch) {
				t.Errorf("Generate(%d) produced %q outside alphabet", length, ch)
			}
		}
	}
}

func TestGenerateRejectsBadLengths(t *testing.T) {
	c := New(10, 24)
	for _, length := range []int{-1, 0, 7, 65, 1000} {
		if _, err := c.Generate(length); err == nil {
			t.Errorf("Generate(%d) expected error", length)
		}
	}
}

// A reader that first emits only rejectable bytes proves the sampling loop
// keeps reading instead of folding them into the output.
func TestGenerateRejectionSampling(t *testing.T) {
	rejected := bytes.Repeat([]byte{0xff}, 64) // all >= 248, all rejected
	accepted := bytes.Repeat([]byte{0x00}, 64) // maps to alphabet[0]
	c := NewWithRand(bytes.NewReader(append(rejected, accepted...)), 10, 24)

	tok, err := c.Generate(8)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if tok != strings.Repeat("0", 8) {
		t.Errorf("Generate = %q, want %q", tok, strings.Repeat("0", 8))
	}
}

func TestGenerateRandSourceExhausted(t *testing.T) {
	c := NewWithRand(bytes.NewReader([]byte{0xff, 0xff}), 10, 24)
	if _, err := c.Generate(8); err == nil {
		t.Error("expected error when random source runs dry")
	}
}

// Each symbol has exactly 4 accepting byte values, so over the full byte
// range every symbol must appear exactly 4 times. Uneven counts would mean
// modulo bias.
func TestGenerateUnbiasedOverFullByteRange(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	counts := map[byte]int{}
	for _, b := range all {
		if b <= rejectAbove {
			counts[alphabet[b%62]]++
		}
	}
	for i := 0; i < len(alphabet); i++ {
		if counts[alphabet[i]] != 4 {
			t.Fatalf("symbol %q has %d accepting bytes, want 4", alphabet[i], counts[alphabet[i]])
		}
	}
}

func TestHashDeterministic(t *testing.T) {
	a := Hash("sometoken123")
	b := Hash("sometoken123")
	if !bytes.Equal(a, b) {
		t.Error("Hash is not deterministic")
	}
	if len(a) != 32 {
		t.Errorf("Hash length = %d, want 32", len(a))
	}
	if bytes.Equal(a, Hash("sometoken124")) {
		t.Error("different tokens produced the same hash")
	}
}

func TestLooksValid(t *testing.T) {
	c := New(10, 24)
	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"valid min length", "0123456789", true},
		{"valid mixed case", "aB3dE6gH9jKl", true},
		{"valid max length", strings.Repeat("a", 24), true},
		{"too short", "abcde", false},
		{"too long", strings.Repeat("a", 25), false},
		{"empty", "", false},
		{"contains dash", "abcdefgh-jk", false},
		{"contains space", "abcdefgh jk", false},
		{"contains unicode", "abcdefghíjk", false},
		{"contains plus", "abcdefgh+jk", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.LooksValid(tt.token); got != tt.want {
				t.Errorf("LooksValid(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}

func TestLooksValidAcceptsGeneratedTokens(t *testing.T) {
	c := New(10, 24)
	for i := 0; i < 50; i++ {
		tok, err := c.Generate(12)
		if err != nil {
			t.Fatalf("Generate error: %v", err)
		}
		if !c.LooksValid(tok) {
			t.Fatalf("generated token %q rejected by LooksValid", tok)
		}
	}
}
