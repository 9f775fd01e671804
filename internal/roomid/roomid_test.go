package roomid

import (
	"strings"
	"testing"
)

func TestGenerateShape(t *testing.T) {
	id := Generate()
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		t.Fatalf("expected three words, got %q", id)
	}
	for _, part := range parts {
		if part == "" {
			t.Errorf("empty word in %q", id)
		}
	}
}

func TestGenerateVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		seen[Generate()] = true
	}
	// 24*24*16 combinations; 50 draws colliding into one bucket would
	// mean the RNG is broken.
	if len(seen) < 2 {
		t.Error("expected varied room IDs")
	}
}
