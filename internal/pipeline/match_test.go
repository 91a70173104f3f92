package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"gsadv/internal/config"
	"gsadv/internal/mapping"
	"gsadv/internal/normalize"
)

func newTestMatcher(t *testing.T, csvRows string) *Matcher {
	t.Helper()
	cfg, _ := config.Load()
	norm := normalize.New()

	m := mapping.Empty()
	if csvRows != "" {
		path := filepath.Join(t.TempDir(), "mapping.csv")
		if err := os.WriteFile(path, []byte("original,root\n"+csvRows), 0o644); err != nil {
			t.Fatal(err)
		}
		loaded, err := mapping.Load(path, norm)
		if err != nil {
			t.Fatal(err)
		}
		m = loaded
	}
	return NewMatcher(cfg, norm, m)
}

func TestMatchesManufacturerDirect(t *testing.T) {
	m := newTestMatcher(t, "")

	if !m.MatchesManufacturer("Acme Products Inc.", "ACME Industrial Supply") {
		t.Fatal("expected root containment match")
	}
	if m.MatchesManufacturer("Acme", "Ace") {
		t.Fatal("short near-miss must not match")
	}
	if m.MatchesManufacturer("", "Acme") || m.MatchesManufacturer("Acme", "") {
		t.Fatal("empty side must not match")
	}
}

func TestMatchesManufacturerMapping(t *testing.T) {
	m := newTestMatcher(t, "Acme Products Inc.,acme\nSmith-Jones Manufacturing,smith\n")

	if !m.MatchesManufacturer("Acme Products Inc.", "Zeta-Acme Corporation") {
		t.Fatal("expected alnum containment via mapped root")
	}
	if !m.MatchesManufacturer("Smith-Jones Manufacturing", "Wholesale by Smith-Jones") {
		t.Fatal("expected original-name containment after suffix strip")
	}
	// Name absent from the mapping but normalizing to a mapped key.
	if !m.MatchesManufacturer("ACME PRODUCTS", "Zeta-Acme Corporation") {
		t.Fatal("expected normalized-key mapping fallback")
	}
}

func TestMatchesManufacturerRejectsOverNormalized(t *testing.T) {
	m := newTestMatcher(t, "")

	// Both names collapse to the same two-letter token.
	if m.MatchesManufacturer("US Products", "US Brands") {
		t.Fatal("identical over-normalized tokens must not match")
	}
}

func TestMatchesUnit(t *testing.T) {
	m := newTestMatcher(t, "")

	cases := []struct {
		a, b string
		want bool
	}{
		{"EA.", "ea", true},
		{"Each", "EA", true},
		{"box", "Case", true},
		{"Box", "Dozen", false},
		{"dz", "doz", true},
		{"", "ea", false},
		{"ea", "", false},
	}
	for _, c := range cases {
		if got := m.MatchesUnit(c.a, c.b); got != c.want {
			t.Fatalf("MatchesUnit(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
