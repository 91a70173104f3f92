package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"gsadv/internal/normalize"
)

func TestLoadAndLookup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.csv")
	csv := "original,root\nAcme Products Inc.,acme\n3M Company,3m\n,empty\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path, normalize.New())
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Len())
	}

	root, ok := m.Root("Acme Products Inc.")
	if !ok || root != "acme" {
		t.Fatalf("Root lookup failed: %q %v", root, ok)
	}
	root, ok = m.Root("ACME PRODUCTS INC.")
	if !ok || root != "acme" {
		t.Fatalf("case-insensitive lookup failed: %q %v", root, ok)
	}
	if _, ok := m.Root("Unknown Corp"); ok {
		t.Fatal("unexpected hit for unknown name")
	}

	root, ok = m.RootByNormalized("acme")
	if !ok || root != "acme" {
		t.Fatalf("normalized lookup failed: %q %v", root, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"), normalize.New())
	if err == nil {
		t.Fatal("expected error for unreadable mapping file")
	}
}

func TestBuildRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "mapping.csv")

	rows := Build([]string{"Acme Products Inc.", "Widget Co"})
	if rows[0][1] != "acme" || rows[1][1] != "widget" {
		t.Fatalf("unexpected roots: %+v", rows)
	}
	if err := WriteCSV(path, rows); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path, normalize.New())
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Len())
	}
	if root, ok := m.Root("Widget Co"); !ok || root != "widget" {
		t.Fatalf("round trip failed: %q %v", root, ok)
	}
}
