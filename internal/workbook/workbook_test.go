package workbook

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func writeFixture(t *testing.T, path string, headers []string, rows [][]string) {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			t.Fatal(err)
		}
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}

func TestOpenAndColumnResolution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.xlsx")
	writeFixture(t, path,
		[]string{"Item Number", "Manufacturer Long Name", "Unit of Measure", "Links"},
		[][]string{{"100200", "Acme Products Inc.", "EA", "https://example.test/search"}},
	)

	_, table, err := Open(path, filepath.Join(dir, "backups"), 5)
	if err != nil {
		t.Fatal(err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", table.Len())
	}

	col, ok := table.FindColumn("item number")
	if !ok || col != "Item Number" {
		t.Fatalf("item number resolution failed: %q %v", col, ok)
	}
	col, ok = table.FindColumn("manufacturer")
	if !ok || col != "Manufacturer Long Name" {
		t.Fatalf("manufacturer resolution failed: %q %v", col, ok)
	}
	if _, ok := table.FindColumn("no such header"); ok {
		t.Fatal("unexpected column hit")
	}

	if got := table.Get(0, "Item Number"); got != "100200" {
		t.Fatalf("unexpected cell: %q", got)
	}
}

func TestEnsureColumnAndEmptyCells(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.xlsx")
	writeFixture(t, path,
		[]string{"Item Number"},
		[][]string{{"1"}, {"2"}},
	)

	_, table, err := Open(path, filepath.Join(dir, "backups"), 5)
	if err != nil {
		t.Fatal(err)
	}

	table.EnsureColumn("SIN1")
	table.EnsureColumn("SIN1")
	if len(table.Headers) != 2 {
		t.Fatalf("duplicate column created: %v", table.Headers)
	}

	if !table.IsEmptyCell(0, "SIN1") {
		t.Fatal("new cell must be empty")
	}
	table.Set(0, "SIN1", "nan")
	if !table.IsEmptyCell(0, "SIN1") {
		t.Fatal("nan must count as empty")
	}
	table.Set(0, "SIN1", "332510C")
	if table.IsEmptyCell(0, "SIN1") {
		t.Fatal("filled cell reported empty")
	}
}

func TestSaveIsAtomicAndKeepsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.xlsx")
	backupDir := filepath.Join(dir, "backups")
	writeFixture(t, path,
		[]string{"Item Number", "SIN1"},
		[][]string{{"1", ""}},
	)

	wb, table, err := Open(path, backupDir, 2)
	if err != nil {
		t.Fatal(err)
	}

	table.Set(0, "SIN1", "332510C")
	if err := wb.Save(table); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp.xlsx"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}

	_, reloaded, err := Open(path, backupDir, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Get(0, "SIN1"); got != "332510C" {
		t.Fatalf("saved value lost: %q", got)
	}

	// Rotation keeps only the newest N backups.
	for i := 0; i < 3; i++ {
		time.Sleep(1100 * time.Millisecond)
		if err := wb.Save(table); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 backups, got %d", len(entries))
	}
}
