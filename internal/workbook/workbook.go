package workbook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Table is an in-memory view of the first sheet: a header row plus
// string cells. Columns are addressed by header name.
type Table struct {
	Headers []string
	Rows    [][]string

	index map[string]int
}

// NewTable builds a detached table, mainly for callers that assemble
// rows in memory before writing them out.
func NewTable(headers []string, rows [][]string) *Table {
	return newTable(headers, rows)
}

func newTable(headers []string, rows [][]string) *Table {
	t := &Table{Headers: headers, Rows: rows}
	t.reindex()
	for i := range t.Rows {
		t.padRow(i)
	}
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Headers))
	for i, h := range t.Headers {
		t.index[strings.ToLower(strings.TrimSpace(h))] = i
	}
}

func (t *Table) padRow(i int) {
	for len(t.Rows[i]) < len(t.Headers) {
		t.Rows[i] = append(t.Rows[i], "")
	}
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// FindColumn resolves a header by probe: exact match first, then
// substring, both case-insensitive. Returns the canonical header name.
func (t *Table) FindColumn(probes ...string) (string, bool) {
	for _, probe := range probes {
		probe = strings.ToLower(strings.TrimSpace(probe))
		if i, ok := t.index[probe]; ok {
			return t.Headers[i], true
		}
	}
	for _, probe := range probes {
		probe = strings.ToLower(strings.TrimSpace(probe))
		for i, h := range t.Headers {
			if strings.Contains(strings.ToLower(h), probe) {
				return t.Headers[i], true
			}
		}
	}
	return "", false
}

func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func (t *Table) EnsureColumn(name string) {
	if t.HasColumn(name) {
		return
	}
	t.Headers = append(t.Headers, name)
	t.reindex()
	for i := range t.Rows {
		t.padRow(i)
	}
}

func (t *Table) Get(row int, col string) string {
	i, ok := t.index[strings.ToLower(strings.TrimSpace(col))]
	if !ok || row < 0 || row >= len(t.Rows) {
		return ""
	}
	return t.Rows[row][i]
}

func (t *Table) Set(row int, col, value string) {
	i, ok := t.index[strings.ToLower(strings.TrimSpace(col))]
	if !ok || row < 0 || row >= len(t.Rows) {
		return
	}
	t.Rows[row][i] = value
}

// IsEmptyCell reports whether a cell holds no real value. The "nan"
// strings left behind by earlier tooling count as empty.
func (t *Table) IsEmptyCell(row int, col string) bool {
	v := strings.TrimSpace(t.Get(row, col))
	return v == "" || strings.EqualFold(v, "nan")
}

// Workbook owns the on-disk .xlsx file and its backup rotation. Saves
// are atomic: a temp file is written next to the target and renamed
// over it, after the current file is copied into the backup dir.
type Workbook struct {
	path        string
	sheet       string
	backupDir   string
	backupsKept int
}

func Open(path, backupDir string, backupsKept int) (*Workbook, *Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("workbook %s: sheet %s has no header row", path, sheet)
	}

	headers := rows[0]
	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		data = append(data, row)
	}

	w := &Workbook{path: path, sheet: sheet, backupDir: backupDir, backupsKept: backupsKept}
	return w, newTable(headers, data), nil
}

func (w *Workbook) Path() string {
	return w.path
}

func (w *Workbook) Save(t *Table) error {
	if err := w.backup(); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	if w.sheet != "" && w.sheet != sheet {
		f.SetSheetName(sheet, w.sheet)
		sheet = w.sheet
	}

	for i, h := range t.Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range t.Rows {
		for c, value := range row {
			if value == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	tmp := w.path + ".tmp.xlsx"
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("write temp workbook: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

func (w *Workbook) backup() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read workbook for backup: %w", err)
	}
	if err := os.MkdirAll(w.backupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(w.path), filepath.Ext(w.path))
	name := fmt.Sprintf("%s.backup_%s.xlsx", base, time.Now().Format("20060102_150405"))
	if err := os.WriteFile(filepath.Join(w.backupDir, name), data, 0o644); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	w.rotateBackups(base)
	return nil
}

func (w *Workbook) rotateBackups(base string) {
	entries, err := os.ReadDir(w.backupDir)
	if err != nil {
		return
	}
	prefix := base + ".backup_"
	backups := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, e.Name())
		}
	}
	if len(backups) <= w.backupsKept {
		return
	}
	// Timestamped names sort chronologically.
	sort.Strings(backups)
	for _, name := range backups[:len(backups)-w.backupsKept] {
		os.Remove(filepath.Join(w.backupDir, name))
	}
}
