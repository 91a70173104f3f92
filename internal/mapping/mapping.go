package mapping

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gsadv/internal/normalize"
)

// Mapping resolves a manufacturer display name to its curated root
// token. Lookups fall back to a secondary index keyed by the
// normalized form of each original, so near-miss spellings of a known
// name still resolve.
type Mapping struct {
	byOriginal   map[string]string
	byNormalized map[string]string
}

func Empty() *Mapping {
	return &Mapping{byOriginal: map[string]string{}, byNormalized: map[string]string{}}
}

func Load(path string, norm *normalize.Normalizer) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mapping: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}

	m := Empty()
	for i, record := range records {
		if len(record) < 2 {
			continue
		}
		original := strings.TrimSpace(record[0])
		root := strings.ToLower(strings.TrimSpace(record[1]))
		if i == 0 && strings.EqualFold(original, "original") {
			continue
		}
		if original == "" || root == "" {
			continue
		}
		m.byOriginal[strings.ToLower(original)] = root
		if key := norm.Name(original); key != "" {
			m.byNormalized[key] = root
		}
	}
	return m, nil
}

func (m *Mapping) Root(original string) (string, bool) {
	root, ok := m.byOriginal[strings.ToLower(strings.TrimSpace(original))]
	return root, ok
}

func (m *Mapping) RootByNormalized(key string) (string, bool) {
	root, ok := m.byNormalized[key]
	return root, ok
}

func (m *Mapping) Len() int {
	return len(m.byOriginal)
}

// ReadNames loads a one-name-per-line manufacturer list, keeping order
// and dropping blank lines.
func ReadNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read name list: %w", err)
	}
	out := []string{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}

// Build pairs every name with its root form, preserving input order.
func Build(names []string) [][2]string {
	out := make([][2]string, 0, len(names))
	for _, name := range names {
		out = append(out, [2]string{name, normalize.RootForm(name)})
	}
	return out
}

func WriteCSV(path string, rows [][2]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create mapping dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create mapping: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write([]string{"original", "root"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{row[0], row[1]}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
