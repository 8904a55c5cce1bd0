package projector

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// Encode renders a document as CSV with a header row.
func Encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(doc.Columns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(doc.Columns))
	for i, row := range doc.Rows {
		for j, col := range doc.Columns {
			record[j] = row.Values[col]
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes the document into dir under name and returns the path.
// The file is written to a temporary name first and renamed into place, so
// a failed write never leaves a partial document behind.
func WriteFile(doc *Document, dir, name string) (string, error) {
	data, err := Encode(doc)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, ".tmp-*.csv")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return path, nil
}
