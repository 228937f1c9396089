package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"DividendSentinel/internal/model"
)

// WriteJSON encodes the report for the presentation layer.
func WriteJSON(w io.Writer, r model.WeeklyReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

// Save writes the Markdown and JSON renderings into dir and returns their
// paths.
func Save(dir string, r model.WeeklyReport) (mdPath, jsonPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	base := "weekly-" + r.RunAt.Format("2006-01-02")
	mdPath = filepath.Join(dir, base+".md")
	jsonPath = filepath.Join(dir, base+".json")

	if err := os.WriteFile(mdPath, []byte(Markdown(r)), 0644); err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}
	f, err := os.Create(jsonPath)
	if err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}
	if err := WriteJSON(f, r); err != nil {
		f.Close()
		return "", "", fmt.Errorf("encode report: %w", err)
	}
	return mdPath, jsonPath, f.Close()
}
