package portfolio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"DividendSentinel/internal/model"
)

var csvHeader = []string{"ticker", "name", "account", "quantity", "avg_cost", "current_price", "page", "row"}

// WriteCSV exports positions in extraction order.
func WriteCSV(w io.Writer, positions []model.Position) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range positions {
		price := ""
		if !p.CurrentPrice.IsZero() {
			price = p.CurrentPrice.String()
		}
		rec := []string{
			p.Ticker,
			p.Name,
			p.Account,
			p.Quantity.String(),
			p.AvgCost.String(),
			price,
			strconv.Itoa(p.Page),
			strconv.Itoa(p.Row),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes positions to path, creating parent directories.
func WriteCSVFile(path string, positions []model.Position) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, positions); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Snapshot is the JSON form of a parsed holdings report.
type Snapshot struct {
	Source    string           `json:"source"`
	UpdatedAt time.Time        `json:"updated_at"`
	Positions []model.Position `json:"positions"`
}

// LoadSnapshot reads a snapshot file. Returns an empty snapshot if the file
// doesn't exist.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{}, nil
		}
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &s, nil
}

// SaveSnapshot writes the snapshot as indented JSON.
func SaveSnapshot(path string, s *Snapshot) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
