package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"iris-scraper/models"
)

// CSVWriter exports catalog records to a CSV file for spreadsheet review.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"identity_key", "display_name", "zone", "delivery_info", "status",
		"price_from", "issuer_name", "commission", "flags", "image_ref",
		"detail_ref", "observed_at",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Export appends every record to the file. Optional fields render as empty
// cells, flags as a comma-joined list.
func (c *CSVWriter) Export(records []*models.CatalogRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range records {
		row := []string{
			rec.IdentityKey,
			rec.DisplayName,
			orEmpty(rec.Zone),
			orEmpty(rec.DeliveryInfo),
			orEmpty(rec.Status),
			orEmpty(rec.PriceFrom),
			orEmpty(rec.IssuerName),
			orEmpty(rec.Commission),
			strings.Join(rec.Flags, ","),
			orEmpty(rec.ImageRef),
			rec.DetailRef,
			rec.ObservedAt.Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

func orEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
