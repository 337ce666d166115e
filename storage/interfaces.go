package storage

import (
	"context"
	"errors"

	"iris-scraper/models"
)

// ErrClosed is returned by sinks whose Close has already run.
var ErrClosed = errors.New("storage: sink is closed")

// SaveStatus reports what SaveRecord did with an incoming record.
type SaveStatus int

const (
	StatusInserted SaveStatus = iota
	StatusUpdated
	StatusUnchanged
)

func (s SaveStatus) String() string {
	switch s {
	case StatusInserted:
		return "inserted"
	case StatusUpdated:
		return "updated"
	case StatusUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// RecordSink is the persistence boundary for catalog and detail records.
// Implementations must be idempotent on IdentityKey and safe for concurrent
// use: saving the same record twice updates, it never duplicates.
type RecordSink interface {
	SaveRecord(ctx context.Context, rec *models.CatalogRecord) (SaveStatus, error)
	SaveDetail(ctx context.Context, detail *models.DetailRecord) error
	FetchRecords(ctx context.Context) ([]*models.CatalogRecord, error)
	ProcessedKeys(ctx context.Context) (map[string]bool, error)
	Close() error
}

// CatalogExporter writes catalog snapshots to flat files.
type CatalogExporter interface {
	Export(records []*models.CatalogRecord) error
	Close() error
}
