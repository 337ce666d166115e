package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"iris-scraper/models"
)

// SQLiteWriter persists catalog and detail records to a local SQLite file.
// It is the default sink: zero external services, and the pure-Go driver
// keeps the binary self-contained.
type SQLiteWriter struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewSQLiteWriter opens (creating if needed) the database at path and runs
// schema migrations. ":memory:" is accepted for ephemeral use.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("sqlite: create output dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// One connection end to end: SQLite serializes writers anyway and a
	// single conn sidesteps SQLITE_BUSY under concurrent detail saves.
	db.SetMaxOpenConns(1)

	w := &SQLiteWriter{db: db}
	if err := w.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return w, nil
}

func (w *SQLiteWriter) migrate() error {
	_, err := w.db.Exec(`
		CREATE TABLE IF NOT EXISTS projects (
			identity_key  TEXT PRIMARY KEY,
			display_name  TEXT NOT NULL,
			zone          TEXT,
			delivery_info TEXT,
			status        TEXT,
			price_from    TEXT,
			issuer_name   TEXT,
			commission    TEXT,
			flags         TEXT NOT NULL DEFAULT '',
			image_ref     TEXT,
			detail_ref    TEXT NOT NULL,
			observed_at   TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS units (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			identity_key   TEXT NOT NULL REFERENCES projects(identity_key),
			typology       TEXT,
			internal_area  REAL,
			external_area  REAL,
			total_area     REAL,
			price_from     REAL,
			price_to       REAL,
			rent_available INTEGER NOT NULL DEFAULT 0,
			has_360        INTEGER NOT NULL DEFAULT 0,
			status         TEXT
		);

		CREATE TABLE IF NOT EXISTS issuers (
			identity_key TEXT PRIMARY KEY REFERENCES projects(identity_key),
			name         TEXT,
			email        TEXT,
			phone        TEXT,
			website      TEXT,
			logo_url     TEXT,
			from_modal   INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS assets (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			identity_key   TEXT NOT NULL REFERENCES projects(identity_key),
			url            TEXT NOT NULL,
			label          TEXT NOT NULL DEFAULT '',
			classification TEXT NOT NULL,
			mime_hint      TEXT NOT NULL DEFAULT '',
			UNIQUE(identity_key, url)
		);

		CREATE TABLE IF NOT EXISTS details (
			identity_key TEXT PRIMARY KEY REFERENCES projects(identity_key),
			title        TEXT,
			description  TEXT,
			fields       TEXT NOT NULL DEFAULT '{}',
			no_units     INTEGER NOT NULL DEFAULT 0,
			extracted_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_projects_zone   ON projects(zone);
		CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);
		CREATE INDEX IF NOT EXISTS idx_units_key       ON units(identity_key);
		CREATE INDEX IF NOT EXISTS idx_assets_key      ON assets(identity_key);
	`)
	return err
}

// SaveRecord upserts one catalog record. The stored row is compared field by
// field so the caller can tell a genuine change from a re-observation.
func (w *SQLiteWriter) SaveRecord(ctx context.Context, rec *models.CatalogRecord) (SaveStatus, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return StatusUnchanged, ErrClosed
	}

	stored, found, err := w.fetchOne(ctx, rec.IdentityKey)
	if err != nil {
		return StatusUnchanged, err
	}
	now := time.Now().Format(time.RFC3339Nano)

	if !found {
		_, err := w.db.ExecContext(ctx, `
			INSERT INTO projects (identity_key, display_name, zone, delivery_info,
				status, price_from, issuer_name, commission, flags, image_ref,
				detail_ref, observed_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rec.IdentityKey, rec.DisplayName, ptrToNull(rec.Zone), ptrToNull(rec.DeliveryInfo),
			ptrToNull(rec.Status), ptrToNull(rec.PriceFrom), ptrToNull(rec.IssuerName),
			ptrToNull(rec.Commission), strings.Join(rec.Flags, ","), ptrToNull(rec.ImageRef),
			rec.DetailRef, rec.ObservedAt.Format(time.RFC3339Nano), now,
		)
		if err != nil {
			return StatusUnchanged, fmt.Errorf("sqlite: insert %s: %w", rec.IdentityKey, err)
		}
		return StatusInserted, nil
	}

	if len(Changes(stored, rec)) == 0 {
		return StatusUnchanged, nil
	}

	_, err = w.db.ExecContext(ctx, `
		UPDATE projects SET display_name = ?, zone = ?, delivery_info = ?,
			status = ?, price_from = ?, issuer_name = ?, commission = ?,
			flags = ?, image_ref = ?, detail_ref = ?, observed_at = ?, updated_at = ?
		WHERE identity_key = ?
	`,
		rec.DisplayName, ptrToNull(rec.Zone), ptrToNull(rec.DeliveryInfo),
		ptrToNull(rec.Status), ptrToNull(rec.PriceFrom), ptrToNull(rec.IssuerName),
		ptrToNull(rec.Commission), strings.Join(rec.Flags, ","), ptrToNull(rec.ImageRef),
		rec.DetailRef, rec.ObservedAt.Format(time.RFC3339Nano), now, rec.IdentityKey,
	)
	if err != nil {
		return StatusUnchanged, fmt.Errorf("sqlite: update %s: %w", rec.IdentityKey, err)
	}
	return StatusUpdated, nil
}

// SaveDetail writes a detail record transactionally: the details row is
// upserted and the unit and asset child rows are replaced wholesale, so a
// re-scrape never leaves stale children behind. An absent issuer keeps any
// previously stored one.
func (w *SQLiteWriter) SaveDetail(ctx context.Context, detail *models.DetailRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	fields, err := json.Marshal(detail.Metadata.Fields)
	if err != nil {
		return fmt.Errorf("sqlite: encode fields for %s: %w", detail.IdentityKey, err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin detail tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO details (identity_key, title, description, fields, no_units, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity_key) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			fields = excluded.fields,
			no_units = excluded.no_units,
			extracted_at = excluded.extracted_at
	`,
		detail.IdentityKey, ptrToNull(detail.Metadata.Title), ptrToNull(detail.Metadata.Description),
		string(fields), boolToInt(detail.NoUnitsDetected),
		detail.ExtractedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert detail %s: %w", detail.IdentityKey, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE identity_key = ?`, detail.IdentityKey); err != nil {
		return fmt.Errorf("sqlite: clear units %s: %w", detail.IdentityKey, err)
	}
	for _, u := range detail.Units {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO units (identity_key, typology, internal_area, external_area,
				total_area, price_from, price_to, rent_available, has_360, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			detail.IdentityKey, ptrToNull(u.Typology), floatToNull(u.InternalArea),
			floatToNull(u.ExternalArea), floatToNull(u.TotalArea), floatToNull(u.PriceFrom),
			floatToNull(u.PriceTo), boolToInt(u.RentAvailable), boolToInt(u.Has360),
			ptrToNull(u.Status),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert unit for %s: %w", detail.IdentityKey, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE identity_key = ?`, detail.IdentityKey); err != nil {
		return fmt.Errorf("sqlite: clear assets %s: %w", detail.IdentityKey, err)
	}
	for _, a := range detail.Assets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assets (identity_key, url, label, classification, mime_hint)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(identity_key, url) DO NOTHING
		`, detail.IdentityKey, a.URL, a.Label, a.Classification, a.MimeHint)
		if err != nil {
			return fmt.Errorf("sqlite: insert asset for %s: %w", detail.IdentityKey, err)
		}
	}

	if detail.Issuer != nil {
		iss := detail.Issuer
		_, err := tx.ExecContext(ctx, `
			INSERT INTO issuers (identity_key, name, email, phone, website, logo_url, from_modal)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(identity_key) DO UPDATE SET
				name = excluded.name,
				email = excluded.email,
				phone = excluded.phone,
				website = excluded.website,
				logo_url = excluded.logo_url,
				from_modal = excluded.from_modal
		`,
			detail.IdentityKey, ptrToNull(iss.Name), ptrToNull(iss.Email), ptrToNull(iss.Phone),
			ptrToNull(iss.Website), ptrToNull(iss.LogoURL), boolToInt(iss.FromModal),
		)
		if err != nil {
			return fmt.Errorf("sqlite: upsert issuer %s: %w", detail.IdentityKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit detail %s: %w", detail.IdentityKey, err)
	}
	return nil
}

// FetchRecords returns every stored catalog record ordered by identity key.
func (w *SQLiteWriter) FetchRecords(ctx context.Context) ([]*models.CatalogRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}

	rows, err := w.db.QueryContext(ctx, `
		SELECT identity_key, display_name, zone, delivery_info, status, price_from,
			issuer_name, commission, flags, image_ref, detail_ref, observed_at
		FROM projects
		ORDER BY identity_key
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch records: %w", err)
	}
	defer rows.Close()

	var records []*models.CatalogRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ProcessedKeys returns the identity keys that already have a stored detail
// record, which is what lets an interrupted run resume where it stopped.
func (w *SQLiteWriter) ProcessedKeys(ctx context.Context) (map[string]bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrClosed
	}

	rows, err := w.db.QueryContext(ctx, `SELECT identity_key FROM details`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: processed keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite: scan key: %w", err)
		}
		keys[key] = true
	}
	return keys, rows.Err()
}

func (w *SQLiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.db.Close()
}

// fetchOne loads a single stored record for change comparison.
func (w *SQLiteWriter) fetchOne(ctx context.Context, key string) (*models.CatalogRecord, bool, error) {
	row := w.db.QueryRowContext(ctx, `
		SELECT identity_key, display_name, zone, delivery_info, status, price_from,
			issuer_name, commission, flags, image_ref, detail_ref, observed_at
		FROM projects
		WHERE identity_key = ?
	`, key)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: fetch %s: %w", key, err)
	}
	return rec, true, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.CatalogRecord, error) {
	var (
		rec        models.CatalogRecord
		zone       sql.NullString
		delivery   sql.NullString
		status     sql.NullString
		price      sql.NullString
		issuer     sql.NullString
		commission sql.NullString
		flags      string
		image      sql.NullString
		observed   string
	)
	err := row.Scan(&rec.IdentityKey, &rec.DisplayName, &zone, &delivery, &status,
		&price, &issuer, &commission, &flags, &image, &rec.DetailRef, &observed)
	if err != nil {
		return nil, err
	}
	rec.Zone = nullToPtr(zone)
	rec.DeliveryInfo = nullToPtr(delivery)
	rec.Status = nullToPtr(status)
	rec.PriceFrom = nullToPtr(price)
	rec.IssuerName = nullToPtr(issuer)
	rec.Commission = nullToPtr(commission)
	rec.ImageRef = nullToPtr(image)
	if flags != "" {
		rec.Flags = strings.Split(flags, ",")
	}
	if t, err := time.Parse(time.RFC3339Nano, observed); err == nil {
		rec.ObservedAt = t
	}
	return &rec, nil
}

func ptrToNull(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func floatToNull(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
