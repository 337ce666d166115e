package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"iris-scraper/models"
)

// PostgresWriter persists catalog and detail records to PostgreSQL. Same
// contract as the SQLite sink; use it when several runs share one database.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema
// migrations, and returns a ready-to-use PostgresWriter. The ping is retried
// because the database container often comes up after the scraper does.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
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
			observed_at   TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS units (
			id             SERIAL PRIMARY KEY,
			identity_key   TEXT NOT NULL REFERENCES projects(identity_key),
			typology       TEXT,
			internal_area  NUMERIC(12,2),
			external_area  NUMERIC(12,2),
			total_area     NUMERIC(12,2),
			price_from     NUMERIC(14,2),
			price_to       NUMERIC(14,2),
			rent_available BOOLEAN NOT NULL DEFAULT FALSE,
			has_360        BOOLEAN NOT NULL DEFAULT FALSE,
			status         TEXT
		);

		CREATE TABLE IF NOT EXISTS issuers (
			identity_key TEXT PRIMARY KEY REFERENCES projects(identity_key),
			name         TEXT,
			email        TEXT,
			phone        TEXT,
			website      TEXT,
			logo_url     TEXT,
			from_modal   BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE TABLE IF NOT EXISTS assets (
			id             SERIAL PRIMARY KEY,
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
			fields       JSONB NOT NULL DEFAULT '{}',
			no_units     BOOLEAN NOT NULL DEFAULT FALSE,
			extracted_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_projects_zone   ON projects(zone);
		CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(status);
		CREATE INDEX IF NOT EXISTS idx_units_key       ON units(identity_key);
		CREATE INDEX IF NOT EXISTS idx_assets_key      ON assets(identity_key);
	`)
	return err
}

// SaveRecord upserts one catalog record with field-level change detection.
func (pw *PostgresWriter) SaveRecord(ctx context.Context, rec *models.CatalogRecord) (SaveStatus, error) {
	stored, found, err := pw.fetchOne(ctx, rec.IdentityKey)
	if err != nil {
		return StatusUnchanged, err
	}

	if !found {
		_, err := pw.db.ExecContext(ctx, `
			INSERT INTO projects (identity_key, display_name, zone, delivery_info,
				status, price_from, issuer_name, commission, flags, image_ref,
				detail_ref, observed_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
			ON CONFLICT (identity_key) DO NOTHING
		`,
			rec.IdentityKey, rec.DisplayName, ptrToNull(rec.Zone), ptrToNull(rec.DeliveryInfo),
			ptrToNull(rec.Status), ptrToNull(rec.PriceFrom), ptrToNull(rec.IssuerName),
			ptrToNull(rec.Commission), strings.Join(rec.Flags, ","), ptrToNull(rec.ImageRef),
			rec.DetailRef, rec.ObservedAt,
		)
		if err != nil {
			return StatusUnchanged, fmt.Errorf("postgres: insert %s: %w", rec.IdentityKey, err)
		}
		return StatusInserted, nil
	}

	if len(Changes(stored, rec)) == 0 {
		return StatusUnchanged, nil
	}

	_, err = pw.db.ExecContext(ctx, `
		UPDATE projects SET display_name = $1, zone = $2, delivery_info = $3,
			status = $4, price_from = $5, issuer_name = $6, commission = $7,
			flags = $8, image_ref = $9, detail_ref = $10, observed_at = $11,
			updated_at = NOW()
		WHERE identity_key = $12
	`,
		rec.DisplayName, ptrToNull(rec.Zone), ptrToNull(rec.DeliveryInfo),
		ptrToNull(rec.Status), ptrToNull(rec.PriceFrom), ptrToNull(rec.IssuerName),
		ptrToNull(rec.Commission), strings.Join(rec.Flags, ","), ptrToNull(rec.ImageRef),
		rec.DetailRef, rec.ObservedAt, rec.IdentityKey,
	)
	if err != nil {
		return StatusUnchanged, fmt.Errorf("postgres: update %s: %w", rec.IdentityKey, err)
	}
	return StatusUpdated, nil
}

// SaveDetail mirrors the SQLite sink: upsert the details row, replace the
// unit and asset children, keep any stored issuer when none was extracted.
func (pw *PostgresWriter) SaveDetail(ctx context.Context, detail *models.DetailRecord) error {
	fields, err := json.Marshal(detail.Metadata.Fields)
	if err != nil {
		return fmt.Errorf("postgres: encode fields for %s: %w", detail.IdentityKey, err)
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin detail tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO details (identity_key, title, description, fields, no_units, extracted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity_key) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			fields = EXCLUDED.fields,
			no_units = EXCLUDED.no_units,
			extracted_at = EXCLUDED.extracted_at
	`,
		detail.IdentityKey, ptrToNull(detail.Metadata.Title), ptrToNull(detail.Metadata.Description),
		string(fields), detail.NoUnitsDetected, detail.ExtractedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert detail %s: %w", detail.IdentityKey, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE identity_key = $1`, detail.IdentityKey); err != nil {
		return fmt.Errorf("postgres: clear units %s: %w", detail.IdentityKey, err)
	}
	for _, u := range detail.Units {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO units (identity_key, typology, internal_area, external_area,
				total_area, price_from, price_to, rent_available, has_360, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			detail.IdentityKey, ptrToNull(u.Typology), floatToNull(u.InternalArea),
			floatToNull(u.ExternalArea), floatToNull(u.TotalArea), floatToNull(u.PriceFrom),
			floatToNull(u.PriceTo), u.RentAvailable, u.Has360, ptrToNull(u.Status),
		)
		if err != nil {
			return fmt.Errorf("postgres: insert unit for %s: %w", detail.IdentityKey, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE identity_key = $1`, detail.IdentityKey); err != nil {
		return fmt.Errorf("postgres: clear assets %s: %w", detail.IdentityKey, err)
	}
	if err := insertAssetBatch(ctx, tx, detail.IdentityKey, detail.Assets); err != nil {
		return err
	}

	if detail.Issuer != nil {
		iss := detail.Issuer
		_, err := tx.ExecContext(ctx, `
			INSERT INTO issuers (identity_key, name, email, phone, website, logo_url, from_modal)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (identity_key) DO UPDATE SET
				name = EXCLUDED.name,
				email = EXCLUDED.email,
				phone = EXCLUDED.phone,
				website = EXCLUDED.website,
				logo_url = EXCLUDED.logo_url,
				from_modal = EXCLUDED.from_modal
		`,
			detail.IdentityKey, ptrToNull(iss.Name), ptrToNull(iss.Email), ptrToNull(iss.Phone),
			ptrToNull(iss.Website), ptrToNull(iss.LogoURL), iss.FromModal,
		)
		if err != nil {
			return fmt.Errorf("postgres: upsert issuer %s: %w", detail.IdentityKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit detail %s: %w", detail.IdentityKey, err)
	}
	return nil
}

// insertAssetBatch inserts assets in one multi-VALUES statement per chunk.
func insertAssetBatch(ctx context.Context, tx *sql.Tx, key string, assets []models.AssetLink) error {
	if len(assets) == 0 {
		return nil
	}

	const batchSize = 50
	for i := 0; i < len(assets); i += batchSize {
		end := i + batchSize
		if end > len(assets) {
			end = len(assets)
		}
		batch := assets[i:end]

		valueStrings := make([]string, 0, len(batch))
		valueArgs := make([]interface{}, 0, len(batch)*5)
		for idx, a := range batch {
			base := idx * 5
			valueStrings = append(valueStrings,
				fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5))
			valueArgs = append(valueArgs, key, a.URL, a.Label, a.Classification, a.MimeHint)
		}

		query := fmt.Sprintf(`
			INSERT INTO assets (identity_key, url, label, classification, mime_hint)
			VALUES %s
			ON CONFLICT (identity_key, url) DO NOTHING
		`, strings.Join(valueStrings, ","))

		if _, err := tx.ExecContext(ctx, query, valueArgs...); err != nil {
			return fmt.Errorf("postgres: insert assets for %s: %w", key, err)
		}
	}
	return nil
}

// FetchRecords retrieves all stored catalog records ordered by identity key.
func (pw *PostgresWriter) FetchRecords(ctx context.Context) ([]*models.CatalogRecord, error) {
	rows, err := pw.db.QueryContext(ctx, `
		SELECT identity_key, display_name, zone, delivery_info, status, price_from,
			issuer_name, commission, flags, image_ref, detail_ref, observed_at
		FROM projects
		ORDER BY identity_key
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch records: %w", err)
	}
	defer rows.Close()

	var records []*models.CatalogRecord
	for rows.Next() {
		rec, err := scanPGRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ProcessedKeys returns identity keys that already have a detail record.
func (pw *PostgresWriter) ProcessedKeys(ctx context.Context) (map[string]bool, error) {
	rows, err := pw.db.QueryContext(ctx, `SELECT identity_key FROM details`)
	if err != nil {
		return nil, fmt.Errorf("postgres: processed keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("postgres: scan key: %w", err)
		}
		keys[key] = true
	}
	return keys, rows.Err()
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

func (pw *PostgresWriter) fetchOne(ctx context.Context, key string) (*models.CatalogRecord, bool, error) {
	row := pw.db.QueryRowContext(ctx, `
		SELECT identity_key, display_name, zone, delivery_info, status, price_from,
			issuer_name, commission, flags, image_ref, detail_ref, observed_at
		FROM projects
		WHERE identity_key = $1
	`, key)
	rec, err := scanPGRecord(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: fetch %s: %w", key, err)
	}
	return rec, true, nil
}

func scanPGRecord(row rowScanner) (*models.CatalogRecord, error) {
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
	)
	err := row.Scan(&rec.IdentityKey, &rec.DisplayName, &zone, &delivery, &status,
		&price, &issuer, &commission, &flags, &image, &rec.DetailRef, &rec.ObservedAt)
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
	return &rec, nil
}
