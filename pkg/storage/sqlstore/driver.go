// Package sqlstore implements storage.Driver over database/sql. It is
// shared by the sqlite and postgres drivers, which only differ in how they
// open the connection and in placeholder syntax.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/papercomputeco/switchboard/pkg/calllog"
	"github.com/papercomputeco/switchboard/pkg/storage"
)

// Dialect is the SQL flavor of the underlying database.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "postgres"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS call_records (
		id                  TEXT PRIMARY KEY,
		created_at          BIGINT NOT NULL,
		path                TEXT NOT NULL,
		dialect             TEXT NOT NULL,
		family              TEXT NOT NULL DEFAULT '',
		model               TEXT NOT NULL DEFAULT '',
		route               TEXT NOT NULL DEFAULT '',
		status              TEXT NOT NULL,
		streaming           BOOLEAN NOT NULL,
		conversion_required BOOLEAN NOT NULL,
		chunk_count         INTEGER NOT NULL,
		ttft_ms             DOUBLE PRECISION,
		tpot_ms             DOUBLE PRECISION,
		total_latency_ms    DOUBLE PRECISION,
		payload             TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS call_records_created_at_idx ON call_records (created_at)`,
}

// Driver implements storage.Driver on a *sql.DB.
type Driver struct {
	DB      *sql.DB
	Dialect Dialect
}

var _ storage.Driver = (*Driver)(nil)

// Migrate creates the schema. It is append-only and safe to run on every
// start.
func (d *Driver) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Put upserts a record.
func (d *Driver) Put(ctx context.Context, rec *calllog.Record) error {
	if rec == nil {
		return errors.New("cannot store nil record")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
	}

	_, err = d.DB.ExecContext(ctx, d.rebind(`
		INSERT INTO call_records (
			id, created_at, path, dialect, family, model, route, status,
			streaming, conversion_required, chunk_count,
			ttft_ms, tpot_ms, total_latency_ms, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			chunk_count = excluded.chunk_count,
			ttft_ms = excluded.ttft_ms,
			tpot_ms = excluded.tpot_ms,
			total_latency_ms = excluded.total_latency_ms,
			payload = excluded.payload`),
		rec.ID,
		rec.CreatedAt.UnixNano(),
		rec.Path,
		string(rec.Dialect),
		string(rec.Family),
		rec.Model,
		rec.Route,
		string(rec.Status),
		rec.Streaming,
		rec.ConversionRequired,
		rec.ChunkCount,
		nullable(rec.TTFT()),
		nullable(rec.TPOT()),
		nullable(rec.Latency()),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to store record %s: %w", rec.ID, err)
	}
	return nil
}

// Get retrieves a record by ID.
func (d *Driver) Get(ctx context.Context, id string) (*calllog.Record, error) {
	var payload string
	err := d.DB.QueryRowContext(ctx, d.rebind(`SELECT payload FROM call_records WHERE id = ?`), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return decode(payload)
}

// List returns records newest first.
func (d *Driver) List(ctx context.Context, limit int) ([]*calllog.Record, error) {
	query := `SELECT payload FROM call_records ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.DB.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*calllog.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decode(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats aggregates in the database and attaches the most recent records.
func (d *Driver) Stats(ctx context.Context) (*storage.Stats, error) {
	s := storage.NewStats()

	var ttft, tpot, latency sql.NullFloat64
	err := d.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(ttft_ms), AVG(tpot_ms), AVG(total_latency_ms) FROM call_records`,
	).Scan(&s.Total, &ttft, &tpot, &latency)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate records: %w", err)
	}
	s.AvgTTFTMs = fromNull(ttft)
	s.AvgTPOTMs = fromNull(tpot)
	s.AvgLatencyMs = fromNull(latency)

	for column, into := range map[string]map[string]int{
		"status": s.ByStatus,
		"family": s.ByFamily,
		"model":  s.ByModel,
	} {
		if err := d.countBy(ctx, column, into); err != nil {
			return nil, err
		}
	}

	recent, err := d.List(ctx, storage.RecentLimit)
	if err != nil {
		return nil, err
	}
	s.Recent = append(s.Recent, recent...)
	return s, nil
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.DB.Close()
}

// countBy fills into with row counts grouped by column. column is one of a
// fixed set of identifiers, never user input.
func (d *Driver) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := d.DB.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM call_records WHERE `+column+` <> '' GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("failed to count records by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		into[key] = count
	}
	return rows.Err()
}

// rebind rewrites ? placeholders into the database's syntax.
func (d *Driver) rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}

	var (
		b strings.Builder
		n int
	)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func decode(payload string) (*calllog.Record, error) {
	var rec calllog.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
