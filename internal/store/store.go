// Package store is the sqlite seen-set backend. Besides the identities it
// keeps a history of delivery attempts for the status command.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/purefact/internal/seen"

	_ "modernc.org/sqlite"
)

// DefaultFileName is the database file inside the config directory.
const DefaultFileName = "purefact.db"

type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Stats summarizes the database contents.
type Stats struct {
	Seen         int
	Deliveries   int
	Failed       int
	LastDelivery time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; one connection also keeps pragmas consistent.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load returns every identity in commit order.
func (s *Store) Load(ctx context.Context) (*seen.Set, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT identity FROM seen ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("query seen: %w", err)
	}
	defer func() { _ = rows.Close() }()

	set := seen.NewSet()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen: %w", err)
		}
		set.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen: %w", err)
	}
	return set, nil
}

// Persist inserts identities not yet stored in one transaction. The set only
// grows, so existing rows are left alone.
func (s *Store) Persist(ctx context.Context, set *seen.Set) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO seen(identity, added_at) VALUES(?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	addedAt := formatTime(s.now())
	for _, id := range set.IDs() {
		if _, err := stmt.ExecContext(ctx, id, addedAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert identity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seen: %w", err)
	}
	return nil
}

// RecordDelivery appends one delivery attempt to the history.
func (s *Store) RecordDelivery(ctx context.Context, d seen.Delivery) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if strings.TrimSpace(d.Identity) == "" {
		return errors.New("identity is required")
	}
	if d.Status == "" {
		return errors.New("status is required")
	}
	at := d.At
	if at.IsZero() {
		at = s.now()
	}

	degraded := 0
	if d.Degraded {
		degraded = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (
			scan_id, identity, location, title, channel, status, error, degraded, delivered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ScanID,
		d.Identity,
		d.Location,
		d.Title,
		d.Channel,
		d.Status,
		d.Error,
		degraded,
		formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// RecentDeliveries returns up to limit attempts, newest first.
func (s *Store) RecentDeliveries(ctx context.Context, limit int) ([]seen.Delivery, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT scan_id, identity, location, title, channel, status, error, degraded, delivered_at
		FROM deliveries
		ORDER BY delivered_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []seen.Delivery
	for rows.Next() {
		var (
			d        seen.Delivery
			degraded int
			at       string
		)
		if err := rows.Scan(&d.ScanID, &d.Identity, &d.Location, &d.Title, &d.Channel, &d.Status, &d.Error, &degraded, &at); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Degraded = degraded != 0
		if d.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parse delivered_at: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, errors.New("store is not initialized")
	}

	var st Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM seen").Scan(&st.Seen); err != nil {
		return Stats{}, fmt.Errorf("count seen: %w", err)
	}

	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0), MAX(delivered_at)
		FROM deliveries
	`, seen.DeliveryFailed).Scan(&st.Deliveries, &st.Failed, &last)
	if err != nil {
		return Stats{}, fmt.Errorf("count deliveries: %w", err)
	}
	if last.Valid {
		if st.LastDelivery, err = parseTime(last.String); err != nil {
			return Stats{}, fmt.Errorf("parse last delivery: %w", err)
		}
	}
	return st, nil
}

// Reset wipes identities and history.
func (s *Store) Reset(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM seen; DELETE FROM deliveries"); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Size returns the database file size in bytes.
func (s *Store) Size() int64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
