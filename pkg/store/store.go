// Package store persists overlay records in SQLite.
//
// The capture worker never reads these records; they are consulted only by
// the HTTP layer so overlays survive restarts.
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

	_ "modernc.org/sqlite"
)

// Errors returned by Store.
var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("store: record not found")

	// ErrExists is returned by Create when the id is taken.
	ErrExists = errors.New("store: record already exists")
)

// DefaultColorHex is stored when a record has no color.
const DefaultColorHex = "#00FF00"

// timeLayout sorts lexicographically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS overlays (
    id         INTEGER PRIMARY KEY,
    cx         REAL NOT NULL,
    cy         REAL NOT NULL,
    w          REAL NOT NULL,
    h          REAL NOT NULL,
    angle_deg  REAL NOT NULL,
    color_hex  TEXT NOT NULL DEFAULT '#00FF00',
    created_at TEXT NOT NULL
)`

const recordColumns = `id, cx, cy, w, h, angle_deg, color_hex, created_at`

// Record is a persisted overlay.
type Record struct {
	ID        int64     `json:"id"`
	CX        float64   `json:"cx"`
	CY        float64   `json:"cy"`
	W         float64   `json:"w"`
	H         float64   `json:"h"`
	AngleDeg  float64   `json:"angle_deg"`
	ColorHex  string    `json:"color_hex"`
	CreatedAt time.Time `json:"created_at"`
}

// Patch holds the fields to change in Update. Nil fields are left alone.
type Patch struct {
	CX       *float64
	CY       *float64
	W        *float64
	H        *float64
	AngleDeg *float64
	ColorHex *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.CX == nil && p.CY == nil && p.W == nil && p.H == nil &&
		p.AngleDeg == nil && p.ColorHex == nil
}

// Store is a SQLite-backed overlay repository.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Create inserts a new record. It fails with ErrExists if the id is taken.
func (s *Store) Create(ctx context.Context, r Record) (*Record, error) {
	r.ColorHex = normalizeHex(r.ColorHex)
	r.CreatedAt = s.now().UTC()

	res, err := s.execWithRetry(ctx,
		`INSERT INTO overlays (`+recordColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		r.ID, r.CX, r.CY, r.W, r.H, r.AngleDeg, r.ColorHex, r.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert overlay: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("overlay %d: %w", r.ID, ErrExists)
	}
	return &r, nil
}

// Upsert inserts the record or overwrites every field but created_at.
func (s *Store) Upsert(ctx context.Context, r Record) (*Record, error) {
	r.ColorHex = normalizeHex(r.ColorHex)
	created := s.now().UTC().Format(timeLayout)

	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO overlays (`+recordColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             cx = excluded.cx,
             cy = excluded.cy,
             w = excluded.w,
             h = excluded.h,
             angle_deg = excluded.angle_deg,
             color_hex = excluded.color_hex`,
		r.ID, r.CX, r.CY, r.W, r.H, r.AngleDeg, r.ColorHex, created,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert overlay: %w", err)
	}
	return s.Get(ctx, r.ID)
}

// Get returns the record with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+recordColumns+` FROM overlays WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("overlay %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get overlay: %w", err)
	}
	return r, nil
}

// List returns all records, newest first.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+recordColumns+` FROM overlays ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list overlays: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Update applies p to the record with id. It reports false when the record
// does not exist or the patch is empty.
func (s *Store) Update(ctx context.Context, id int64, p Patch) (bool, error) {
	if p.Empty() {
		return false, nil
	}

	var sets []string
	var args []any
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if p.CX != nil {
		add("cx", *p.CX)
	}
	if p.CY != nil {
		add("cy", *p.CY)
	}
	if p.W != nil {
		add("w", *p.W)
	}
	if p.H != nil {
		add("h", *p.H)
	}
	if p.AngleDeg != nil {
		add("angle_deg", *p.AngleDeg)
	}
	if p.ColorHex != nil {
		add("color_hex", normalizeHex(*p.ColorHex))
	}
	args = append(args, id)

	res, err := s.execWithRetry(ctx,
		`UPDATE overlays SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("update overlay: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes the record with id and reports whether it existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM overlays WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete overlay: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r       Record
		created string
	)
	if err := row.Scan(&r.ID, &r.CX, &r.CY, &r.W, &r.H, &r.AngleDeg, &r.ColorHex, &created); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	r.CreatedAt = t
	return &r, nil
}

func normalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultColorHex
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	return strings.ToUpper(s)
}
