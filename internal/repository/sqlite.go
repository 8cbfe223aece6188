package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/otcheredev/ris-modality-workflow/internal/models"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteCollection keeps one entity kind as JSON payload rows of the shared records table
type SQLiteCollection[T any, P Entity[T]] struct {
	db   *sql.DB
	kind string
}

// NewSQLiteCollection creates a collection over the records table
func NewSQLiteCollection[T any, P Entity[T]](db *sql.DB, kind string) *SQLiteCollection[T, P] {
	return &SQLiteCollection[T, P]{db: db, kind: kind}
}

// Create inserts a new entry and reads it back
func (c *SQLiteCollection[T, P]) Create(ctx context.Context, entity *T) (*T, error) {
	key := prepareCreate[T, P](entity)

	payload, err := json.Marshal(entity)
	if err != nil {
		return nil, wrap("encode", c.kind, err)
	}
	if _, err := c.db.ExecContext(ctx,
		`INSERT INTO records(kind, id, payload, created_at) VALUES(?,?,?,?)`,
		c.kind, key, payload, P(entity).Meta().CreatedAt.UnixNano(),
	); err != nil {
		return nil, wrap("create", c.kind, err)
	}

	created, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, wrap("create", c.kind, ErrNoEntity)
	}
	return created, nil
}

// Get retrieves an entry by key
func (c *SQLiteCollection[T, P]) Get(ctx context.Context, key string) (*T, error) {
	var payload []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE kind = ? AND id = ?`, c.kind, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get", c.kind, err)
	}
	return c.decode(payload)
}

// List retrieves all entries in insertion order
func (c *SQLiteCollection[T, P]) List(ctx context.Context) ([]*T, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT payload FROM records WHERE kind = ? ORDER BY created_at, id`, c.kind)
	if err != nil {
		return nil, wrap("list", c.kind, err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]*T, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, wrap("scan", c.kind, err)
		}
		entity, err := c.decode(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list", c.kind, err)
	}
	return result, nil
}

// Update replaces the content of an existing entry
func (c *SQLiteCollection[T, P]) Update(ctx context.Context, key string, entity *T) (*T, error) {
	prev, err := c.Get(ctx, key)
	if err != nil || prev == nil {
		return nil, err
	}

	prepareUpdate[T, P](key, entity, prev)
	payload, err := json.Marshal(entity)
	if err != nil {
		return nil, wrap("encode", c.kind, err)
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE records SET payload = ? WHERE kind = ? AND id = ?`, payload, c.kind, key)
	if err != nil {
		return nil, wrap("update", c.kind, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, nil
	}
	return c.Get(ctx, key)
}

// Delete removes an entry and returns what was removed
func (c *SQLiteCollection[T, P]) Delete(ctx context.Context, key string) (*T, error) {
	prev, err := c.Get(ctx, key)
	if err != nil || prev == nil {
		return nil, err
	}

	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM records WHERE kind = ? AND id = ?`, c.kind, key); err != nil {
		return nil, wrap("delete", c.kind, err)
	}
	return prev, nil
}

// DeleteWhere removes every entry matching the predicate
func (c *SQLiteCollection[T, P]) DeleteWhere(ctx context.Context, match func(*T) bool) (DeleteResult[T], error) {
	return DeleteEach[T, P](ctx, c, match)
}

func (c *SQLiteCollection[T, P]) decode(payload []byte) (*T, error) {
	var entity T
	if err := json.Unmarshal(payload, &entity); err != nil {
		return nil, wrap("decode", c.kind, err)
	}
	return &entity, nil
}

type sqliteBackend struct {
	db *sql.DB
}

func (b *sqliteBackend) Name() string { return "sqlite" }

func (b *sqliteBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

// NewSQLiteStore opens (or creates) an embedded SQLite database file
func NewSQLiteStore(path string) (*Store, error) {
	if path == "" {
		path = "modality-workflow.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps writers from tripping over SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS records (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (kind, id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}

	return &Store{
		Worklists:    NewSQLiteCollection[models.WorklistEntry](db, "worklist"),
		Mpps:         NewSQLiteCollection[models.MppsEntry](db, "mpps"),
		Destinations: NewSQLiteCollection[models.MimEntry](db, "mim"),
		Patients:     NewSQLiteCollection[models.PatientStudyEntry](db, "patient"),
		HL7Settings:  NewSQLiteCollection[models.Hl7SettingEntry](db, "hl7_setting"),
		HL7Messages:  NewSQLiteCollection[models.Hl7MessageSetting](db, "hl7_message_setting"),
		Audit:        NewSQLiteCollection[models.AuditLog](db, "audit"),
		backend:      &sqliteBackend{db: db},
	}, nil
}
