package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Bew090/projectlocker/internal/notification"
	logx "github.com/Bew090/projectlocker/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutRecord(ctx context.Context, r notification.Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	row := rowFromRecord(r)
	if strings.TrimSpace(row.Tag) == "" {
		return nil
	}
	data, err := json.Marshal(row.Data)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records(tag, id, title, body, icon, data, received_at, state, shown_at, updated_at, generation)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(tag) DO UPDATE SET
		   id=excluded.id, title=excluded.title, body=excluded.body, icon=excluded.icon,
		   data=excluded.data, received_at=excluded.received_at, state=excluded.state,
		   shown_at=excluded.shown_at, updated_at=excluded.updated_at, generation=excluded.generation`,
		row.Tag, row.ID, row.Title, row.Body, nullStr(row.Icon), string(data),
		row.ReceivedAt, row.State, row.ShownAt, row.UpdatedAt, int64(row.Generation),
	)
	return err
}

func (s *sqliteStore) DeleteRecord(ctx context.Context, tag string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(tag) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE tag = ?`, tag)
	return err
}

func (s *sqliteStore) LoadRecords(ctx context.Context) ([]notification.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, id, title, body, icon, data, received_at, state, shown_at, updated_at, generation
		 FROM records ORDER BY tag`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notification.Record
	for rows.Next() {
		var (
			row  recordRow
			icon sql.NullString
			data sql.NullString
			gen  int64
		)
		if err := rows.Scan(&row.Tag, &row.ID, &row.Title, &row.Body, &icon, &data,
			&row.ReceivedAt, &row.State, &row.ShownAt, &row.UpdatedAt, &gen); err != nil {
			return nil, err
		}
		row.Icon = icon.String
		row.Generation = uint64(gen)
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &row.Data); err != nil {
				s.log.Warn("record data unreadable; dropping data", logx.String("tag", row.Tag), logx.Err(err))
				row.Data = nil
			}
		}
		out = append(out, row.record())
	}
	return out, rows.Err()
}

// Compact checkpoints the WAL into the main database file.
func (s *sqliteStore) Compact(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
