package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/droidbg/internal/history"
)

// Sink writes scenario runs to a SQLite database. It also implements
// history.Lister for the HTTP API.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmt := `CREATE TABLE IF NOT EXISTS scenario_history(
		scenario TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		result TEXT NOT NULL,
		pid INTEGER NOT NULL DEFAULT 0,
		address TEXT,
		error TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, r history.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scenario_history(scenario, started_at, finished_at, result, pid, address, error)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		r.Scenario, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Result, r.PID, r.Address, r.Error)
	return err
}

// Recent returns the most recent runs, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]history.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT scenario, started_at, finished_at, result, pid, address, error
		FROM scenario_history ORDER BY finished_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []history.Run
	for rows.Next() {
		var r history.Run
		var addr, errMsg sql.NullString
		if err := rows.Scan(&r.Scenario, &r.StartedAt, &r.FinishedAt, &r.Result, &r.PID, &addr, &errMsg); err != nil {
			return nil, err
		}
		r.Address = addr.String
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
