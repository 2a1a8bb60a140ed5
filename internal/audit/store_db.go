package audit

import (
	"context"
	"database/sql"
	"time"
)

const (
	pingTimeout         = 1 * time.Second
	defaultQueryTimeout = 3 * time.Second
)

type PostgresStore struct {
	db           *sql.DB
	queryTimeout time.Duration
}

func NewPostgresStore(db *sql.DB, queryTimeout time.Duration) *PostgresStore {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &PostgresStore{db: db, queryTimeout: queryTimeout}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) Save(ctx context.Context, e *Event) error {
	return withTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO audit_events (username, action, details, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, e.Username, e.Action.String(), e.Details, e.Timestamp).Scan(&e.ID)
	})
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]Event, error) {
	return s.query(ctx, `
		SELECT id, username, action, details, created_at
		FROM audit_events
		ORDER BY created_at DESC, id DESC
	`)
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) ([]Event, error) {
	return s.query(ctx, `
		SELECT id, username, action, details, created_at
		FROM audit_events
		WHERE username = $1
		ORDER BY created_at DESC, id DESC
	`, username)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	var out []Event

	err := withTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Event, 0, 32)
		for rows.Next() {
			var (
				e      Event
				action string
			)
			if err := rows.Scan(&e.ID, &e.Username, &action, &e.Details, &e.Timestamp); err != nil {
				return err
			}
			if e.Action, err = ParseAction(action); err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
