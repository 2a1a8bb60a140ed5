package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pingTimeout         = 1 * time.Second
	defaultQueryTimeout = 3 * time.Second
	pgUniqueCode        = "23505"
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

var _ UserStore = (*PostgresStore)(nil)

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) Save(ctx context.Context, u *User) error {
	return withTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO users (username, pass_hash, is_active)
			VALUES ($1, $2, $3)
			RETURNING id
		`, u.Username, u.Hash, u.Active).Scan(&u.ID)

		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return err
	})
}

func (s *PostgresStore) Update(ctx context.Context, u User) error {
	return withTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE users
			SET pass_hash = $1, is_active = $2
			WHERE username = $3
		`, u.Hash, u.Active, u.Username)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (User, bool, error) {
	var u User
	err := withTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, username, pass_hash, is_active
			FROM users
			WHERE username = $1
		`, username).Scan(&u.ID, &u.Username, &u.Hash, &u.Active)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]User, error) {
	var out []User

	err := withTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, username, pass_hash, is_active
			FROM users
			ORDER BY id ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u User
			if err := rows.Scan(&u.ID, &u.Username, &u.Hash, &u.Active); err != nil {
				return err
			}
			out = append(out, u)
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueCode
}
