// Package sqlstore implements storage.Provider queries over database/sql.
// The sqlite and postgres packages own connection setup and migrations and
// embed a Store for everything else.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/julianstephens/daylitd/internal/migration"
	"github.com/julianstephens/daylitd/internal/retry"
)

// Store runs the shared queries. Transient driver errors are retried with
// a short bounded backoff; everything else is returned as is.
type Store struct {
	db     *sql.DB
	driver migration.Driver
	policy retry.Policy
}

// New wraps an open database. transient classifies driver errors worth
// retrying, such as SQLITE_BUSY or a PostgreSQL serialization failure.
func New(db *sql.DB, driver migration.Driver, transient func(error) bool) *Store {
	if transient == nil {
		transient = func(error) bool { return false }
	}
	return &Store{
		db:     db,
		driver: driver,
		policy: retry.Policy{
			MaxRetries: 4,
			BaseDelay:  50 * time.Millisecond,
			MaxDelay:   500 * time.Millisecond,
			Retryable:  transient,
		},
	}
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) rebind(query string) string {
	return s.driver.Rebind(query)
}

// exec runs a single write statement.
func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	query = s.rebind(query)
	return retry.Do(ctx, s.policy, func(ctx context.Context) (sql.Result, error) {
		return s.db.ExecContext(ctx, query, args...)
	})
}

// read runs fn, retrying it as a unit on transient errors.
func (s *Store) read(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := retry.Do(ctx, s.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// withTx runs fn in a transaction, committing when it returns nil. The whole
// transaction is retried on transient errors.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	_, err := retry.Do(ctx, s.policy, func(ctx context.Context) (struct{}, error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, tx.Commit()
	})
	return err
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(column, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", column, err)
	}
	return t, nil
}

func nullableTime(t *time.Time) (sql.NullString, sql.NullInt64) {
	if t == nil || t.IsZero() {
		return sql.NullString{}, sql.NullInt64{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}, sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func parseNullableTime(column string, value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(column, value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
