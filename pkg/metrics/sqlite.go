package metrics

import (
	"context"
	_ "embed" // schema
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/kenliao94/amqconsole/pkg/domain"
)

//go:embed schema.sql
var schema string

// sample is the persisted form of a statistics sample, time kept as unix millis
type sample struct {
	ID        int64 `db:"id"`
	SampledAt int64 `db:"sampled_at"`
	domain.BrokerStatistics
}

func (s sample) stats() domain.BrokerStatistics {
	res := s.BrokerStatistics
	res.SampledAt = time.UnixMilli(s.SampledAt)
	return res
}

type sqlStore struct {
	db *sqlx.DB
}

func openSQL(ctx context.Context, dsn string) (*sqlStore, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("execute schema: %w", err)
	}
	return &sqlStore{db: db}, nil
}

func (s *sqlStore) insert(ctx context.Context, st domain.BrokerStatistics) error {
	row := sample{SampledAt: st.SampledAt.UnixMilli(), BrokerStatistics: st}
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	return retrier.Do(ctx, func() error {
		query := `
			INSERT INTO statistics_samples (
				sampled_at, memory_usage, store_usage, temp_usage, connection_count,
				enqueue_count, dequeue_count, message_count, consumer_count, producer_count
			) VALUES (
				:sampled_at, :memory_usage, :store_usage, :temp_usage, :connection_count,
				:enqueue_count, :dequeue_count, :message_count, :consumer_count, :producer_count
			)`
		if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("insert sample: %w", err)}
		}
		return nil
	})
}

func (s *sqlStore) prune(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	err := retrier.Do(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM statistics_samples WHERE sampled_at < ?", before.UnixMilli())
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("delete samples: %w", err)}
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

// recent returns the n latest samples, oldest first
func (s *sqlStore) recent(ctx context.Context, n int) ([]domain.BrokerStatistics, error) {
	var rows []sample
	query := `SELECT * FROM (
			SELECT * FROM statistics_samples ORDER BY sampled_at DESC, id DESC LIMIT ?
		) ORDER BY sampled_at, id`
	if err := s.db.SelectContext(ctx, &rows, query, n); err != nil {
		return nil, fmt.Errorf("select recent samples: %w", err)
	}
	return toStats(rows), nil
}

func (s *sqlStore) since(ctx context.Context, t time.Time) ([]domain.BrokerStatistics, error) {
	var rows []sample
	query := "SELECT * FROM statistics_samples WHERE sampled_at >= ? ORDER BY sampled_at, id"
	if err := s.db.SelectContext(ctx, &rows, query, t.UnixMilli()); err != nil {
		return nil, fmt.Errorf("select samples since %v: %w", t, err)
	}
	return toStats(rows), nil
}

func (s *sqlStore) close() error { return s.db.Close() }

func toStats(rows []sample) []domain.BrokerStatistics {
	res := make([]domain.BrokerStatistics, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.stats())
	}
	return res
}

// criticalError wraps an error to signal repeater to stop retrying
type criticalError struct {
	err error
}

func (e *criticalError) Error() string { return e.err.Error() }

func (e *criticalError) Unwrap() error { return e.err }

// isLockError checks if an error is a SQLite lock/busy error
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked")
}
