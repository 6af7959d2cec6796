package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver registration.
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedrelay/internal/model"
	"feedrelay/migrations"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 500 * time.Millisecond
)

const subscriptionColumns = `id, channel_id, channel_name, feed_url, is_active, watermark, created_at, updated_at`

// SQL implements Storage on top of database/sql for SQLite and Postgres.
//
// Every statement runs under a reconnect policy: when it fails with a
// connection-class error the pool is pinged to establish a fresh connection
// and the statement is retried.
type SQL struct {
	db         *sql.DB
	dialect    migrations.Dialect
	maxRetries uint64
	retryDelay time.Duration
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQL, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return newSQL(db, migrations.SQLite)
}

// NewPostgres connects to the Postgres database at dsn and runs pending migrations.
func NewPostgres(dsn string) (*SQL, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return newSQL(db, migrations.Postgres)
}

// Open selects a backend by driver name ("sqlite" or "postgres").
func Open(driverName, dsn string) (*SQL, error) {
	switch driverName {
	case "", string(migrations.SQLite):
		return NewSQLite(dsn)
	case string(migrations.Postgres):
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}
}

func newSQL(db *sql.DB, d migrations.Dialect) (*SQL, error) {
	if err := migrations.Run(db, d); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQL{
		db:         db,
		dialect:    d,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}, nil
}

// Close closes the underlying database connection.
func (s *SQL) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQL) Ping(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

// AddSubscription upserts the (channel, URL) pair in a single statement so
// concurrent callers can never create two rows for it.
func (s *SQL) AddSubscription(ctx context.Context, channelID int64, channelName, feedURL string) (int64, error) {
	now := time.Now().UTC().Unix()
	var id int64
	err := s.do(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, s.rebind(
			`INSERT INTO subscriptions (channel_id, channel_name, feed_url, is_active, watermark, created_at, updated_at)
			 VALUES (?, ?, ?, TRUE, 0, ?, ?)
			 ON CONFLICT (channel_id, feed_url) DO UPDATE
			 SET is_active = TRUE, channel_name = excluded.channel_name, updated_at = excluded.updated_at
			 RETURNING id`),
			channelID, channelName, feedURL, now, now,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert subscription: %w", err)
	}
	return id, nil
}

// RemoveSubscription marks the subscription inactive.
func (s *SQL) RemoveSubscription(ctx context.Context, channelID int64, feedURL string) (bool, error) {
	var n int64
	err := s.do(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, s.rebind(
			`UPDATE subscriptions SET is_active = FALSE, updated_at = ?
			 WHERE channel_id = ? AND feed_url = ? AND is_active = TRUE`),
			time.Now().UTC().Unix(), channelID, feedURL,
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("deactivate subscription: %w", err)
	}
	return n > 0, nil
}

// ListSubscriptions returns active subscriptions ordered by ID.
func (s *SQL) ListSubscriptions(ctx context.Context, channelID int64) ([]model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE is_active = TRUE`
	var args []any
	if channelID != 0 {
		q += ` AND channel_id = ?`
		args = append(args, channelID)
	}
	q += ` ORDER BY id`

	var subs []model.Subscription
	err := s.do(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		subs, err = scanSubscriptions(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	return subs, nil
}

// GetSubscription returns a single subscription by ID, active or not.
func (s *SQL) GetSubscription(ctx context.Context, id int64) (*model.Subscription, error) {
	var sub *model.Subscription
	err := s.do(ctx, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, s.rebind(
			`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`), id)
		var err error
		sub, err = scanSubscription(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// AdvanceWatermark stores ts as the subscription's watermark.
func (s *SQL) AdvanceWatermark(ctx context.Context, id int64, ts time.Time) (bool, error) {
	var n int64
	err := s.do(ctx, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, s.rebind(
			`UPDATE subscriptions SET watermark = ?, updated_at = ? WHERE id = ?`),
			ts.UTC().Unix(), time.Now().UTC().Unix(), id,
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("advance watermark: %w", err)
	}
	return n > 0, nil
}

// do runs fn, re-establishing the connection and retrying when fn fails
// because the connection was lost.
func (s *SQL) do(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(s.maxRetries, retry.NewConstant(s.retryDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || !isConnError(err) {
			return err
		}
		if perr := s.db.PingContext(ctx); perr != nil {
			return retry.RetryableError(fmt.Errorf("%w (reconnect: %v)", err, perr))
		}
		return retry.RetryableError(err)
	})
}

// rebind rewrites '?' placeholders to '$n' for Postgres.
func (s *SQL) rebind(q string) string {
	if s.dialect != migrations.Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
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

// isConnError reports whether err means the connection itself failed, as
// opposed to the statement being rejected.
func isConnError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if pgconn.SafeToRetry(err) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var watermark, created, updated int64
	err := row.Scan(&sub.ID, &sub.ChannelID, &sub.ChannelName, &sub.FeedURL, &sub.IsActive, &watermark, &created, &updated)
	if err != nil {
		return nil, err
	}
	sub.Watermark = time.Unix(watermark, 0).UTC()
	sub.CreatedAt = time.Unix(created, 0).UTC()
	sub.UpdatedAt = time.Unix(updated, 0).UTC()
	return &sub, nil
}

func scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
