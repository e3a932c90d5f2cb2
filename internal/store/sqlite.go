package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

var _ SubscriptionStore = (*SQLiteStore)(nil)

// migrations are applied in order; PRAGMA user_version records progress.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS subscriptions (
		user_id    TEXT PRIMARY KEY,
		tier       TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`ALTER TABLE subscriptions ADD COLUMN products TEXT NOT NULL DEFAULT '[]'`,
}

// SQLiteStore implements SubscriptionStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and brings
// its schema up to date.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the number of applied migrations.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}

// GetSubscription retrieves a user's subscription.
func (s *SQLiteStore) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, tier, products, updated_at FROM subscriptions WHERE user_id = ?`, userID)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// SetSubscription inserts or replaces a user's subscription. A zero
// UpdatedAt is set to the current time.
func (s *SQLiteStore) SetSubscription(ctx context.Context, sub *Subscription) error {
	if sub.UserID == "" {
		return errors.New("subscription: empty user id")
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}
	products := sub.Products
	if products == nil {
		products = []string{}
	}
	pj, err := json.Marshal(products)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, tier, products, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET tier = excluded.tier, products = excluded.products, updated_at = excluded.updated_at`,
		sub.UserID, sub.Tier, string(pj), sub.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListSubscriptions returns all subscriptions ordered by user id.
func (s *SQLiteStore) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, tier, products, updated_at FROM subscriptions ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(sc scanner) (*Subscription, error) {
	var sub Subscription
	var products, updated string
	if err := sc.Scan(&sub.UserID, &sub.Tier, &products, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(products), &sub.Products); err != nil {
		return nil, fmt.Errorf("subscription %s products: %w", sub.UserID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return nil, fmt.Errorf("subscription %s updated_at: %w", sub.UserID, err)
	}
	sub.UpdatedAt = t
	return &sub, nil
}
