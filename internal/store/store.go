// Package store keeps backdash data on local disk: user subscriptions in
// SQLite and exported run results and market bars in Parquet.
package store

import (
	"context"
	"errors"
	"time"

	"backdash/internal/dashboard"
	"backdash/internal/domain"
)

// ErrNotFound is returned when a lookup has no matching record.
var ErrNotFound = errors.New("store: not found")

// Subscription is a user's plan. Tier is one of "free", "premium" or "pro";
// other values are stored as given.
type Subscription struct {
	UserID    string
	Tier      string
	Products  []string
	UpdatedAt time.Time
}

// SubscriptionStore persists and retrieves user subscriptions.
type SubscriptionStore interface {
	// GetSubscription returns ErrNotFound when the user has no record.
	GetSubscription(ctx context.Context, userID string) (*Subscription, error)

	// SetSubscription inserts or replaces the user's record.
	SetSubscription(ctx context.Context, sub *Subscription) error

	// ListSubscriptions returns every record ordered by user id.
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
}

// ExportStore writes run results and OHLC bars to files for offline use.
type ExportStore interface {
	// WriteRun exports trades and curves of a run and returns its directory.
	WriteRun(ctx context.Context, res *domain.RunResults) (string, error)

	// ReadRunTrades returns the exported trades of a run.
	ReadRunTrades(ctx context.Context, runID string) ([]domain.Trade, error)

	// ReadRunCurves returns the exported equity and drawdown curves of a run.
	ReadRunCurves(ctx context.Context, runID string) (equity, drawdown []float64, err error)

	// ListRuns returns the ids of exported runs.
	ListRuns(ctx context.Context) ([]string, error)

	// WriteOHLC merges bars into the symbol/timeframe file.
	WriteOHLC(ctx context.Context, data *domain.OHLCData) (string, error)

	// ReadOHLC returns bars for symbol and timeframe within [start, end].
	ReadOHLC(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]domain.OHLCBar, error)
}

// LoadRun rebuilds the results of an exported run. Metrics are recomputed
// from the exported trades; the strategy name is not exported.
func LoadRun(ctx context.Context, s ExportStore, runID string) (*domain.RunResults, error) {
	trades, err := s.ReadRunTrades(ctx, runID)
	if err != nil {
		return nil, err
	}
	equity, drawdown, err := s.ReadRunCurves(ctx, runID)
	if err != nil {
		return nil, err
	}
	metrics, _ := dashboard.ComputeMetrics(trades)
	return &domain.RunResults{
		RunID:         runID,
		Metrics:       metrics,
		EquityCurve:   equity,
		DrawdownCurve: drawdown,
		Trades:        trades,
	}, nil
}
