// Package results retrieves the output of a completed run.
package results

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"backdash/internal/domain"
	"backdash/internal/lifecycle"
)

// ErrNotCompleted is returned by FetchCompleted for runs that did not
// complete successfully.
var ErrNotCompleted = errors.New("results: run not completed")

// API is the subset of the backend client the fetcher needs.
type API interface {
	GetRunResults(ctx context.Context, runID string) (*domain.RunResults, error)
}

// Fetcher issues exactly one results request per call. It neither retries
// nor caches.
type Fetcher struct {
	api API
}

// NewFetcher creates a Fetcher.
func NewFetcher(api API) *Fetcher {
	return &Fetcher{api: api}
}

// Fetch returns the results of runID, or the backend's error unchanged.
// Calling it before the run has completed is the caller's mistake; the
// backend answers with an error in that case.
func (f *Fetcher) Fetch(ctx context.Context, runID string) (*domain.RunResults, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, &domain.ValidationError{Field: "run_id", Reason: "must not be empty"}
	}
	return f.api.GetRunResults(ctx, runID)
}

// FetchCompleted fetches results for a snapshot that reached Completed.
func (f *Fetcher) FetchCompleted(ctx context.Context, snap lifecycle.Snapshot) (*domain.RunResults, error) {
	if snap.State != lifecycle.Completed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCompleted, snap.RunID, snap.State)
	}
	return f.Fetch(ctx, snap.RunID)
}
