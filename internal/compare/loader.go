package compare

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"golang.org/x/sync/errgroup"

	"backdash/internal/domain"
)

// API is the subset of the backend client the loader needs.
type API interface {
	GetRunResults(ctx context.Context, runID string) (*domain.RunResults, error)
}

// Loader fetches results for compared runs, keeping whatever succeeded.
// Results already held are not fetched again.
type Loader struct {
	api API
	log *slog.Logger

	mu      sync.Mutex
	results map[string]*domain.RunResults
	failed  map[string]error
}

// NewLoader creates an empty loader.
func NewLoader(api API, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		api:     api,
		log:     log,
		results: make(map[string]*domain.RunResults),
		failed:  make(map[string]error),
	}
}

// Load fetches the ids not yet loaded, up to MaxSelected at a time. A failed
// fetch is logged and leaves that id absent; it never stops the others.
// The returned error is only ever ctx's.
func (l *Loader) Load(ctx context.Context, ids []string) error {
	l.mu.Lock()
	var todo []string
	for _, id := range ids {
		if _, ok := l.results[id]; !ok {
			todo = append(todo, id)
		}
	}
	l.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxSelected)
	for _, id := range todo {
		g.Go(func() error {
			res, err := l.api.GetRunResults(gctx, id)
			l.mu.Lock()
			defer l.mu.Unlock()
			if err != nil {
				l.log.Warn("comparison results unavailable", "run_id", id, "error", err)
				l.failed[id] = err
				return nil
			}
			delete(l.failed, id)
			l.results[id] = res
			return nil
		})
	}
	g.Wait()
	return ctx.Err()
}

// Results returns a copy of the loaded results.
func (l *Loader) Results() map[string]*domain.RunResults {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.results)
}

// Failed returns the last error per id whose fetch failed.
func (l *Loader) Failed() map[string]error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.failed)
}

// Forget drops id so the next Load fetches it again.
func (l *Loader) Forget(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.results, id)
	delete(l.failed, id)
}
