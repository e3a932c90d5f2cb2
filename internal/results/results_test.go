package results

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"backdash/internal/domain"
	"backdash/internal/lifecycle"
	"backdash/internal/mockapi"
	"backdash/pkg/backdash"
)

type countingAPI struct {
	calls int
	err   error
}

func (c *countingAPI) GetRunResults(_ context.Context, runID string) (*domain.RunResults, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &domain.RunResults{RunID: runID}, nil
}

func TestFetchSingleRequest(t *testing.T) {
	api := &countingAPI{err: &backdash.NetworkError{Op: "GET", Err: errors.New("refused")}}
	f := NewFetcher(api)

	_, err := f.Fetch(context.Background(), "abc123")
	if !backdash.IsNetwork(err) {
		t.Fatalf("err = %v, want the NetworkError unchanged", err)
	}
	if api.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", api.calls)
	}

	api.err = nil
	f.Fetch(context.Background(), "abc123")
	f.Fetch(context.Background(), "abc123")
	if api.calls != 3 {
		t.Errorf("calls = %d, want 3 (no caching)", api.calls)
	}
}

func TestFetchValidation(t *testing.T) {
	api := &countingAPI{}
	_, err := NewFetcher(api).Fetch(context.Background(), "")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if api.calls != 0 {
		t.Errorf("calls = %d, want 0", api.calls)
	}
}

func TestFetchCompleted(t *testing.T) {
	api := &countingAPI{}
	f := NewFetcher(api)

	_, err := f.FetchCompleted(context.Background(), lifecycle.Snapshot{RunID: "r1", State: lifecycle.Failed})
	if !errors.Is(err, ErrNotCompleted) {
		t.Errorf("failed snapshot err = %v, want ErrNotCompleted", err)
	}
	res, err := f.FetchCompleted(context.Background(), lifecycle.Snapshot{RunID: "r1", State: lifecycle.Completed})
	if err != nil || res.RunID != "r1" {
		t.Errorf("FetchCompleted = %+v, %v", res, err)
	}
	if api.calls != 1 {
		t.Errorf("calls = %d, want 1", api.calls)
	}
}

func TestFetchAgainstMock(t *testing.T) {
	srv := mockapi.New(mockapi.Options{NewID: func() string { return "abc123" }})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	client := backdash.NewClient(ts.URL)
	f := NewFetcher(client)
	ctx := context.Background()

	if _, err := client.CreateRun(ctx, "rsi-v2", nil, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Fetch(ctx, "abc123"); backdash.StatusCode(err) != 400 {
		t.Errorf("running run err = %v, want HTTP 400", err)
	}
	if _, err := f.Fetch(ctx, "zzz"); !backdash.IsNotFound(err) {
		t.Errorf("unknown run err = %v, want 404", err)
	}

	srv.Finish("abc123", domain.RunCompleted)
	res, err := f.Fetch(ctx, "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if res.Metrics.TotalTrades != len(res.Trades) {
		t.Errorf("TotalTrades = %d, trades = %d", res.Metrics.TotalTrades, len(res.Trades))
	}
	if !res.Metrics.Consistent() {
		t.Errorf("metrics inconsistent: %+v", res.Metrics)
	}
}
