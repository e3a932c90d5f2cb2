package compare

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"testing"

	"backdash/internal/domain"
)

func TestSelectionNeverExceedsMax(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var s Selection
	for i := 0; i < 1000; i++ {
		id := ids[rng.IntN(len(ids))]
		before := s.Contains(id)
		full := s.Full()
		got := s.Toggle(id)

		if s.Len() > MaxSelected {
			t.Fatalf("step %d: Len = %d, want <= %d", i, s.Len(), MaxSelected)
		}
		switch {
		case before && got:
			t.Fatalf("step %d: toggling selected %q kept it", i, id)
		case !before && full && got:
			t.Fatalf("step %d: %q added to a full selection", i, id)
		case !before && !full && !got:
			t.Fatalf("step %d: %q not added with room left", i, id)
		}
	}
}

func TestSelectionOrder(t *testing.T) {
	var s Selection
	for _, id := range []string{"r1", "r2", "r3", "r4", "r5"} {
		s.Toggle(id)
	}
	if !s.Full() {
		t.Fatal("Full = false with 5 selected")
	}
	if s.Toggle("r6") {
		t.Error("sixth run selected")
	}
	s.Toggle("r2")
	s.Remove("r4")
	s.Remove("missing")
	s.Toggle("r6")

	want := []string{"r1", "r3", "r5", "r6"}
	if got := s.IDs(); !slices.Equal(got, want) {
		t.Errorf("IDs = %v, want %v", got, want)
	}
	ids := s.IDs()
	ids[0] = "mutated"
	if s.IDs()[0] != "r1" {
		t.Error("IDs exposes internal slice")
	}
}

func TestLabel(t *testing.T) {
	tests := []struct{ in, want string }{
		{"20240915_103000_rsi-v2", "0_rsi-v2"},
		{"abc123", "abc123"},
		{"12345678", "12345678"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Label(tt.in); got != tt.want {
			t.Errorf("Label(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func curve(n int, base float64) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = base + float64(i)
	}
	return c
}

func TestAlignGaps(t *testing.T) {
	ids := []string{"run-aaaaaaaa", "run-bbbbbbbb", "run-cccccccc", "run-dddddddd"}
	results := map[string]*domain.RunResults{
		"run-aaaaaaaa": {EquityCurve: curve(10, 100)},
		"run-bbbbbbbb": {EquityCurve: curve(7, 200)},
		"run-cccccccc": {EquityCurve: curve(12, 300)},
		// run-dddddddd not loaded yet.
	}

	points := Align(ids, results)
	if len(points) != 12 {
		t.Fatalf("len(points) = %d, want 12", len(points))
	}
	for i, p := range points {
		if p.Index != i {
			t.Errorf("points[%d].Index = %d", i, p.Index)
		}
		_, hasA := p.Values["aaaaaaaa"]
		_, hasB := p.Values["bbbbbbbb"]
		_, hasC := p.Values["cccccccc"]
		_, hasD := p.Values["dddddddd"]
		if hasA != (i < 10) || hasB != (i < 7) || !hasC || hasD {
			t.Errorf("points[%d] presence a=%v b=%v c=%v d=%v", i, hasA, hasB, hasC, hasD)
		}
		if hasC && p.Values["cccccccc"] != 300+float64(i) {
			t.Errorf("points[%d] c = %v", i, p.Values["cccccccc"])
		}
	}
	if n := len(points[11].Values); n != 1 {
		t.Errorf("points[11] has %d values, want 1", n)
	}

	if got := Align(ids, nil); len(got) != 0 {
		t.Errorf("Align with nothing loaded = %d points, want 0", len(got))
	}
}

func TestMetricRows(t *testing.T) {
	ids := []string{"r1", "r2"}
	results := map[string]*domain.RunResults{
		"r1": {Metrics: domain.RunMetrics{NetPnL: 1234, ProfitFactor: 1500, TotalTrades: 12, WinRate: 0.5}},
	}
	rows := MetricRows(ids, results)
	find := func(name string) MetricRow {
		for _, r := range rows {
			if r.Metric == name {
				return r
			}
		}
		t.Fatalf("row %q missing", name)
		return MetricRow{}
	}
	if got := find("Profit Factor").Cells; got[0] != "∞" || got[1] != "-" {
		t.Errorf("Profit Factor cells = %v", got)
	}
	if got := find("PnL Net").Cells[0]; got != "$1,234" {
		t.Errorf("PnL Net = %q, want $1,234", got)
	}
	if got := find("Trades").Cells[0]; got != "12" {
		t.Errorf("Trades = %q, want 12", got)
	}
}

type flakyAPI struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (f *flakyAPI) GetRunResults(_ context.Context, runID string) (*domain.RunResults, error) {
	f.calls.Add(1)
	if f.fail[runID] {
		return nil, errors.New("results unavailable")
	}
	return &domain.RunResults{RunID: runID, EquityCurve: curve(3, 0)}, nil
}

func TestLoaderPartialAvailability(t *testing.T) {
	api := &flakyAPI{fail: map[string]bool{"r2": true}}
	l := NewLoader(api, nil)
	ids := []string{"r1", "r2", "r3"}

	if err := l.Load(context.Background(), ids); err != nil {
		t.Fatalf("Load: %v", err)
	}
	res := l.Results()
	if len(res) != 2 || res["r1"] == nil || res["r3"] == nil {
		t.Errorf("Results = %v, want r1 and r3", res)
	}
	if _, ok := l.Failed()["r2"]; !ok {
		t.Error("r2 failure not recorded")
	}
	if got := api.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}

	// Loaded runs are not refetched; the failed one is retried.
	api.fail = nil
	l.Load(context.Background(), ids)
	if got := api.calls.Load(); got != 4 {
		t.Errorf("calls after reload = %d, want 4", got)
	}
	if len(l.Results()) != 3 || len(l.Failed()) != 0 {
		t.Errorf("after reload results=%d failed=%d", len(l.Results()), len(l.Failed()))
	}

	// The returned map is a copy.
	res = l.Results()
	delete(res, "r1")
	if l.Results()["r1"] == nil {
		t.Error("Results exposes internal map")
	}

	l.Forget("r1")
	l.Load(context.Background(), ids)
	if got := api.calls.Load(); got != 5 {
		t.Errorf("calls after Forget = %d, want 5", got)
	}
}

func TestLoaderCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := NewLoader(&flakyAPI{}, nil)
	if err := l.Load(ctx, []string{"r1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load err = %v, want context.Canceled", err)
	}
}
