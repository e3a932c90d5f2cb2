package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"backdash/internal/domain"
	"backdash/internal/lifecycle"
)

type scriptedAPI struct {
	mu       sync.Mutex
	statuses []domain.RunState
	polls    int
}

func (a *scriptedAPI) CreateRun(_ context.Context, _ string, _ domain.Params, name string) (*domain.RunResponse, error) {
	return &domain.RunResponse{RunID: "abc123", Status: domain.RunPending, Name: name}, nil
}

func (a *scriptedAPI) GetRunStatus(_ context.Context, runID string) (*domain.RunStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := min(a.polls, len(a.statuses)-1)
	a.polls++
	st := &domain.RunStatus{RunID: runID, Status: a.statuses[i], Progress: 0.5, Logs: []string{"tick"}}
	if st.Status.Terminal() {
		st.Progress = 1
	}
	return st, nil
}

// startRelay serves src over an in-memory listener and returns a client.
func startRelay(t *testing.T, src Source) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewServer(src, nil).RegisterGRPC(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	return NewClient("passthrough:///bufnet", nil, grpc.WithContextDialer(dialer))
}

func TestWatchRunUntilTerminal(t *testing.T) {
	api := &scriptedAPI{statuses: []domain.RunState{domain.RunRunning, domain.RunRunning, domain.RunCompleted}}
	ctrl := lifecycle.New(api, lifecycle.WithInterval(30*time.Millisecond))
	defer ctrl.Dispose()
	client := startRelay(t, ctrl)

	if _, err := ctrl.Submit(context.Background(), "rsi-v2", nil, "relay"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var got []lifecycle.Snapshot
	err := client.Watch(ctx, "abc123", func(s lifecycle.Snapshot) error {
		got = append(got, s)
		return nil
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no snapshots received")
	}
	last := got[len(got)-1]
	if last.State != lifecycle.Completed || last.Progress != 1 || last.RunID != "abc123" {
		t.Errorf("last snapshot = %+v", last)
	}
	if last.Name != "relay" || len(last.Logs) != 1 {
		t.Errorf("name/logs not carried: %q %v", last.Name, last.Logs)
	}
	for i := 1; i < len(got); i++ {
		if got[i].State < got[i-1].State {
			t.Errorf("state went from %v to %v", got[i-1].State, got[i].State)
		}
	}
}

func TestWatchAfterTerminalEndsImmediately(t *testing.T) {
	api := &scriptedAPI{statuses: []domain.RunState{domain.RunFailed}}
	ctrl := lifecycle.New(api, lifecycle.WithInterval(10*time.Millisecond))
	defer ctrl.Dispose()
	ctrl.Submit(context.Background(), "s", nil, "")
	ctrl.Wait(context.Background())
	client := startRelay(t, ctrl)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n := 0
	if err := client.Watch(ctx, "", func(s lifecycle.Snapshot) error {
		n++
		if s.State != lifecycle.Failed {
			t.Errorf("State = %v, want failed", s.State)
		}
		return nil
	}); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if n != 1 {
		t.Errorf("received %d snapshots, want 1", n)
	}
}

func TestWatchOtherRunTimesOut(t *testing.T) {
	api := &scriptedAPI{statuses: []domain.RunState{domain.RunCompleted}}
	ctrl := lifecycle.New(api, lifecycle.WithInterval(10*time.Millisecond))
	defer ctrl.Dispose()
	ctrl.Submit(context.Background(), "s", nil, "")
	client := startRelay(t, ctrl)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := client.Watch(ctx, "zzz", func(s lifecycle.Snapshot) error {
		t.Errorf("unexpected snapshot for %s", s.RunID)
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Watch err = %v, want deadline exceeded", err)
	}
}

func TestWatchCallbackErrorStops(t *testing.T) {
	api := &scriptedAPI{statuses: []domain.RunState{domain.RunRunning}}
	ctrl := lifecycle.New(api, lifecycle.WithInterval(10*time.Millisecond))
	defer ctrl.Dispose()
	ctrl.Submit(context.Background(), "s", nil, "")
	client := startRelay(t, ctrl)

	stop := errors.New("enough")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Watch(ctx, "", func(lifecycle.Snapshot) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("Watch err = %v, want callback error", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	in := lifecycle.Snapshot{
		RunID:      "abc123",
		State:      lifecycle.Polling,
		Status:     domain.RunRunning,
		Progress:   0.5,
		Message:    "Backtest en cours...",
		Err:        errors.New("status poll failed"),
		ObservedAt: time.Date(2024, 9, 30, 14, 0, 0, 0, time.UTC),
	}
	msg, err := encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out := decode(msg)
	if out.RunID != in.RunID || out.State != in.State || out.Status != in.Status ||
		out.Progress != in.Progress || out.Message != in.Message || !out.ObservedAt.Equal(in.ObservedAt) {
		t.Errorf("decode(encode) = %+v, want %+v", out, in)
	}
	if out.Err == nil || out.Err.Error() != in.Err.Error() {
		t.Errorf("Err = %v, want %v", out.Err, in.Err)
	}
}

func TestListenOverTCP(t *testing.T) {
	api := &scriptedAPI{statuses: []domain.RunState{domain.RunRunning, domain.RunFailed}}
	ctrl := lifecycle.New(api, lifecycle.WithInterval(20*time.Millisecond))
	defer ctrl.Dispose()

	lis, err := Listen("127.0.0.1:0", ctrl, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer lis.Stop(time.Second)

	if _, err := ctrl.Submit(context.Background(), "rsi-v2", nil, ""); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var last lifecycle.Snapshot
	err = NewClient(lis.Addr(), nil).Watch(ctx, "", func(s lifecycle.Snapshot) error {
		last = s
		return nil
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if last.State != lifecycle.Failed {
		t.Errorf("last state = %s, want failed", last.State)
	}
}
