package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	cause := errors.New("persistent error")

	err := Retry(context.Background(), 3, 0, func() error {
		attempts++
		return cause
	})

	if !errors.Is(err, cause) {
		t.Fatalf("Retry err = %v, want wrapped cause", err)
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("Retry err = %q, want attempt count", err)
	}
	if attempts != 3 {
		t.Errorf("Retry called fn %d times, want 3", attempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	attempts := 0
	cause := errors.New("404")
	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return Permanent(cause)
	})
	if err != cause {
		t.Errorf("Retry err = %v, want the unwrapped cause", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
}

func TestRetryContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, 5, time.Hour, func() error {
		attempts++
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) || attempts != 1 {
		t.Errorf("Retry = %v after %d attempts, want canceled after 1", err, attempts)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewBurstLimiter(60, 3)
	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow #%d = false within burst", i+1)
		}
	}
	if rl.Allow() {
		t.Error("Allow beyond burst = true")
	}
}

func TestRateLimiterWait(t *testing.T) {
	rl := NewRateLimiter(600) // one token per 100ms
	ctx := context.Background()
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if d := time.Since(start); d < 50*time.Millisecond {
		t.Errorf("second Wait returned after %v, want ~100ms", d)
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if err := NewRateLimiter(1).Wait(cctx); err != nil {
		t.Fatalf("first token should be free: %v", err)
	}
	slow := NewRateLimiter(1)
	slow.Allow()
	if err := slow.Wait(cctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait err = %v, want deadline exceeded", err)
	}
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerTo(&buf, "warn", "json").Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %s", buf.String())
	}
	NewLoggerTo(&buf, "debug", "text").Debug("shown", "k", 1)
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("text output = %q", buf.String())
	}
	if ParseLevel("nonsense") != slog.LevelInfo {
		t.Error("unknown level not info")
	}
}
