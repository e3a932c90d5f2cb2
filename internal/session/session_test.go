package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"backdash/internal/store"
)

type failingStore struct{ store.SubscriptionStore }

func (failingStore) GetSubscription(context.Context, string) (*store.Subscription, error) {
	return nil, errors.New("disk I/O error")
}

func openStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "subs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestEntitlement(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	for user, tier := range map[string]string{"f": "free", "p": "premium", "x": "pro", "e": ""} {
		if err := st.SetSubscription(ctx, &store.Subscription{UserID: user, Tier: tier}); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		user   string
		access bool
		label  string
	}{
		{"f", false, "Gratuit"},
		{"e", false, "Gratuit"},
		{"p", true, "PREMIUM"},
		{"x", true, "PRO"},
		{"nobody", false, "Gratuit"},
	}
	for _, tt := range tests {
		s, err := Open(ctx, st, tt.user, nil)
		if err != nil {
			t.Fatalf("Open(%q): %v", tt.user, err)
		}
		if s.HasAccess() != tt.access {
			t.Errorf("%s: HasAccess = %v, want %v", tt.user, s.HasAccess(), tt.access)
		}
		if s.TierLabel() != tt.label {
			t.Errorf("%s: TierLabel = %q, want %q", tt.user, s.TierLabel(), tt.label)
		}
		err = s.Require()
		if tt.access && err != nil {
			t.Errorf("%s: Require = %v", tt.user, err)
		}
		if !tt.access && !errors.Is(err, ErrNoAccess) {
			t.Errorf("%s: Require = %v, want ErrNoAccess", tt.user, err)
		}
	}
}

func TestStoreErrorDeniesAccess(t *testing.T) {
	s, err := Open(context.Background(), failingStore{}, "alice", nil)
	if err == nil {
		t.Fatal("Open returned no error for failing store")
	}
	if s == nil || s.HasAccess() {
		t.Errorf("session = %+v, want one without access", s)
	}
	if s.Tier() != "" {
		t.Errorf("Tier = %q, want empty", s.Tier())
	}
}

func TestClose(t *testing.T) {
	st := openStore(t)
	st.SetSubscription(context.Background(), &store.Subscription{UserID: "p", Tier: "pro"})
	s, _ := Open(context.Background(), st, "p", nil)

	s.Close()
	s.Close()
	if s.HasAccess() {
		t.Error("HasAccess after Close")
	}
	if err := s.Require(); !errors.Is(err, ErrClosed) {
		t.Errorf("Require after Close = %v, want ErrClosed", err)
	}
}

func TestOpenEmptyUser(t *testing.T) {
	if _, err := Open(context.Background(), openStore(t), "  ", nil); err == nil {
		t.Error("Open with empty user succeeded")
	}
}
