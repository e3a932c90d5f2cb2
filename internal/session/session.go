// Package session holds the signed-in user and their entitlement. A Session
// is created once at startup and handed to whatever needs it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"backdash/internal/store"
)

// ErrNoAccess is returned by Require when the user's plan does not include
// the dashboard.
var ErrNoAccess = errors.New("session: subscription does not grant access")

// ErrClosed is returned by Require after Close.
var ErrClosed = errors.New("session: signed out")

// Plan tiers.
const (
	TierFree    = "free"
	TierPremium = "premium"
	TierPro     = "pro"
)

// Session is a signed-in user. It is safe for concurrent use.
type Session struct {
	user     string
	tier     string
	access   bool
	openedAt time.Time
	log      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open signs user in and resolves their entitlement from subs. A missing
// record, a free plan, or a lookup error all mean no access; only the
// lookup error is returned, alongside a usable Session without access.
func Open(ctx context.Context, subs store.SubscriptionStore, user string, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, errors.New("session: empty user")
	}
	s := &Session{user: user, openedAt: time.Now(), log: log}

	sub, err := subs.GetSubscription(ctx, user)
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Warn("no subscription record", "user", user)
		return s, nil
	case err != nil:
		log.Error("subscription lookup failed", "user", user, "error", err)
		return s, fmt.Errorf("looking up subscription for %s: %w", user, err)
	}

	s.tier = sub.Tier
	if s.tier == "" {
		s.tier = TierFree
	}
	s.access = s.tier != TierFree
	log.Info("session opened", "user", user, "tier", s.tier, "access", s.access)
	return s, nil
}

// User returns the signed-in user id.
func (s *Session) User() string { return s.user }

// Tier returns the plan, or "" when it could not be determined.
func (s *Session) Tier() string { return s.tier }

// TierLabel is the plan as shown to the user.
func (s *Session) TierLabel() string {
	if s.tier == "" || s.tier == TierFree {
		return "Gratuit"
	}
	return strings.ToUpper(s.tier)
}

// HasAccess reports whether the session is open and its plan grants access.
func (s *Session) HasAccess() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.access
}

// Require returns nil if the session may use the dashboard.
func (s *Session) Require() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if !s.access {
		return fmt.Errorf("%w (plan: %s)", ErrNoAccess, s.TierLabel())
	}
	return nil
}

// Close signs the user out. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.log.Info("session closed", "user", s.user, "duration", time.Since(s.openedAt).Round(time.Second))
}
