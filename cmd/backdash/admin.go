package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"backdash/internal/compare"
	"backdash/internal/dashboard"
	"backdash/internal/domain"
	"backdash/internal/lifecycle"
	"backdash/internal/relay"
	"backdash/internal/session"
	"backdash/internal/store"
	"backdash/internal/util"
)

func cmdGrant(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("grant", "[-products a,b] <user> <tier>")
	products := fs.String("products", "", "comma-separated product list")
	list := fs.Bool("list", false, "list all subscriptions instead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	subs, err := a.subscriptions()
	if err != nil {
		return err
	}

	if *list {
		all, err := subs.ListSubscriptions(ctx)
		if err != nil {
			return err
		}
		a.printf("%-20s %-10s %-24s %s\n", "USER", "TIER", "PRODUCTS", "UPDATED")
		for _, s := range all {
			a.printf("%-20s %-10s %-24s %s\n", s.UserID, s.Tier, strings.Join(s.Products, ","), s.UpdatedAt.Format(time.DateTime))
		}
		return nil
	}

	if fs.NArg() != 2 {
		fs.Usage()
		return errors.New("expected a user and a tier")
	}
	user, tier := fs.Arg(0), strings.ToLower(fs.Arg(1))
	switch tier {
	case session.TierFree, session.TierPremium, session.TierPro:
	default:
		return &domain.ValidationError{Field: "tier", Reason: "must be free, premium or pro"}
	}

	sub := &store.Subscription{UserID: user, Tier: tier}
	if *products != "" {
		for _, p := range strings.Split(*products, ",") {
			if p = strings.TrimSpace(p); p != "" {
				sub.Products = append(sub.Products, p)
			}
		}
	}
	if err := subs.SetSubscription(ctx, sub); err != nil {
		return err
	}
	a.printf("%s is now on the %s plan\n", user, tier)
	return nil
}

// errWatchDone ends the retry loop once the relay closed a stream normally.
var errWatchDone = errors.New("watch finished")

func cmdWatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("watch", "[-addr host:port] [-retries N] [run id]")
	addr := fs.String("addr", a.cfg.Relay.Addr, "relay address")
	retries := fs.Int("retries", 5, "connection attempts before giving up")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return errors.New("expected at most one run id")
	}
	runID := fs.Arg(0)

	client := relay.NewClient(*addr, a.log)
	// mirror applies relayed statuses with the same terminal rules as a
	// polling controller, so a stale status after a reconnect is dropped.
	mirror := lifecycle.New(nil, lifecycle.WithLogger(a.log))
	defer mirror.Dispose()
	received := false

	err := util.Retry(ctx, *retries, 500*time.Millisecond, func() error {
		err := client.Watch(ctx, runID, func(s lifecycle.Snapshot) error {
			received = true
			if s.RunID != "" {
				if mirror.Snapshot().RunID != s.RunID {
					if err := mirror.Follow(s.RunID); err != nil {
						return err
					}
				}
				err := mirror.Observe(domain.RunStatus{
					RunID:    s.RunID,
					Name:     s.Name,
					Status:   s.Status,
					Progress: s.Progress,
					Message:  s.Message,
					Logs:     s.Logs,
				})
				var v *lifecycle.ContractViolation
				if errors.As(err, &v) {
					a.log.Warn("ignoring relayed status after terminal", "run_id", v.RunID, "had", v.Had, "got", v.Got)
					return nil
				}
			}
			a.printf("[%s] %-10s %-9s %s %3.0f%%  %s\n", s.ObservedAt.Format("15:04:05"), compare.Label(s.RunID),
				s.State, dashboard.StatusBadge(s.Status).Text(), s.Progress*100, s.Message)
			return nil
		})
		switch {
		case err == nil:
			return util.Permanent(errWatchDone)
		case ctx.Err() != nil:
			return util.Permanent(err)
		case received:
			// Reconnecting resumes from the current snapshot.
			a.log.Warn("relay stream interrupted, reconnecting", "error", err)
		}
		return err
	})
	if err != nil && !errors.Is(err, errWatchDone) {
		return err
	}
	if last := mirror.Snapshot(); last.State.Terminal() {
		a.printf("Run %s finished: %s\n", last.RunID, last.State)
	}
	return nil
}
