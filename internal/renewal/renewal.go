// Package renewal runs the external scheduler the subscription lifecycle
// assumes: a cron job that scans stored subscriptions and refreshes the
// ones whose provider-side registration is about to lapse. The dispatch
// path owns no timers; this package is the only clock.
package renewal

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"triggerhub/internal/common/logging"
	"triggerhub/internal/trigger"
)

// CredentialsFunc supplies provider credentials for a subscription being
// refreshed. Credentials are host-owned and never stored with the
// subscription.
type CredentialsFunc func(ctx context.Context, sub *trigger.Subscription) (trigger.Credentials, error)

// Scheduler periodically refreshes expiring subscriptions.
type Scheduler struct {
	registry    *trigger.Registry
	subs        *trigger.Subscriptions
	credentials CredentialsFunc
	lead        time.Duration
	cron        *cron.Cron

	// now is a test hook; nil means time.Now.
	now func() time.Time
}

// New builds a scheduler. lead is the window before expiry in which a
// subscription is refreshed.
func New(registry *trigger.Registry, subs *trigger.Subscriptions, credentials CredentialsFunc, lead time.Duration) *Scheduler {
	return &Scheduler{
		registry:    registry,
		subs:        subs,
		credentials: credentials,
		lead:        lead,
	}
}

// Start schedules renewal scans on the given cron expression.
func (s *Scheduler) Start(schedule string) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling; a scan in flight finishes.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// RunOnce scans every stored subscription and refreshes those inside the
// lead window. One subscription's failure never blocks the rest.
func (s *Scheduler) RunOnce(ctx context.Context) {
	nowFn := s.now
	if nowFn == nil {
		nowFn = time.Now
	}
	now := nowFn()

	subs, err := s.subs.List(ctx, "")
	if err != nil {
		logging.Error("renewal scan failed to list subscriptions", err)
		return
	}

	for _, sub := range subs {
		if !sub.ExpiresWithin(now, s.lead) {
			continue
		}
		if err := s.refresh(ctx, sub); err != nil {
			logging.Error("subscription refresh failed", err,
				logging.Field{Key: "provider", Value: sub.Provider},
				logging.Field{Key: "subscription", Value: sub.ID})
		}
	}
}

func (s *Scheduler) refresh(ctx context.Context, sub *trigger.Subscription) error {
	lifecycle, err := s.registry.Lifecycle(sub.Provider)
	if err != nil {
		return err
	}

	creds := trigger.Credentials{}
	if s.credentials != nil {
		if creds, err = s.credentials(ctx, sub); err != nil {
			return err
		}
	}

	refreshed, err := lifecycle.RefreshSubscription(ctx, sub, creds)
	if err != nil {
		return err
	}
	if err := s.subs.Save(ctx, refreshed); err != nil {
		return err
	}

	logging.Info("subscription refreshed",
		logging.Field{Key: "provider", Value: sub.Provider},
		logging.Field{Key: "subscription", Value: sub.ID},
		logging.Field{Key: "expires_at", Value: refreshed.ExpiresAt})
	return nil
}
