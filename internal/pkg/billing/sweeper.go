package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/tableops/tableops/app/models"
	"github.com/tableops/tableops/app/repository"
	"github.com/tableops/tableops/internal/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSweepConcurrency = 4
	trialReminderLeadDays   = 7

	sweepTrialExpiring = "trial_expiring"
	sweepTrialExpired  = "trial_expired"
)

// ExpiringReport summarizes a trial-expiring sweep.
type ExpiringReport struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Errors    int `json:"errors"`
}

// ExpiredReport summarizes a trial-expired sweep. RestaurantsDeactivated
// counts restaurant rows, not subscriptions.
type ExpiredReport struct {
	Processed              int   `json:"processed"`
	EmailsSent             int   `json:"emailsSent"`
	SubscriptionsUpdated   int   `json:"subscriptionsUpdated"`
	RestaurantsDeactivated int64 `json:"restaurantsDeactivated"`
	Errors                 int   `json:"errors"`
}

// Sweeper runs the daily trial expiration jobs.
type Sweeper struct {
	subs        repository.SubscriptionRepository
	reconciler  *Reconciler
	dispatcher  *Dispatcher
	metrics     *metrics.Billing
	concurrency int
	now         func() time.Time
}

func NewSweeper(subs repository.SubscriptionRepository, reconciler *Reconciler, dispatcher *Dispatcher, concurrency int, m *metrics.Billing) *Sweeper {
	if concurrency <= 0 {
		concurrency = DefaultSweepConcurrency
	}
	return &Sweeper{
		subs:        subs,
		reconciler:  reconciler,
		dispatcher:  dispatcher,
		metrics:     m,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// DayWindow returns the first and last instant of t's UTC calendar day.
func DayWindow(t time.Time) (start, end time.Time) {
	u := t.UTC()
	start = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return start, end
}

// TrialExpiring reminds trialing owners whose period ends on the UTC day
// seven days from now. It never changes subscription state.
func (s *Sweeper) TrialExpiring(ctx context.Context) (ExpiringReport, error) {
	var report ExpiringReport
	start, end := DayWindow(s.now().AddDate(0, 0, trialReminderLeadDays))

	subs, err := s.subs.ListByStatusAndPeriodEnd(ctx, models.SubscriptionStatusTrialing, start, end)
	if err != nil {
		return report, fmt.Errorf("list expiring trials: %w", err)
	}

	runID := uuid.NewString()
	log.Infof("[Sweep] %s run %s: %d trials ending %s", sweepTrialExpiring, runID, len(subs), FormatDate(start))

	results := s.forEach(subs, sweepTrialExpiring, func(sub *models.Subscription) itemResult {
		outcome := s.dispatcher.Dispatch(ctx, TransitionTrialWillEnd, Subject{Subscription: sub})
		return itemResult{ok: outcome.Err() == nil, emailed: outcome.Succeeded(TaskSendTrialEnding)}
	})
	for _, r := range results {
		report.Processed++
		if r.emailed {
			report.Sent++
		}
		if !r.ok {
			report.Errors++
		}
	}

	log.Infof("[Sweep] %s run %s done: processed=%d sent=%d errors=%d", sweepTrialExpiring, runID, report.Processed, report.Sent, report.Errors)
	return report, nil
}

// TrialExpired closes trials whose period ended during yesterday's UTC day.
// Each subscription is canceled, its restaurants are deactivated and the
// owner is notified; the three steps run independently.
func (s *Sweeper) TrialExpired(ctx context.Context) (ExpiredReport, error) {
	var report ExpiredReport
	start, end := DayWindow(s.now().AddDate(0, 0, -1))

	subs, err := s.subs.ListByStatusAndPeriodEnd(ctx, models.SubscriptionStatusTrialing, start, end)
	if err != nil {
		return report, fmt.Errorf("list expired trials: %w", err)
	}

	runID := uuid.NewString()
	log.Infof("[Sweep] %s run %s: %d trials ended %s", sweepTrialExpired, runID, len(subs), FormatDate(start))

	results := s.forEach(subs, sweepTrialExpired, func(sub *models.Subscription) itemResult {
		statusErr := s.reconciler.markStatus(ctx, sub, models.SubscriptionStatusCanceled)
		if statusErr != nil {
			log.Errorf("[Sweep] Cancel expired trial %s failed: %v", sub.StripeSubscriptionID, statusErr)
		}
		outcome := s.dispatcher.Dispatch(ctx, TransitionTrialExpired, Subject{Subscription: sub})

		r := itemResult{
			ok:      statusErr == nil && outcome.Err() == nil,
			updated: statusErr == nil,
			emailed: outcome.Succeeded(TaskSendTrialExpired),
		}
		if outcome.Succeeded(TaskDeactivateRestaurants) {
			r.deactivated = outcome.Deactivated
		}
		return r
	})
	for _, r := range results {
		report.Processed++
		if r.updated {
			report.SubscriptionsUpdated++
		}
		report.RestaurantsDeactivated += r.deactivated
		if r.emailed {
			report.EmailsSent++
		}
		if !r.ok {
			report.Errors++
		}
	}

	log.Infof("[Sweep] %s run %s done: processed=%d updated=%d deactivated=%d emails=%d errors=%d",
		sweepTrialExpired, runID, report.Processed, report.SubscriptionsUpdated, report.RestaurantsDeactivated, report.EmailsSent, report.Errors)
	return report, nil
}

// itemResult is what happened to one subscription during a sweep.
type itemResult struct {
	ok          bool
	updated     bool
	emailed     bool
	deactivated int64
}

// forEach runs fn for every subscription on a bounded pool and returns the
// results in input order. A panicking item counts as failed and never takes
// the batch down.
func (s *Sweeper) forEach(subs []models.Subscription, sweep string, fn func(sub *models.Subscription) itemResult) []itemResult {
	results := make([]itemResult, len(subs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range subs {
		sub := &subs[i]
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					log.Errorf("[Sweep] %s item %s panicked: %v", sweep, sub.StripeSubscriptionID, rec)
					results[i] = itemResult{}
				}
				s.metrics.RecordSweepItem(sweep, results[i].ok)
			}()
			results[i] = fn(sub)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
