package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/tableops/tableops/app/models"
	"github.com/tableops/tableops/app/repository"
	"github.com/tableops/tableops/internal/pkg/metrics"
)

// Task names as they appear in logs and metrics.
const (
	TaskDeactivateRestaurants = "deactivate_restaurants"
	TaskSendConfirmation      = "send_subscription_confirmed"
	TaskSendCancellation      = "send_subscription_cancelled"
	TaskSendPaymentFailed     = "send_payment_failed"
	TaskSendTrialEnding       = "send_trial_ending"
	TaskSendTrialExpired      = "send_trial_expired"
)

// Subject is what a transition happened to.
type Subject struct {
	Subscription *models.Subscription
	// OwnerID addresses the owner when there is no local subscription row.
	OwnerID   uint
	AmountDue int64
	Currency  string
	// EndsAt overrides the trial end shown in trial emails.
	EndsAt *time.Time
}

func (s Subject) ownerID() uint {
	if s.Subscription != nil {
		return s.Subscription.OwnerID
	}
	return s.OwnerID
}

func (s Subject) trialEnd() *time.Time {
	if s.EndsAt != nil {
		return s.EndsAt
	}
	if s.Subscription == nil {
		return nil
	}
	if s.Subscription.TrialEnd != nil {
		return s.Subscription.TrialEnd
	}
	return s.Subscription.CurrentPeriodEnd
}

func (s Subject) planType() string {
	if s.Subscription == nil {
		return models.PlanStarter
	}
	return s.Subscription.PlanType
}

// TaskResult is the outcome of one side effect.
type TaskResult struct {
	Name string
	Err  error
}

// Outcome collects every task a transition ran.
type Outcome struct {
	Tasks       []TaskResult
	Deactivated int64
}

// Failed returns the tasks that returned an error.
func (o Outcome) Failed() []TaskResult {
	var failed []TaskResult
	for _, t := range o.Tasks {
		if t.Err != nil {
			failed = append(failed, t)
		}
	}
	return failed
}

// Succeeded reports whether the named task ran without error.
func (o Outcome) Succeeded(name string) bool {
	for _, t := range o.Tasks {
		if t.Name == name {
			return t.Err == nil
		}
	}
	return false
}

// Err joins the errors of all failed tasks, or returns nil.
func (o Outcome) Err() error {
	var errs []error
	for _, t := range o.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", t.Name, t.Err))
	}
	return errors.Join(errs...)
}

type task struct {
	name string
	run  func(ctx context.Context, d *dispatch) error
}

// Dispatcher runs the side effects of a lifecycle transition. It never
// writes subscription rows.
type Dispatcher struct {
	owners      repository.OwnerRepository
	restaurants repository.RestaurantRepository
	notifier    Notifier
	metrics     *metrics.Billing
}

func NewDispatcher(repos *repository.Repositories, notifier Notifier, m *metrics.Billing) *Dispatcher {
	return &Dispatcher{
		owners:      repos.Owner,
		restaurants: repos.Restaurant,
		notifier:    notifier,
		metrics:     m,
	}
}

var transitionTasks = map[Transition][]task{
	TransitionCreated:          {{TaskSendConfirmation, sendConfirmation}},
	TransitionCanceled:         {{TaskDeactivateRestaurants, deactivateRestaurants}, {TaskSendCancellation, sendCancellation}},
	TransitionPaymentFailed:    {{TaskSendPaymentFailed, sendPaymentFailed}},
	TransitionTrialWillEnd:     {{TaskSendTrialEnding, sendTrialEnding}},
	TransitionTrialExpired:     {{TaskDeactivateRestaurants, deactivateRestaurants}, {TaskSendTrialExpired, sendTrialExpired}},
	TransitionUpdated:          nil,
	TransitionPaymentSucceeded: nil,
}

// Dispatch runs every task of the transition. A failing task does not stop
// its siblings; each result is logged and counted.
func (d *Dispatcher) Dispatch(ctx context.Context, transition Transition, subject Subject) Outcome {
	state := &dispatch{Dispatcher: d, subject: subject}

	var out Outcome
	for _, t := range transitionTasks[transition] {
		err := runTask(ctx, t, state)
		out.Tasks = append(out.Tasks, TaskResult{Name: t.name, Err: err})
		d.metrics.RecordDispatchTask(t.name, err == nil)
		if err != nil {
			log.Errorf("[Billing] %s task %s for owner %d failed: %v", transition, t.name, subject.ownerID(), err)
		}
	}
	out.Deactivated = state.deactivated
	return out
}

func runTask(ctx context.Context, t task, d *dispatch) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return t.run(ctx, d)
}

// dispatch carries per-call state shared by the tasks of one transition.
type dispatch struct {
	*Dispatcher
	subject     Subject
	owner       *models.Owner
	ownerErr    error
	ownerLoaded bool
	deactivated int64
}

func (d *dispatch) recipient(ctx context.Context) (*models.Owner, error) {
	if !d.ownerLoaded {
		d.ownerLoaded = true
		id := d.subject.ownerID()
		if id == 0 {
			d.ownerErr = ErrOwnerNotResolved
		} else {
			d.owner, d.ownerErr = d.owners.GetByID(ctx, id)
		}
		if d.ownerErr == nil && strings.TrimSpace(d.owner.Email) == "" {
			d.ownerErr = fmt.Errorf("owner %d has no email address", id)
		}
	}
	return d.owner, d.ownerErr
}

func deactivateRestaurants(ctx context.Context, d *dispatch) error {
	id := d.subject.ownerID()
	if id == 0 {
		return ErrOwnerNotResolved
	}
	n, err := d.restaurants.DeactivateAllByOwner(ctx, id)
	if err != nil {
		return err
	}
	d.deactivated = n
	log.Infof("[Billing] Deactivated %d restaurants of owner %d", n, id)
	return nil
}

func sendConfirmation(ctx context.Context, d *dispatch) error {
	owner, err := d.recipient(ctx)
	if err != nil {
		return err
	}
	return d.notifier.SendSubscriptionConfirmed(ctx, owner.Email, owner.DisplayName(), PlanDisplayName(d.subject.planType()))
}

func sendCancellation(ctx context.Context, d *dispatch) error {
	owner, err := d.recipient(ctx)
	if err != nil {
		return err
	}
	return d.notifier.SendSubscriptionCancelled(ctx, owner.Email, owner.DisplayName())
}

func sendPaymentFailed(ctx context.Context, d *dispatch) error {
	owner, err := d.recipient(ctx)
	if err != nil {
		return err
	}
	amount := FormatAmount(d.subject.AmountDue, d.subject.Currency)
	return d.notifier.SendPaymentFailed(ctx, owner.Email, owner.DisplayName(), amount)
}

func sendTrialEnding(ctx context.Context, d *dispatch) error {
	owner, err := d.recipient(ctx)
	if err != nil {
		return err
	}
	end := d.subject.trialEnd()
	if end == nil {
		return errors.New("trial end date is unknown")
	}
	return d.notifier.SendTrialEnding(ctx, owner.Email, owner.DisplayName(), FormatDate(*end))
}

func sendTrialExpired(ctx context.Context, d *dispatch) error {
	owner, err := d.recipient(ctx)
	if err != nil {
		return err
	}
	return d.notifier.SendTrialExpired(ctx, owner.Email, owner.DisplayName())
}
