package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/tableops/tableops/app/models"
	"github.com/tableops/tableops/app/repository"
	"github.com/tableops/tableops/internal/pkg/metrics"
	"gorm.io/gorm"
)

// Reconciler folds Stripe subscription state into local subscription rows.
// It is the only writer of Subscription.
type Reconciler struct {
	subs        repository.SubscriptionRepository
	restaurants repository.RestaurantRepository
	owners      repository.OwnerRepository
	customers   CustomerDirectory
	metrics     *metrics.Billing
}

// NewReconciler creates a Reconciler. customers may be nil, in which case
// owners are only resolved through existing subscription rows.
func NewReconciler(repos *repository.Repositories, customers CustomerDirectory, m *metrics.Billing) *Reconciler {
	return &Reconciler{
		subs:        repos.Subscription,
		restaurants: repos.Restaurant,
		owners:      repos.Owner,
		customers:   customers,
		metrics:     m,
	}
}

// ResolveOwner finds the local owner of a Stripe customer: first through an
// existing subscription row, then by matching the customer's billing email.
func (r *Reconciler) ResolveOwner(ctx context.Context, customerID string) (uint, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return 0, fmt.Errorf("%w: empty customer id", ErrOwnerNotResolved)
	}

	existing, err := r.subs.GetLatestByStripeCustomerID(ctx, customerID)
	if err == nil {
		return existing.OwnerID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	if r.customers == nil {
		return 0, fmt.Errorf("%w: customer %s has no subscription and no customer directory is configured", ErrOwnerNotResolved, customerID)
	}
	email, err := r.customers.CustomerEmail(ctx, customerID)
	if err != nil {
		return 0, fmt.Errorf("%w: lookup customer %s: %v", ErrOwnerNotResolved, customerID, err)
	}
	if email == "" {
		return 0, fmt.Errorf("%w: customer %s has no email", ErrOwnerNotResolved, customerID)
	}

	owner, err := r.owners.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: no owner with email %s", ErrOwnerNotResolved, email)
		}
		return 0, err
	}
	return owner.ID, nil
}

// Reconcile upserts the subscription keyed by its Stripe id. Existing rows
// keep their owner; status changes the lifecycle table refuses are dropped
// while the other fields still update.
func (r *Reconciler) Reconcile(ctx context.Context, ext ExternalSubscription) (*models.Subscription, error) {
	if strings.TrimSpace(ext.SubscriptionID) == "" {
		return nil, errors.New("subscription id is required")
	}

	existing, err := r.subs.GetByStripeSubscriptionID(ctx, ext.SubscriptionID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		existing = nil
	}

	var ownerID uint
	previous := ""
	if existing != nil {
		ownerID = existing.OwnerID
		previous = existing.Status
		if ext.CustomerID == "" {
			ext.CustomerID = existing.StripeCustomerID
		}
	} else {
		ownerID, err = r.ResolveOwner(ctx, ext.CustomerID)
		if err != nil {
			return nil, err
		}
	}

	status := r.nextStatus(ext, previous)

	sub := &models.Subscription{
		OwnerID:              ownerID,
		StripeSubscriptionID: ext.SubscriptionID,
		StripeCustomerID:     ext.CustomerID,
		PlanType:             normalizePlan(ext.PlanType),
		Status:               status,
		CurrentPeriodStart:   ext.CurrentPeriodStart,
		CurrentPeriodEnd:     ext.CurrentPeriodEnd,
		TrialEnd:             ext.TrialEnd,
		MaxActiveRestaurants: ext.MaxActiveRestaurants,
	}
	if sub.MaxActiveRestaurants < 1 {
		sub.MaxActiveRestaurants = 1
	}
	if err := r.subs.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("upsert subscription %s: %w", ext.SubscriptionID, err)
	}

	if previous == "" {
		log.Infof("[Billing] Created subscription %s for owner %d (%s, %s)", sub.StripeSubscriptionID, sub.OwnerID, sub.PlanType, sub.Status)
	} else if previous != sub.Status {
		log.Infof("[Billing] Subscription %s moved %s -> %s", sub.StripeSubscriptionID, previous, sub.Status)
	}

	if _, err := r.EnforceCapacity(ctx, sub); err != nil {
		log.Errorf("[Billing] Capacity enforcement for owner %d failed: %v", sub.OwnerID, err)
	}
	return sub, nil
}

func (r *Reconciler) nextStatus(ext ExternalSubscription, previous string) string {
	status, ok := NormalizeStatus(ext.Status)
	if !ok {
		log.Warnf("[Billing] Unknown Stripe status %q on subscription %s", ext.Status, ext.SubscriptionID)
		if previous != "" {
			return previous
		}
		return models.SubscriptionStatusActive
	}
	if !CanTransition(previous, status) {
		r.metrics.RecordRejectedTransition(previous, status)
		log.Warnf("[Billing] Ignoring status change %s -> %s on subscription %s", previous, status, ext.SubscriptionID)
		return previous
	}
	return status
}

// EnforceCapacity deactivates the newest active restaurants beyond the plan
// capacity. Canceled subscriptions are handled by the Dispatcher instead.
func (r *Reconciler) EnforceCapacity(ctx context.Context, sub *models.Subscription) (int64, error) {
	if sub.Status == models.SubscriptionStatusCanceled {
		return 0, nil
	}
	active, err := r.restaurants.CountActiveByOwner(ctx, sub.OwnerID)
	if err != nil {
		return 0, err
	}
	if active <= int64(sub.MaxActiveRestaurants) {
		return 0, nil
	}

	n, err := r.restaurants.DeactivateExcess(ctx, sub.OwnerID, sub.MaxActiveRestaurants)
	if err != nil {
		return 0, err
	}
	log.Infof("[Billing] Owner %d had %d active restaurants for capacity %d, deactivated %d", sub.OwnerID, active, sub.MaxActiveRestaurants, n)
	return n, nil
}

// Lookup returns the local row for a Stripe subscription id.
func (r *Reconciler) Lookup(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	sub, err := r.subs.GetByStripeSubscriptionID(ctx, stripeSubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, stripeSubscriptionID)
		}
		return nil, err
	}
	return sub, nil
}

// MarkStatus changes only the status of the subscription with the given
// Stripe id. A refused transition returns the unchanged row together with
// ErrInvalidTransition.
func (r *Reconciler) MarkStatus(ctx context.Context, stripeSubscriptionID, status string) (*models.Subscription, error) {
	sub, err := r.Lookup(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, err
	}
	return sub, r.markStatus(ctx, sub, status)
}

func (r *Reconciler) markStatus(ctx context.Context, sub *models.Subscription, status string) error {
	if sub.Status == status {
		return nil
	}
	if !CanTransition(sub.Status, status) {
		r.metrics.RecordRejectedTransition(sub.Status, status)
		return fmt.Errorf("%w: %s -> %s on subscription %s", ErrInvalidTransition, sub.Status, status, sub.StripeSubscriptionID)
	}
	if err := r.subs.UpdateStatus(ctx, sub.ID, status); err != nil {
		return fmt.Errorf("update status of subscription %s: %w", sub.StripeSubscriptionID, err)
	}
	log.Infof("[Billing] Subscription %s moved %s -> %s", sub.StripeSubscriptionID, sub.Status, status)
	sub.Status = status
	return nil
}
