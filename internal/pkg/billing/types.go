package billing

import (
	"context"
	"time"
)

// ExternalSubscription is the provider-agnostic shape the Reconciler folds
// into a local subscription row.
type ExternalSubscription struct {
	SubscriptionID       string
	CustomerID           string
	Status               string
	PlanType             string
	MaxActiveRestaurants int
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	TrialEnd             *time.Time
}

// CustomerDirectory looks up payment-provider customers.
type CustomerDirectory interface {
	CustomerEmail(ctx context.Context, customerID string) (string, error)
}

// Notifier sends the lifecycle emails. Implementations report failure
// through the returned error and never panic.
type Notifier interface {
	SendSubscriptionConfirmed(ctx context.Context, to, name, planName string) error
	SendSubscriptionCancelled(ctx context.Context, to, name string) error
	SendPaymentFailed(ctx context.Context, to, name, amount string) error
	SendTrialEnding(ctx context.Context, to, name, endDate string) error
	SendTrialExpired(ctx context.Context, to, name string) error
}
