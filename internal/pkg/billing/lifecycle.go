package billing

import (
	"strings"

	"github.com/tableops/tableops/app/models"
)

// Transition classifies what happened to a subscription. It selects the
// side effects the Dispatcher runs.
type Transition string

const (
	TransitionCreated          Transition = "created"
	TransitionUpdated          Transition = "updated"
	TransitionCanceled         Transition = "canceled"
	TransitionPaymentSucceeded Transition = "payment_succeeded"
	TransitionPaymentFailed    Transition = "payment_failed"
	TransitionTrialWillEnd     Transition = "trial_will_end"
	// TransitionTrialExpired is only produced by the expired-trial sweep.
	TransitionTrialExpired Transition = "trial_expired"
)

// allowedTransitions is the subscription state machine. canceled is terminal;
// past_due may recover to active.
var allowedTransitions = map[string][]string{
	models.SubscriptionStatusTrialing: {
		models.SubscriptionStatusTrialing,
		models.SubscriptionStatusActive,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusCanceled,
	},
	models.SubscriptionStatusActive: {
		models.SubscriptionStatusActive,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusCanceled,
	},
	models.SubscriptionStatusPastDue: {
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusActive,
		models.SubscriptionStatusCanceled,
	},
	models.SubscriptionStatusCanceled: {
		models.SubscriptionStatusCanceled,
	},
}

// CanTransition reports whether a subscription in status from may move to
// status to. An empty from means the row does not exist yet.
func CanTransition(from, to string) bool {
	if !models.IsSubscriptionStatus(to) {
		return false
	}
	if from == "" {
		return true
	}
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// NormalizeStatus maps a Stripe subscription status onto the closed local
// set. ok is false for statuses we do not know how to place.
func NormalizeStatus(providerStatus string) (status string, ok bool) {
	switch strings.ToLower(strings.TrimSpace(providerStatus)) {
	case "trialing":
		return models.SubscriptionStatusTrialing, true
	case "active":
		return models.SubscriptionStatusActive, true
	case "past_due", "unpaid", "incomplete", "paused":
		return models.SubscriptionStatusPastDue, true
	case "canceled", "cancelled", "incomplete_expired":
		return models.SubscriptionStatusCanceled, true
	default:
		return "", false
	}
}
