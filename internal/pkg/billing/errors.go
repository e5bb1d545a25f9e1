package billing

import "errors"

var (
	ErrWebhookSecretMissing = errors.New("billing: webhook secret is not configured")
	ErrMissingSignature     = errors.New("billing: missing webhook signature")
	ErrInvalidSignature     = errors.New("billing: invalid webhook signature")
	// ErrOwnerNotResolved means no account could be matched to a Stripe
	// customer. The event is dropped; an owner is never fabricated.
	ErrOwnerNotResolved     = errors.New("billing: owner could not be resolved")
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrInvalidTransition    = errors.New("billing: invalid status transition")
)
