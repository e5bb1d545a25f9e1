package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tableops/tableops/internal/pkg/metrics"
	"github.com/tableops/tableops/internal/pkg/retry"
)

// Stripe event types handled by the WebhookProcessor.
const (
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventSubscriptionTrialWillEnd = "customer.subscription.trial_will_end"
	EventInvoicePaymentSucceeded  = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
)

// verifyStripeEvent checks the Stripe-Signature header against the raw body.
func verifyStripeEvent(payload []byte, signature, secret string) (stripe.Event, error) {
	if strings.TrimSpace(secret) == "" {
		return stripe.Event{}, ErrWebhookSecretMissing
	}
	if strings.TrimSpace(signature) == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// eventID returns the provider event id, or a content hash when the
// provider sent none.
func eventID(id string, payload []byte) string {
	if trimmed := strings.TrimSpace(id); trimmed != "" {
		return trimmed
	}
	sum := sha256.Sum256(payload)
	return "hash:" + hex.EncodeToString(sum[:])
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	TrialEnd           int64             `json:"trial_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []stripeSubscriptionItem `json:"data"`
	} `json:"items"`
}

// Newer API versions report the billing period on the item instead of the
// subscription.
type stripeSubscriptionItem struct {
	Quantity           int64 `json:"quantity"`
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
	Price              struct {
		ID       string            `json:"id"`
		Metadata map[string]string `json:"metadata"`
	} `json:"price"`
}

func decodeStripeSubscription(raw json.RawMessage) (stripeSubscription, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return sub, fmt.Errorf("decode subscription: %w", err)
	}
	if strings.TrimSpace(sub.ID) == "" {
		return sub, errors.New("decode subscription: missing id")
	}
	return sub, nil
}

func (s stripeSubscription) normalize() ExternalSubscription {
	var item stripeSubscriptionItem
	if len(s.Items.Data) > 0 {
		item = s.Items.Data[0]
	}

	periodStart, periodEnd := s.CurrentPeriodStart, s.CurrentPeriodEnd
	if periodStart == 0 {
		periodStart = item.CurrentPeriodStart
	}
	if periodEnd == 0 {
		periodEnd = item.CurrentPeriodEnd
	}

	return ExternalSubscription{
		SubscriptionID:       strings.TrimSpace(s.ID),
		CustomerID:           strings.TrimSpace(s.Customer),
		Status:               s.Status,
		PlanType:             planFromMetadata(s.Metadata, item.Price.Metadata),
		MaxActiveRestaurants: maxActiveRestaurants(item.Quantity, s.Metadata, item.Price.Metadata),
		CurrentPeriodStart:   unixTime(periodStart),
		CurrentPeriodEnd:     unixTime(periodEnd),
		TrialEnd:             unixTime(s.TrialEnd),
	}
}

type stripeInvoice struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	CustomerEmail string `json:"customer_email"`
	Subscription  string `json:"subscription"`
	AmountDue     int64  `json:"amount_due"`
	Currency      string `json:"currency"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func decodeStripeInvoice(raw json.RawMessage) (stripeInvoice, error) {
	var inv stripeInvoice
	if err := json.Unmarshal(raw, &inv); err != nil {
		return inv, fmt.Errorf("decode invoice: %w", err)
	}
	return inv, nil
}

// subscriptionID is empty for one-off invoices.
func (i stripeInvoice) subscriptionID() string {
	if id := strings.TrimSpace(i.Subscription); id != "" {
		return id
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return strings.TrimSpace(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// StripeCustomers resolves customer emails through the Stripe API, retrying
// transient failures.
type StripeCustomers struct {
	client  customer.Client
	retry   retry.Config
	metrics *metrics.Billing
}

// NewStripeCustomers creates a directory using the given secret key.
func NewStripeCustomers(secretKey string, m *metrics.Billing) *StripeCustomers {
	return &StripeCustomers{
		client:  customer.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		retry:   retry.DefaultConfig(),
		metrics: m,
	}
}

func (c *StripeCustomers) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	if strings.TrimSpace(c.client.Key) == "" {
		return "", errors.New("STRIPE_SECRET_KEY is not configured")
	}

	cfg := c.retry
	cfg.ShouldRetry = isTransientStripeError
	cfg.OnRetry = func(err error, attempt int, delay time.Duration) {
		c.metrics.RecordRetry("stripe.customer")
		log.Warnf("[Billing] Stripe customer lookup %s failed (attempt %d), retrying in %s: %v", customerID, attempt, delay, err)
	}

	res := retry.Do(ctx, cfg, func(ctx context.Context) (*stripe.Customer, error) {
		params := &stripe.CustomerParams{}
		params.Context = ctx
		return c.client.Get(customerID, params)
	})
	if !res.OK() {
		return "", fmt.Errorf("stripe customer %s: %w", customerID, res.Err)
	}
	if res.Value == nil || res.Value.Deleted {
		return "", fmt.Errorf("stripe customer %s is deleted", customerID)
	}
	return strings.TrimSpace(res.Value.Email), nil
}

// isTransientStripeError lets the API status code decide when Stripe
// answered, and falls back to the generic classifier otherwise.
func isTransientStripeError(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode != 0 {
		return retry.IsTransient(retry.WithStatus(stripeErr.HTTPStatusCode, err))
	}
	return retry.IsTransient(err)
}
