package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/tableops/tableops/app/models"
	"github.com/tableops/tableops/internal/pkg/idempotency"
	"github.com/tableops/tableops/internal/pkg/metrics"
)

// Outcome labels of billing_webhook_events_total.
const (
	webhookOutcomeProcessed = "processed"
	webhookOutcomeIgnored   = "ignored"
	webhookOutcomeDuplicate = "duplicate"
	webhookOutcomeFailed    = "failed"
)

// WebhookResult is the acknowledgement returned to Stripe.
type WebhookResult struct {
	Received  bool   `json:"received"`
	Duplicate bool   `json:"duplicate,omitempty"`
	EventID   string `json:"-"`
	EventType string `json:"-"`
}

// WebhookProcessor authenticates, deduplicates and applies Stripe events.
type WebhookProcessor struct {
	secret     string
	guard      *idempotency.Guard
	reconciler *Reconciler
	dispatcher *Dispatcher
	metrics    *metrics.Billing
}

func NewWebhookProcessor(secret string, guard *idempotency.Guard, reconciler *Reconciler, dispatcher *Dispatcher, m *metrics.Billing) *WebhookProcessor {
	if guard == nil {
		guard = idempotency.NewGuard(nil, nil)
	}
	return &WebhookProcessor{
		secret:     secret,
		guard:      guard,
		reconciler: reconciler,
		dispatcher: dispatcher,
		metrics:    m,
	}
}

// Handle processes one delivery. It only returns an error for
// authentication and configuration problems; once the event is verified and
// new, processing failures are logged and the delivery is acknowledged so
// Stripe does not start a redelivery storm.
func (p *WebhookProcessor) Handle(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	event, err := verifyStripeEvent(payload, signature, p.secret)
	if err != nil {
		return WebhookResult{}, err
	}

	res := WebhookResult{
		Received:  true,
		EventID:   eventID(event.ID, payload),
		EventType: string(event.Type),
	}

	if !p.guard.Claim(ctx, res.EventID) {
		log.Infof("[Billing] Skipping duplicate Stripe event %s (%s)", res.EventID, res.EventType)
		p.metrics.RecordWebhookEvent(res.EventType, webhookOutcomeDuplicate)
		res.Duplicate = true
		return res, nil
	}

	handled, err := p.apply(ctx, event)
	switch {
	case err != nil:
		log.Errorf("[Billing] Stripe event %s (%s) failed: %v", res.EventID, res.EventType, err)
		p.metrics.RecordWebhookEvent(res.EventType, webhookOutcomeFailed)
	case !handled:
		log.Infof("[Billing] Stripe event %s ignored (unhandled type %s)", res.EventID, res.EventType)
		p.metrics.RecordWebhookEvent(res.EventType, webhookOutcomeIgnored)
	default:
		p.metrics.RecordWebhookEvent(res.EventType, webhookOutcomeProcessed)
	}
	return res, nil
}

// apply routes the event by type. handled is false for types and invoices
// this service does not act on.
func (p *WebhookProcessor) apply(ctx context.Context, event stripe.Event) (handled bool, err error) {
	if event.Data == nil {
		return false, errors.New("event has no data object")
	}
	raw := event.Data.Raw

	switch string(event.Type) {
	case EventSubscriptionCreated:
		return true, p.onSubscriptionChanged(ctx, raw, TransitionCreated)
	case EventSubscriptionUpdated:
		return true, p.onSubscriptionChanged(ctx, raw, TransitionUpdated)
	case EventSubscriptionDeleted:
		return true, p.onSubscriptionChanged(ctx, raw, TransitionCanceled)
	case EventSubscriptionTrialWillEnd:
		return true, p.onTrialWillEnd(ctx, raw)
	case EventInvoicePaymentSucceeded:
		return p.onInvoice(ctx, raw, TransitionPaymentSucceeded)
	case EventInvoicePaymentFailed:
		return p.onInvoice(ctx, raw, TransitionPaymentFailed)
	default:
		return false, nil
	}
}

func (p *WebhookProcessor) onSubscriptionChanged(ctx context.Context, raw []byte, transition Transition) error {
	stripeSub, err := decodeStripeSubscription(raw)
	if err != nil {
		return err
	}
	ext := stripeSub.normalize()
	if transition == TransitionCanceled {
		ext.Status = models.SubscriptionStatusCanceled
	}

	sub, err := p.reconciler.Reconcile(ctx, ext)
	if err != nil {
		return err
	}
	return p.dispatcher.Dispatch(ctx, transition, Subject{Subscription: sub}).Err()
}

func (p *WebhookProcessor) onTrialWillEnd(ctx context.Context, raw []byte) error {
	stripeSub, err := decodeStripeSubscription(raw)
	if err != nil {
		return err
	}
	ext := stripeSub.normalize()

	subject := Subject{EndsAt: ext.TrialEnd}
	if subject.EndsAt == nil {
		subject.EndsAt = ext.CurrentPeriodEnd
	}

	sub, err := p.reconciler.Lookup(ctx, ext.SubscriptionID)
	switch {
	case err == nil:
		subject.Subscription = sub
	case errors.Is(err, ErrSubscriptionNotFound):
		// The created event may still be in flight; address the owner directly.
		subject.OwnerID, err = p.reconciler.ResolveOwner(ctx, ext.CustomerID)
		if err != nil {
			return err
		}
	default:
		return err
	}
	return p.dispatcher.Dispatch(ctx, TransitionTrialWillEnd, subject).Err()
}

func (p *WebhookProcessor) onInvoice(ctx context.Context, raw []byte, transition Transition) (bool, error) {
	inv, err := decodeStripeInvoice(raw)
	if err != nil {
		return true, err
	}
	subID := inv.subscriptionID()
	if subID == "" {
		return false, nil
	}

	status := models.SubscriptionStatusActive
	if transition == TransitionPaymentFailed {
		status = models.SubscriptionStatusPastDue
	}

	sub, err := p.reconciler.MarkStatus(ctx, subID, status)
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		return true, err
	}
	if err != nil {
		// The invoice outcome is still real; notify even if the state stays.
		log.Warnf("[Billing] Invoice %s: %v", inv.ID, err)
	}

	outcome := p.dispatcher.Dispatch(ctx, transition, Subject{
		Subscription: sub,
		AmountDue:    inv.AmountDue,
		Currency:     inv.Currency,
	})
	if outcome.Err() != nil {
		return true, fmt.Errorf("invoice %s: %w", inv.ID, outcome.Err())
	}
	return true, nil
}
