package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/tableops/tableops/internal/pkg/billing"
)

// BillingController receives Stripe webhook deliveries.
type BillingController struct {
	webhooks *billing.WebhookProcessor
}

func NewBillingController(webhooks *billing.WebhookProcessor) *BillingController {
	return &BillingController{webhooks: webhooks}
}

// HandleStripeWebhook verifies and applies one Stripe delivery. Anything
// past authentication is acknowledged with 200 so Stripe stops redelivering.
func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	res, err := bc.webhooks.Handle(c.UserContext(), rawBody, signature)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrWebhookSecretMissing):
			log.Error("[Billing] STRIPE_WEBHOOK_SECRET is not configured, rejecting webhook")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_not_configured"})
		case errors.Is(err, billing.ErrMissingSignature):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_signature"})
		case errors.Is(err, billing.ErrInvalidSignature):
			log.Warnf("[Billing] Rejected webhook from %s: %v", c.IP(), err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		default:
			log.Errorf("[Billing] Webhook handling failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_failed"})
		}
	}

	return c.Status(fiber.StatusOK).JSON(res)
}
