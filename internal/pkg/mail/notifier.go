package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/template/html/v2"
	"github.com/tableops/tableops/internal/pkg/metrics"
	"github.com/tableops/tableops/internal/pkg/retry"
)

//go:embed templates
var templateFS embed.FS

const emailLayout = "layouts/email"

// Notifier renders and sends the billing lifecycle emails.
type Notifier struct {
	sender  Sender
	views   *html.Engine
	appURL  string
	retry   retry.Config
	metrics *metrics.Billing
}

// NewNotifier loads the embedded templates. appURL prefixes links in the
// emails.
func NewNotifier(sender Sender, appURL string, m *metrics.Billing) (*Notifier, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	views := html.NewFileSystem(http.FS(sub), ".html")
	if err := views.Load(); err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	return &Notifier{
		sender:  sender,
		views:   views,
		appURL:  strings.TrimRight(appURL, "/"),
		retry:   retry.DefaultConfig(),
		metrics: m,
	}, nil
}

// WithRetry overrides the retry policy of outgoing sends.
func (n *Notifier) WithRetry(cfg retry.Config) *Notifier {
	n.retry = cfg
	return n
}

func (n *Notifier) SendSubscriptionConfirmed(ctx context.Context, to, name, planName string) error {
	return n.send(ctx, to, "Your TableOps subscription is confirmed", "subscription_confirmed", fiber.Map{
		"Name":     name,
		"PlanName": planName,
	})
}

func (n *Notifier) SendSubscriptionCancelled(ctx context.Context, to, name string) error {
	return n.send(ctx, to, "Your TableOps subscription has been cancelled", "subscription_cancelled", fiber.Map{
		"Name": name,
	})
}

func (n *Notifier) SendPaymentFailed(ctx context.Context, to, name, amount string) error {
	return n.send(ctx, to, "Action needed: your TableOps payment failed", "payment_failed", fiber.Map{
		"Name":   name,
		"Amount": amount,
	})
}

func (n *Notifier) SendTrialEnding(ctx context.Context, to, name, endDate string) error {
	return n.send(ctx, to, "Your TableOps trial ends on "+endDate, "trial_ending", fiber.Map{
		"Name":    name,
		"EndDate": endDate,
	})
}

func (n *Notifier) SendTrialExpired(ctx context.Context, to, name string) error {
	return n.send(ctx, to, "Your TableOps trial has ended", "trial_expired", fiber.Map{
		"Name": name,
	})
}

func (n *Notifier) send(ctx context.Context, to, subject, view string, data fiber.Map) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("mail: empty recipient")
	}

	data["Subject"] = subject
	data["AppURL"] = n.appURL
	body, err := n.render(view, data)
	if err != nil {
		return err
	}

	cfg := n.retry
	cfg.ShouldRetry = isTransientSendError
	cfg.OnRetry = func(err error, attempt int, delay time.Duration) {
		n.metrics.RecordRetry("mail." + view)
		log.Warnf("[Mail] Sending %s to %s failed (attempt %d), retrying in %s: %v", view, to, attempt, delay, err)
	}
	res := retry.Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.sender.Send(ctx, to, subject, body)
	})
	if !res.OK() {
		return fmt.Errorf("send %s to %s after %d attempts: %w", view, to, res.Attempts, res.Err)
	}
	return nil
}

func (n *Notifier) render(view string, data fiber.Map) (string, error) {
	var buf bytes.Buffer
	if err := n.views.Render(&buf, view, data, emailLayout); err != nil {
		return "", fmt.Errorf("render %s: %w", view, err)
	}
	return buf.String(), nil
}

// isTransientSendError treats SMTP 4xx replies as temporary, as RFC 5321
// defines them.
func isTransientSendError(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 400 && protoErr.Code < 500
	}
	return retry.IsTransient(err)
}
