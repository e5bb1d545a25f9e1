package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

const (
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// Subscription is the local mirror of one Stripe subscription. Rows are never
// hard-deleted; a canceled subscription stays as history.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	OwnerID              uint       `gorm:"not null;index" json:"owner_id" validate:"required"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_stripe_subscription_id" json:"stripe_subscription_id" validate:"required,max=191"`
	StripeCustomerID     string     `gorm:"type:varchar(191);not null;index" json:"stripe_customer_id" validate:"required,max=191"`
	PlanType             string     `gorm:"type:varchar(32);not null;default:'starter'" json:"plan_type" validate:"oneof=starter professional enterprise"`
	Status               string     `gorm:"type:varchar(32);not null;index:idx_subscriptions_status_period_end,priority:1" json:"status" validate:"oneof=trialing active past_due canceled"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null;index:idx_subscriptions_status_period_end,priority:2" json:"current_period_end,omitempty"`
	TrialEnd             *time.Time `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	MaxActiveRestaurants int        `gorm:"not null;default:1" json:"max_active_restaurants" validate:"min=1"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// IsSubscriptionStatus reports whether status belongs to the closed set.
func IsSubscriptionStatus(status string) bool {
	switch status {
	case SubscriptionStatusTrialing, SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCanceled:
		return true
	default:
		return false
	}
}
