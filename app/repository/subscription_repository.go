package repository

import (
	"context"
	"time"

	"github.com/tableops/tableops/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// subscriptionMutableColumns are the columns a reconciliation may overwrite.
var subscriptionMutableColumns = []string{
	"stripe_customer_id",
	"plan_type",
	"status",
	"current_period_start",
	"current_period_end",
	"trial_end",
	"max_active_restaurants",
	"updated_at",
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetLatestByStripeCustomerID returns the most recently created subscription of a customer.
func (r *subscriptionRepository) GetLatestByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("stripe_customer_id = ?", stripeCustomerID).
		Order("created_at DESC").Order("id DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}

	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns(subscriptionMutableColumns),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Reload so ID, owner and created_at reflect the stored row after an update.
	return db.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).First(sub).Error
}

func (r *subscriptionRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	tx := r.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", id).Update("status", status)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		// MySQL reports 0 affected rows when the value is unchanged, so tell
		// "missing" apart from "already in that status".
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Subscription{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}

func (r *subscriptionRepository) ListByStatusAndPeriodEnd(ctx context.Context, status string, from, to time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND current_period_end >= ? AND current_period_end <= ?", status, from, to).
		Order("current_period_end ASC").Order("id ASC").
		Find(&subs).Error
	return subs, err
}
