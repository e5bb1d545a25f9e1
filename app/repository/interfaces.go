package repository

import (
	"context"
	"time"

	"github.com/tableops/tableops/app/models"
	"gorm.io/gorm"
)

// SubscriptionRepository defines the interface for subscription persistence
type SubscriptionRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Subscription, error)
	GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	GetLatestByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*models.Subscription, error)
	// Upsert inserts sub or, when the Stripe subscription id already exists,
	// updates its mutable columns. The owner of an existing row is never changed.
	Upsert(ctx context.Context, sub *models.Subscription) error
	UpdateStatus(ctx context.Context, id uint, status string) error
	// ListByStatusAndPeriodEnd returns rows whose current_period_end lies in
	// [from, to], both bounds inclusive.
	ListByStatusAndPeriodEnd(ctx context.Context, status string, from, to time.Time) ([]models.Subscription, error)
}

// RestaurantRepository defines the bulk operations the billing core performs on restaurants
type RestaurantRepository interface {
	CountActiveByOwner(ctx context.Context, ownerID uint) (int64, error)
	DeactivateAllByOwner(ctx context.Context, ownerID uint) (int64, error)
	// DeactivateExcess keeps the keep oldest active restaurants and deactivates the rest.
	DeactivateExcess(ctx context.Context, ownerID uint, keep int) (int64, error)
}

// OwnerRepository defines read access to owners
type OwnerRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Owner, error)
	GetByEmail(ctx context.Context, email string) (*models.Owner, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Subscription SubscriptionRepository
	Restaurant   RestaurantRepository
	Owner        OwnerRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Subscription: NewSubscriptionRepository(db),
		Restaurant:   NewRestaurantRepository(db),
		Owner:        NewOwnerRepository(db),
	}
}
