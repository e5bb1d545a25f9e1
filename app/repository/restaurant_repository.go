package repository

import (
	"context"

	"github.com/tableops/tableops/app/models"
	"gorm.io/gorm"
)

// restaurantRepository implements the RestaurantRepository interface
type restaurantRepository struct {
	db *gorm.DB
}

// NewRestaurantRepository creates a new restaurant repository instance
func NewRestaurantRepository(db *gorm.DB) RestaurantRepository {
	return &restaurantRepository{db: db}
}

func (r *restaurantRepository) CountActiveByOwner(ctx context.Context, ownerID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Restaurant{}).
		Where("owner_id = ? AND is_active = ?", ownerID, true).
		Count(&count).Error
	return count, err
}

// DeactivateAllByOwner flips every active restaurant of the owner in a single UPDATE.
func (r *restaurantRepository) DeactivateAllByOwner(ctx context.Context, ownerID uint) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Restaurant{}).
		Where("owner_id = ? AND is_active = ?", ownerID, true).
		Update("is_active", false)
	return tx.RowsAffected, tx.Error
}

func (r *restaurantRepository) DeactivateExcess(ctx context.Context, ownerID uint, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	db := r.db.WithContext(ctx)
	// MySQL rejects LIMIT inside an IN subquery, so collect the ids first.
	var excess []uint
	err := db.Model(&models.Restaurant{}).
		Where("owner_id = ? AND is_active = ?", ownerID, true).
		Order("created_at ASC").Order("id ASC").
		Offset(keep).Limit(1<<31-1).
		Pluck("id", &excess).Error
	if err != nil {
		return 0, err
	}
	if len(excess) == 0 {
		return 0, nil
	}

	tx := db.Model(&models.Restaurant{}).Where("id IN ?", excess).Update("is_active", false)
	return tx.RowsAffected, tx.Error
}
