package repository

import (
	"context"
	"strings"

	"github.com/tableops/tableops/app/models"
	"gorm.io/gorm"
)

// ownerRepository implements the OwnerRepository interface
type ownerRepository struct {
	db *gorm.DB
}

// NewOwnerRepository creates a new owner repository instance
func NewOwnerRepository(db *gorm.DB) OwnerRepository {
	return &ownerRepository{db: db}
}

// GetByID retrieves an owner by ID
func (r *ownerRepository) GetByID(ctx context.Context, id uint) (*models.Owner, error) {
	var owner models.Owner
	if err := r.db.WithContext(ctx).First(&owner, id).Error; err != nil {
		return nil, err
	}
	return &owner, nil
}

// GetByEmail retrieves an owner by email address, case-insensitively
func (r *ownerRepository) GetByEmail(ctx context.Context, email string) (*models.Owner, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var owner models.Owner
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", trimmed).First(&owner).Error
	if err != nil {
		return nil, err
	}
	return &owner, nil
}
