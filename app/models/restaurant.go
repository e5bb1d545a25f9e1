package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type Restaurant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   uint      `gorm:"not null;index:idx_restaurants_owner_active,priority:1" json:"owner_id" validate:"required"`
	Name      string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=1,max=150"`
	IsActive  bool      `gorm:"not null;default:true;index:idx_restaurants_owner_active,priority:2" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Restaurant) Validate() error {
	v := validator.New()

	return v.Struct(r)
}
