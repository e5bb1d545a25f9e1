package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Owner is the account holder billed for a subscription. This service only
// reads owners; signup and profile editing live elsewhere.
type Owner struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	FirstName string    `gorm:"type:varchar(100)" json:"first_name" validate:"max=100"`
	LastName  string    `gorm:"type:varchar(100)" json:"last_name" validate:"max=100"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *Owner) Validate() error {
	v := validator.New()

	return v.Struct(o)
}

// DisplayName returns "First Last", or the local part of the email when no
// name is on file.
func (o *Owner) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(o.FirstName) + " " + strings.TrimSpace(o.LastName))
	if name != "" {
		return name
	}
	local, _, _ := strings.Cut(o.Email, "@")
	return local
}
