package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSubscription() *Subscription {
	return &Subscription{
		OwnerID:              7,
		StripeSubscriptionID: "sub_123",
		StripeCustomerID:     "cus_123",
		PlanType:             PlanStarter,
		Status:               SubscriptionStatusTrialing,
		MaxActiveRestaurants: 1,
	}
}

func TestSubscriptionValidate(t *testing.T) {
	require.NoError(t, validSubscription().Validate())

	s := validSubscription()
	s.Status = "paused"
	assert.Error(t, s.Validate())

	s = validSubscription()
	s.PlanType = "gold"
	assert.Error(t, s.Validate())

	s = validSubscription()
	s.MaxActiveRestaurants = 0
	assert.Error(t, s.Validate())

	s = validSubscription()
	s.OwnerID = 0
	assert.Error(t, s.Validate())
}

func TestIsSubscriptionStatus(t *testing.T) {
	for _, status := range []string{"trialing", "active", "past_due", "canceled"} {
		assert.True(t, IsSubscriptionStatus(status), status)
	}
	for _, status := range []string{"", "unpaid", "incomplete", "Active"} {
		assert.False(t, IsSubscriptionStatus(status), status)
	}
}

func TestOwnerDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&Owner{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}).DisplayName())
	assert.Equal(t, "Ada", (&Owner{FirstName: " Ada ", Email: "ada@example.com"}).DisplayName())
	assert.Equal(t, "chef", (&Owner{Email: "chef@bistro.example"}).DisplayName())
}

func TestRestaurantValidate(t *testing.T) {
	assert.NoError(t, (&Restaurant{OwnerID: 1, Name: "Bistro"}).Validate())
	assert.Error(t, (&Restaurant{OwnerID: 1}).Validate())
}
