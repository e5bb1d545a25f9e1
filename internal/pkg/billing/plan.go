package billing

import (
	"strconv"
	"strings"

	"github.com/tableops/tableops/app/models"
)

// Metadata keys read from Stripe subscriptions and prices.
const (
	metaPlanType             = "plan_type"
	metaPlan                 = "plan"
	metaMaxActiveRestaurants = "max_active_restaurants"
	metaMaxRestaurants       = "max_restaurants"
)

func normalizePlan(plan string) string {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case models.PlanProfessional, "pro":
		return models.PlanProfessional
	case models.PlanEnterprise:
		return models.PlanEnterprise
	default:
		return models.PlanStarter
	}
}

// PlanDisplayName is the plan name used in customer-facing emails.
func PlanDisplayName(plan string) string {
	switch normalizePlan(plan) {
	case models.PlanProfessional:
		return "Professional"
	case models.PlanEnterprise:
		return "Enterprise"
	default:
		return "Starter"
	}
}

// planFromMetadata looks at the subscription metadata first and then at the
// price metadata of the first item.
func planFromMetadata(sources ...map[string]string) string {
	for _, meta := range sources {
		for _, key := range []string{metaPlanType, metaPlan} {
			if v := strings.TrimSpace(meta[key]); v != "" {
				return normalizePlan(v)
			}
		}
	}
	return models.PlanStarter
}

// maxActiveRestaurants derives restaurant capacity: an explicit positive
// metadata value wins, then the purchased quantity, then 1.
func maxActiveRestaurants(quantity int64, sources ...map[string]string) int {
	for _, meta := range sources {
		for _, key := range []string{metaMaxActiveRestaurants, metaMaxRestaurants} {
			raw := strings.TrimSpace(meta[key])
			if raw == "" {
				continue
			}
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				return n
			}
		}
	}
	if quantity > 0 {
		return int(quantity)
	}
	return 1
}
