package billing

import "testing"

func TestNormalizePlan(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "starter", want: "starter"},
		{in: "professional", want: "professional"},
		{in: "PRO", want: "professional"},
		{in: " Enterprise ", want: "enterprise"},
		{in: "", want: "starter"},
		{in: "gold", want: "starter"},
	}

	for _, tt := range tests {
		if got := normalizePlan(tt.in); got != tt.want {
			t.Fatalf("normalizePlan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanFromMetadata(t *testing.T) {
	if got := planFromMetadata(nil, nil); got != "starter" {
		t.Fatalf("expected baseline plan, got %q", got)
	}
	if got := planFromMetadata(map[string]string{"plan": "enterprise"}); got != "enterprise" {
		t.Fatalf("expected plan key to be read, got %q", got)
	}
	got := planFromMetadata(map[string]string{"plan_type": "professional"}, map[string]string{"plan_type": "enterprise"})
	if got != "professional" {
		t.Fatalf("expected subscription metadata to win, got %q", got)
	}
	if got := planFromMetadata(map[string]string{}, map[string]string{"plan_type": "enterprise"}); got != "enterprise" {
		t.Fatalf("expected price metadata fallback, got %q", got)
	}
}

func TestMaxActiveRestaurants(t *testing.T) {
	tests := []struct {
		name     string
		quantity int64
		meta     map[string]string
		want     int
	}{
		{name: "nothing set", want: 1},
		{name: "quantity", quantity: 3, want: 3},
		{name: "metadata wins over quantity", quantity: 3, meta: map[string]string{"max_active_restaurants": "10"}, want: 10},
		{name: "legacy key", meta: map[string]string{"max_restaurants": "4"}, want: 4},
		{name: "unparseable falls back", quantity: 2, meta: map[string]string{"max_active_restaurants": "lots"}, want: 2},
		{name: "zero falls back", meta: map[string]string{"max_active_restaurants": "0"}, want: 1},
		{name: "negative quantity", quantity: -5, want: 1},
	}

	for _, tt := range tests {
		if got := maxActiveRestaurants(tt.quantity, tt.meta); got != tt.want {
			t.Fatalf("%s: maxActiveRestaurants = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestPlanDisplayName(t *testing.T) {
	if got := PlanDisplayName("professional"); got != "Professional" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := PlanDisplayName("unknown"); got != "Starter" {
		t.Fatalf("unexpected fallback display name %q", got)
	}
}
