package models

import (
	"time"
)

// Plan is a per-seat subscription plan.
type Plan struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PricePerSeat float64   `json:"pricePerSeat"`
	Features     []string  `json:"features"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PlanSummary is a plan with the number of organizations actively subscribed to it.
type PlanSummary struct {
	Plan
	ActiveSubscribers int `json:"activeSubscribers"`
}

// PlanPatch carries the optional fields of a partial plan update.
type PlanPatch struct {
	Name         *string
	PricePerSeat *float64
	Features     []string
}
