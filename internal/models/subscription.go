package models

import (
	"time"
)

// SubscriptionStatus is the lifecycle state of a company subscription.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
	SubscriptionExpired  SubscriptionStatus = "EXPIRED"
)

// Subscription binds an organization to a plan. An organization holds at most one ACTIVE subscription.
type Subscription struct {
	ID             string             `json:"id"`
	OrganizationID string             `json:"organizationId"`
	PlanID         string             `json:"planId"`
	ActiveSeats    int                `json:"activeSeats"`
	Status         SubscriptionStatus `json:"status"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
	Organization   *Organization      `json:"organization,omitempty"`
	Plan           *Plan              `json:"plan,omitempty"`
}
