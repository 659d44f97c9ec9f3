package models

import "time"

// Group is a logical grouping of nodes (VPC, service, fleet, environment).
// Node deletion removes the membership row but leaves the group untouched.
type Group struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	GroupType string    `json:"groupType" db:"group_type"`
	Provider  Provider  `json:"provider" db:"provider"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
