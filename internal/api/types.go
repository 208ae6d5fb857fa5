package api

import "time"

// Child is a child record as returned by the posyandu API.
type Child struct {
	ID              int64     `json:"id" db:"id"`
	ParentID        int64     `json:"parent_id" db:"parent_id"`
	Name            string    `json:"name" db:"name"`
	Gender          string    `json:"gender" db:"gender"`         // "L" or "P"
	BirthDate       string    `json:"birth_date" db:"birth_date"` // YYYY-MM-DD
	WeightKg        float64   `json:"weight_kg" db:"weight_kg"`
	HeightCm        float64   `json:"height_cm" db:"height_cm"`
	NutritionStatus string    `json:"nutritional_status" db:"nutrition_status"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// ChildInput is the body of create and update requests. Nil fields are
// left unchanged by an update.
type ChildInput struct {
	ParentID        *int64   `json:"parent_id,omitempty"`
	Name            *string  `json:"name,omitempty"`
	Gender          *string  `json:"gender,omitempty"`
	BirthDate       *string  `json:"birth_date,omitempty"`
	WeightKg        *float64 `json:"weight_kg,omitempty"`
	HeightCm        *float64 `json:"height_cm,omitempty"`
	NutritionStatus *string  `json:"nutritional_status,omitempty"`
	IsActive        *bool    `json:"is_active,omitempty"`
}

// DashboardSummary aggregates the children visible to a user.
type DashboardSummary struct {
	TotalChildren  int            `json:"total_children"`
	ActiveChildren int            `json:"active_children"`
	PriorityCount  int            `json:"priority_count"`
	ByStatus       map[string]int `json:"by_status"`
}

// User is the authenticated account.
type User struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
	Role  string `json:"role" db:"role"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Envelope is the wrapper every successful response body uses.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// ErrorBody is the body of a non-2xx response.
type ErrorBody struct {
	Message string `json:"message"`
}
