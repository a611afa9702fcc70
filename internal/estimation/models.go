// Package estimation manages saved cost estimations: calculation,
// persistence, versioning and export.
package estimation

import (
	"time"

	"github.com/google/uuid"
)

// Estimation is a saved set of priced service configurations.
type Estimation struct {
	ID               uuid.UUID      `json:"id"`
	UserID           string         `json:"user_id,omitempty"`
	Provider         string         `json:"provider"`
	Name             string         `json:"name"`
	Status           string         `json:"status"`
	TotalMonthlyCost float64        `json:"total_monthly_cost"`
	TotalAnnualCost  float64        `json:"total_annual_cost"`
	Data             map[string]any `json:"data,omitempty"`
	Notes            string         `json:"notes,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Services         []Service      `json:"services,omitempty"`
}

// Service is one priced line item of an estimation.
type Service struct {
	ID           uuid.UUID      `json:"id"`
	EstimationID uuid.UUID      `json:"estimation_id"`
	ServiceName  string         `json:"service_name"`
	Region       string         `json:"region"`
	Quantity     int            `json:"quantity"`
	MonthlyCost  float64        `json:"monthly_cost"`
	AnnualCost   float64        `json:"annual_cost"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Version is an append-only snapshot of an estimation taken before a
// priced mutation. Version numbers increase monotonically per
// estimation.
type Version struct {
	ID                 uuid.UUID      `json:"id"`
	EstimationID       uuid.UUID      `json:"estimation_id"`
	VersionNumber      int            `json:"version_number"`
	ChangesDescription string         `json:"changes_description,omitempty"`
	Snapshot           map[string]any `json:"snapshot"`
	CreatedAt          time.Time      `json:"created_at"`
}

// ServiceConfig is one line of a calculation request.
type ServiceConfig struct {
	Service       string  `json:"service"`
	ResourceType  string  `json:"resource_type"`
	Region        string  `json:"region"`
	PricingModel  string  `json:"pricing_model"`
	Quantity      int     `json:"quantity"`
	HoursPerMonth float64 `json:"hours_per_month"`
}

// CalculationRequest prices a set of configurations without saving
// anything.
type CalculationRequest struct {
	Provider  string          `json:"provider"`
	SessionID string          `json:"session_id,omitempty"`
	Services  []ServiceConfig `json:"services"`
}

// ServiceCost is the priced breakdown of one configuration line.
type ServiceCost struct {
	Service          string  `json:"service"`
	ResourceType     string  `json:"resource_type"`
	Region           string  `json:"region"`
	PricingModel     string  `json:"pricing_model"`
	Quantity         int     `json:"quantity"`
	BaseHourlyPrice  float64 `json:"base_hourly_price"`
	FinalHourlyPrice float64 `json:"final_hourly_price"`
	MonthlyCost      float64 `json:"monthly_cost"`
	AnnualCost       float64 `json:"annual_cost"`
	IsFallback       bool    `json:"is_fallback"`
	FallbackTier     string  `json:"fallback_tier,omitempty"`
	OverrideApplied  bool    `json:"override_applied"`
}

// CalculationResponse is the totalled result of a calculation.
type CalculationResponse struct {
	TotalMonthlyCost  float64       `json:"total_monthly_cost"`
	TotalAnnualCost   float64       `json:"total_annual_cost"`
	ServicesBreakdown []ServiceCost `json:"services_breakdown"`
}
