// Package catalog owns the normalized price table and its history.
package catalog

import (
	"time"

	"github.com/google/uuid"
)

// PriceEpsilon is the smallest price movement worth recording. Anything
// below it is float noise from re-parsing the same source document.
const PriceEpsilon = 0.001

// PriceKey identifies a catalog record. The tuple is unique in the
// pricing table.
type PriceKey struct {
	Provider     string
	ServiceName  string
	ResourceType string
	Region       string
	PricingModel string
}

// PriceRecord is one row of the price catalog.
type PriceRecord struct {
	ID           uuid.UUID
	Provider     string
	ServiceName  string
	ResourceType string
	Region       string
	PricingModel string
	HourlyPrice  float64
	UpfrontCost  float64
	Currency     string
	Source       string
	LastUpdated  time.Time
	CreatedAt    time.Time
}

// Key returns the identity key of the record.
func (r *PriceRecord) Key() PriceKey {
	return PriceKey{
		Provider:     r.Provider,
		ServiceName:  r.ServiceName,
		ResourceType: r.ResourceType,
		Region:       r.Region,
		PricingModel: r.PricingModel,
	}
}

// PriceHistory records one observed price change for a catalog record.
type PriceHistory struct {
	ID             uuid.UUID
	PricingID      uuid.UUID
	OldHourlyPrice float64
	NewHourlyPrice float64
	ChangeReason   string
	ChangedAt      time.Time
}

// PriceUpdate is the write-path input: a key plus the newly observed
// price. Source tags where the observation came from.
type PriceUpdate struct {
	Key         PriceKey
	HourlyPrice float64
	Currency    string
	Source      string
}

// UpsertStats summarizes a bulk upsert run.
type UpsertStats struct {
	Inserted  int
	Updated   int
	Unchanged int
}

// Total returns the number of updates processed.
func (s UpsertStats) Total() int {
	return s.Inserted + s.Updated + s.Unchanged
}

// DataTransferPrice is a per-GB transfer rate between two regions.
// Lifecycle is independent from PriceRecord.
type DataTransferPrice struct {
	ID           uuid.UUID
	Provider     string
	FromRegion   string
	ToRegion     string
	TransferType string
	PricePerGB   float64
	Currency     string
}
