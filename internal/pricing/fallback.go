package pricing

import (
	"context"

	"github.com/Priveetee/priceyy/internal/catalog"
)

// Fallback tiers, in the order they are tried. Every fallback hit is a
// data-quality gap, so each tier logs distinctly.
const (
	FallbackTierCrossRegion    = "cross-region"
	FallbackTierServiceDefault = "service-default"
	FallbackTierGlobalDefault  = "global-default"
)

// crossRegionBuffer is the conservative markup applied when estimating
// from another region's price.
const crossRegionBuffer = 1.20

// globalDefaultPrice is the last-resort hourly price.
const globalDefaultPrice = 1.0

type serviceDefaultKey struct {
	provider     string
	serviceName  string
	pricingModel string
}

// serviceDefaultPrices are hard-coded per-service-class hourly rates
// used when not even a cross-region estimate exists.
var serviceDefaultPrices = map[serviceDefaultKey]float64{
	{"aws", "EC2", "on-demand"}:                0.15,
	{"aws", "EC2", "reserved-3y"}:              0.06,
	{"aws", "RDS", "on-demand"}:                0.25,
	{"azure", "VirtualMachines", "on-demand"}:  0.50,
	{"gcp", "Compute Engine", "on-demand"}:     0.20,
}

// fallbackPrice estimates a price when the catalog has no exact match:
// a same-service different-region record with a 20% buffer, then the
// service-class default table, then the global default.
func (r *Resolver) fallbackPrice(ctx context.Context, key catalog.PriceKey) (float64, string, error) {
	similar, err := r.catalog.FindSimilarPrice(ctx, key)
	if err != nil {
		return 0, "", err
	}
	if similar != nil {
		price := similar.HourlyPrice * crossRegionBuffer
		r.log.Info().
			Str("provider", key.Provider).
			Str("resource_type", key.ResourceType).
			Str("wanted_region", key.Region).
			Str("used_region", similar.Region).
			Float64("price", price).
			Msg("fallback: cross-region estimate with 20% buffer")
		return price, FallbackTierCrossRegion, nil
	}

	if price, ok := serviceDefaultPrices[serviceDefaultKey{key.Provider, key.ServiceName, key.PricingModel}]; ok {
		r.log.Warn().
			Str("provider", key.Provider).
			Str("service", key.ServiceName).
			Float64("price", price).
			Msg("fallback: service-class default price")
		return price, FallbackTierServiceDefault, nil
	}

	r.log.Warn().
		Str("provider", key.Provider).
		Str("service", key.ServiceName).
		Str("resource_type", key.ResourceType).
		Float64("price", globalDefaultPrice).
		Msg("fallback: global default price")
	return globalDefaultPrice, FallbackTierGlobalDefault, nil
}
