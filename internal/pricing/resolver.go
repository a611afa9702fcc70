package pricing

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Priveetee/priceyy/internal/catalog"
)

// DefaultHoursPerMonth is the industry-standard 730-hour month.
const DefaultHoursPerMonth = 730.0

// DiscountModels maps a pricing model to its markdown on the effective
// hourly rate.
var DiscountModels = map[string]float64{
	"on-demand":   0.0,
	"reserved-1y": 0.40,
	"reserved-3y": 0.60,
	"spot":        0.90,
}

// commitmentYears returns the amortization term of a reserved model, 0
// for everything else.
func commitmentYears(pricingModel string) int {
	switch pricingModel {
	case "reserved-1y":
		return 1
	case "reserved-3y":
		return 3
	default:
		return 0
	}
}

// Request asks for the effective price of one resource configuration.
// SessionID is optional. Quantity defaults to 1 and HoursPerMonth to
// 730 when zero.
type Request struct {
	Key           catalog.PriceKey
	SessionID     string
	Quantity      int
	HoursPerMonth float64
}

// Quote is a resolved price. BaseHourlyPrice is what the catalog or
// fallback chain produced before overrides and discounts; HourlyPrice
// is the final effective rate.
type Quote struct {
	Key             catalog.PriceKey `json:"key"`
	PricingID       uuid.UUID        `json:"pricing_id,omitempty"`
	BaseHourlyPrice float64          `json:"base_hourly_price"`
	HourlyPrice     float64          `json:"hourly_price"`
	UpfrontCost     float64          `json:"upfront_cost,omitempty"`
	Currency        string           `json:"currency"`
	IsFallback      bool             `json:"is_fallback"`
	FallbackTier    string           `json:"fallback_tier,omitempty"`
	OverrideApplied bool             `json:"override_applied"`
	MonthlyCost     float64          `json:"monthly_cost"`
	AnnualCost      float64          `json:"annual_cost"`
}

// CatalogReader is the read-side slice of the catalog store the
// resolver needs.
type CatalogReader interface {
	FindPrice(ctx context.Context, key catalog.PriceKey) (*catalog.PriceRecord, error)
	FindSimilarPrice(ctx context.Context, key catalog.PriceKey) (*catalog.PriceRecord, error)
}

// Resolver is the request-time hot path: advisory cache, catalog,
// session overrides, fallback estimation, then discount and
// amortization math. Its only side effect is refreshing the cache.
type Resolver struct {
	catalog   CatalogReader
	cache     PriceCache
	overrides OverrideStore
	log       zerolog.Logger
}

// NewResolver wires a resolver. cache and overrides may be nil, e.g.
// when Redis is absent; resolution then runs catalog-only.
func NewResolver(cat CatalogReader, cache PriceCache, overrides OverrideStore, logger zerolog.Logger) *Resolver {
	return &Resolver{
		catalog:   cat,
		cache:     cache,
		overrides: overrides,
		log:       logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve computes the effective hourly price and monthly/annual costs
// for one configuration. The catalog (or the fallback chain) supplies
// the base price, a session override replaces it, then the pricing
// model discount applies, then reserved upfronts amortize over the
// commitment term.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Quote, error) {
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	if req.HoursPerMonth <= 0 {
		req.HoursPerMonth = DefaultHoursPerMonth
	}

	rec, err := r.catalog.FindPrice(ctx, req.Key)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}

	quote := &Quote{Key: req.Key, Currency: "USD"}
	if rec != nil {
		quote.PricingID = rec.ID
		quote.BaseHourlyPrice = rec.HourlyPrice
		quote.UpfrontCost = rec.UpfrontCost
		if rec.Currency != "" {
			quote.Currency = rec.Currency
		}
	} else {
		price, tier, err := r.fallbackPrice(ctx, req.Key)
		if err != nil {
			return nil, fmt.Errorf("fallback lookup failed: %w", err)
		}
		if price <= 0 {
			return nil, ErrPriceNotFound
		}
		quote.BaseHourlyPrice = price
		quote.IsFallback = true
		quote.FallbackTier = tier
	}

	r.refreshCache(ctx, req.Key, quote.BaseHourlyPrice)

	finalHourly := quote.BaseHourlyPrice
	if req.SessionID != "" && r.overrides != nil && rec != nil {
		if price, ok := r.overrides.Get(ctx, req.SessionID, rec.ID.String()); ok {
			finalHourly = price
			quote.OverrideApplied = true
		}
	}

	finalHourly *= 1 - DiscountModels[req.Key.PricingModel]
	quote.HourlyPrice = finalHourly

	quote.MonthlyCost = monthlyCost(req.Key.PricingModel, finalHourly, quote.UpfrontCost, req.Quantity, req.HoursPerMonth)
	quote.AnnualCost = round2(quote.MonthlyCost * 12)
	return quote, nil
}

// monthlyCost amortizes reserved upfront payments over the commitment
// term; everything else is a plain quantity * rate * hours product.
func monthlyCost(pricingModel string, hourly, upfront float64, quantity int, hoursPerMonth float64) float64 {
	years := commitmentYears(pricingModel)
	if years > 0 && upfront > 0 {
		amortized := upfront / float64(years*12) / float64(quantity)
		return round2(amortized + hourly*hoursPerMonth)
	}
	return round2(float64(quantity) * hourly * hoursPerMonth)
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// refreshCache keeps the advisory cache aligned with the authoritative
// base price. Drift beyond the catalog epsilon is self-healing, not an
// error condition.
func (r *Resolver) refreshCache(ctx context.Context, key catalog.PriceKey, price float64) {
	if r.cache == nil {
		return
	}
	cached, ok := r.cache.Get(ctx, key)
	if ok && math.Abs(cached-price) <= catalog.PriceEpsilon {
		return
	}
	if ok {
		r.log.Debug().
			Float64("cached", cached).
			Float64("catalog", price).
			Msg("cache drift detected, refreshing entry")
	}
	r.cache.Set(ctx, key, price)
}
