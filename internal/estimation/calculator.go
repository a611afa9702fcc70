package estimation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Priveetee/priceyy/internal/catalog"
	"github.com/Priveetee/priceyy/internal/pricing"
)

// PriceResolver resolves one configuration into a quote.
type PriceResolver interface {
	Resolve(ctx context.Context, req pricing.Request) (*pricing.Quote, error)
}

// Calculator prices whole estimations by walking each service config
// through the resolver.
type Calculator struct {
	resolver PriceResolver
	log      zerolog.Logger
}

func NewCalculator(resolver PriceResolver, logger zerolog.Logger) *Calculator {
	return &Calculator{
		resolver: resolver,
		log:      logger.With().Str("component", "calculator").Logger(),
	}
}

// Calculate prices every service line and totals the result. A single
// unresolvable line fails the whole calculation; partial totals would
// be silently wrong.
func (c *Calculator) Calculate(ctx context.Context, req CalculationRequest) (*CalculationResponse, error) {
	if len(req.Services) == 0 {
		return nil, fmt.Errorf("calculation request has no services")
	}

	resp := &CalculationResponse{
		ServicesBreakdown: make([]ServiceCost, 0, len(req.Services)),
	}
	var totalMonthly, totalAnnual float64

	for i, svc := range req.Services {
		quote, err := c.resolver.Resolve(ctx, pricing.Request{
			Key: catalog.PriceKey{
				Provider:     req.Provider,
				ServiceName:  svc.Service,
				ResourceType: svc.ResourceType,
				Region:       svc.Region,
				PricingModel: svc.PricingModel,
			},
			SessionID:     req.SessionID,
			Quantity:      svc.Quantity,
			HoursPerMonth: svc.HoursPerMonth,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to price service %d (%s/%s): %w", i, svc.Service, svc.ResourceType, err)
		}

		quantity := svc.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		resp.ServicesBreakdown = append(resp.ServicesBreakdown, ServiceCost{
			Service:          svc.Service,
			ResourceType:     svc.ResourceType,
			Region:           svc.Region,
			PricingModel:     svc.PricingModel,
			Quantity:         quantity,
			BaseHourlyPrice:  quote.BaseHourlyPrice,
			FinalHourlyPrice: quote.HourlyPrice,
			MonthlyCost:      quote.MonthlyCost,
			AnnualCost:       quote.AnnualCost,
			IsFallback:       quote.IsFallback,
			FallbackTier:     quote.FallbackTier,
			OverrideApplied:  quote.OverrideApplied,
		})
		totalMonthly += quote.MonthlyCost
		totalAnnual += quote.AnnualCost
	}

	resp.TotalMonthlyCost = decimal.NewFromFloat(totalMonthly).Round(2).InexactFloat64()
	resp.TotalAnnualCost = decimal.NewFromFloat(totalAnnual).Round(2).InexactFloat64()

	c.log.Info().
		Str("provider", req.Provider).
		Int("services", len(req.Services)).
		Float64("total_monthly", resp.TotalMonthlyCost).
		Msg("estimation calculated")
	return resp, nil
}
