package estimation

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Priveetee/priceyy/internal/catalog"
	"github.com/Priveetee/priceyy/internal/pricing"
)

type fakeResolver struct {
	quotes map[catalog.PriceKey]*pricing.Quote
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, req pricing.Request) (*pricing.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	q, ok := f.quotes[req.Key]
	if !ok {
		return nil, pricing.ErrPriceNotFound
	}
	return q, nil
}

func TestCalculateTotals(t *testing.T) {
	webKey := catalog.PriceKey{Provider: "aws", ServiceName: "ec2", ResourceType: "t3.micro",
		Region: "us-east-1", PricingModel: "on-demand"}
	dbKey := catalog.PriceKey{Provider: "aws", ServiceName: "rds", ResourceType: "db.t3.small",
		Region: "us-east-1", PricingModel: "reserved-1y"}

	resolver := &fakeResolver{quotes: map[catalog.PriceKey]*pricing.Quote{
		webKey: {Key: webKey, BaseHourlyPrice: 0.0104, HourlyPrice: 0.0104, MonthlyCost: 15.18, AnnualCost: 182.16},
		dbKey:  {Key: dbKey, BaseHourlyPrice: 0.034, HourlyPrice: 0.0204, MonthlyCost: 14.89, AnnualCost: 178.68, OverrideApplied: true},
	}}
	c := NewCalculator(resolver, zerolog.Nop())

	resp, err := c.Calculate(context.Background(), CalculationRequest{
		Provider: "aws",
		Services: []ServiceConfig{
			{Service: "ec2", ResourceType: "t3.micro", Region: "us-east-1", PricingModel: "on-demand", Quantity: 2},
			{Service: "rds", ResourceType: "db.t3.small", Region: "us-east-1", PricingModel: "reserved-1y"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.ServicesBreakdown, 2)
	require.InDelta(t, 30.07, resp.TotalMonthlyCost, 1e-9)
	require.InDelta(t, 360.84, resp.TotalAnnualCost, 1e-9)

	web := resp.ServicesBreakdown[0]
	require.Equal(t, 2, web.Quantity)
	require.InDelta(t, 0.0104, web.FinalHourlyPrice, 1e-9)

	db := resp.ServicesBreakdown[1]
	require.Equal(t, 1, db.Quantity)
	require.True(t, db.OverrideApplied)
}

func TestCalculateEmptyRequest(t *testing.T) {
	c := NewCalculator(&fakeResolver{}, zerolog.Nop())
	_, err := c.Calculate(context.Background(), CalculationRequest{Provider: "aws"})
	require.Error(t, err)
}

func TestCalculateFailsWhenAnyLineFails(t *testing.T) {
	c := NewCalculator(&fakeResolver{}, zerolog.Nop())
	_, err := c.Calculate(context.Background(), CalculationRequest{
		Provider: "aws",
		Services: []ServiceConfig{
			{Service: "ec2", ResourceType: "unknown", Region: "us-east-1", PricingModel: "on-demand"},
		},
	})
	require.ErrorIs(t, err, pricing.ErrPriceNotFound)
}

func TestCalculatePropagatesFallbackFlag(t *testing.T) {
	k := catalog.PriceKey{Provider: "aws", ServiceName: "ec2", ResourceType: "t4g.nano",
		Region: "sa-east-1", PricingModel: "on-demand"}
	resolver := &fakeResolver{quotes: map[catalog.PriceKey]*pricing.Quote{
		k: {Key: k, BaseHourlyPrice: 0.12, HourlyPrice: 0.12, MonthlyCost: 87.6, AnnualCost: 1051.2,
			IsFallback: true, FallbackTier: "cross-region"},
	}}
	c := NewCalculator(resolver, zerolog.Nop())

	resp, err := c.Calculate(context.Background(), CalculationRequest{
		Provider: "aws",
		Services: []ServiceConfig{{Service: "ec2", ResourceType: "t4g.nano", Region: "sa-east-1", PricingModel: "on-demand"}},
	})
	require.NoError(t, err)
	require.True(t, resp.ServicesBreakdown[0].IsFallback)
	require.Equal(t, "cross-region", resp.ServicesBreakdown[0].FallbackTier)
}

func TestWriteCSV(t *testing.T) {
	est := &Estimation{
		ID:               uuid.New(),
		Name:             "prod stack",
		Provider:         "aws",
		TotalMonthlyCost: 30.07,
		TotalAnnualCost:  360.84,
		Services: []Service{
			{ServiceName: "ec2", Region: "us-east-1", Quantity: 2, MonthlyCost: 15.18, AnnualCost: 182.16,
				Parameters: map[string]any{"resource_type": "t3.micro"}},
			{ServiceName: "rds", Region: "us-east-1", Quantity: 1, MonthlyCost: 14.89, AnnualCost: 178.68},
		},
	}

	var sb strings.Builder
	require.NoError(t, WriteCSV(&sb, est))
	out := sb.String()

	require.Contains(t, out, "ESTIMATION,prod stack")
	require.Contains(t, out, "Total Monthly,$30.07")
	require.Contains(t, out, "ec2,t3.micro,us-east-1,2,$15.18,$182.16")
	// Missing resource_type parameter renders as an empty column.
	require.Contains(t, out, "rds,,us-east-1,1,$14.89,$178.68")
}
