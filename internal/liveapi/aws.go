// Package liveapi refreshes individual prices from provider APIs on
// demand, as opposed to the bulk catalog ingestion pipeline.
package liveapi

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Priveetee/priceyy/internal/catalog"
	"github.com/Priveetee/priceyy/internal/retry"
)

// pricingAPIRegion hosts the Pricing API; it is not the region being
// priced.
const pricingAPIRegion = "us-east-1"

// PriceWriter is the catalog write surface a refresh needs.
type PriceWriter interface {
	BulkUpsert(ctx context.Context, updates []catalog.PriceUpdate) (catalog.UpsertStats, error)
}

// AWSClient queries the AWS Pricing API for current on-demand prices
// and writes them through the catalog. All calls run behind a retrier
// with a circuit breaker so a flapping API fails fast.
type AWSClient struct {
	api     *pricing.Client
	writer  PriceWriter
	retrier *retry.Retrier
	log     zerolog.Logger
}

// NewAWSClient builds a live pricing client from the ambient AWS
// credential chain.
func NewAWSClient(ctx context.Context, writer PriceWriter, logger zerolog.Logger) (*AWSClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(pricingAPIRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log := logger.With().Str("component", "aws-live-pricing").Logger()
	breaker := retry.NewBreaker("aws-pricing-api", 5, time.Minute, log)
	return &AWSClient{
		api:     pricing.NewFromConfig(cfg),
		writer:  writer,
		retrier: retry.NewRetrier("aws-pricing-api", 3, time.Second, breaker, log),
		log:     log,
	}, nil
}

// priceListItem is the subset of one PriceList JSON document we read.
type priceListItem struct {
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string            `json:"unit"`
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

func termMatch(field, value string) types.Filter {
	return types.Filter{
		Type:  types.FilterTypeTermMatch,
		Field: aws.String(field),
		Value: aws.String(value),
	}
}

// RefreshEC2Price fetches the current on-demand Linux price for one
// instance type and upserts it. location is the human-readable AWS
// location name (e.g. "US East (N. Virginia)"), region the API region
// code stored in the catalog.
func (c *AWSClient) RefreshEC2Price(ctx context.Context, instanceType, location, region string) (catalog.UpsertStats, error) {
	filters := []types.Filter{
		termMatch("instanceType", instanceType),
		termMatch("location", location),
		termMatch("operatingSystem", "Linux"),
		termMatch("preInstalledSw", "NA"),
		termMatch("tenancy", "Shared"),
		termMatch("capacitystatus", "Used"),
	}
	key := catalog.PriceKey{
		Provider:     "aws",
		ServiceName:  "ec2",
		ResourceType: instanceType,
		Region:       region,
		PricingModel: "on-demand",
	}
	return c.refresh(ctx, "AmazonEC2", filters, key)
}

// RefreshRDSPrice fetches the current on-demand price for one RDS
// PostgreSQL instance class and upserts it.
func (c *AWSClient) RefreshRDSPrice(ctx context.Context, instanceClass, location, region string) (catalog.UpsertStats, error) {
	filters := []types.Filter{
		termMatch("databaseEngine", "PostgreSQL"),
		termMatch("dbInstanceClass", instanceClass),
		termMatch("location", location),
		termMatch("deploymentOption", "Single-AZ"),
	}
	key := catalog.PriceKey{
		Provider:     "aws",
		ServiceName:  "rds",
		ResourceType: instanceClass,
		Region:       region,
		PricingModel: "on-demand",
	}
	return c.refresh(ctx, "AmazonRDS", filters, key)
}

func (c *AWSClient) refresh(ctx context.Context, serviceCode string, filters []types.Filter, key catalog.PriceKey) (catalog.UpsertStats, error) {
	var out *pricing.GetProductsOutput
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = c.api.GetProducts(ctx, &pricing.GetProductsInput{
			ServiceCode: aws.String(serviceCode),
			Filters:     filters,
			MaxResults:  aws.Int32(100),
		})
		return err
	})
	if err != nil {
		return catalog.UpsertStats{}, fmt.Errorf("pricing API query for %s/%s failed: %w", serviceCode, key.ResourceType, err)
	}

	price, ok := extractOnDemandHourly(out.PriceList)
	if !ok {
		c.log.Warn().
			Str("service_code", serviceCode).
			Str("resource_type", key.ResourceType).
			Str("region", key.Region).
			Msg("no usable on-demand price in API response")
		return catalog.UpsertStats{}, nil
	}

	stats, err := c.writer.BulkUpsert(ctx, []catalog.PriceUpdate{{
		Key:         key,
		HourlyPrice: price,
		Currency:    "USD",
		Source:      "aws-live-api",
	}})
	if err != nil {
		return stats, err
	}
	c.log.Info().
		Str("resource_type", key.ResourceType).
		Str("region", key.Region).
		Float64("hourly_price", price).
		Msg("live price refreshed")
	return stats, nil
}

// extractOnDemandHourly walks the PriceList documents and returns the
// first positive hourly USD rate.
func extractOnDemandHourly(priceList []string) (float64, bool) {
	for _, doc := range priceList {
		var item priceListItem
		if err := json.Unmarshal([]byte(doc), &item); err != nil {
			continue
		}
		for _, term := range item.Terms.OnDemand {
			for _, dim := range term.PriceDimensions {
				if dim.Unit != "Hrs" {
					continue
				}
				price, err := strconv.ParseFloat(dim.PricePerUnit["USD"], 64)
				if err != nil || price <= 0 {
					continue
				}
				return price, true
			}
		}
	}
	return 0, false
}
