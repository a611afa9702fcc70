package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// GCP publishes a SKU catalog per service through the Cloud Billing
// API. The downloader walks every public service and its SKU pages into
// one cache file; the parser then picks, per SKU and region, the base
// on-demand rate: the first tier starting at zero usage with a positive
// price. Unit prices arrive in nano-units.

const gcpBillingBaseURL = "https://cloudbilling.googleapis.com/v1"

type gcpRate struct {
	StartUsageAmount float64 `json:"start_usage_amount"`
	Nanos            int64   `json:"nanos"`
	CurrencyCode     string  `json:"currency_code"`
}

type gcpSKU struct {
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	ServiceDisplayName string    `json:"service_display_name"`
	Regions            []string  `json:"regions"`
	PricingExpression  []gcpRate `json:"pricing_expression"`
}

// Wire types for the Cloud Billing REST API.
type gcpServiceList struct {
	Services []struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"services"`
	NextPageToken string `json:"nextPageToken"`
}

type gcpSKUList struct {
	SKUs []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		GeoTaxonomy struct {
			Regions []string `json:"regions"`
		} `json:"geoTaxonomy"`
		PricingInfo []struct {
			PricingExpression struct {
				TieredRates []struct {
					StartUsageAmount float64 `json:"startUsageAmount"`
					UnitPrice        struct {
						Nanos        int64  `json:"nanos"`
						CurrencyCode string `json:"currencyCode"`
					} `json:"unitPrice"`
				} `json:"tieredRates"`
			} `json:"pricingExpression"`
		} `json:"pricingInfo"`
	} `json:"skus"`
	NextPageToken string `json:"nextPageToken"`
}

// DownloadGCPCatalog fetches every service's SKUs and writes them to
// cachePath (temp file + rename). Requires an API key.
func DownloadGCPCatalog(ctx context.Context, client *http.Client, apiKey, cachePath string, logger zerolog.Logger) error {
	return downloadGCPCatalog(ctx, client, gcpBillingBaseURL, apiKey, cachePath, logger)
}

func downloadGCPCatalog(ctx context.Context, client *http.Client, baseURL, apiKey, cachePath string, logger zerolog.Logger) error {
	services, err := listGCPServices(ctx, client, baseURL, apiKey)
	if err != nil {
		return fmt.Errorf("failed to list gcp services: %w", err)
	}
	logger.Info().Int("services", len(services)).Msg("fetching gcp skus")

	tmpPath := cachePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	if _, err := f.WriteString(`{"skus":[`); err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	first := true
	total := 0

	for _, svc := range services {
		skus, err := listGCPSKUs(ctx, client, baseURL, apiKey, svc.name)
		if err != nil {
			return fmt.Errorf("failed to list skus for %s: %w", svc.displayName, err)
		}
		for i := range skus {
			skus[i].ServiceDisplayName = svc.displayName
			if !first {
				if _, err := f.WriteString(","); err != nil {
					return err
				}
			}
			first = false
			if err := enc.Encode(skus[i]); err != nil {
				return fmt.Errorf("failed to write sku: %w", err)
			}
			total++
		}
	}

	if _, err := f.WriteString(`]}`); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, cachePath); err != nil {
		return fmt.Errorf("failed to finalize cache file: %w", err)
	}
	logger.Info().Int("skus", total).Msg("gcp catalog downloaded")
	return nil
}

type gcpService struct {
	name        string
	displayName string
}

func listGCPServices(ctx context.Context, client *http.Client, baseURL, apiKey string) ([]gcpService, error) {
	var services []gcpService
	pageToken := ""
	for {
		u := fmt.Sprintf("%s/services?key=%s", baseURL, url.QueryEscape(apiKey))
		if pageToken != "" {
			u += "&pageToken=" + url.QueryEscape(pageToken)
		}
		var page gcpServiceList
		if err := getJSON(ctx, client, u, &page); err != nil {
			return nil, err
		}
		for _, s := range page.Services {
			services = append(services, gcpService{name: s.Name, displayName: s.DisplayName})
		}
		if page.NextPageToken == "" {
			return services, nil
		}
		pageToken = page.NextPageToken
	}
}

func listGCPSKUs(ctx context.Context, client *http.Client, baseURL, apiKey, serviceName string) ([]gcpSKU, error) {
	var skus []gcpSKU
	pageToken := ""
	for {
		u := fmt.Sprintf("%s/%s/skus?key=%s", baseURL, serviceName, url.QueryEscape(apiKey))
		if pageToken != "" {
			u += "&pageToken=" + url.QueryEscape(pageToken)
		}
		var page gcpSKUList
		if err := getJSON(ctx, client, u, &page); err != nil {
			return nil, err
		}
		for _, s := range page.SKUs {
			sku := gcpSKU{
				Name:        s.Name,
				Description: s.Description,
				Regions:     s.GeoTaxonomy.Regions,
			}
			if len(s.PricingInfo) > 0 {
				for _, rate := range s.PricingInfo[0].PricingExpression.TieredRates {
					sku.PricingExpression = append(sku.PricingExpression, gcpRate{
						StartUsageAmount: rate.StartUsageAmount,
						Nanos:            rate.UnitPrice.Nanos,
						CurrencyCode:     rate.UnitPrice.CurrencyCode,
					})
				}
			}
			skus = append(skus, sku)
		}
		if page.NextPageToken == "" {
			return skus, nil
		}
		pageToken = page.NextPageToken
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ParseGCPCatalog streams the cached SKU list and emits one tuple per
// (SKU, region) using the base on-demand tier.
func ParseGCPCatalog(path string, emit EmitFunc, logger zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open gcp cache: %w", err)
	}
	defer f.Close()
	return StreamGCPSKUs(f, emit, logger)
}

// StreamGCPSKUs walks the skus array. For each SKU and each region, the
// first tiered rate with start_usage_amount == 0 and a positive price is
// the base on-demand rate; later tiers are volume discounts.
func StreamGCPSKUs(r io.Reader, emit EmitFunc, logger zerolog.Logger) error {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		if key != "skus" {
			if err := skipValue(dec); err != nil {
				return err
			}
			continue
		}

		if err := expectDelim(dec, '['); err != nil {
			return err
		}
		for dec.More() {
			var sku gcpSKU
			if err := dec.Decode(&sku); err != nil {
				return fmt.Errorf("failed to decode gcp sku: %w", err)
			}
			emitGCPSKU(sku, emit)
		}
		return expectDelim(dec, ']')
	}
	return nil
}

func emitGCPSKU(sku gcpSKU, emit EmitFunc) {
	for _, region := range sku.Regions {
		for _, rate := range sku.PricingExpression {
			if rate.StartUsageAmount != 0 || rate.Nanos <= 0 {
				continue
			}
			price := decimal.New(rate.Nanos, -9).InexactFloat64()
			emit(PriceTuple{
				Provider:     "gcp",
				Service:      sku.ServiceDisplayName,
				ResourceType: sku.Description,
				Region:       region,
				PricingModel: "on-demand",
				HourlyPrice:  price,
				Currency:     rate.CurrencyCode,
			})
			break
		}
	}
}
