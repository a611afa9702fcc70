package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Priveetee/priceyy/internal/retry"
)

// Azure has no bulk file; the retail-prices API is paginated. The pager
// follows NextPageLink until exhausted and persists items to a local
// cache file so the (large) import can be re-streamed without
// re-downloading. The cache is written through a temp file and renamed
// on success, so a truncated download is never mistaken for a catalog.

type azureItem struct {
	MeterName       string  `json:"meterName"`
	ARMRegionName   string  `json:"armRegionName"`
	ServiceName     string  `json:"serviceName"`
	RetailPrice     float64 `json:"retailPrice"`
	UnitOfMeasure   string  `json:"unitOfMeasure"`
	CurrencyCode    string  `json:"currencyCode"`
	ReservationTerm string  `json:"reservationTerm"`
}

type azurePage struct {
	Items        []azureItem `json:"Items"`
	NextPageLink string      `json:"NextPageLink"`
}

const azurePageRetries = 3

// DownloadAzureCatalog pages through the retail-prices API starting at
// baseURL and writes every item into cachePath. Individual page fetches
// get a few retries; a page that still fails aborts the download and
// leaves no cache file behind.
func DownloadAzureCatalog(ctx context.Context, client *http.Client, baseURL, cachePath string, logger zerolog.Logger) error {
	tmpPath := cachePath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	if _, err := f.WriteString(`{"Items":[`); err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	pager := retry.NewRetrier("azure-retail-api", azurePageRetries, 5*time.Second, nil, logger)
	nextURL := baseURL
	pages, items := 0, 0
	first := true

	for nextURL != "" {
		page, err := fetchAzurePage(ctx, client, pager, nextURL)
		if err != nil {
			return fmt.Errorf("failed to fetch page %d: %w", pages+1, err)
		}
		for _, item := range page.Items {
			if !first {
				if _, err := f.WriteString(","); err != nil {
					return err
				}
			}
			first = false
			if err := enc.Encode(item); err != nil {
				return fmt.Errorf("failed to write cache item: %w", err)
			}
			items++
		}
		nextURL = page.NextPageLink
		pages++
		if pages%50 == 0 {
			logger.Info().Int("pages", pages).Int("items", items).Msg("azure download progress")
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
	logger.Info().Int("pages", pages).Int("items", items).Msg("azure catalog downloaded")
	return nil
}

// fetchAzurePage gets one page through the shared retrier. No breaker
// is attached; a page that exhausts its retries aborts the download.
func fetchAzurePage(ctx context.Context, client *http.Client, pager *retry.Retrier, url string) (*azurePage, error) {
	var page azurePage
	err := pager.Do(ctx, func(ctx context.Context) error {
		page = azurePage{}
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
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&page)
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// ParseAzureCatalog streams the cached item list and emits a tuple per
// item that names a meter, a region and an hourly unit of measure.
// Reservation-term entries are excluded; the catalog only carries
// on-demand observations.
func ParseAzureCatalog(path string, emit EmitFunc, logger zerolog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open azure cache: %w", err)
	}
	defer f.Close()
	return StreamAzureItems(f, emit, logger)
}

// StreamAzureItems does the actual filtering over an items document.
func StreamAzureItems(r io.Reader, emit EmitFunc, logger zerolog.Logger) error {
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
		if key != "Items" {
			if err := skipValue(dec); err != nil {
				return err
			}
			continue
		}

		if err := expectDelim(dec, '['); err != nil {
			return err
		}
		skipped := 0
		for dec.More() {
			var item azureItem
			if err := dec.Decode(&item); err != nil {
				return fmt.Errorf("failed to decode azure item: %w", err)
			}
			if item.MeterName == "" || item.ARMRegionName == "" || item.ReservationTerm != "" {
				skipped++
				continue
			}
			if !strings.Contains(item.UnitOfMeasure, "Hour") {
				skipped++
				continue
			}
			emit(PriceTuple{
				Provider:     "azure",
				Service:      item.ServiceName,
				ResourceType: item.MeterName,
				Region:       item.ARMRegionName,
				PricingModel: "on-demand",
				HourlyPrice:  item.RetailPrice,
				Currency:     item.CurrencyCode,
			})
		}
		if skipped > 0 {
			logger.Debug().Int("skipped", skipped).Msg("azure items filtered out")
		}
		return expectDelim(dec, ']')
	}
	return nil
}
