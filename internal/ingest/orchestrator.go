package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Priveetee/priceyy/internal/catalog"
	"github.com/Priveetee/priceyy/internal/parser"
)

const (
	awsPricingBaseURL = "https://pricing.us-east-1.amazonaws.com"
	awsIndexPath      = "/offers/v1.0/aws/index.json"
	azureRetailAPIURL = "https://prices.azure.com/api/retail/prices"
)

// Providers the orchestrator knows how to ingest.
var AllProviders = []string{"aws", "azure", "gcp"}

// PriceWriter is the slice of the catalog the orchestrator needs.
type PriceWriter interface {
	BulkUpsert(ctx context.Context, updates []catalog.PriceUpdate) (catalog.UpsertStats, error)
}

// Config holds orchestrator settings. Zero values fall back to the
// production endpoints and a 24h cache window.
type Config struct {
	CacheDir     string
	CacheTTL     time.Duration
	AWSBaseURL   string
	AzureAPIURL  string
	GCPAPIKey    string
	HTTPTimeout  time.Duration
	DownloadWait time.Duration
}

// Orchestrator runs provider ingestions: freshness check, download,
// parse, bulk upsert, marker update. Each provider is isolated; one
// failing never aborts the others.
type Orchestrator struct {
	writer PriceWriter
	state  *StateStore
	client *http.Client
	cfg    Config
	log    zerolog.Logger
}

// NewOrchestrator wires an orchestrator. state lives under
// cfg.CacheDir/ingestion_state.json unless the store is provided.
func NewOrchestrator(writer PriceWriter, state *StateStore, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.AWSBaseURL == "" {
		cfg.AWSBaseURL = awsPricingBaseURL
	}
	if cfg.AzureAPIURL == "" {
		cfg.AzureAPIURL = azureRetailAPIURL
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 5 * time.Minute
	}
	if state == nil {
		state = NewStateStore(filepath.Join(cfg.CacheDir, "ingestion_state.json"))
	}
	return &Orchestrator{
		writer: writer,
		state:  state,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		cfg:    cfg,
		log:    logger.With().Str("component", "ingest").Logger(),
	}
}

// Run ingests the named providers (all of them when the list is empty).
// Every provider failure is logged and collected; the joined error is
// non-nil if any provider failed so callers can exit non-zero.
func (o *Orchestrator) Run(ctx context.Context, providers []string, force bool) error {
	if len(providers) == 0 {
		providers = AllProviders
	}

	var errs []error
	for _, provider := range providers {
		var err error
		switch provider {
		case "aws":
			err = o.IngestAWS(ctx, force)
		case "azure":
			err = o.IngestAzure(ctx, force)
		case "gcp":
			err = o.IngestGCP(ctx, force)
		default:
			err = fmt.Errorf("unknown provider %q", provider)
		}
		if err != nil {
			o.log.Error().Str("provider", provider).Err(err).Msg("ingestion failed")
			errs = append(errs, fmt.Errorf("%s: %w", provider, err))
		}
	}
	return errors.Join(errs...)
}

// awsIndex is the small offer-index document that carries the
// publication date used as the AWS freshness marker.
type awsIndex struct {
	PublicationDate string `json:"publicationDate"`
	Offers          map[string]struct {
		CurrentVersionURL string `json:"currentVersionUrl"`
	} `json:"offers"`
}

// IngestAWS runs the AWS EC2 bulk ingestion: index fetch, publication
// date check, offer download (cached), two-pass parse, upsert.
func (o *Orchestrator) IngestAWS(ctx context.Context, force bool) error {
	log := o.log.With().Str("provider", "aws").Logger()
	log.Info().Msg("starting aws ec2 ingestion")

	var index awsIndex
	if err := o.fetchJSON(ctx, o.cfg.AWSBaseURL+awsIndexPath, &index); err != nil {
		return fmt.Errorf("failed to fetch pricing index: %w", err)
	}

	if !force && o.state.Get(StateKeyAWSPublicationDate) == index.PublicationDate {
		log.Info().Str("publication_date", index.PublicationDate).Msg("prices up to date, skipping")
		return nil
	}

	offer, ok := index.Offers["AmazonEC2"]
	if !ok {
		return fmt.Errorf("pricing index has no AmazonEC2 offer")
	}
	cachePath := filepath.Join(o.cfg.CacheDir, "AmazonEC2_offer.json")
	// The cache file is only reusable when it holds the publication we
	// are about to ingest; a fresh file from an older publication must
	// be replaced or the new catalog would never land.
	cacheUsable := !force &&
		CacheIsFresh(cachePath, o.cfg.CacheTTL) &&
		o.state.Get(StateKeyAWSOfferCachePublication) == index.PublicationDate
	if cacheUsable {
		log.Info().Str("path", cachePath).Msg("using cached offer file")
	} else {
		if err := DownloadFile(ctx, o.client, o.cfg.AWSBaseURL+offer.CurrentVersionURL, cachePath, log); err != nil {
			return err
		}
		if err := o.state.Set(StateKeyAWSOfferCachePublication, index.PublicationDate); err != nil {
			return err
		}
	}

	updates, err := o.collect(func(emit parser.EmitFunc) error {
		return parser.ParseAWSOffer(cachePath, emit, log)
	}, "aws-bulk")
	if err != nil {
		return err
	}

	if err := o.upsert(ctx, updates, log); err != nil {
		return err
	}
	return o.state.Set(StateKeyAWSPublicationDate, index.PublicationDate)
}

// IngestAzure pages the retail-prices API into a cache file (once per
// TTL window) and streams the filtered records into the catalog. The
// freshness marker is a daily date token.
func (o *Orchestrator) IngestAzure(ctx context.Context, force bool) error {
	log := o.log.With().Str("provider", "azure").Logger()
	log.Info().Msg("starting azure ingestion")

	today := time.Now().UTC().Format("2006-01-02")
	if !force && o.state.Get(StateKeyAzureIngestionDate) == today {
		log.Info().Msg("prices already ingested today, skipping")
		return nil
	}

	cachePath := filepath.Join(o.cfg.CacheDir, "Azure_full_offer.json")
	if force || !CacheIsFresh(cachePath, o.cfg.CacheTTL) {
		log.Info().Msg("downloading all pages from azure retail api, this may take a while")
		if err := parser.DownloadAzureCatalog(ctx, o.client, o.cfg.AzureAPIURL, cachePath, log); err != nil {
			return err
		}
	} else {
		log.Info().Str("path", cachePath).Msg("using cached catalog")
	}

	updates, err := o.collect(func(emit parser.EmitFunc) error {
		return parser.ParseAzureCatalog(cachePath, emit, log)
	}, "azure-retail")
	if err != nil {
		return err
	}

	if err := o.upsert(ctx, updates, log); err != nil {
		return err
	}
	return o.state.Set(StateKeyAzureIngestionDate, today)
}

// IngestGCP downloads the full SKU catalog (requires an API key) and
// streams base on-demand rates into the catalog.
func (o *Orchestrator) IngestGCP(ctx context.Context, force bool) error {
	log := o.log.With().Str("provider", "gcp").Logger()

	if o.cfg.GCPAPIKey == "" {
		log.Warn().Msg("no gcp api key configured, skipping")
		return nil
	}
	log.Info().Msg("starting gcp ingestion")

	today := time.Now().UTC().Format("2006-01-02")
	if !force && o.state.Get(StateKeyGCPIngestionDate) == today {
		log.Info().Msg("prices already ingested today, skipping")
		return nil
	}

	cachePath := filepath.Join(o.cfg.CacheDir, "GCP_full_offer.json")
	if force || !CacheIsFresh(cachePath, o.cfg.CacheTTL) {
		if err := parser.DownloadGCPCatalog(ctx, o.client, o.cfg.GCPAPIKey, cachePath, log); err != nil {
			return err
		}
	} else {
		log.Info().Str("path", cachePath).Msg("using cached catalog")
	}

	updates, err := o.collect(func(emit parser.EmitFunc) error {
		return parser.ParseGCPCatalog(cachePath, emit, log)
	}, "gcp-catalog")
	if err != nil {
		return err
	}

	if err := o.upsert(ctx, updates, log); err != nil {
		return err
	}
	return o.state.Set(StateKeyGCPIngestionDate, today)
}

// collect drains a parser run into catalog updates.
func (o *Orchestrator) collect(parse func(parser.EmitFunc) error, source string) ([]catalog.PriceUpdate, error) {
	var updates []catalog.PriceUpdate
	err := parse(func(t parser.PriceTuple) {
		updates = append(updates, catalog.PriceUpdate{
			Key: catalog.PriceKey{
				Provider:     t.Provider,
				ServiceName:  t.Service,
				ResourceType: t.ResourceType,
				Region:       t.Region,
				PricingModel: t.PricingModel,
			},
			HourlyPrice: t.HourlyPrice,
			Currency:    t.Currency,
			Source:      source,
		})
	})
	if err != nil {
		return nil, err
	}
	return updates, nil
}

func (o *Orchestrator) upsert(ctx context.Context, updates []catalog.PriceUpdate, log zerolog.Logger) error {
	if len(updates) == 0 {
		log.Info().Msg("no prices to upsert")
		return nil
	}
	stats, err := o.writer.BulkUpsert(ctx, updates)
	if err != nil {
		return fmt.Errorf("bulk upsert failed: %w", err)
	}
	log.Info().
		Int("inserted", stats.Inserted).
		Int("updated", stats.Updated).
		Int("unchanged", stats.Unchanged).
		Msg("catalog upsert complete")
	return nil
}

func (o *Orchestrator) fetchJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
