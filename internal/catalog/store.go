package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Store implements the price repository on Postgres. Ingestion is the
// only writer of pricing rows (besides manual admin creation), so write
// contention is limited to the per-key row lock taken in UpsertIfChanged.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, log: logger.With().Str("component", "catalog").Logger()}
}

// Open connects to Postgres and verifies connectivity.
func Open(ctx context.Context, dsn string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewStore(db, logger), nil
}

// DB exposes the underlying handle for collaborators sharing the pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

const priceColumns = `id, provider, service_name, resource_type, region, pricing_model,
	hourly_price, upfront_cost, currency, source, last_updated, created_at`

func scanPrice(row interface{ Scan(...any) error }) (*PriceRecord, error) {
	var rec PriceRecord
	var upfront sql.NullFloat64
	var source sql.NullString
	err := row.Scan(
		&rec.ID, &rec.Provider, &rec.ServiceName, &rec.ResourceType, &rec.Region,
		&rec.PricingModel, &rec.HourlyPrice, &upfront, &rec.Currency, &source,
		&rec.LastUpdated, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.UpfrontCost = upfront.Float64
	rec.Source = source.String
	return &rec, nil
}

// FindPrice looks up a record by identity key. Returns (nil, nil) when
// no record exists.
func (s *Store) FindPrice(ctx context.Context, key PriceKey) (*PriceRecord, error) {
	query := `
		SELECT ` + priceColumns + `
		FROM pricing
		WHERE provider = $1 AND service_name = $2 AND resource_type = $3
		  AND region = $4 AND pricing_model = $5
	`
	rec, err := scanPrice(s.db.QueryRowContext(ctx, query,
		key.Provider, key.ServiceName, key.ResourceType, key.Region, key.PricingModel))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find price: %w", err)
	}
	return rec, nil
}

// FindSimilarPrice finds a record matching everything but the region.
// Used by the fallback chain when no exact regional price exists.
func (s *Store) FindSimilarPrice(ctx context.Context, key PriceKey) (*PriceRecord, error) {
	query := `
		SELECT ` + priceColumns + `
		FROM pricing
		WHERE provider = $1 AND service_name = $2 AND resource_type = $3
		  AND pricing_model = $4 AND region != $5
		ORDER BY last_updated DESC
		LIMIT 1
	`
	rec, err := scanPrice(s.db.QueryRowContext(ctx, query,
		key.Provider, key.ServiceName, key.ResourceType, key.PricingModel, key.Region))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find similar price: %w", err)
	}
	return rec, nil
}

// GetPrice fetches a record by id.
func (s *Store) GetPrice(ctx context.Context, id uuid.UUID) (*PriceRecord, error) {
	query := `SELECT ` + priceColumns + ` FROM pricing WHERE id = $1`
	rec, err := scanPrice(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price: %w", err)
	}
	return rec, nil
}

// UpsertOutcome reports what UpsertIfChanged did with a record.
type UpsertOutcome int

const (
	OutcomeUnchanged UpsertOutcome = iota
	OutcomeInserted
	OutcomeUpdated
)

// UpsertIfChanged inserts a new record or updates an existing one when
// the observed price moved by more than PriceEpsilon. The
// read-compare-write-history sequence runs in one transaction with the
// row locked, so concurrent refreshes of the same key serialize.
func (s *Store) UpsertIfChanged(ctx context.Context, upd PriceUpdate) (UpsertOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	var id uuid.UUID
	var oldPrice float64
	selectQuery := `
		SELECT id, hourly_price FROM pricing
		WHERE provider = $1 AND service_name = $2 AND resource_type = $3
		  AND region = $4 AND pricing_model = $5
		FOR UPDATE
	`
	key := upd.Key
	err = tx.QueryRowContext(ctx, selectQuery,
		key.Provider, key.ServiceName, key.ResourceType, key.Region, key.PricingModel,
	).Scan(&id, &oldPrice)

	switch {
	case err == sql.ErrNoRows:
		insertQuery := `
			INSERT INTO pricing (id, provider, service_name, resource_type, region,
				pricing_model, hourly_price, currency, source, last_updated, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		`
		if _, err := tx.ExecContext(ctx, insertQuery,
			uuid.New(), key.Provider, key.ServiceName, key.ResourceType, key.Region,
			key.PricingModel, upd.HourlyPrice, upd.Currency, upd.Source,
		); err != nil {
			return OutcomeUnchanged, fmt.Errorf("failed to insert price: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return OutcomeUnchanged, fmt.Errorf("failed to commit insert: %w", err)
		}
		return OutcomeInserted, nil

	case err != nil:
		return OutcomeUnchanged, fmt.Errorf("failed to lock price row: %w", err)
	}

	if math.Abs(oldPrice-upd.HourlyPrice) <= PriceEpsilon {
		return OutcomeUnchanged, tx.Commit()
	}

	historyQuery := `
		INSERT INTO pricing_history (id, pricing_id, old_hourly_price, new_hourly_price, change_reason, changed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	if _, err := tx.ExecContext(ctx, historyQuery,
		uuid.New(), id, oldPrice, upd.HourlyPrice, "scheduled-refresh",
	); err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to append price history: %w", err)
	}

	updateQuery := `
		UPDATE pricing SET hourly_price = $1, currency = $2, source = $3, last_updated = NOW()
		WHERE id = $4
	`
	if _, err := tx.ExecContext(ctx, updateQuery, upd.HourlyPrice, upd.Currency, upd.Source, id); err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to update price: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to commit update: %w", err)
	}

	s.log.Debug().
		Str("provider", key.Provider).
		Str("resource_type", key.ResourceType).
		Str("region", key.Region).
		Float64("old", oldPrice).
		Float64("new", upd.HourlyPrice).
		Msg("price updated")
	return OutcomeUpdated, nil
}

// BulkUpsert applies a batch of observed prices, chunked so a long run
// gives periodic progress logs. Each key is still its own transaction;
// inputs are idempotent snapshots so last-writer-wins is fine.
func (s *Store) BulkUpsert(ctx context.Context, updates []PriceUpdate) (UpsertStats, error) {
	var stats UpsertStats
	const batchSize = 1000

	for i := 0; i < len(updates); i += batchSize {
		end := i + batchSize
		if end > len(updates) {
			end = len(updates)
		}
		for j, upd := range updates[i:end] {
			outcome, err := s.UpsertIfChanged(ctx, upd)
			if err != nil {
				return stats, fmt.Errorf("bulk upsert failed at record %d: %w", i+j, err)
			}
			switch outcome {
			case OutcomeInserted:
				stats.Inserted++
			case OutcomeUpdated:
				stats.Updated++
			default:
				stats.Unchanged++
			}
		}
		s.log.Info().
			Int("processed", end).
			Int("total", len(updates)).
			Msg("bulk upsert progress")
	}
	return stats, nil
}

// CreatePrice inserts a manually provided record, including the optional
// upfront commitment cost ingestion never sets.
func (s *Store) CreatePrice(ctx context.Context, rec *PriceRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	query := `
		INSERT INTO pricing (id, provider, service_name, resource_type, region,
			pricing_model, hourly_price, upfront_cost, currency, source, last_updated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`
	if _, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Provider, rec.ServiceName, rec.ResourceType, rec.Region,
		rec.PricingModel, rec.HourlyPrice, rec.UpfrontCost, rec.Currency, rec.Source,
	); err != nil {
		return fmt.Errorf("failed to create price: %w", err)
	}
	return nil
}

// ListHistory returns the change log for a record, newest first.
func (s *Store) ListHistory(ctx context.Context, pricingID uuid.UUID) ([]PriceHistory, error) {
	query := `
		SELECT id, pricing_id, old_hourly_price, new_hourly_price, change_reason, changed_at
		FROM pricing_history
		WHERE pricing_id = $1
		ORDER BY changed_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, pricingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list price history: %w", err)
	}
	defer rows.Close()

	var entries []PriceHistory
	for rows.Next() {
		var h PriceHistory
		if err := rows.Scan(&h.ID, &h.PricingID, &h.OldHourlyPrice, &h.NewHourlyPrice, &h.ChangeReason, &h.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}
