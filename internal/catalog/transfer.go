package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// FindTransferPrice returns the per-GB rate for a transfer route, or
// (0, false) when the route is unknown.
func (s *Store) FindTransferPrice(ctx context.Context, provider, fromRegion, toRegion, transferType string) (float64, bool, error) {
	query := `
		SELECT price_per_gb FROM data_transfer_pricing
		WHERE provider = $1 AND from_region = $2 AND to_region = $3 AND transfer_type = $4
	`
	var perGB float64
	err := s.db.QueryRowContext(ctx, query, provider, fromRegion, toRegion, transferType).Scan(&perGB)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find transfer price: %w", err)
	}
	return perGB, true, nil
}

// TransferCost computes the total cost of moving gigabytes across a
// route. Unknown routes cost zero; cross-AZ traffic is usually free and
// simply has no row.
func (s *Store) TransferCost(ctx context.Context, provider, fromRegion, toRegion, transferType string, gigabytes float64) (float64, error) {
	perGB, found, err := s.FindTransferPrice(ctx, provider, fromRegion, toRegion, transferType)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return perGB * gigabytes, nil
}
