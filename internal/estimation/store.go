package estimation

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store persists estimations on Postgres. Line items and versions hang
// off the estimation row with ON DELETE CASCADE, so deletion is a
// single statement.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, log: logger.With().Str("component", "estimation-store").Logger()}
}

// Save inserts an estimation with its line items in one transaction.
func (s *Store) Save(ctx context.Context, est *Estimation) error {
	if est.ID == uuid.Nil {
		est.ID = uuid.New()
	}
	if est.Status == "" {
		est.Status = "saved"
	}

	data, err := json.Marshal(est.Data)
	if err != nil {
		return fmt.Errorf("failed to encode estimation data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin save tx: %w", err)
	}
	defer tx.Rollback()

	insertEstimation := `
		INSERT INTO estimations (id, user_id, provider, name, status,
			total_monthly_cost, total_annual_cost, data, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`
	if _, err := tx.ExecContext(ctx, insertEstimation,
		est.ID, est.UserID, est.Provider, est.Name, est.Status,
		est.TotalMonthlyCost, est.TotalAnnualCost, data, est.Notes,
	); err != nil {
		return fmt.Errorf("failed to insert estimation: %w", err)
	}

	insertService := `
		INSERT INTO estimation_services (id, estimation_id, service_name, region,
			quantity, monthly_cost, annual_cost, parameters, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`
	for i := range est.Services {
		svc := &est.Services[i]
		if svc.ID == uuid.Nil {
			svc.ID = uuid.New()
		}
		svc.EstimationID = est.ID
		params, err := json.Marshal(svc.Parameters)
		if err != nil {
			return fmt.Errorf("failed to encode service parameters: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertService,
			svc.ID, est.ID, svc.ServiceName, svc.Region,
			svc.Quantity, svc.MonthlyCost, svc.AnnualCost, params,
		); err != nil {
			return fmt.Errorf("failed to insert estimation service: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit estimation: %w", err)
	}
	s.log.Info().
		Str("estimation_id", est.ID.String()).
		Int("services", len(est.Services)).
		Msg("estimation saved")
	return nil
}

// Get fetches an estimation with its line items. Returns (nil, nil)
// when the id is unknown.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Estimation, error) {
	query := `
		SELECT id, user_id, provider, name, status, total_monthly_cost,
			total_annual_cost, data, notes, created_at, updated_at
		FROM estimations WHERE id = $1
	`
	est, err := scanEstimation(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get estimation: %w", err)
	}

	services, err := s.listServices(ctx, id)
	if err != nil {
		return nil, err
	}
	est.Services = services
	return est, nil
}

// List returns estimations newest first, without line items.
func (s *Store) List(ctx context.Context, limit int) ([]Estimation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, user_id, provider, name, status, total_monthly_cost,
			total_annual_cost, data, notes, created_at, updated_at
		FROM estimations
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list estimations: %w", err)
	}
	defer rows.Close()

	var out []Estimation
	for rows.Next() {
		est, err := scanEstimation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan estimation: %w", err)
		}
		out = append(out, *est)
	}
	return out, rows.Err()
}

// Delete removes an estimation; services and versions cascade.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM estimations WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete estimation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SnapshotVersion appends a version capturing the estimation's current
// state. Called before any priced mutation so history is never lost.
// The MAX(version_number) read and the insert share a transaction; the
// unique (estimation_id, version_number) index backstops races.
func (s *Store) SnapshotVersion(ctx context.Context, est *Estimation, description string) (*Version, error) {
	snapshot, err := json.Marshal(est)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin version tx: %w", err)
	}
	defer tx.Rollback()

	var versionNumber int
	numberQuery := `
		SELECT COALESCE(MAX(version_number), 0) + 1
		FROM estimation_versions WHERE estimation_id = $1
	`
	if err := tx.QueryRowContext(ctx, numberQuery, est.ID).Scan(&versionNumber); err != nil {
		return nil, fmt.Errorf("failed to allocate version number: %w", err)
	}

	ver := &Version{
		ID:                 uuid.New(),
		EstimationID:       est.ID,
		VersionNumber:      versionNumber,
		ChangesDescription: description,
	}
	insertQuery := `
		INSERT INTO estimation_versions (id, estimation_id, version_number, changes_description, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	if _, err := tx.ExecContext(ctx, insertQuery,
		ver.ID, ver.EstimationID, ver.VersionNumber, ver.ChangesDescription, snapshot,
	); err != nil {
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit version: %w", err)
	}
	return ver, nil
}

// ListVersions returns an estimation's versions, newest first.
func (s *Store) ListVersions(ctx context.Context, estimationID uuid.UUID) ([]Version, error) {
	query := `
		SELECT id, estimation_id, version_number, changes_description, snapshot, created_at
		FROM estimation_versions
		WHERE estimation_id = $1
		ORDER BY version_number DESC
	`
	rows, err := s.db.QueryContext(ctx, query, estimationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		var v Version
		var desc sql.NullString
		var snapshot []byte
		if err := rows.Scan(&v.ID, &v.EstimationID, &v.VersionNumber, &desc, &snapshot, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.ChangesDescription = desc.String
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &v.Snapshot); err != nil {
				return nil, fmt.Errorf("failed to decode snapshot: %w", err)
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateTotals rewrites an estimation's totals after recalculation. A
// version snapshot must already have been taken by the caller.
func (s *Store) UpdateTotals(ctx context.Context, id uuid.UUID, monthly, annual float64) error {
	query := `
		UPDATE estimations
		SET total_monthly_cost = $1, total_annual_cost = $2, updated_at = NOW()
		WHERE id = $3
	`
	if _, err := s.db.ExecContext(ctx, query, monthly, annual, id); err != nil {
		return fmt.Errorf("failed to update totals: %w", err)
	}
	return nil
}

func scanEstimation(row interface{ Scan(...any) error }) (*Estimation, error) {
	var est Estimation
	var userID, notes sql.NullString
	var monthly, annual sql.NullFloat64
	var data []byte
	err := row.Scan(
		&est.ID, &userID, &est.Provider, &est.Name, &est.Status,
		&monthly, &annual, &data, &notes, &est.CreatedAt, &est.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	est.UserID = userID.String
	est.Notes = notes.String
	est.TotalMonthlyCost = monthly.Float64
	est.TotalAnnualCost = annual.Float64
	if len(data) > 0 {
		if err := json.Unmarshal(data, &est.Data); err != nil {
			return nil, fmt.Errorf("failed to decode estimation data: %w", err)
		}
	}
	return &est, nil
}

func (s *Store) listServices(ctx context.Context, estimationID uuid.UUID) ([]Service, error) {
	query := `
		SELECT id, estimation_id, service_name, region, quantity,
			monthly_cost, annual_cost, parameters, created_at
		FROM estimation_services
		WHERE estimation_id = $1
		ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, estimationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list estimation services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		var params []byte
		if err := rows.Scan(&svc.ID, &svc.EstimationID, &svc.ServiceName, &svc.Region,
			&svc.Quantity, &svc.MonthlyCost, &svc.AnnualCost, &params, &svc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan estimation service: %w", err)
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &svc.Parameters); err != nil {
				return nil, fmt.Errorf("failed to decode service parameters: %w", err)
			}
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}
