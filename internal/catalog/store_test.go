package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testKey = PriceKey{
	Provider:     "aws",
	ServiceName:  "ec2",
	ResourceType: "t3.micro",
	Region:       "us-east-1",
	PricingModel: "on-demand",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, zerolog.Nop()), mock
}

func priceRows(id uuid.UUID, price float64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "provider", "service_name", "resource_type", "region", "pricing_model",
		"hourly_price", "upfront_cost", "currency", "source", "last_updated", "created_at",
	}).AddRow(id, "aws", "ec2", "t3.micro", "us-east-1", "on-demand",
		price, nil, "USD", "aws-bulk", now, now)
}

func TestFindPriceNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM pricing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec, err := store.FindPrice(context.Background(), testKey)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindPrice(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM pricing").
		WithArgs("aws", "ec2", "t3.micro", "us-east-1", "on-demand").
		WillReturnRows(priceRows(id, 0.0104))

	rec, err := store.FindPrice(context.Background(), testKey)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, id, rec.ID)
	require.InDelta(t, 0.0104, rec.HourlyPrice, 1e-9)
	require.Equal(t, testKey, rec.Key())
}

func TestUpsertIfChangedInserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, hourly_price FROM pricing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hourly_price"}))
	mock.ExpectExec("INSERT INTO pricing ").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := store.UpsertIfChanged(context.Background(), PriceUpdate{
		Key: testKey, HourlyPrice: 0.0104, Currency: "USD", Source: "aws-bulk",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertIfChangedNoopWithinEpsilon(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, hourly_price FROM pricing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hourly_price"}).AddRow(id, 0.0104))
	mock.ExpectCommit()

	// 0.0005 below epsilon: no history row, no update.
	outcome, err := store.UpsertIfChanged(context.Background(), PriceUpdate{
		Key: testKey, HourlyPrice: 0.0109, Currency: "USD", Source: "aws-bulk",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeUnchanged, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertIfChangedWritesHistoryThenUpdates(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, hourly_price FROM pricing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hourly_price"}).AddRow(id, 0.0104))
	mock.ExpectExec("INSERT INTO pricing_history").
		WithArgs(sqlmock.AnyArg(), id, 0.0104, 0.02, "scheduled-refresh").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE pricing SET").
		WithArgs(0.02, "USD", "aws-bulk", id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := store.UpsertIfChanged(context.Background(), PriceUpdate{
		Key: testKey, HourlyPrice: 0.02, Currency: "USD", Source: "aws-bulk",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsertStats(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	// First update inserts, second is a no-op.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, hourly_price FROM pricing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hourly_price"}))
	mock.ExpectExec("INSERT INTO pricing ").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, hourly_price FROM pricing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hourly_price"}).AddRow(id, 0.5))
	mock.ExpectCommit()

	stats, err := store.BulkUpsert(context.Background(), []PriceUpdate{
		{Key: testKey, HourlyPrice: 0.0104, Currency: "USD", Source: "aws-bulk"},
		{Key: PriceKey{Provider: "aws", ServiceName: "ec2", ResourceType: "m5.large",
			Region: "us-east-1", PricingModel: "on-demand"}, HourlyPrice: 0.5, Currency: "USD", Source: "aws-bulk"},
	})
	require.NoError(t, err)
	require.Equal(t, UpsertStats{Inserted: 1, Unchanged: 1}, stats)
	require.Equal(t, 2, stats.Total())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsertReportsFailingRecordIndex(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, hourly_price FROM pricing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "hourly_price"}))
	mock.ExpectExec("INSERT INTO pricing ").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin().WillReturnError(errors.New("db down"))

	_, err := store.BulkUpsert(context.Background(), []PriceUpdate{
		{Key: testKey, HourlyPrice: 0.0104, Currency: "USD", Source: "aws-bulk"},
		{Key: PriceKey{Provider: "aws", ServiceName: "ec2", ResourceType: "m5.large",
			Region: "us-east-1", PricingModel: "on-demand"}, HourlyPrice: 0.5, Currency: "USD", Source: "aws-bulk"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "record 1")
}

func TestListHistory(t *testing.T) {
	store, mock := newMockStore(t)
	pricingID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM pricing_history").
		WithArgs(pricingID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "pricing_id", "old_hourly_price", "new_hourly_price", "change_reason", "changed_at",
		}).
			AddRow(uuid.New(), pricingID, 0.02, 0.025, "scheduled-refresh", now).
			AddRow(uuid.New(), pricingID, 0.0104, 0.02, "scheduled-refresh", now.Add(-time.Hour)))

	entries, err := store.ListHistory(context.Background(), pricingID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.InDelta(t, 0.025, entries[0].NewHourlyPrice, 1e-9)
	require.Equal(t, "scheduled-refresh", entries[0].ChangeReason)
}
