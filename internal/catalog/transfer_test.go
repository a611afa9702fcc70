package catalog

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestTransferCost(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT price_per_gb FROM data_transfer_pricing").
		WithArgs("aws", "us-east-1", "eu-west-1", "inter-region").
		WillReturnRows(sqlmock.NewRows([]string{"price_per_gb"}).AddRow(0.02))

	cost, err := store.TransferCost(context.Background(), "aws", "us-east-1", "eu-west-1", "inter-region", 500)
	require.NoError(t, err)
	require.InDelta(t, 10.0, cost, 1e-9)
}

func TestTransferCostUnknownRouteIsFree(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT price_per_gb FROM data_transfer_pricing").
		WillReturnRows(sqlmock.NewRows([]string{"price_per_gb"}))

	cost, err := store.TransferCost(context.Background(), "aws", "us-east-1a", "us-east-1b", "intra-az", 100)
	require.NoError(t, err)
	require.Zero(t, cost)
}
