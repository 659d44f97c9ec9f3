package postgres

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// TestGetNodeNotFound exercises the not-found path without a live database.
func TestGetNodeNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &Store{db: sqlx.NewDb(db, "postgres"), schema: "public"}

	cols := []string{"id", "provider", "account", "region", "resource_type", "native_id", "name", "status", "tags", "metadata", "cost_monthly", "owner", "created_at", "last_synced_at"}
	mock.ExpectQuery(`SELECT \* FROM nodes WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cols))

	node, err := s.GetNode(t.Context(), "missing")
	require.NoError(t, err)
	require.Nil(t, node)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestGetStatsAggregation verifies the aggregate queries are issued and
// combined correctly, independent of a live database.
func TestGetStatsAggregation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := &Store{db: sqlx.NewDb(db, "postgres"), schema: "public"}

	mock.ExpectQuery(`SELECT count\(\*\) FROM nodes`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT count\(\*\) FROM edges`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT provider AS key`).WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow("aws", 2))
	mock.ExpectQuery(`SELECT resource_type AS key`).WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow("compute", 2))
	mock.ExpectQuery(`SELECT status AS key`).WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow("running", 2))
	mock.ExpectQuery(`SELECT sum\(cost_monthly\) FROM nodes`).WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(123.45))
	mock.ExpectQuery(`SELECT max\(last_synced_at\) FROM nodes`).WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(time.Now()))

	stats, err := s.GetStats(t.Context())
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalNodes)
	require.Equal(t, 1, stats.TotalEdges)
	require.Equal(t, 123.45, stats.TotalCostMonthly)
	require.NoError(t, mock.ExpectationsWereMet())
}
