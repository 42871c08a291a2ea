package migrate

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/perfhud/internal/export"
)

func TestVersions(t *testing.T) {
	versions, err := Versions()
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, versions)
}

func TestEmbeddedSource(t *testing.T) {
	src, err := iofs.New(migrations, "sql")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	up, identifier, err := src.ReadUp(first)
	require.NoError(t, err)
	defer up.Close()

	assert.Equal(t, "perfhud_reports", identifier)

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	down.Close()
}

func TestDSN(t *testing.T) {
	got := dsn(export.ClickHouseConfig{
		Endpoint: "localhost:9000",
		Database: "perf",
	})

	assert.Equal(t,
		"clickhouse://localhost:9000/perf?x-migrations-table="+MigrationsTable+
			"&x-migrations-table-engine=MergeTree&x-multi-statement=true",
		got,
	)
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(logrus.New(), export.ClickHouseConfig{})
	require.Error(t, err)

	m, err := New(logrus.New(), export.ClickHouseConfig{Endpoint: "localhost:9000"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}
