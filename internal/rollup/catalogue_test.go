package rollup

import (
	"testing"

	"github.com/smallbiznis/retailsales/internal/config"
	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogueResolvesDefaultTables(t *testing.T) {
	holder, err := config.NewStaticRollupConfigHolder(config.DefaultRollupConfig())
	require.NoError(t, err)
	cat := NewCatalogue(holder)

	tables := cat.Tables()
	require.Len(t, tables, 4)
	assert.Equal(t, "category_daily", tables[0].Name)

	yearly, err := cat.Table("customer_yearly")
	require.NoError(t, err)
	assert.Equal(t, period.Year, yearly.Granularity)
	assert.True(t, yearly.TrackHistory)
	assert.Equal(t, []domain.Dimension{domain.DimensionCustomer}, yearly.Dimensions)

	_, err = cat.Table("missing")
	assert.ErrorIs(t, err, domain.ErrUnknownTable)
}

func TestTableFromConfigParsesSeed(t *testing.T) {
	table, err := TableFromConfig(config.TableConfig{
		Name:        "region_daily",
		Dimensions:  []string{"Region"},
		Granularity: "day",
		SeedPeriod:  "2024-01-01",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", table.SeedPeriod.String())
	assert.Equal(t, domain.DimensionRegion, table.Dimensions[0])

	_, err = TableFromConfig(config.TableConfig{Name: "bad", Dimensions: []string{"store"}, Granularity: "day"})
	assert.ErrorIs(t, err, domain.ErrInvalidTable)
}
