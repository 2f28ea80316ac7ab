package merge

import (
	"math/rand"
	"slices"
	"strconv"
	"testing"

	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var categoryDaily = domain.Table{
	Name:        "category_daily",
	Dimensions:  []domain.Dimension{domain.DimensionCategory},
	Granularity: period.Day,
}

var customerYearly = domain.Table{
	Name:         "customer_yearly",
	Dimensions:   []domain.Dimension{domain.DimensionCustomer},
	Granularity:  period.Year,
	TrackHistory: true,
}

func mustDay(t *testing.T, raw string) period.Period {
	t.Helper()
	p, err := period.Parse(period.Day, raw)
	require.NoError(t, err)
	return p
}

func TestMergeAccumulatesCategoryTotals(t *testing.T) {
	day1 := mustDay(t, "2024-01-01")
	day2 := day1.Next()

	previous := []domain.Snapshot{{
		Table:   categoryDaily.Name,
		Period:  day1,
		Key:     domain.Key{"electronics"},
		Labels:  domain.Labels{"Electronics"},
		Metrics: domain.Metrics{Quantity: 100, Amount: 50000, Transactions: 10},
	}}
	delta := []domain.Delta{{
		Key:     domain.Key{"electronics"},
		Labels:  domain.Labels{"Electronics"},
		Metrics: domain.Metrics{Quantity: 20, Amount: 9000, Transactions: 2},
	}}

	res, err := Merge(categoryDaily, day2, previous, delta)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, int64(120), row.Metrics.Quantity)
	assert.Equal(t, int64(59000), row.Metrics.Amount)
	assert.Equal(t, int64(12), row.Metrics.Transactions)
	assert.True(t, row.Period.Equal(day2))
	assert.Empty(t, res.LabelConflicts)
}

func TestMergeCarriesInactiveKeysForward(t *testing.T) {
	day1 := mustDay(t, "2024-03-10")
	day2 := day1.Next()

	previous := []domain.Snapshot{
		{Period: day1, Key: domain.Key{"books"}, Labels: domain.Labels{"Books"}, Metrics: domain.Metrics{Quantity: 5, Amount: 2500}},
		{Period: day1, Key: domain.Key{"toys"}, Labels: domain.Labels{"Toys"}, Metrics: domain.Metrics{Quantity: 1, Amount: 999}},
	}
	delta := []domain.Delta{
		{Key: domain.Key{"garden"}, Labels: domain.Labels{"Garden"}, Metrics: domain.Metrics{Quantity: 2, Amount: 1200}},
		{Key: domain.Key{"books"}, Labels: domain.Labels{"Books"}, Metrics: domain.Metrics{Quantity: 1, Amount: 500}},
	}

	res, err := Merge(categoryDaily, day2, previous, delta)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)

	keys := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		keys = append(keys, row.Key[0])
		assert.True(t, row.Period.Equal(day2), "row %s not stamped with current period", row.Key)
	}
	assert.Equal(t, []string{"books", "garden", "toys"}, keys)

	assert.Equal(t, domain.Metrics{Quantity: 6, Amount: 3000}, res.Rows[0].Metrics)
	assert.Equal(t, domain.Metrics{Quantity: 2, Amount: 1200}, res.Rows[1].Metrics)
	assert.Equal(t, domain.Metrics{Quantity: 1, Amount: 999}, res.Rows[2].Metrics)
}

func TestMergeSeedIsIdempotent(t *testing.T) {
	day := mustDay(t, "2024-01-01")
	delta := []domain.Delta{
		{Key: domain.Key{"b"}, Labels: domain.Labels{"B"}, Metrics: domain.Metrics{Quantity: 2, Amount: 200}},
		{Key: domain.Key{"a"}, Labels: domain.Labels{"A"}, Metrics: domain.Metrics{Quantity: 1, Amount: 100}},
	}

	first, err := Merge(categoryDaily, day, nil, delta)
	require.NoError(t, err)
	second, err := Merge(categoryDaily, day, nil, delta)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first.Rows, 2)
	assert.Equal(t, domain.Key{"a"}, first.Rows[0].Key)
	assert.Equal(t, delta[1].Metrics, first.Rows[0].Metrics)
}

func TestMergeEmptyInputs(t *testing.T) {
	res, err := Merge(categoryDaily, mustDay(t, "2024-01-01"), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

// Totals after merging equal previous totals plus delta totals, and no key
// from either side is lost.
func TestMergeAdditivityAndNoKeyLoss(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	day := mustDay(t, "2024-06-01")

	for round := 0; round < 50; round++ {
		var previous []domain.Snapshot
		var delta []domain.Delta
		var want domain.Metrics
		keys := map[string]struct{}{}

		for i := 0; i < 20; i++ {
			key := "k" + strconv.Itoa(i)
			if rng.Intn(2) == 0 {
				m := domain.Metrics{Quantity: rng.Int63n(50), Amount: rng.Int63n(100000), Discount: rng.Int63n(500), Transactions: rng.Int63n(5)}
				previous = append(previous, domain.Snapshot{Period: day.Prev(), Key: domain.Key{key}, Labels: domain.Labels{key}, Metrics: m})
				want = want.Add(m)
				keys[key] = struct{}{}
			}
			if rng.Intn(2) == 0 {
				m := domain.Metrics{Quantity: rng.Int63n(50), Amount: rng.Int63n(100000), Discount: rng.Int63n(500), Transactions: rng.Int63n(5)}
				delta = append(delta, domain.Delta{Key: domain.Key{key}, Labels: domain.Labels{key}, Metrics: m})
				want = want.Add(m)
				keys[key] = struct{}{}
			}
		}

		res, err := Merge(categoryDaily, day, previous, delta)
		require.NoError(t, err)
		require.Len(t, res.Rows, len(keys))

		var got domain.Metrics
		for _, row := range res.Rows {
			got = got.Add(row.Metrics)
			_, ok := keys[row.Key[0]]
			assert.True(t, ok, "unexpected key %s", row.Key)
		}
		assert.Equal(t, want, got, "round %d", round)
		assert.True(t, slices.IsSortedFunc(res.Rows, func(a, b domain.Snapshot) int {
			return domain.CompareKeys(a.Key, b.Key)
		}))
	}
}

func TestMergeReportsLabelConflicts(t *testing.T) {
	table := domain.Table{
		Name:        "region_category_daily",
		Dimensions:  []domain.Dimension{domain.DimensionRegion, domain.DimensionCategory},
		Granularity: period.Day,
	}
	day := mustDay(t, "2024-01-02")
	previous := []domain.Snapshot{{
		Key:    domain.Key{"r1", "c1"},
		Labels: domain.Labels{"North", "Electronics"},
	}}
	delta := []domain.Delta{{
		Key:     domain.Key{"r1", "c1"},
		Labels:  domain.Labels{"North East", ""},
		Metrics: domain.Metrics{Quantity: 1},
	}}

	res, err := Merge(table, day, previous, delta)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, domain.Labels{"North East", "Electronics"}, res.Rows[0].Labels)
	require.Len(t, res.LabelConflicts, 1)
	assert.Equal(t, domain.DimensionRegion, res.LabelConflicts[0].Dimension)
	assert.Equal(t, "North", res.LabelConflicts[0].Previous)
	assert.Equal(t, "North East", res.LabelConflicts[0].Current)
}

func TestMergeRejectsBadInput(t *testing.T) {
	day := mustDay(t, "2024-01-02")

	_, err := Merge(categoryDaily, day, nil, []domain.Delta{
		{Key: domain.Key{"a"}},
		{Key: domain.Key{"a"}},
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	_, err = Merge(categoryDaily, day, []domain.Snapshot{{Key: domain.Key{"a", "b"}}}, nil)
	assert.ErrorIs(t, err, domain.ErrKeyArity)

	_, err = Merge(categoryDaily, period.NewYear(2024), nil, nil)
	assert.ErrorIs(t, err, domain.ErrGranularityMismatch)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	y2023 := period.NewYear(2023)
	previous := []domain.Snapshot{{
		Key:     domain.Key{"c1"},
		Labels:  domain.Labels{"Ada"},
		Metrics: domain.Metrics{Quantity: 1},
		History: []domain.HistoryEntry{{Period: "2023", TotalQuantity: 1}},
	}}
	before := slices.Clone(previous[0].History)

	_, err := Merge(customerYearly, y2023.Next(), previous, []domain.Delta{{
		Key:     domain.Key{"c1"},
		Labels:  domain.Labels{"Ada"},
		Metrics: domain.Metrics{Quantity: 2},
	}})
	require.NoError(t, err)
	assert.Equal(t, before, previous[0].History)
	assert.Equal(t, int64(1), previous[0].Metrics.Quantity)
}
