package extract

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type dimensionColumns struct {
	key   string
	label string
}

var columnsByDimension = map[domain.Dimension]dimensionColumns{
	domain.DimensionCustomer: {key: "customer_id", label: "customer_name"},
	domain.DimensionCategory: {key: "category_id", label: "category_name"},
	domain.DimensionRegion:   {key: "region_id", label: "region_name"},
	domain.DimensionProduct:  {key: "product_id", label: "product_name"},
}

// maxDimensions bounds the k*/l* aliases below; a table never repeats a
// dimension.
const maxDimensions = 4

type deltaRow struct {
	K0, K1, K2, K3 string
	L0, L1, L2, L3 string
	Quantity       int64
	Amount         int64
	Discount       int64
	Transactions   int64
}

func (r deltaRow) keys() [maxDimensions]string {
	return [maxDimensions]string{r.K0, r.K1, r.K2, r.K3}
}

func (r deltaRow) labels() [maxDimensions]string {
	return [maxDimensions]string{r.L0, r.L1, r.L2, r.L3}
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Extractor reads one period of sales facts aggregated at a table's grain.
type Extractor struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(p Params) *Extractor {
	return &Extractor{
		db:  p.DB,
		log: p.Log.Named("rollup.extract"),
	}
}

func NewDeltaSource(e *Extractor) domain.DeltaSource { return e }

// Extract returns one Delta per key tuple with activity in [p.Start, p.End),
// ordered by key. A period without facts yields an empty slice.
func (e *Extractor) Extract(ctx context.Context, table domain.Table, p period.Period) ([]domain.Delta, error) {
	if p.Granularity() != table.Granularity {
		return nil, fmt.Errorf("%w: table %s is %s, period %s", domain.ErrGranularityMismatch, table.Name, table.Granularity, p)
	}
	query, err := buildQuery(table)
	if err != nil {
		return nil, err
	}

	var rows []deltaRow
	bounds := map[string]any{"start": p.Start(), "end": p.End()}
	if err := e.db.WithContext(ctx).Raw(query, bounds).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("extract %s %s: %w", table.Name, p, err)
	}

	arity := table.Arity()
	out := make([]domain.Delta, 0, len(rows))
	for _, row := range rows {
		keys, labels := row.keys(), row.labels()
		out = append(out, domain.Delta{
			Key:    domain.Key(append([]string(nil), keys[:arity]...)),
			Labels: domain.Labels(append([]string(nil), labels[:arity]...)),
			Metrics: domain.Metrics{
				Quantity:     row.Quantity,
				Amount:       row.Amount,
				Discount:     row.Discount,
				Transactions: row.Transactions,
			},
		})
	}

	// Collations differ between drivers; the byte order of keys is canonical.
	slices.SortFunc(out, func(a, b domain.Delta) int { return domain.CompareKeys(a.Key, b.Key) })

	e.log.Debug("period extracted",
		zap.String("rollup_table", table.Name),
		zap.String("period", p.String()),
		zap.Int("keys", len(out)),
	)
	return out, nil
}

// latestLabel picks a key's label from its latest fact in the period, so a
// rename inside the period resolves to the newer name.
const latestLabel = `(SELECT l.%s FROM sales_facts l
				WHERE l.%s = f.%s AND l.sold_on >= @start AND l.sold_on < @end
				ORDER BY l.sold_on DESC, l.id DESC
				LIMIT 1)`

func buildQuery(table domain.Table) (string, error) {
	if table.Arity() == 0 || table.Arity() > maxDimensions {
		return "", fmt.Errorf("%w: %s has %d dimensions", domain.ErrInvalidTable, table.Name, table.Arity())
	}

	selects := make([]string, 0, 2*table.Arity())
	groups := make([]string, 0, table.Arity())
	for i, dim := range table.Dimensions {
		cols, ok := columnsByDimension[dim]
		if !ok {
			return "", fmt.Errorf("%w: unknown dimension %q", domain.ErrInvalidTable, dim)
		}
		selects = append(selects,
			fmt.Sprintf("f.%s AS k%d", cols.key, i),
			fmt.Sprintf(latestLabel+" AS l%d", cols.label, cols.key, cols.key, i),
		)
		groups = append(groups, "f."+cols.key)
	}

	return fmt.Sprintf(
		`SELECT
			%s,
			SUM(f.quantity) AS quantity,
			SUM(f.amount) AS amount,
			SUM(f.discount) AS discount,
			COUNT(1) AS transactions
		FROM sales_facts f
		WHERE f.sold_on >= @start AND f.sold_on < @end
		GROUP BY %s
		ORDER BY %s`,
		strings.Join(selects, ",\n\t\t\t"),
		strings.Join(groups, ", "),
		strings.Join(groups, ", "),
	), nil
}
