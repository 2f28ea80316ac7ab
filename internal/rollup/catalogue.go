package rollup

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/retailsales/internal/config"
	"github.com/smallbiznis/retailsales/internal/period"
	"github.com/smallbiznis/retailsales/internal/rollup/domain"
)

// Catalogue resolves tables from the live rollup config, so edits to
// rollup.yml apply to the next run.
type Catalogue struct {
	holder *config.RollupConfigHolder
}

func NewCatalogue(holder *config.RollupConfigHolder) domain.Catalogue {
	return &Catalogue{holder: holder}
}

// Tables lists every configured table, disabled ones included, in
// declaration order.
func (c *Catalogue) Tables() []domain.Table {
	cfg := c.holder.Get()
	out := make([]domain.Table, 0, len(cfg.Tables))
	for _, tc := range cfg.Tables {
		table, err := TableFromConfig(tc)
		if err != nil {
			continue
		}
		out = append(out, table)
	}
	return out
}

func (c *Catalogue) Table(name string) (domain.Table, error) {
	name = strings.TrimSpace(name)
	for _, tc := range c.holder.Get().Tables {
		if strings.TrimSpace(tc.Name) == name {
			return TableFromConfig(tc)
		}
	}
	return domain.Table{}, fmt.Errorf("%w: %s", domain.ErrUnknownTable, name)
}

func TableFromConfig(tc config.TableConfig) (domain.Table, error) {
	grain, err := period.ParseGranularity(tc.Granularity)
	if err != nil {
		return domain.Table{}, fmt.Errorf("%w: %s: %v", domain.ErrInvalidTable, tc.Name, err)
	}

	dims := make([]domain.Dimension, 0, len(tc.Dimensions))
	for _, raw := range tc.Dimensions {
		dim, err := domain.ParseDimension(raw)
		if err != nil {
			return domain.Table{}, err
		}
		dims = append(dims, dim)
	}

	table := domain.Table{
		Name:         strings.TrimSpace(tc.Name),
		Dimensions:   dims,
		Granularity:  grain,
		TrackHistory: tc.TrackHistory,
		Disabled:     tc.Disabled,
	}
	if seed := strings.TrimSpace(tc.SeedPeriod); seed != "" {
		table.SeedPeriod, err = period.Parse(grain, seed)
		if err != nil {
			return domain.Table{}, fmt.Errorf("%w: %s seed: %v", domain.ErrInvalidTable, tc.Name, err)
		}
	}
	if err := table.Validate(); err != nil {
		return domain.Table{}, err
	}
	return table, nil
}
