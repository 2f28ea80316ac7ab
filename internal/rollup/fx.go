package rollup

import (
	"github.com/smallbiznis/retailsales/internal/rollup/export"
	"github.com/smallbiznis/retailsales/internal/rollup/extract"
	"github.com/smallbiznis/retailsales/internal/rollup/repository"
	"github.com/smallbiznis/retailsales/internal/rollup/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rollup",
	fx.Provide(NewCatalogue),
	fx.Provide(extract.New),
	fx.Provide(extract.NewDeltaSource),
	fx.Provide(repository.New),
	fx.Provide(repository.NewSnapshotStore),
	fx.Provide(service.New),
	fx.Provide(export.New),
)
