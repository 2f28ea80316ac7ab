package fact

import (
	"github.com/smallbiznis/retailsales/internal/fact/repository"
	"github.com/smallbiznis/retailsales/internal/fact/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fact.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
