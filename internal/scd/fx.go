package scd

import (
	factdomain "github.com/smallbiznis/retailsales/internal/fact/domain"
	"github.com/smallbiznis/retailsales/internal/scd/repository"
	"github.com/smallbiznis/retailsales/internal/scd/service"
	"go.uber.org/fx"
)

var Module = fx.Module("scd.address",
	fx.Provide(repository.Provide),
	fx.Provide(func(facts factdomain.Service) service.AddressFeed { return facts }),
	fx.Provide(service.New),
)
