package entitlement

import (
	"github.com/zutali/conmart/internal/entitlement/repository"
	"github.com/zutali/conmart/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
