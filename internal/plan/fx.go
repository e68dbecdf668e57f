package plan

import (
	"github.com/zutali/conmart/internal/plan/repository"
	"github.com/zutali/conmart/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
