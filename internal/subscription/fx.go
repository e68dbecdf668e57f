package subscription

import (
	"github.com/zutali/conmart/internal/subscription/repository"
	"github.com/zutali/conmart/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
