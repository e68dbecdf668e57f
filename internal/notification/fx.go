package notification

import (
	"github.com/zutali/conmart/internal/notification/repository"
	"github.com/zutali/conmart/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
