package gateway

import (
	"github.com/zutali/conmart/internal/config"
	"github.com/zutali/conmart/internal/gateway/chapa"
	gatewaydomain "github.com/zutali/conmart/internal/gateway/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(func(cfg config.Config, log *zap.Logger) gatewaydomain.Client {
		return chapa.New(cfg.Chapa, log)
	}),
)
