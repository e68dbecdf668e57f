package migration

import (
	"context"

	accountdomain "github.com/zutali/conmart/internal/account/domain"
	"github.com/zutali/conmart/internal/config"
	notificationdomain "github.com/zutali/conmart/internal/notification/domain"
	plandomain "github.com/zutali/conmart/internal/plan/domain"
	"github.com/zutali/conmart/internal/seed"
	subscriptiondomain "github.com/zutali/conmart/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, holder *config.CatalogConfigHolder, plansvc plandomain.Service, log *zap.Logger) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres targets (local sqlite) skip the SQL migration
			// chain and let gorm derive the schema.
			if err := conn.AutoMigrate(
				&plandomain.Plan{},
				&accountdomain.Account{},
				&accountdomain.SellerProfile{},
				&accountdomain.Listing{},
				&subscriptiondomain.Subscription{},
				&subscriptiondomain.PaymentTransaction{},
				&notificationdomain.Notification{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureDefaultPlans(context.Background(), plansvc, holder, log.Named("seed"))
	}),
)
