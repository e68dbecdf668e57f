// Package seed populates the default plan catalog on startup so a fresh
// install can sell subscriptions without manual setup.
package seed

import (
	"context"
	"errors"

	"github.com/zutali/conmart/internal/config"
	plandomain "github.com/zutali/conmart/internal/plan/domain"
	"go.uber.org/zap"
)

// EnsureDefaultPlans creates or reactivates every plan the catalog config
// names. Plans already present keep their stored terms; the catalog only
// fills gaps.
func EnsureDefaultPlans(ctx context.Context, plansvc plandomain.Service, holder *config.CatalogConfigHolder, log *zap.Logger) error {
	if plansvc == nil || holder == nil {
		return errors.New("seed requires the plan service and catalog config")
	}

	var errs []error
	for _, spec := range holder.Get().Plans {
		if _, err := plansvc.EnsurePlan(ctx, spec.Code); err != nil {
			log.Error("seeding plan", zap.String("plan_code", spec.Code), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
