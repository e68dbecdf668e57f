package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/zutali/conmart/internal/clock"
	"github.com/zutali/conmart/internal/config"
	plandomain "github.com/zutali/conmart/internal/plan/domain"
	"github.com/zutali/conmart/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    plandomain.Repository
	catalog *config.CatalogConfigHolder
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    plandomain.Repository
	Catalog *config.CatalogConfigHolder
}

func NewService(p ServiceParam) plandomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("plan.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		catalog: p.Catalog,
	}
}

// GetPlan implements domain.Service.
func (s *Service) GetPlan(ctx context.Context, code string) (*plandomain.Plan, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, plandomain.ErrInvalidPlan
	}

	plan, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if plan == nil || !plan.Active {
		return nil, plandomain.ErrPlanNotFound
	}
	return plan, nil
}

// FindPlan implements domain.Service. Unlike GetPlan it ignores the active
// flag: payments verified after a plan was pulled from sale still settle.
func (s *Service) FindPlan(ctx context.Context, code string) (*plandomain.Plan, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, plandomain.ErrInvalidPlan
	}

	plan, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}
	return plan, nil
}

// EnsurePlan implements domain.Service.
func (s *Service) EnsurePlan(ctx context.Context, code string) (*plandomain.Plan, error) {
	code = strings.TrimSpace(code)
	spec, ok := s.lookupSpec(code)
	if !ok {
		return nil, plandomain.ErrPlanNotFound
	}

	plan, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		if !plan.Active {
			if err := s.repo.SetActive(ctx, s.db, code, true); err != nil {
				return nil, err
			}
			plan.Active = true
			s.log.Info("reactivated plan", zap.String("plan_code", code))
		}
		return plan, nil
	}

	created, err := s.planFromSpec(spec)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, s.db, created); err != nil {
		// Races with a concurrent EnsurePlan are resolved by re-reading.
		if db.IsDuplicateKeyErr(err) {
			return s.GetPlan(ctx, code)
		}
		return nil, err
	}
	s.log.Info("created plan",
		zap.String("plan_code", code),
		zap.Float64("amount", created.Amount),
		zap.String("currency", created.Currency),
	)
	return created, nil
}

// List implements domain.Service.
func (s *Service) List(ctx context.Context) ([]plandomain.Plan, error) {
	return s.repo.ListActive(ctx, s.db)
}

// Deactivate implements domain.Service.
func (s *Service) Deactivate(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	plan, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return err
	}
	if plan == nil {
		return plandomain.ErrPlanNotFound
	}
	return s.repo.SetActive(ctx, s.db, code, false)
}

func (s *Service) lookupSpec(code string) (config.PlanSpec, bool) {
	for _, spec := range s.catalog.Get().Plans {
		if spec.Code == code {
			return spec, true
		}
	}
	return config.PlanSpec{}, false
}

func (s *Service) planFromSpec(spec config.PlanSpec) (*plandomain.Plan, error) {
	features, err := json.Marshal(spec.Features)
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(spec.Currency))
	if currency == "" {
		currency = "ETB"
	}
	durationDays := spec.DurationDays
	if durationDays <= 0 {
		durationDays = 30
	}

	now := s.clock.Now()
	return &plandomain.Plan{
		ID:            s.genID.Generate(),
		Code:          spec.Code,
		Role:          plandomain.PlanRole(spec.Role),
		Tier:          spec.Tier,
		DisplayName:   spec.DisplayName,
		Amount:        spec.Amount,
		Currency:      currency,
		DurationDays:  durationDays,
		CapacityLimit: spec.CapacityLimit,
		Features:      datatypes.JSON(features),
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
