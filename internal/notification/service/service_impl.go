package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/zutali/conmart/internal/clock"
	notificationdomain "github.com/zutali/conmart/internal/notification/domain"
	obsmetrics "github.com/zutali/conmart/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    notificationdomain.Repository
	metrics *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    notificationdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) notificationdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("notification.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

// Record implements domain.Service.
func (s *Service) Record(ctx context.Context, decision notificationdomain.Decision) error {
	notification := &notificationdomain.Notification{
		ID:                 s.genID.Generate(),
		RecipientAccountID: decision.RecipientAccountID,
		Kind:               decision.Kind,
		Title:              decision.Title,
		Message:            decision.Message,
		CreatedAt:          s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, notification); err != nil {
		s.log.Error("record notification",
			zap.String("kind", string(decision.Kind)),
			zap.Int64("recipient", int64(decision.RecipientAccountID)),
			zap.Error(err),
		)
		return err
	}
	s.metrics.RecordNotificationDecision(ctx, string(decision.Kind))
	return nil
}

// ListByRecipient implements domain.Service.
func (s *Service) ListByRecipient(ctx context.Context, recipientAccountID snowflake.ID, limit int) ([]notificationdomain.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByRecipient(ctx, s.db, recipientAccountID, limit)
}
