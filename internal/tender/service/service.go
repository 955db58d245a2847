package service

import (
	"github.com/redis/go-redis/v9"
	"github.com/tanafus/tender/internal/config"
	"github.com/tanafus/tender/internal/tender/repository"
	"go.uber.org/zap"
)

// Services 服务集合
type Services struct {
	Lifecycle  *LifecycleService
	Bid        *BidService
	Import     *ImportService
	Evaluation *EvaluationService
	Approval   *ApprovalService
}

// NewServices 创建服务集合
func NewServices(
	repos *repository.Repositories,
	rdb *redis.Client,
	store ObjectStore,
	cfg *config.Config,
	logger *zap.Logger,
) *Services {
	events := NewEventPublisher(rdb, logger)

	lifecycle := NewLifecycleService(repos.Tender, repos.Bid, events, logger)
	bid := NewBidService(repos.Bid, repos.Tender, store, events, logger)
	imp := NewImportService(repos.Import, repos.Bid, repos.Tender, repos.Pricing, store, cfg.Import, events, logger)
	evaluation := NewEvaluationService(repos.Evaluation, repos.Tender, repos.Bid, repos.Pricing, rdb, events, logger)
	approval := NewApprovalService(repos.Approval, repos.Tender, repos.Evaluation, events, logger)

	return &Services{
		Lifecycle:  lifecycle,
		Bid:        bid,
		Import:     imp,
		Evaluation: evaluation,
		Approval:   approval,
	}
}
