package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tanafus/tender/internal/tender/entity"
	"github.com/tanafus/tender/internal/tender/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LifecycleService 招标生命周期状态机
//
// draft → published → evaluation → awarded; cancellation is terminal from
// any non-awarded state. Every transition CASes the tender version, so two
// admins racing (e.g. open-bids vs cancel) serialize and the loser gets a
// concurrent-modification error instead of silently overwriting.
type LifecycleService struct {
	tenderRepo *repository.TenderRepository
	bidRepo    *repository.BidRepository
	events     *EventPublisher
	logger     *zap.Logger
}

func NewLifecycleService(
	tenderRepo *repository.TenderRepository,
	bidRepo *repository.BidRepository,
	events *EventPublisher,
	logger *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
		tenderRepo: tenderRepo,
		bidRepo:    bidRepo,
		events:     events,
		logger:     logger,
	}
}

// CreateTenderRequest 创建招标请求
type CreateTenderRequest struct {
	Reference          string    `json:"reference" binding:"required"`
	Title              string    `json:"title" binding:"required"`
	BaseCurrency       string    `json:"base_currency"`
	TechnicalWeight    int       `json:"technical_weight"`
	CommercialWeight   int       `json:"commercial_weight"`
	SubmissionDeadline time.Time `json:"submission_deadline" binding:"required"`

	BOQItems []struct {
		ItemNumber  string  `json:"item_number" binding:"required"`
		Description string  `json:"description" binding:"required"`
		Quantity    float64 `json:"quantity"`
		UOM         string  `json:"uom"`
	} `json:"boq_items"`

	Criteria []struct {
		Name             string  `json:"name" binding:"required"`
		WeightPercentage float64 `json:"weight_percentage"`
	} `json:"criteria"`
}

// Create 创建招标（草稿态）
func (s *LifecycleService) Create(ctx context.Context, actor string, req *CreateTenderRequest) (*entity.Tender, error) {
	if req.TechnicalWeight+req.CommercialWeight != 100 {
		return nil, NewDomainError(CodeWeightMismatch,
			fmt.Sprintf("technical and commercial weights must sum to 100, got %d+%d",
				req.TechnicalWeight, req.CommercialWeight),
			"technical_weight", "commercial_weight")
	}

	currency := req.BaseCurrency
	if currency == "" {
		currency = "SAR"
	}

	tender := &entity.Tender{
		ID:                 uuid.New().String()[:32],
		Reference:          req.Reference,
		Title:              req.Title,
		Status:             entity.TenderStatusDraft,
		BaseCurrency:       currency,
		TechnicalWeight:    req.TechnicalWeight,
		CommercialWeight:   req.CommercialWeight,
		SubmissionDeadline: req.SubmissionDeadline,
		Version:            1,
		CreatedBy:          actor,
	}

	for i, item := range req.BOQItems {
		tender.BOQItems = append(tender.BOQItems, entity.BOQItem{
			ID:          uuid.New().String()[:32],
			TenderID:    tender.ID,
			ItemNumber:  item.ItemNumber,
			Description: item.Description,
			Quantity:    item.Quantity,
			UOM:         item.UOM,
			SortOrder:   i,
		})
	}
	for i, c := range req.Criteria {
		tender.Criteria = append(tender.Criteria, entity.EvaluationCriterion{
			ID:               uuid.New().String()[:32],
			TenderID:         tender.ID,
			Name:             c.Name,
			WeightPercentage: c.WeightPercentage,
			SortOrder:        i,
		})
	}

	if err := s.tenderRepo.Create(ctx, tender); err != nil {
		return nil, fmt.Errorf("create tender: %w", err)
	}
	return tender, nil
}

// Get 获取招标详情
func (s *LifecycleService) Get(ctx context.Context, tenderID string) (*entity.Tender, error) {
	tender, err := s.tenderRepo.FindByIDWithDetails(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "tender")
	}
	return tender, nil
}

// List 获取招标列表
func (s *LifecycleService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Tender, int64, error) {
	return s.tenderRepo.FindAll(ctx, page, pageSize, filters)
}

// Publish 发布招标
//
// 仅草稿态可发布；要求至少一条BOQ且评标准则权重之和为100。
func (s *LifecycleService) Publish(ctx context.Context, tenderID, actor string) (*entity.Tender, error) {
	tender, err := s.tenderRepo.FindByIDWithDetails(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "tender")
	}

	if tender.Status != entity.TenderStatusDraft {
		return nil, NewDomainError(CodeInvalidState,
			fmt.Sprintf("only a draft tender can be published (current status: %s)", tender.Status))
	}

	// 一次性枚举全部校验问题
	var fields []string
	if len(tender.BOQItems) == 0 {
		fields = append(fields, "boq_items")
	}
	var weightSum float64
	for _, c := range tender.Criteria {
		weightSum += c.WeightPercentage
	}
	if len(tender.Criteria) == 0 || math.Abs(weightSum-100) > 0.001 {
		fields = append(fields, "criteria")
	}
	if tender.TechnicalWeight+tender.CommercialWeight != 100 {
		fields = append(fields, "technical_weight", "commercial_weight")
	}
	if len(fields) > 0 {
		return nil, NewDomainError(CodeValidationFailed,
			"tender is not ready to publish", fields...)
	}

	updates := map[string]interface{}{
		"status": entity.TenderStatusPublished,
	}
	if err := s.tenderRepo.UpdateWithVersion(ctx, tender, updates); err != nil {
		return nil, mapVersionErr(err)
	}
	tender.Status = entity.TenderStatusPublished

	s.logger.Info("Tender published",
		zap.String("tender_id", tender.ID),
		zap.String("actor", actor),
	)
	s.events.Publish(EventTenderPublished, tender.ID, map[string]interface{}{"actor": actor})

	return tender, nil
}

// Cancel 取消招标（已授标/已取消不可再取消）
func (s *LifecycleService) Cancel(ctx context.Context, tenderID, actor, reason string) (*entity.Tender, error) {
	if reason == "" {
		return nil, NewDomainError(CodeValidationFailed, "cancellation requires a reason", "reason")
	}

	tender, err := s.tenderRepo.FindByID(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "tender")
	}

	if tender.IsTerminal() {
		return nil, NewDomainError(CodeTerminalState,
			fmt.Sprintf("tender is already %s and cannot be cancelled", tender.Status))
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":        entity.TenderStatusCancelled,
		"cancel_reason": reason,
		"cancelled_by":  actor,
		"cancelled_at":  now,
	}
	if err := s.tenderRepo.UpdateWithVersion(ctx, tender, updates); err != nil {
		return nil, mapVersionErr(err)
	}
	tender.Status = entity.TenderStatusCancelled
	tender.CancelReason = reason
	tender.CancelledBy = actor
	tender.CancelledAt = &now

	s.logger.Info("Tender cancelled",
		zap.String("tender_id", tender.ID),
		zap.String("actor", actor),
	)
	s.events.Publish(EventTenderCancelled, tender.ID, map[string]interface{}{
		"actor":  actor,
		"reason": reason,
	})

	return tender, nil
}

// OpenBids 开标：截止时间已过后，将全部submitted投标置为opened，招标进入评标态
//
// Idempotent: re-invoking on a tender already in evaluation is a no-op
// success, tolerating workflow retries.
func (s *LifecycleService) OpenBids(ctx context.Context, tenderID, actor string) (*entity.Tender, error) {
	tender, err := s.tenderRepo.FindByID(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "tender")
	}

	if tender.Status == entity.TenderStatusEvaluation {
		return tender, nil
	}
	if tender.Status != entity.TenderStatusPublished {
		return nil, NewDomainError(CodeInvalidState,
			fmt.Sprintf("bids can only be opened on a published tender (current status: %s)", tender.Status))
	}
	if time.Now().Before(tender.SubmissionDeadline) {
		return nil, NewDomainError(CodeInvalidState,
			"submission deadline has not elapsed yet")
	}

	now := time.Now()
	err = s.bidRepo.DB().Transaction(func(tx *gorm.DB) error {
		if err := s.bidRepo.OpenSubmitted(ctx, tx, tender.ID); err != nil {
			return fmt.Errorf("open submitted bids: %w", err)
		}

		res := tx.WithContext(ctx).Model(&entity.Tender{}).
			Where("id = ? AND version = ?", tender.ID, tender.Version).
			Updates(map[string]interface{}{
				"status":       entity.TenderStatusEvaluation,
				"opening_date": now,
				"version":      tender.Version + 1,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrVersionConflict
		}
		return nil
	})
	if err != nil {
		return nil, mapVersionErr(err)
	}

	tender.Status = entity.TenderStatusEvaluation
	tender.OpeningDate = &now
	tender.Version++

	s.logger.Info("Bids opened",
		zap.String("tender_id", tender.ID),
		zap.String("actor", actor),
	)
	s.events.Publish(EventBidsOpened, tender.ID, map[string]interface{}{"actor": actor})

	return tender, nil
}

// mapRepoErr 仓库错误 → 领域错误
func mapRepoErr(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return NewDomainError(CodeNotFound, what+" not found")
	}
	return err
}

// mapVersionErr 乐观锁冲突 → 并发修改错误
func mapVersionErr(err error) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		return NewDomainError(CodeConcurrentModification,
			"the record was modified concurrently, reload and retry")
	}
	return err
}
