package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/tanafus/tender/internal/tender/entity"
	"github.com/tanafus/tender/internal/tender/repository"
	"go.uber.org/zap"
)

// BidService 投标台账：迟交处理与废标
type BidService struct {
	bidRepo    *repository.BidRepository
	tenderRepo *repository.TenderRepository
	store      ObjectStore
	events     *EventPublisher
	logger     *zap.Logger
}

func NewBidService(
	bidRepo *repository.BidRepository,
	tenderRepo *repository.TenderRepository,
	store ObjectStore,
	events *EventPublisher,
	logger *zap.Logger,
) *BidService {
	return &BidService{
		bidRepo:    bidRepo,
		tenderRepo: tenderRepo,
		store:      store,
		events:     events,
		logger:     logger,
	}
}

// SubmitBidRequest 投标请求
type SubmitBidRequest struct {
	BidderID          string  `json:"bidder_id" binding:"required"`
	Currency          string  `json:"currency"`
	NativeTotalAmount float64 `json:"native_total_amount"`
}

// Submit 登记投标，迟交自动打标
func (s *BidService) Submit(ctx context.Context, tenderID string, req *SubmitBidRequest) (*entity.BidSubmission, error) {
	tender, err := s.tenderRepo.FindByID(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "tender")
	}
	if tender.Status != entity.TenderStatusPublished {
		return nil, NewDomainError(CodeInvalidState,
			fmt.Sprintf("bids can only be submitted to a published tender (current status: %s)", tender.Status))
	}

	// 同一投标人在同一招标下只允许一条有效投标
	if existing, err := s.bidRepo.FindByTenderAndBidder(ctx, tenderID, req.BidderID); err == nil && existing != nil {
		return nil, NewDomainError(CodeValidationFailed,
			"bidder has already submitted a bid for this tender", "bidder_id")
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	currency := req.Currency
	if currency == "" {
		currency = tender.BaseCurrency
	}

	bid := &entity.BidSubmission{
		ID:                uuid.New().String()[:32],
		TenderID:          tenderID,
		BidderID:          req.BidderID,
		SubmittedAt:       now,
		Status:            entity.BidStatusSubmitted,
		IsLate:            now.After(tender.SubmissionDeadline),
		Currency:          currency,
		FxRate:            1,
		NativeTotalAmount: req.NativeTotalAmount,
		ImportStatus:      entity.ImportStatusPending,
		Version:           1,
	}

	if err := s.bidRepo.Create(ctx, bid); err != nil {
		return nil, fmt.Errorf("create bid submission: %w", err)
	}

	s.events.Publish(EventBidSubmitted, tenderID, map[string]interface{}{
		"bid_id":  bid.ID,
		"is_late": bid.IsLate,
	})

	return bid, nil
}

// ListByTender 查询招标下全部投标
func (s *BidService) ListByTender(ctx context.Context, tenderID string) ([]entity.BidSubmission, error) {
	return s.bidRepo.FindByTender(ctx, tenderID)
}

// Get 获取投标详情
func (s *BidService) Get(ctx context.Context, bidID string) (*entity.BidSubmission, error) {
	bid, err := s.bidRepo.FindByID(ctx, bidID)
	if err != nil {
		return nil, mapRepoErr(err, "bid")
	}
	return bid, nil
}

// AcceptLate 接受迟交投标
func (s *BidService) AcceptLate(ctx context.Context, bidID, actor, reason string) (*entity.BidSubmission, error) {
	return s.decideLate(ctx, bidID, actor, reason, true)
}

// RejectLate 拒绝迟交投标
func (s *BidService) RejectLate(ctx context.Context, bidID, actor, reason string) (*entity.BidSubmission, error) {
	return s.decideLate(ctx, bidID, actor, reason, false)
}

// decideLate 迟交裁决：bid.IsLate 且尚未裁决时才允许，且只允许一次
func (s *BidService) decideLate(ctx context.Context, bidID, actor, reason string, accepted bool) (*entity.BidSubmission, error) {
	if reason == "" {
		return nil, NewDomainError(CodeValidationFailed, "a late-bid decision requires a reason", "reason")
	}

	bid, err := s.bidRepo.FindByID(ctx, bidID)
	if err != nil {
		return nil, mapRepoErr(err, "bid")
	}

	if !bid.IsLate {
		return nil, NewDomainError(CodeInvalidState, "bid is not late, no decision applicable")
	}
	if bid.LateAccepted != nil {
		return nil, NewDomainError(CodeDecisionAlreadyMade,
			"the late-bid decision has already been taken for this bid")
	}

	now := time.Now()
	updates := map[string]interface{}{
		"late_accepted":        accepted,
		"late_decision_reason": reason,
		"late_decision_by":     actor,
		"late_decided_at":      now,
	}
	if err := s.bidRepo.UpdateWithVersion(ctx, bid, updates); err != nil {
		return nil, mapVersionErr(err)
	}

	bid.LateAccepted = &accepted
	bid.LateDecisionReason = reason
	bid.LateDecisionBy = actor
	bid.LateDecidedAt = &now

	event := EventLateRejected
	if accepted {
		event = EventLateAccepted
	}
	s.events.Publish(event, bid.TenderID, map[string]interface{}{
		"bid_id": bid.ID,
		"actor":  actor,
	})

	return bid, nil
}

// Disqualify 废标
//
// 仅已开标（opened）的投标可废；废标在本评标周期内不可逆，记录保留以备审计。
func (s *BidService) Disqualify(ctx context.Context, bidID, actor, reason string) (*entity.BidSubmission, error) {
	if reason == "" {
		return nil, NewDomainError(CodeValidationFailed, "disqualification requires a reason", "reason")
	}

	bid, err := s.bidRepo.FindByID(ctx, bidID)
	if err != nil {
		return nil, mapRepoErr(err, "bid")
	}

	if bid.Status == entity.BidStatusDisqualified {
		return nil, NewDomainError(CodeDecisionAlreadyMade, "bid is already disqualified")
	}
	if bid.Status != entity.BidStatusOpened {
		return nil, NewDomainError(CodeInvalidState,
			fmt.Sprintf("only an opened bid can be disqualified (current status: %s)", bid.Status))
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":            entity.BidStatusDisqualified,
		"disqualify_reason": reason,
		"disqualified_by":   actor,
		"disqualified_at":   now,
	}
	if err := s.bidRepo.UpdateWithVersion(ctx, bid, updates); err != nil {
		return nil, mapVersionErr(err)
	}

	bid.Status = entity.BidStatusDisqualified
	bid.DisqualifyReason = reason
	bid.DisqualifiedBy = actor
	bid.DisqualifiedAt = &now

	s.logger.Info("Bid disqualified",
		zap.String("bid_id", bid.ID),
		zap.String("tender_id", bid.TenderID),
		zap.String("actor", actor),
	)
	s.events.Publish(EventBidDisqualified, bid.TenderID, map[string]interface{}{
		"bid_id": bid.ID,
		"actor":  actor,
		"reason": reason,
	})

	return bid, nil
}

// AttachPricingFile 上传报价表格，对象键写回投标记录
func (s *BidService) AttachPricingFile(ctx context.Context, bidID, filename string, reader io.Reader, size int64, contentType string) (*entity.BidSubmission, error) {
	bid, err := s.bidRepo.FindByID(ctx, bidID)
	if err != nil {
		return nil, mapRepoErr(err, "bid")
	}
	if bid.ImportStatus == entity.ImportStatusImported {
		return nil, NewDomainError(CodeAlreadyImported,
			"pricing has already been imported for this bid")
	}

	key := fmt.Sprintf("pricing/%s/%s_%s", bid.TenderID, bid.ID, filename)
	if err := s.store.Put(ctx, key, reader, size, contentType); err != nil {
		return nil, fmt.Errorf("store pricing file: %w", err)
	}

	updates := map[string]interface{}{
		"pricing_file_key": key,
	}
	if err := s.bidRepo.UpdateWithVersion(ctx, bid, updates); err != nil {
		return nil, mapVersionErr(err)
	}
	bid.PricingFileKey = key

	return bid, nil
}
