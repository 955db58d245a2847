package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tanafus/tender/internal/tender/entity"
	"github.com/tanafus/tender/internal/tender/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 评标缓存键与TTL
const (
	evalCacheTTL = 10 * time.Minute
)

// EvaluationService 技术/商务评分与综合排名
//
// Technical scores are panelist-owned and frozen by an explicit lock.
// Commercial and combined scores are derived data: recomputed in full and
// replaced as a set, never edited row by row.
type EvaluationService struct {
	evalRepo    *repository.EvaluationRepository
	tenderRepo  *repository.TenderRepository
	bidRepo     *repository.BidRepository
	pricingRepo *repository.PricingRepository
	rdb         *redis.Client
	events      *EventPublisher
	logger      *zap.Logger
}

func NewEvaluationService(
	evalRepo *repository.EvaluationRepository,
	tenderRepo *repository.TenderRepository,
	bidRepo *repository.BidRepository,
	pricingRepo *repository.PricingRepository,
	rdb *redis.Client,
	events *EventPublisher,
	logger *zap.Logger,
) *EvaluationService {
	return &EvaluationService{
		evalRepo:    evalRepo,
		tenderRepo:  tenderRepo,
		bidRepo:     bidRepo,
		pricingRepo: pricingRepo,
		rdb:         rdb,
		events:      events,
		logger:      logger,
	}
}

// SetupPanelRequest 评标小组设置请求
type SetupPanelRequest struct {
	PanelistIDs []string `json:"panelist_ids" binding:"required"`
	BlindMode   bool     `json:"blind_mode"`
}

// SetupPanel 设置评标小组（每个招标一次）
func (s *EvaluationService) SetupPanel(ctx context.Context, tenderID, actor string, req *SetupPanelRequest) (*entity.EvaluationPanel, error) {
	tender, err := s.tenderRepo.FindByID(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "tender")
	}
	if tender.Status != entity.TenderStatusEvaluation {
		return nil, NewDomainError(CodeInvalidState,
			fmt.Sprintf("the panel can only be set up once bids are opened (current status: %s)", tender.Status))
	}
	if len(req.PanelistIDs) == 0 {
		return nil, NewDomainError(CodeValidationFailed, "at least one panelist is required", "panelist_ids")
	}

	if existing, err := s.evalRepo.FindPanelByTender(ctx, tenderID); err == nil && existing != nil {
		return nil, NewDomainError(CodeInvalidState, "an evaluation panel already exists for this tender")
	}

	// 成员去重，保持顺序
	seen := map[string]bool{}
	panelists := make(entity.StringList, 0, len(req.PanelistIDs))
	for _, id := range req.PanelistIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		panelists = append(panelists, id)
	}

	panel := &entity.EvaluationPanel{
		ID:            uuid.New().String()[:32],
		TenderID:      tenderID,
		Status:        entity.EvalStatusPanelSetup,
		ScoringMethod: entity.ScoringMethodWeighted,
		BlindMode:     req.BlindMode,
		PanelistIDs:   panelists,
		Version:       1,
		CreatedBy:     actor,
	}
	if err := s.evalRepo.CreatePanel(ctx, panel); err != nil {
		return nil, fmt.Errorf("create evaluation panel: %w", err)
	}
	return panel, nil
}

// GetPanel 获取评标小组
func (s *EvaluationService) GetPanel(ctx context.Context, tenderID string) (*entity.EvaluationPanel, error) {
	panel, err := s.evalRepo.FindPanelByTender(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "evaluation panel")
	}
	return panel, nil
}

// ScoreInput 单条评分
type ScoreInput struct {
	BidSubmissionID string  `json:"bid_submission_id" binding:"required"`
	CriterionID     string  `json:"criterion_id" binding:"required"`
	Score           float64 `json:"score"`
	Comment         string  `json:"comment"`
}

// SubmitScoresRequest 批量提交评分
//
// IsFinalSubmission marks the batch as the panelist's final word on the
// scores it contains; the technical lock only counts finalized scores.
type SubmitScoresRequest struct {
	Scores            []ScoreInput `json:"scores" binding:"required"`
	IsFinalSubmission bool         `json:"is_final_submission"`
}

// SubmitScores 评委提交/修订技术评分
//
// Whole-batch validation: range violations, missing justifications and bad
// references are all collected before anything is written. A panelist can
// revise freely until the technical lock; after that every write is refused.
func (s *EvaluationService) SubmitScores(ctx context.Context, tenderID, panelistID string, req *SubmitScoresRequest) error {
	panel, err := s.evalRepo.FindPanelByTender(ctx, tenderID)
	if err != nil {
		return mapRepoErr(err, "evaluation panel")
	}
	if !panel.HasPanelist(panelistID) {
		return NewDomainError(CodeForbidden, "only panel members may submit scores")
	}
	if panel.Status == entity.EvalStatusTechnicalLocked ||
		panel.Status == entity.EvalStatusCommercialCalculated ||
		panel.Status == entity.EvalStatusCombinedCalculated {
		return NewDomainError(CodeScoresLocked, "technical scores are locked and can no longer be changed")
	}
	if len(req.Scores) == 0 {
		return NewDomainError(CodeValidationFailed, "no scores provided", "scores")
	}

	criteria, err := s.tenderRepo.FindCriteria(ctx, tenderID)
	if err != nil {
		return fmt.Errorf("load criteria: %w", err)
	}
	criterionSet := map[string]bool{}
	for _, c := range criteria {
		criterionSet[c.ID] = true
	}

	bids, err := s.bidRepo.FindByTender(ctx, tenderID)
	if err != nil {
		return fmt.Errorf("load bids: %w", err)
	}
	scoreable := map[string]bool{}
	for i := range bids {
		if isScoreable(&bids[i]) {
			scoreable[bids[i].ID] = true
		}
	}

	var rangeViolations, missingJustifications, badRefs []string
	for i, in := range req.Scores {
		if in.Score < 0 || in.Score > 10 {
			rangeViolations = append(rangeViolations, fmt.Sprintf("scores[%d]", i))
		}
		if entity.NeedsJustification(in.Score) && in.Comment == "" {
			missingJustifications = append(missingJustifications, fmt.Sprintf("scores[%d]", i))
		}
		if !scoreable[in.BidSubmissionID] {
			badRefs = append(badRefs, fmt.Sprintf("scores[%d].bid_submission_id", i))
		}
		if !criterionSet[in.CriterionID] {
			badRefs = append(badRefs, fmt.Sprintf("scores[%d].criterion_id", i))
		}
	}
	if len(rangeViolations) > 0 {
		return NewDomainError(CodeValidationFailed,
			"scores must be between 0 and 10", rangeViolations...)
	}
	if len(missingJustifications) > 0 {
		return NewDomainError(CodeMissingJustification,
			"scores below 3 or above 8 require a justification comment", missingJustifications...)
	}
	if len(badRefs) > 0 {
		return NewDomainError(CodeValidationFailed,
			"scores reference bids or criteria outside this tender's evaluation pool", badRefs...)
	}

	now := time.Now()
	for _, in := range req.Scores {
		score := &entity.EvaluationScore{
			ID:              uuid.New().String()[:32],
			TenderID:        tenderID,
			BidSubmissionID: in.BidSubmissionID,
			CriterionID:     in.CriterionID,
			PanelistID:      panelistID,
			Score:           in.Score,
			Comment:         in.Comment,
			IsFinal:         req.IsFinalSubmission,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.evalRepo.UpsertScore(ctx, score); err != nil {
			return fmt.Errorf("upsert score: %w", err)
		}
	}

	if panel.Status == entity.EvalStatusPanelSetup {
		if err := s.evalRepo.UpdatePanelWithVersion(ctx, panel, map[string]interface{}{
			"status": entity.EvalStatusScoring,
		}); err != nil && ErrorCode(mapVersionErr(err)) != CodeConcurrentModification {
			return err
		}
		panel.Status = entity.EvalStatusScoring
	}

	s.flushCaches(ctx, tenderID)
	return nil
}

// ListScores 查询评分；锁定前评委只能看自己的评分
func (s *EvaluationService) ListScores(ctx context.Context, tenderID, requesterID string, isAdmin bool) ([]entity.EvaluationScore, error) {
	panel, err := s.evalRepo.FindPanelByTender(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "evaluation panel")
	}

	locked := panel.Status == entity.EvalStatusTechnicalLocked ||
		panel.Status == entity.EvalStatusCommercialCalculated ||
		panel.Status == entity.EvalStatusCombinedCalculated
	if isAdmin || locked {
		return s.evalRepo.FindScoresByTender(ctx, tenderID)
	}
	if !panel.HasPanelist(requesterID) {
		return nil, NewDomainError(CodeForbidden, "only panel members may view scores before the lock")
	}
	return s.evalRepo.FindScoresByPanelist(ctx, tenderID, requesterID)
}

// LockTechnicalScores 锁定技术评分
//
// Completeness barrier: every scoreable bid must carry a finalized score on
// every criterion from every panelist; draft scores do not count, and every
// missing combination is listed. Locking twice is an idempotent no-op.
func (s *EvaluationService) LockTechnicalScores(ctx context.Context, tenderID, actor string) (*entity.EvaluationPanel, error) {
	panel, err := s.evalRepo.FindPanelByTender(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "evaluation panel")
	}
	if panel.Status == entity.EvalStatusTechnicalLocked ||
		panel.Status == entity.EvalStatusCommercialCalculated ||
		panel.Status == entity.EvalStatusCombinedCalculated {
		return panel, nil
	}

	criteria, err := s.tenderRepo.FindCriteria(ctx, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load criteria: %w", err)
	}
	bids, err := s.bidRepo.FindByTender(ctx, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load bids: %w", err)
	}
	scores, err := s.evalRepo.FindScoresByTender(ctx, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}

	// 只有定稿的评分才算完成；草稿不计入
	have := map[string]bool{}
	for _, sc := range scores {
		if sc.IsFinal {
			have[sc.BidSubmissionID+"/"+sc.CriterionID+"/"+sc.PanelistID] = true
		}
	}

	var missing []string
	for i := range bids {
		if !isScoreable(&bids[i]) {
			continue
		}
		for _, c := range criteria {
			for _, panelist := range panel.PanelistIDs {
				if !have[bids[i].ID+"/"+c.ID+"/"+panelist] {
					missing = append(missing,
						fmt.Sprintf("bid=%s criterion=%s panelist=%s", bids[i].ID, c.ID, panelist))
				}
			}
		}
	}
	if len(missing) > 0 {
		return nil, NewDomainError(CodeIncompleteScores,
			"every scoreable bid needs a finalized score on every criterion from every panelist before locking",
			missing...)
	}

	now := time.Now()
	if err := s.evalRepo.UpdatePanelWithVersion(ctx, panel, map[string]interface{}{
		"status":    entity.EvalStatusTechnicalLocked,
		"locked_by": actor,
		"locked_at": now,
	}); err != nil {
		return nil, mapVersionErr(err)
	}
	panel.Status = entity.EvalStatusTechnicalLocked
	panel.LockedBy = actor
	panel.LockedAt = &now

	s.flushCaches(ctx, tenderID)
	s.logger.Info("Technical scores locked",
		zap.String("tender_id", tenderID),
		zap.String("actor", actor),
	)
	s.events.Publish(EventScoresLocked, tenderID, map[string]interface{}{"actor": actor})

	return panel, nil
}

// CommercialScoreResult 商务评分结果
type CommercialScoreResult struct {
	BidSubmissionID string  `json:"bid_submission_id"`
	BidderID        string  `json:"bidder_id"`
	NormalizedTotal float64 `json:"normalized_total"`
	Score           float64 `json:"score"`
}

// CalculateCommercialScores 计算商务评分
//
// Lowest normalized total takes 10; every other bid scores
// 10 × lowest/total. Requires at least two eligible imported bids so the
// formula has a meaningful comparison base. Recomputation is allowed and
// replaces the previous result entirely.
func (s *EvaluationService) CalculateCommercialScores(ctx context.Context, tenderID, actor string) ([]CommercialScoreResult, error) {
	panel, err := s.evalRepo.FindPanelByTender(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "evaluation panel")
	}
	if panel.Status != entity.EvalStatusTechnicalLocked &&
		panel.Status != entity.EvalStatusCommercialCalculated &&
		panel.Status != entity.EvalStatusCombinedCalculated {
		return nil, NewDomainError(CodeInvalidState,
			"commercial scores can only be calculated after the technical lock")
	}

	results, err := s.computeCommercial(ctx, tenderID)
	if err != nil {
		return nil, err
	}

	if panel.Status == entity.EvalStatusTechnicalLocked {
		if err := s.evalRepo.UpdatePanelWithVersion(ctx, panel, map[string]interface{}{
			"status": entity.EvalStatusCommercialCalculated,
		}); err != nil {
			return nil, mapVersionErr(err)
		}
		panel.Status = entity.EvalStatusCommercialCalculated
	}

	s.flushCaches(ctx, tenderID)
	s.events.Publish(EventCommercialCalculated, tenderID, map[string]interface{}{
		"actor":     actor,
		"bid_count": len(results),
	})
	return results, nil
}

// CombinedScoresRequest 综合评分请求
//
// Weights are optional; when supplied they must restate the tender's
// configured split so a stale client cannot rank with the wrong weights.
type CombinedScoresRequest struct {
	TechnicalWeight  int `json:"technical_weight"`
	CommercialWeight int `json:"commercial_weight"`
}

// CalculateCombinedScores 计算综合评分与排名
//
// combined = technical × techWeight/100 + commercial × commWeight/100.
// Ranking ties break on lower normalized total, then earlier submission.
// The whole entry set is replaced in one transaction.
func (s *EvaluationService) CalculateCombinedScores(ctx context.Context, tenderID, actor string, req *CombinedScoresRequest) ([]entity.CombinedScoreEntry, error) {
	panel, err := s.evalRepo.FindPanelByTender(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "evaluation panel")
	}
	if panel.Status != entity.EvalStatusCommercialCalculated &&
		panel.Status != entity.EvalStatusCombinedCalculated {
		return nil, NewDomainError(CodeInvalidState,
			"combined scores require commercial scores to be calculated first")
	}

	tender, err := s.tenderRepo.FindByID(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "tender")
	}
	if tender.TechnicalWeight+tender.CommercialWeight != 100 {
		return nil, NewDomainError(CodeWeightMismatch,
			fmt.Sprintf("technical and commercial weights must sum to 100, got %d+%d",
				tender.TechnicalWeight, tender.CommercialWeight),
			"technical_weight", "commercial_weight")
	}
	if req != nil && (req.TechnicalWeight != 0 || req.CommercialWeight != 0) {
		if req.TechnicalWeight+req.CommercialWeight != 100 {
			return nil, NewDomainError(CodeWeightMismatch,
				fmt.Sprintf("requested weights must sum to 100, got %d+%d",
					req.TechnicalWeight, req.CommercialWeight),
				"technical_weight", "commercial_weight")
		}
		if req.TechnicalWeight != tender.TechnicalWeight || req.CommercialWeight != tender.CommercialWeight {
			return nil, NewDomainError(CodeWeightMismatch,
				fmt.Sprintf("requested weights %d/%d do not match the tender's configured %d/%d",
					req.TechnicalWeight, req.CommercialWeight,
					tender.TechnicalWeight, tender.CommercialWeight),
				"technical_weight", "commercial_weight")
		}
	}

	commercial, err := s.computeCommercial(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	commByBid := map[string]float64{}
	for _, c := range commercial {
		commByBid[c.BidSubmissionID] = c.Score
	}

	technical, err := s.computeTechnical(ctx, tenderID)
	if err != nil {
		return nil, err
	}

	bids, err := s.bidRepo.FindByTender(ctx, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load bids: %w", err)
	}
	bidByID := map[string]*entity.BidSubmission{}
	for i := range bids {
		bidByID[bids[i].ID] = &bids[i]
	}

	now := time.Now()
	entries := make([]entity.CombinedScoreEntry, 0, len(commercial))
	for _, c := range commercial {
		bid := bidByID[c.BidSubmissionID]
		tech := technical[c.BidSubmissionID]
		combined := tech*float64(tender.TechnicalWeight)/100 + c.Score*float64(tender.CommercialWeight)/100
		entries = append(entries, entity.CombinedScoreEntry{
			ID:              uuid.New().String()[:32],
			TenderID:        tenderID,
			BidSubmissionID: c.BidSubmissionID,
			BidderID:        bid.BidderID,
			TechnicalScore:  round2(tech),
			CommercialScore: round2(c.Score),
			CombinedScore:   round2(combined),
			ComputedAt:      now,
		})
	}

	// 排名：综合分降序 → 折算总价升序 → 递交时间升序
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CombinedScore != entries[j].CombinedScore {
			return entries[i].CombinedScore > entries[j].CombinedScore
		}
		bi, bj := bidByID[entries[i].BidSubmissionID], bidByID[entries[j].BidSubmissionID]
		if bi.NormalizedTotalAmount != bj.NormalizedTotalAmount {
			return bi.NormalizedTotalAmount < bj.NormalizedTotalAmount
		}
		return bi.SubmittedAt.Before(bj.SubmittedAt)
	})
	for i := range entries {
		entries[i].FinalRank = i + 1
		entries[i].IsRecommended = i == 0
	}

	err = s.evalRepo.DB().Transaction(func(tx *gorm.DB) error {
		if err := s.evalRepo.ReplaceCombinedEntries(ctx, tx, tenderID, entries); err != nil {
			return fmt.Errorf("replace combined entries: %w", err)
		}
		if panel.Status != entity.EvalStatusCombinedCalculated {
			res := tx.WithContext(ctx).Model(&entity.EvaluationPanel{}).
				Where("id = ? AND version = ?", panel.ID, panel.Version).
				Updates(map[string]interface{}{
					"status":     entity.EvalStatusCombinedCalculated,
					"version":    panel.Version + 1,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return repository.ErrVersionConflict
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapVersionErr(err)
	}
	panel.Status = entity.EvalStatusCombinedCalculated

	s.flushCaches(ctx, tenderID)
	s.logger.Info("Combined scores calculated",
		zap.String("tender_id", tenderID),
		zap.Int("entries", len(entries)),
	)
	s.events.Publish(EventCombinedCalculated, tenderID, map[string]interface{}{
		"actor":     actor,
		"bid_count": len(entries),
	})
	return entries, nil
}

// ComparableCell 可比对照表单元格：某投标在某BOQ条目上的折算报价
type ComparableCell struct {
	BidSubmissionID string  `json:"bid_submission_id"`
	BidderLabel     string  `json:"bidder_label"`
	UnitRate        float64 `json:"unit_rate"`
	Amount          float64 `json:"amount"`
	MatchType       string  `json:"match_type"`
}

// ComparableRow 对照表行（一条BOQ条目）
type ComparableRow struct {
	BOQItemID   string           `json:"boq_item_id"`
	ItemNumber  string           `json:"item_number"`
	Description string           `json:"description"`
	Quantity    float64          `json:"quantity"`
	UOM         string           `json:"uom"`
	Cells       []ComparableCell `json:"cells"`
}

// ComparableSheet 可比对照表
type ComparableSheet struct {
	TenderID     string            `json:"tender_id"`
	BaseCurrency string            `json:"base_currency"`
	BlindMode    bool              `json:"blind_mode"`
	Bidders      []ComparableTotal `json:"bidders"`
	Rows         []ComparableRow   `json:"rows"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// ComparableTotal 投标折算总价列头
type ComparableTotal struct {
	BidSubmissionID string  `json:"bid_submission_id"`
	BidderLabel     string  `json:"bidder_label"`
	NormalizedTotal float64 `json:"normalized_total"`
}

// GetComparableSheet 生成按BOQ条目对齐的多投标比价表
//
// Cached in redis until the next evaluation write. Blind mode replaces
// bidder identities with stable aliases ordered by submission time.
func (s *EvaluationService) GetComparableSheet(ctx context.Context, tenderID string) (*ComparableSheet, error) {
	cacheKey := "tender:comparable:" + tenderID
	if cached := s.cacheGet(ctx, cacheKey); cached != nil {
		var sheet ComparableSheet
		if json.Unmarshal(cached, &sheet) == nil {
			return &sheet, nil
		}
	}

	tender, err := s.tenderRepo.FindByIDWithDetails(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "tender")
	}

	blind := false
	if panel, err := s.evalRepo.FindPanelByTender(ctx, tenderID); err == nil {
		// 授标后揭盲
		blind = panel.BlindMode && tender.Status != entity.TenderStatusAwarded
	}

	bids, err := s.bidRepo.FindByTender(ctx, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load bids: %w", err)
	}
	eligible := make([]*entity.BidSubmission, 0, len(bids))
	for i := range bids {
		if bids[i].IsEligible() {
			eligible = append(eligible, &bids[i])
		}
	}
	if len(eligible) == 0 {
		return nil, NewDomainError(CodeNoEligibleBids,
			"no eligible imported bids to compare")
	}

	labels := map[string]string{}
	for i, bid := range eligible {
		if blind {
			labels[bid.ID] = bidderAlias(i)
		} else {
			labels[bid.ID] = bid.BidderID
		}
	}

	lines, err := s.pricingRepo.FindByTender(ctx, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load pricing lines: %w", err)
	}
	eligibleSet := map[string]bool{}
	for _, bid := range eligible {
		eligibleSet[bid.ID] = true
	}
	cellsByItem := map[string][]ComparableCell{}
	for _, line := range lines {
		if line.BOQItemID == nil || !line.IsComparable || !eligibleSet[line.BidSubmissionID] {
			continue
		}
		cellsByItem[*line.BOQItemID] = append(cellsByItem[*line.BOQItemID], ComparableCell{
			BidSubmissionID: line.BidSubmissionID,
			BidderLabel:     labels[line.BidSubmissionID],
			UnitRate:        line.NormalizedUnitRate,
			Amount:          line.NormalizedAmount,
			MatchType:       line.MatchType,
		})
	}

	sheet := &ComparableSheet{
		TenderID:     tenderID,
		BaseCurrency: tender.BaseCurrency,
		BlindMode:    blind,
		GeneratedAt:  time.Now(),
	}
	for _, bid := range eligible {
		sheet.Bidders = append(sheet.Bidders, ComparableTotal{
			BidSubmissionID: bid.ID,
			BidderLabel:     labels[bid.ID],
			NormalizedTotal: bid.NormalizedTotalAmount,
		})
	}
	for _, item := range tender.BOQItems {
		sheet.Rows = append(sheet.Rows, ComparableRow{
			BOQItemID:   item.ID,
			ItemNumber:  item.ItemNumber,
			Description: item.Description,
			Quantity:    item.Quantity,
			UOM:         item.UOM,
			Cells:       cellsByItem[item.ID],
		})
	}

	s.cacheSet(ctx, cacheKey, sheet)
	return sheet, nil
}

// ScorecardEntry 综合评分卡条目（盲评时投标人以别名展示）
type ScorecardEntry struct {
	BidSubmissionID string  `json:"bid_submission_id"`
	BidderLabel     string  `json:"bidder_label"`
	TechnicalScore  float64 `json:"technical_score"`
	CommercialScore float64 `json:"commercial_score"`
	CombinedScore   float64 `json:"combined_score"`
	FinalRank       int     `json:"final_rank"`
	IsRecommended   bool    `json:"is_recommended"`
}

// GetScorecard 获取综合评分卡
func (s *EvaluationService) GetScorecard(ctx context.Context, tenderID string) ([]ScorecardEntry, error) {
	entries, err := s.evalRepo.FindCombinedEntries(ctx, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load combined entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, NewDomainError(CodeInvalidState, "combined scores have not been calculated yet")
	}

	tender, err := s.tenderRepo.FindByID(ctx, tenderID)
	if err != nil {
		return nil, mapRepoErr(err, "tender")
	}
	blind := false
	if panel, err := s.evalRepo.FindPanelByTender(ctx, tenderID); err == nil {
		blind = panel.BlindMode && tender.Status != entity.TenderStatusAwarded
	}

	// 盲评别名按递交顺序分配，与比价表保持一致
	aliasByBid := map[string]string{}
	if blind {
		bids, err := s.bidRepo.FindByTender(ctx, tenderID)
		if err != nil {
			return nil, fmt.Errorf("load bids: %w", err)
		}
		i := 0
		for j := range bids {
			if bids[j].IsEligible() {
				aliasByBid[bids[j].ID] = bidderAlias(i)
				i++
			}
		}
	}

	out := make([]ScorecardEntry, 0, len(entries))
	for _, e := range entries {
		label := e.BidderID
		if blind {
			label = aliasByBid[e.BidSubmissionID]
		}
		out = append(out, ScorecardEntry{
			BidSubmissionID: e.BidSubmissionID,
			BidderLabel:     label,
			TechnicalScore:  e.TechnicalScore,
			CommercialScore: e.CommercialScore,
			CombinedScore:   e.CombinedScore,
			FinalRank:       e.FinalRank,
			IsRecommended:   e.IsRecommended,
		})
	}
	return out, nil
}

// === 内部计算 ===

// computeCommercial 商务评分公式：10 × 最低折算总价 / 本投标折算总价
func (s *EvaluationService) computeCommercial(ctx context.Context, tenderID string) ([]CommercialScoreResult, error) {
	bids, err := s.bidRepo.FindByTender(ctx, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load bids: %w", err)
	}

	eligible := make([]*entity.BidSubmission, 0, len(bids))
	for i := range bids {
		if bids[i].IsEligible() && bids[i].NormalizedTotalAmount > 0 {
			eligible = append(eligible, &bids[i])
		}
	}
	if len(eligible) < 2 {
		return nil, NewDomainError(CodeNoEligibleBids,
			fmt.Sprintf("commercial scoring requires at least two eligible imported bids, found %d", len(eligible)))
	}

	lowest := eligible[0].NormalizedTotalAmount
	for _, bid := range eligible[1:] {
		if bid.NormalizedTotalAmount < lowest {
			lowest = bid.NormalizedTotalAmount
		}
	}

	results := make([]CommercialScoreResult, 0, len(eligible))
	for _, bid := range eligible {
		results = append(results, CommercialScoreResult{
			BidSubmissionID: bid.ID,
			BidderID:        bid.BidderID,
			NormalizedTotal: bid.NormalizedTotalAmount,
			Score:           round2(10 * lowest / bid.NormalizedTotalAmount),
		})
	}
	return results, nil
}

// computeTechnical 技术评分：每(投标,准则)取小组均分，再按准则权重加权求和
func (s *EvaluationService) computeTechnical(ctx context.Context, tenderID string) (map[string]float64, error) {
	criteria, err := s.tenderRepo.FindCriteria(ctx, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load criteria: %w", err)
	}
	scores, err := s.evalRepo.FindScoresByTender(ctx, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}

	type acc struct {
		sum float64
		n   int
	}
	byBidCriterion := map[string]map[string]*acc{}
	for _, sc := range scores {
		m, ok := byBidCriterion[sc.BidSubmissionID]
		if !ok {
			m = map[string]*acc{}
			byBidCriterion[sc.BidSubmissionID] = m
		}
		a, ok := m[sc.CriterionID]
		if !ok {
			a = &acc{}
			m[sc.CriterionID] = a
		}
		a.sum += sc.Score
		a.n++
	}

	result := map[string]float64{}
	for bidID, m := range byBidCriterion {
		total := 0.0
		for _, c := range criteria {
			if a, ok := m[c.ID]; ok && a.n > 0 {
				total += (a.sum / float64(a.n)) * c.WeightPercentage / 100
			}
		}
		result[bidID] = total
	}
	return result, nil
}

// isScoreable 投标是否进入技术评分池：已开标、未废标、迟交需已获接受
func isScoreable(bid *entity.BidSubmission) bool {
	if bid.Status != entity.BidStatusOpened {
		return false
	}
	if bid.IsLate && (bid.LateAccepted == nil || !*bid.LateAccepted) {
		return false
	}
	return true
}

// bidderAlias 盲评别名（按递交顺序稳定分配）
func bidderAlias(i int) string {
	if i < 26 {
		return fmt.Sprintf("Bidder %c", 'A'+i)
	}
	return fmt.Sprintf("Bidder %c%d", 'A'+i%26, i/26)
}

// === 缓存 ===

func (s *EvaluationService) cacheGet(ctx context.Context, key string) []byte {
	if s.rdb == nil {
		return nil
	}
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	return data
}

func (s *EvaluationService) cacheSet(ctx context.Context, key string, v interface{}) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, evalCacheTTL).Err(); err != nil {
		s.logger.Warn("Failed to cache evaluation payload", zap.String("key", key), zap.Error(err))
	}
}

// flushCaches 评标数据变化后清除派生缓存
func (s *EvaluationService) flushCaches(ctx context.Context, tenderID string) {
	if s.rdb == nil {
		return
	}
	keys := []string{
		"tender:comparable:" + tenderID,
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("Failed to flush evaluation caches",
			zap.String("tender_id", tenderID),
			zap.Error(err),
		)
	}
}
