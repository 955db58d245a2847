package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tanafus/tender/internal/config"
	"github.com/tanafus/tender/internal/tender/entity"
	"github.com/tanafus/tender/internal/tender/repository"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 语义字段（列映射目标）
const (
	FieldItemNumber  = "item_number"
	FieldDescription = "description"
	FieldQuantity    = "quantity"
	FieldUOM         = "uom"
	FieldUnitRate    = "unit_rate"
	FieldAmount      = "amount"
	FieldCurrency    = "currency"
)

var semanticFields = []string{
	FieldItemNumber, FieldDescription, FieldQuantity,
	FieldUOM, FieldUnitRate, FieldAmount, FieldCurrency,
}

// ImportService 投标报价导入流水线（五阶段，可续传）
//
// Stages 1-4 are re-runnable without side effects; only ValidateExecute
// writes pricing lines durably. Each stage persists its output on the
// import session, so a crash between stages loses only the in-flight one.
type ImportService struct {
	sessionRepo *repository.ImportSessionRepository
	bidRepo     *repository.BidRepository
	tenderRepo  *repository.TenderRepository
	pricingRepo *repository.PricingRepository
	store       ObjectStore
	cfg         config.ImportConfig
	events      *EventPublisher
	logger      *zap.Logger
}

func NewImportService(
	sessionRepo *repository.ImportSessionRepository,
	bidRepo *repository.BidRepository,
	tenderRepo *repository.TenderRepository,
	pricingRepo *repository.PricingRepository,
	store ObjectStore,
	cfg config.ImportConfig,
	events *EventPublisher,
	logger *zap.Logger,
) *ImportService {
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = 20
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = 0.80
	}
	if cfg.FormulaTolerance <= 0 {
		cfg.FormulaTolerance = 0.01
	}
	if cfg.OutlierMultiple <= 0 {
		cfg.OutlierMultiple = 3.0
	}
	return &ImportService{
		sessionRepo: sessionRepo,
		bidRepo:     bidRepo,
		tenderRepo:  tenderRepo,
		pricingRepo: pricingRepo,
		store:       store,
		cfg:         cfg,
		events:      events,
		logger:      logger,
	}
}

// ColumnPreview 列预览与语义字段建议
type ColumnPreview struct {
	Index          int    `json:"index"`
	Header         string `json:"header"`
	SuggestedField string `json:"suggested_field,omitempty"`
	TypeGuess      string `json:"type_guess"` // text/number
}

// ParseResult 阶段1产物
type ParseResult struct {
	SessionID string          `json:"session_id"`
	SheetName string          `json:"sheet_name"`
	HeaderRow int             `json:"header_row"`
	TotalRows int             `json:"total_rows"`
	Columns   []ColumnPreview `json:"columns"`
	Preview   [][]string      `json:"preview"`
}

// Parse 阶段1：解析表格，探测表头与列类型
//
// Pure with respect to the bid: only the session stage marker is persisted.
func (s *ImportService) Parse(ctx context.Context, bidID string) (*ParseResult, error) {
	bid, err := s.bidRepo.FindByID(ctx, bidID)
	if err != nil {
		return nil, mapRepoErr(err, "bid")
	}
	if bid.PricingFileKey == "" {
		return nil, NewDomainError(CodeInvalidState,
			"no pricing file has been attached to this bid")
	}

	rows, sheetName, err := s.readSheet(ctx, bid.PricingFileKey)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, NewDomainError(CodeValidationFailed, "pricing file contains no rows")
	}

	headerRow := detectHeaderRow(rows)
	header := rows[headerRow]

	columns := make([]ColumnPreview, 0, len(header))
	for i, h := range header {
		columns = append(columns, ColumnPreview{
			Index:          i,
			Header:         h,
			SuggestedField: suggestField(h),
			TypeGuess:      guessColumnType(rows, headerRow+1, i),
		})
	}

	preview := rows[headerRow:]
	if len(preview) > s.cfg.PreviewRows {
		preview = preview[:s.cfg.PreviewRows]
	}

	session, err := s.sessionRepo.FindByBid(ctx, bidID)
	if errors.Is(err, repository.ErrNotFound) {
		session = &entity.ImportSession{
			ID:              uuid.New().String()[:32],
			BidSubmissionID: bidID,
			Stage:           entity.ImportStatusParsed,
			SheetName:       sheetName,
			HeaderRow:       headerRow,
		}
		if err := s.sessionRepo.Create(ctx, session); err != nil {
			return nil, fmt.Errorf("create import session: %w", err)
		}
	} else if err != nil {
		return nil, err
	} else {
		session.SheetName = sheetName
		session.HeaderRow = headerRow
		if session.Stage == entity.ImportStatusPending {
			session.Stage = entity.ImportStatusParsed
		}
		if err := s.sessionRepo.Save(ctx, session); err != nil {
			return nil, fmt.Errorf("save import session: %w", err)
		}
	}

	return &ParseResult{
		SessionID: session.ID,
		SheetName: sheetName,
		HeaderRow: headerRow,
		TotalRows: len(rows) - headerRow - 1,
		Columns:   columns,
		Preview:   preview,
	}, nil
}

// MapColumnsRequest 阶段2请求
type MapColumnsRequest struct {
	Mapping map[string]int `json:"mapping" binding:"required"`
}

// MapResult 阶段2产物
type MapResult struct {
	SessionID string             `json:"session_id"`
	RowCount  int                `json:"row_count"`
	Rows      []entity.MappedRow `json:"rows"`
}

// MapColumns 阶段2：确认列映射并产出规整行
//
// Requires unit_rate plus at least one of item_number or description; every
// missing required field is reported in one response.
func (s *ImportService) MapColumns(ctx context.Context, bidID string, req *MapColumnsRequest) (*MapResult, error) {
	bid, session, err := s.loadBidSession(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if session.Stage == entity.ImportStatusPending {
		return nil, NewDomainError(CodeInvalidState, "run the parse stage first")
	}

	for field := range req.Mapping {
		if !isSemanticField(field) {
			return nil, NewDomainError(CodeValidationFailed,
				fmt.Sprintf("unknown semantic field %q", field), field)
		}
	}

	var missing []string
	if _, ok := req.Mapping[FieldUnitRate]; !ok {
		missing = append(missing, FieldUnitRate)
	}
	_, hasItem := req.Mapping[FieldItemNumber]
	_, hasDesc := req.Mapping[FieldDescription]
	if !hasItem && !hasDesc {
		missing = append(missing, FieldItemNumber+"|"+FieldDescription)
	}
	if len(missing) > 0 {
		return nil, NewDomainError(CodeMissingRequiredColumn,
			"required columns are not mapped", missing...)
	}

	rows, _, err := s.readSheet(ctx, bid.PricingFileKey)
	if err != nil {
		return nil, err
	}

	mapped := make(entity.MappedRowList, 0, len(rows))
	for i := session.HeaderRow + 1; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row) {
			continue
		}

		m := entity.MappedRow{
			RowIndex:          i,
			ItemNumber:        cellAt(row, req.Mapping, FieldItemNumber),
			Description:       cellAt(row, req.Mapping, FieldDescription),
			UOM:               cellAt(row, req.Mapping, FieldUOM),
			Currency:          strings.ToUpper(cellAt(row, req.Mapping, FieldCurrency)),
			IsComparable:      true,
			IsIncludedInTotal: true,
		}
		m.Quantity = parseNumber(cellAt(row, req.Mapping, FieldQuantity))
		if _, ok := req.Mapping[FieldQuantity]; !ok || m.Quantity == 0 {
			m.Quantity = 1
		}
		m.UnitRate = parseNumber(cellAt(row, req.Mapping, FieldUnitRate))
		m.Amount = parseNumber(cellAt(row, req.Mapping, FieldAmount))
		if _, ok := req.Mapping[FieldAmount]; !ok {
			m.Amount = m.Quantity * m.UnitRate
		}

		mapped = append(mapped, m)
	}

	session.ColumnMapping = entity.ColumnMapping(req.Mapping)
	session.MappedRows = mapped
	session.Stage = entity.ImportStatusMapped
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save import session: %w", err)
	}
	if err := s.markBidStage(ctx, bid, entity.ImportStatusMapped); err != nil {
		return nil, err
	}

	return &MapResult{SessionID: session.ID, RowCount: len(mapped), Rows: mapped}, nil
}

// MatchRequest 阶段3请求
type MatchRequest struct {
	Threshold *float64 `json:"threshold"` // 缺省取配置值
}

// MatchResult 阶段3产物
type MatchResult struct {
	SessionID string             `json:"session_id"`
	Threshold float64            `json:"threshold"`
	Counts    map[string]int     `json:"counts"`
	Rows      []entity.MappedRow `json:"rows"`
}

// Match 阶段3：映射行与BOQ条目对齐
//
// Exact item-number match first, then token-set fuzzy on description
// against the threshold. Ties on confidence resolve to the lowest BOQ sort
// order, keeping re-runs deterministic.
func (s *ImportService) Match(ctx context.Context, bidID string, req *MatchRequest) (*MatchResult, error) {
	bid, session, err := s.loadBidSession(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if len(session.MappedRows) == 0 || session.Stage == entity.ImportStatusPending || session.Stage == entity.ImportStatusParsed {
		return nil, NewDomainError(CodeInvalidState, "run the map-columns stage first")
	}

	threshold := s.cfg.MatchThreshold
	if req != nil && req.Threshold != nil && *req.Threshold > 0 {
		threshold = *req.Threshold
	}

	boqItems, err := s.tenderRepo.FindBOQItems(ctx, bid.TenderID)
	if err != nil {
		return nil, fmt.Errorf("load boq items: %w", err)
	}

	byNumber := make(map[string]*entity.BOQItem, len(boqItems))
	for i := range boqItems {
		byNumber[normalizeItemNumber(boqItems[i].ItemNumber)] = &boqItems[i]
	}

	counts := map[string]int{}
	rows := session.MappedRows
	for i := range rows {
		row := &rows[i]
		row.BOQItemID = nil
		row.MatchType = ""
		row.MatchConfidence = 0

		if num := normalizeItemNumber(row.ItemNumber); num != "" {
			if item, ok := byNumber[num]; ok {
				row.BOQItemID = &item.ID
				row.MatchType = entity.MatchTypeExact
				row.MatchConfidence = 1.0
				counts[entity.MatchTypeExact]++
				continue
			}
		}

		// 模糊匹配：BOQ按sort order顺序扫描，严格大于才替换
		var best *entity.BOQItem
		bestConf := 0.0
		for j := range boqItems {
			conf := TokenSetRatio(row.Description, boqItems[j].Description)
			if conf > bestConf {
				bestConf = conf
				best = &boqItems[j]
			}
		}

		switch {
		case best != nil && bestConf >= threshold:
			row.BOQItemID = &best.ID
			row.MatchType = entity.MatchTypeFuzzy
			row.MatchConfidence = bestConf
		case bestConf > 0:
			row.MatchType = entity.MatchTypeUnmatched
			row.MatchConfidence = bestConf
		default:
			row.MatchType = entity.MatchTypeExtra
		}
		counts[row.MatchType]++
	}

	session.MappedRows = rows
	session.Stage = entity.ImportStatusMatched
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save import session: %w", err)
	}
	if err := s.markBidStage(ctx, bid, entity.ImportStatusMatched); err != nil {
		return nil, err
	}

	return &MatchResult{
		SessionID: session.ID,
		Threshold: threshold,
		Counts:    counts,
		Rows:      rows,
	}, nil
}

// NormalizeRequest 阶段4请求
type NormalizeRequest struct {
	FxRate           *float64 `json:"fx_rate"`           // 手工汇率；缺省按来源币种
	IncludeOverrides []int    `json:"include_overrides"` // 操作员强制纳入合计的行号
}

// NormalizeResult 阶段4产物
type NormalizeResult struct {
	SessionID       string             `json:"session_id"`
	FxRate          float64            `json:"fx_rate"`
	FxSource        string             `json:"fx_source"`
	NonComparable   int                `json:"non_comparable"`
	NormalizedTotal float64            `json:"normalized_total"`
	Rows            []entity.MappedRow `json:"rows"`
}

// Normalize 阶段4：汇率折算与单位换算
func (s *ImportService) Normalize(ctx context.Context, bidID string, req *NormalizeRequest) (*NormalizeResult, error) {
	bid, session, err := s.loadBidSession(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if session.Stage != entity.ImportStatusMatched && session.Stage != entity.ImportStatusNormalized && session.Stage != entity.ImportStatusImported {
		return nil, NewDomainError(CodeInvalidState, "run the match stage first")
	}

	tender, err := s.tenderRepo.FindByID(ctx, bid.TenderID)
	if err != nil {
		return nil, mapRepoErr(err, "tender")
	}

	fxRate := 1.0
	fxSource := "source"
	if req != nil && req.FxRate != nil {
		if *req.FxRate <= 0 {
			return nil, NewDomainError(CodeValidationFailed, "fx rate must be positive", "fx_rate")
		}
		fxRate = *req.FxRate
		fxSource = "manual"
	} else if bid.Currency != "" && bid.Currency != tender.BaseCurrency {
		return nil, NewDomainError(CodeValidationFailed,
			fmt.Sprintf("bid currency %s differs from base currency %s, a manual fx rate is required",
				bid.Currency, tender.BaseCurrency),
			"fx_rate")
	}

	overrides := map[int]bool{}
	if req != nil {
		for _, idx := range req.IncludeOverrides {
			overrides[idx] = true
		}
	}

	boqItems, err := s.tenderRepo.FindBOQItems(ctx, bid.TenderID)
	if err != nil {
		return nil, fmt.Errorf("load boq items: %w", err)
	}
	boqByID := make(map[string]*entity.BOQItem, len(boqItems))
	for i := range boqItems {
		boqByID[boqItems[i].ID] = &boqItems[i]
	}

	nonComparable := 0
	total := 0.0
	rows := session.MappedRows
	for i := range rows {
		row := &rows[i]
		row.Warnings = nil
		row.IsComparable = true
		row.IsIncludedInTotal = true

		row.NormalizedAmount = round2(row.Amount * fxRate)
		row.NormalizedUnitRate = row.UnitRate * fxRate

		if row.BOQItemID != nil {
			if boq := boqByID[*row.BOQItemID]; boq != nil {
				factor, ok := UOMFactor(row.UOM, boq.UOM)
				if !ok {
					// 无法换算的单位：不可比，除非操作员强制纳入
					row.IsComparable = false
					row.IsIncludedInTotal = overrides[row.RowIndex]
					row.Warnings = append(row.Warnings,
						fmt.Sprintf("no conversion factor from %q to %q", row.UOM, boq.UOM))
					nonComparable++
				} else if factor != 1 {
					row.NormalizedUnitRate = row.UnitRate * fxRate / factor
				}
			}
		}

		if row.IsIncludedInTotal {
			total += row.NormalizedAmount
		}
	}

	session.MappedRows = rows
	session.FxRate = fxRate
	session.FxSource = fxSource
	session.Stage = entity.ImportStatusNormalized
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save import session: %w", err)
	}
	if err := s.markBidStage(ctx, bid, entity.ImportStatusNormalized); err != nil {
		return nil, err
	}

	return &NormalizeResult{
		SessionID:       session.ID,
		FxRate:          fxRate,
		FxSource:        fxSource,
		NonComparable:   nonComparable,
		NormalizedTotal: round2(total),
		Rows:            rows,
	}, nil
}

// ValidateRequest 阶段5请求
type ValidateRequest struct {
	ForceImport bool `json:"force_import"`
}

// ValidationReport 阶段5校验报告
type ValidationReport struct {
	SessionID string   `json:"session_id"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
	CanImport bool     `json:"can_import"`
}

// Validate 阶段5（试运行）：只出报告，不落盘
func (s *ImportService) Validate(ctx context.Context, bidID string) (*ValidationReport, error) {
	_, _, report, err := s.runValidation(ctx, bidID)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Execute 阶段5（执行）：校验通过后持久化报价行
//
// The only stage with a durable write. forceImport proceeds past warnings,
// never past errors. Fails with already_imported on a second run.
func (s *ImportService) Execute(ctx context.Context, bidID string, req *ValidateRequest) (*ValidationReport, error) {
	bid, session, report, err := s.runValidation(ctx, bidID)
	if err != nil {
		return nil, err
	}

	if bid.ImportStatus == entity.ImportStatusImported {
		return nil, NewDomainError(CodeAlreadyImported,
			"pricing has already been imported for this bid")
	}
	if len(report.Errors) > 0 {
		return nil, NewDomainError(CodeValidationFailed,
			"pricing rows have blocking errors", report.Errors...)
	}
	force := req != nil && req.ForceImport
	if len(report.Warnings) > 0 && !force {
		return nil, NewDomainError(CodeValidationFailed,
			"pricing rows have warnings; resolve them or set force_import", report.Warnings...)
	}

	now := time.Now()
	lines := make([]entity.BidPricingLine, 0, len(session.MappedRows))
	nativeTotal := 0.0
	normalizedTotal := 0.0
	for _, row := range session.MappedRows {
		line := entity.BidPricingLine{
			ID:                 uuid.New().String()[:32],
			BidSubmissionID:    bid.ID,
			BOQItemID:          row.BOQItemID,
			RowIndex:           row.RowIndex,
			ItemNumber:         row.ItemNumber,
			Description:        row.Description,
			Quantity:           row.Quantity,
			UOM:                row.UOM,
			NativeUnitRate:     row.UnitRate,
			NativeAmount:       row.Amount,
			NormalizedUnitRate: row.NormalizedUnitRate,
			NormalizedAmount:   row.NormalizedAmount,
			MatchType:          row.MatchType,
			MatchConfidence:    row.MatchConfidence,
			IsComparable:       row.IsComparable,
			IsIncludedInTotal:  row.IsIncludedInTotal,
			Warnings:           entity.StringList(row.Warnings),
			CreatedAt:          now,
		}
		if row.IsIncludedInTotal {
			nativeTotal += row.Amount
			normalizedTotal += row.NormalizedAmount
		}
		lines = append(lines, line)
	}

	err = s.bidRepo.DB().Transaction(func(tx *gorm.DB) error {
		if err := s.pricingRepo.ReplaceForBid(ctx, tx, bid.ID, lines); err != nil {
			return fmt.Errorf("write pricing lines: %w", err)
		}

		res := tx.WithContext(ctx).Model(&entity.BidSubmission{}).
			Where("id = ? AND version = ?", bid.ID, bid.Version).
			Updates(map[string]interface{}{
				"import_status":           entity.ImportStatusImported,
				"fx_rate":                 session.FxRate,
				"native_total_amount":     round2(nativeTotal),
				"normalized_total_amount": round2(normalizedTotal),
				"version":                 bid.Version + 1,
				"updated_at":              now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrVersionConflict
		}

		session.Stage = entity.ImportStatusImported
		return tx.WithContext(ctx).Save(session).Error
	})
	if err != nil {
		return nil, mapVersionErr(err)
	}

	s.logger.Info("Bid pricing imported",
		zap.String("bid_id", bid.ID),
		zap.String("tender_id", bid.TenderID),
		zap.Int("lines", len(lines)),
		zap.Float64("normalized_total", round2(normalizedTotal)),
	)
	s.events.Publish(EventBidImported, bid.TenderID, map[string]interface{}{
		"bid_id":           bid.ID,
		"line_count":       len(lines),
		"normalized_total": round2(normalizedTotal),
	})

	report.CanImport = true
	return report, nil
}

// runValidation 阶段5公共校验：一致性检查与离群检测
func (s *ImportService) runValidation(ctx context.Context, bidID string) (*entity.BidSubmission, *entity.ImportSession, *ValidationReport, error) {
	bid, session, err := s.loadBidSession(ctx, bidID)
	if err != nil {
		return nil, nil, nil, err
	}
	if session.Stage != entity.ImportStatusNormalized && session.Stage != entity.ImportStatusImported {
		return nil, nil, nil, NewDomainError(CodeInvalidState, "run the normalize stage first")
	}

	report := &ValidationReport{SessionID: session.ID, Errors: []string{}, Warnings: []string{}}

	// 其他投标同一BOQ条目的单价样本，用于离群判断
	rateSamples := map[string][]float64{}
	if tenderLines, err := s.pricingRepo.FindByTender(ctx, bid.TenderID); err == nil {
		for _, line := range tenderLines {
			if line.BidSubmissionID == bid.ID || line.BOQItemID == nil || !line.IsComparable {
				continue
			}
			rateSamples[*line.BOQItemID] = append(rateSamples[*line.BOQItemID], line.NormalizedUnitRate)
		}
	}

	for _, row := range session.MappedRows {
		if row.Quantity < 0 || row.UnitRate < 0 || row.Amount < 0 {
			report.Errors = append(report.Errors,
				fmt.Sprintf("row %d: negative quantity, rate or amount", row.RowIndex))
			continue
		}

		// 公式一致性：unitRate × quantity ≈ amount（容差内）
		expected := row.UnitRate * row.Quantity
		tolerance := s.cfg.FormulaTolerance * math.Max(math.Abs(row.Amount), 1)
		if math.Abs(expected-row.Amount) > tolerance {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("row %d: amount %.2f deviates from rate×qty %.2f", row.RowIndex, row.Amount, expected))
		}

		// 离群：与同一BOQ条目其他投标单价中位数比较
		if row.BOQItemID != nil && row.IsComparable {
			samples := rateSamples[*row.BOQItemID]
			if len(samples) >= 2 {
				median := medianOf(append([]float64(nil), samples...))
				if median > 0 && (row.NormalizedUnitRate > median*s.cfg.OutlierMultiple ||
					row.NormalizedUnitRate < median/s.cfg.OutlierMultiple) {
					report.Warnings = append(report.Warnings,
						fmt.Sprintf("row %d: unit rate %.2f is an outlier against item median %.2f",
							row.RowIndex, row.NormalizedUnitRate, median))
				}
			}
		}
	}

	report.CanImport = len(report.Errors) == 0
	return bid, session, report, nil
}

// === 内部辅助 ===

func (s *ImportService) loadBidSession(ctx context.Context, bidID string) (*entity.BidSubmission, *entity.ImportSession, error) {
	bid, err := s.bidRepo.FindByID(ctx, bidID)
	if err != nil {
		return nil, nil, mapRepoErr(err, "bid")
	}
	session, err := s.sessionRepo.FindByBid(ctx, bidID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, NewDomainError(CodeInvalidState, "run the parse stage first")
		}
		return nil, nil, err
	}
	return bid, session, nil
}

func (s *ImportService) markBidStage(ctx context.Context, bid *entity.BidSubmission, stage string) error {
	if bid.ImportStatus == stage || bid.ImportStatus == entity.ImportStatusImported {
		return nil
	}
	if err := s.bidRepo.UpdateWithVersion(ctx, bid, map[string]interface{}{
		"import_status": stage,
	}); err != nil {
		return mapVersionErr(err)
	}
	bid.ImportStatus = stage
	return nil
}

func (s *ImportService) readSheet(ctx context.Context, key string) ([][]string, string, error) {
	reader, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("fetch pricing file: %w", err)
	}
	defer reader.Close()

	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, "", NewDomainError(CodeValidationFailed,
			"pricing file is not a readable spreadsheet: "+err.Error())
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, "", NewDomainError(CodeValidationFailed, "pricing file has no sheets")
	}
	sheetName := sheets[0]

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, "", fmt.Errorf("read sheet %s: %w", sheetName, err)
	}
	return rows, sheetName, nil
}

// detectHeaderRow 表头探测：前10行中非空且含文字单元格最多的一行
func detectHeaderRow(rows [][]string) int {
	limit := len(rows)
	if limit > 10 {
		limit = 10
	}
	best, bestScore := 0, 0
	for i := 0; i < limit; i++ {
		score := 0
		for _, cell := range rows[i] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if _, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64); err != nil {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// suggestField 根据表头文本猜测语义字段
func suggestField(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	switch {
	case h == "":
		return ""
	case strings.Contains(h, "desc"):
		return FieldDescription
	case strings.Contains(h, "qty") || strings.Contains(h, "quantity"):
		return FieldQuantity
	case strings.Contains(h, "uom") || strings.Contains(h, "measure") || h == "unit" || h == "units":
		return FieldUOM
	case strings.Contains(h, "rate") || strings.Contains(h, "price"):
		return FieldUnitRate
	case strings.Contains(h, "amount") || strings.Contains(h, "total"):
		return FieldAmount
	case strings.Contains(h, "curr"):
		return FieldCurrency
	case strings.Contains(h, "item") || strings.Contains(h, "code") || strings.Contains(h, "ref") || h == "no" || h == "no." || h == "sn":
		return FieldItemNumber
	default:
		return ""
	}
}

// guessColumnType 按表头下的数据行猜测列类型
func guessColumnType(rows [][]string, firstDataRow, col int) string {
	numeric, sampled := 0, 0
	for i := firstDataRow; i < len(rows) && sampled < 10; i++ {
		if col >= len(rows[i]) {
			continue
		}
		cell := strings.TrimSpace(rows[i][col])
		if cell == "" {
			continue
		}
		sampled++
		if _, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64); err == nil {
			numeric++
		}
	}
	if sampled > 0 && numeric*2 > sampled {
		return "number"
	}
	return "text"
}

func isSemanticField(field string) bool {
	for _, f := range semanticFields {
		if f == field {
			return true
		}
	}
	return false
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cellAt(row []string, mapping map[string]int, field string) string {
	idx, ok := mapping[field]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// parseNumber 数值解析：容忍千分位与货币符号
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
