package entity

import "time"

// 投标状态
const (
	BidStatusSubmitted    = "submitted"
	BidStatusOpened       = "opened"
	BidStatusDisqualified = "disqualified"
)

// 导入状态（五阶段流水线）
const (
	ImportStatusPending    = "pending"
	ImportStatusParsed     = "parsed"
	ImportStatusMapped     = "mapped"
	ImportStatusMatched    = "matched"
	ImportStatusNormalized = "normalized"
	ImportStatusImported   = "imported"
)

// BidSubmission 投标记录
//
// LateAccepted is tri-state: nil means the late-bid decision has not been
// taken yet; the decision can only be taken once. Disqualification is
// irreversible within a workflow cycle. Records are never deleted.
type BidSubmission struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	TenderID    string    `json:"tender_id" gorm:"size:32;not null;index"`
	BidderID    string    `json:"bidder_id" gorm:"size:32;not null;index"`
	SubmittedAt time.Time `json:"submitted_at" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:20;not null;default:submitted"`

	// 迟交处理
	IsLate             bool       `json:"is_late" gorm:"not null;default:false"`
	LateAccepted       *bool      `json:"late_accepted"`
	LateDecisionReason string     `json:"late_decision_reason,omitempty" gorm:"type:text"`
	LateDecisionBy     string     `json:"late_decision_by,omitempty" gorm:"size:32"`
	LateDecidedAt      *time.Time `json:"late_decided_at,omitempty"`

	// 废标处理
	DisqualifyReason string     `json:"disqualify_reason,omitempty" gorm:"type:text"`
	DisqualifiedBy   string     `json:"disqualified_by,omitempty" gorm:"size:32"`
	DisqualifiedAt   *time.Time `json:"disqualified_at,omitempty"`

	// 报价
	Currency              string  `json:"currency" gorm:"size:3"`
	FxRate                float64 `json:"fx_rate" gorm:"type:decimal(12,6);default:1"`
	NativeTotalAmount     float64 `json:"native_total_amount" gorm:"type:decimal(18,2);default:0"`
	NormalizedTotalAmount float64 `json:"normalized_total_amount" gorm:"type:decimal(18,2);default:0"`

	ImportStatus   string `json:"import_status" gorm:"size:20;not null;default:pending"`
	PricingFileKey string `json:"pricing_file_key,omitempty" gorm:"size:256"`

	Version   int       `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	PricingLines []BidPricingLine `json:"pricing_lines,omitempty" gorm:"foreignKey:BidSubmissionID"`
}

func (BidSubmission) TableName() string {
	return "bid_submissions"
}

// IsEligible 是否参与商务评分与排名
//
// Disqualified bids and late bids that were rejected (or still undecided)
// are excluded from the commercial pool.
func (b *BidSubmission) IsEligible() bool {
	if b.Status == BidStatusDisqualified {
		return false
	}
	if b.IsLate && (b.LateAccepted == nil || !*b.LateAccepted) {
		return false
	}
	return b.ImportStatus == ImportStatusImported
}

// 行匹配类型
const (
	MatchTypeExact     = "exact"
	MatchTypeFuzzy     = "fuzzy"
	MatchTypeUnmatched = "unmatched"
	MatchTypeExtra     = "extra"
)

// BidPricingLine 投标报价行（导入流水线第五阶段的最终产物）
type BidPricingLine struct {
	ID              string  `json:"id" gorm:"primaryKey;size:32"`
	BidSubmissionID string  `json:"bid_submission_id" gorm:"size:32;not null;index"`
	BOQItemID       *string `json:"boq_item_id" gorm:"size:32;index"` // nil = extra行，无BOQ对应
	RowIndex        int     `json:"row_index" gorm:"not null"`

	ItemNumber  string  `json:"item_number" gorm:"size:50"`
	Description string  `json:"description" gorm:"type:text"`
	Quantity    float64 `json:"quantity" gorm:"type:decimal(15,3)"`
	UOM         string  `json:"uom" gorm:"size:20"`

	NativeUnitRate     float64 `json:"native_unit_rate" gorm:"type:decimal(18,4)"`
	NativeAmount       float64 `json:"native_amount" gorm:"type:decimal(18,2)"`
	NormalizedUnitRate float64 `json:"normalized_unit_rate" gorm:"type:decimal(18,4)"`
	NormalizedAmount   float64 `json:"normalized_amount" gorm:"type:decimal(18,2)"`

	MatchType         string     `json:"match_type" gorm:"size:20;not null"`
	MatchConfidence   float64    `json:"match_confidence" gorm:"type:decimal(5,4);default:0"`
	IsComparable      bool       `json:"is_comparable" gorm:"not null;default:true"`
	IsIncludedInTotal bool       `json:"is_included_in_total" gorm:"not null;default:true"`
	Warnings          StringList `json:"warnings,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
}

func (BidPricingLine) TableName() string {
	return "bid_pricing_lines"
}
