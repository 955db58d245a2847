package entity

import "time"

// 评标流程状态
const (
	EvalStatusNotSetup             = "not_setup"
	EvalStatusPanelSetup           = "panel_setup"
	EvalStatusScoring              = "scoring"
	EvalStatusTechnicalLocked      = "technical_locked"
	EvalStatusCommercialCalculated = "commercial_calculated"
	EvalStatusCombinedCalculated   = "combined_calculated"
)

// 评分方法
const (
	ScoringMethodWeighted = "weighted_criteria"
)

// EvaluationPanel 评标小组（每个招标一条，承载评标状态机）
type EvaluationPanel struct {
	ID            string     `json:"id" gorm:"primaryKey;size:32"`
	TenderID      string     `json:"tender_id" gorm:"size:32;uniqueIndex;not null"`
	Status        string     `json:"status" gorm:"size:30;not null;default:panel_setup"`
	ScoringMethod string     `json:"scoring_method" gorm:"size:30;not null;default:weighted_criteria"`
	BlindMode     bool       `json:"blind_mode" gorm:"not null;default:false"`
	PanelistIDs   StringList `json:"panelist_ids" gorm:"type:jsonb;not null"`

	LockedBy string     `json:"locked_by,omitempty" gorm:"size:32"`
	LockedAt *time.Time `json:"locked_at,omitempty"`

	Version   int       `json:"version" gorm:"not null;default:1"`
	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EvaluationPanel) TableName() string {
	return "evaluation_panels"
}

// HasPanelist 是否为小组成员
func (p *EvaluationPanel) HasPanelist(userID string) bool {
	for _, id := range p.PanelistIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// EvaluationScore 技术评分
//
// Owned by the panelist who submitted it; upserts are keyed by
// (panelist, bid, criterion). Immutable once the technical-score lock is
// applied, never deleted.
type EvaluationScore struct {
	ID              string `json:"id" gorm:"primaryKey;size:32"`
	TenderID        string `json:"tender_id" gorm:"size:32;not null;index"`
	BidSubmissionID string `json:"bid_submission_id" gorm:"size:32;not null;uniqueIndex:idx_score_key"`
	CriterionID     string `json:"criterion_id" gorm:"size:32;not null;uniqueIndex:idx_score_key"`
	PanelistID      string `json:"panelist_id" gorm:"size:32;not null;uniqueIndex:idx_score_key"`

	Score   float64 `json:"score" gorm:"type:decimal(4,2);not null"`
	Comment string  `json:"comment" gorm:"type:text"`
	IsFinal bool    `json:"is_final" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EvaluationScore) TableName() string {
	return "evaluation_scores"
}

// NeedsJustification 分数是否需要评语说明
//
// Only scores strictly below 3 or strictly above 8 require a comment;
// exactly 3 and exactly 8 are exempt.
func NeedsJustification(score float64) bool {
	return score < 3 || score > 8
}

// CombinedScoreEntry 综合评分条目（派生数据，整组重建，从不手工修改）
type CombinedScoreEntry struct {
	ID              string `json:"id" gorm:"primaryKey;size:32"`
	TenderID        string `json:"tender_id" gorm:"size:32;not null;index"`
	BidSubmissionID string `json:"bid_submission_id" gorm:"size:32;not null"`
	BidderID        string `json:"bidder_id" gorm:"size:32;not null"`

	TechnicalScore  float64 `json:"technical_score" gorm:"type:decimal(5,2);not null"`
	CommercialScore float64 `json:"commercial_score" gorm:"type:decimal(5,2);not null"`
	CombinedScore   float64 `json:"combined_score" gorm:"type:decimal(5,2);not null"`

	FinalRank     int  `json:"final_rank" gorm:"not null"`
	IsRecommended bool `json:"is_recommended" gorm:"not null;default:false"`

	ComputedAt time.Time `json:"computed_at" gorm:"not null"`
}

func (CombinedScoreEntry) TableName() string {
	return "combined_score_entries"
}
