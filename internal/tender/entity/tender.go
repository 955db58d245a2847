package entity

import "time"

// 招标状态
const (
	TenderStatusDraft      = "draft"
	TenderStatusPublished  = "published"
	TenderStatusEvaluation = "evaluation"
	TenderStatusAwarded    = "awarded"
	TenderStatusCancelled  = "cancelled"
)

// Tender 招标项目
//
// Status transitions are monotonic (draft → published → evaluation → awarded)
// except cancellation, which is terminal from any non-awarded state. Version
// is the optimistic-concurrency column compared-and-swapped on every mutating
// call keyed by this tender.
type Tender struct {
	ID           string `json:"id" gorm:"primaryKey;size:32"`
	Reference    string `json:"reference" gorm:"size:50;uniqueIndex;not null"`
	Title        string `json:"title" gorm:"size:200;not null"`
	Status       string `json:"status" gorm:"size:20;not null;default:draft"`
	BaseCurrency string `json:"base_currency" gorm:"size:3;not null;default:SAR"`

	// 权重（百分比，二者之和必须为100）
	TechnicalWeight  int `json:"technical_weight" gorm:"not null;default:40"`
	CommercialWeight int `json:"commercial_weight" gorm:"not null;default:60"`

	SubmissionDeadline time.Time  `json:"submission_deadline" gorm:"not null"`
	OpeningDate        *time.Time `json:"opening_date"`

	CancelReason string     `json:"cancel_reason,omitempty" gorm:"type:text"`
	CancelledBy  string     `json:"cancelled_by,omitempty" gorm:"size:32"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	AwardedAt    *time.Time `json:"awarded_at,omitempty"`

	Version   int       `json:"version" gorm:"not null;default:1"`
	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	BOQItems []BOQItem             `json:"boq_items,omitempty" gorm:"foreignKey:TenderID"`
	Criteria []EvaluationCriterion `json:"criteria,omitempty" gorm:"foreignKey:TenderID"`
}

func (Tender) TableName() string {
	return "tenders"
}

// IsTerminal 是否处于终态
func (t *Tender) IsTerminal() bool {
	return t.Status == TenderStatusAwarded || t.Status == TenderStatusCancelled
}

// BOQItem 工程量清单（BOQ）条目
type BOQItem struct {
	ID          string  `json:"id" gorm:"primaryKey;size:32"`
	TenderID    string  `json:"tender_id" gorm:"size:32;not null;index"`
	ItemNumber  string  `json:"item_number" gorm:"size:50;not null"`
	Description string  `json:"description" gorm:"type:text;not null"`
	Quantity    float64 `json:"quantity" gorm:"type:decimal(15,3);not null"`
	UOM         string  `json:"uom" gorm:"size:20;not null"`
	SortOrder   int     `json:"sort_order" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BOQItem) TableName() string {
	return "tender_boq_items"
}

// EvaluationCriterion 技术评标准则
//
// 同一招标下所有准则的权重之和必须为100。
type EvaluationCriterion struct {
	ID               string  `json:"id" gorm:"primaryKey;size:32"`
	TenderID         string  `json:"tender_id" gorm:"size:32;not null;index"`
	Name             string  `json:"name" gorm:"size:200;not null"`
	WeightPercentage float64 `json:"weight_percentage" gorm:"type:decimal(5,2);not null"`
	SortOrder        int     `json:"sort_order" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EvaluationCriterion) TableName() string {
	return "tender_evaluation_criteria"
}
