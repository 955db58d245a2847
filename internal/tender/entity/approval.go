package entity

import "time"

// 审批流状态
const (
	WorkflowStatusInProgress     = "in_progress"
	WorkflowStatusApproved       = "approved"
	WorkflowStatusRejected       = "rejected"
	WorkflowStatusRevisionNeeded = "revision_needed"
)

// 审批决定
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
	DecisionReturn  = "return"
)

// 审批级状态
const (
	LevelStatusWaiting = "waiting"
	LevelStatusActive  = "active"
	LevelStatusDecided = "decided"
)

// ApprovalWorkflow 多级审批流实例
//
// One instance per evaluation cycle. Re-initiation after a reject or a
// return-for-revision creates a fresh instance with Cycle+1; prior
// instances are retained as history and never mutated.
type ApprovalWorkflow struct {
	ID           string `json:"id" gorm:"primaryKey;size:32"`
	TenderID     string `json:"tender_id" gorm:"size:32;not null;index"`
	Cycle        int    `json:"cycle" gorm:"not null;default:1"`
	Status       string `json:"status" gorm:"size:20;not null;default:in_progress"`
	CurrentLevel int    `json:"current_level" gorm:"not null;default:1"`

	InitiatedBy string     `json:"initiated_by" gorm:"size:32;not null"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Version   int       `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Levels []ApprovalLevel `json:"levels,omitempty" gorm:"foreignKey:WorkflowID"`
}

func (ApprovalWorkflow) TableName() string {
	return "approval_workflows"
}

// ApprovalLevel 审批级（决定一经记录不可更改）
type ApprovalLevel struct {
	ID         string     `json:"id" gorm:"primaryKey;size:32"`
	WorkflowID string     `json:"workflow_id" gorm:"size:32;not null;index"`
	Level      int        `json:"level" gorm:"not null"` // 1-based
	ApproverID string     `json:"approver_id" gorm:"size:32;not null"`
	Deadline   *time.Time `json:"deadline,omitempty"`

	Status    string     `json:"status" gorm:"size:20;not null;default:waiting"`
	Decision  string     `json:"decision,omitempty" gorm:"size:20"`
	Comment   string     `json:"comment,omitempty" gorm:"type:text"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ApprovalLevel) TableName() string {
	return "approval_levels"
}
