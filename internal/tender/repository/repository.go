package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict 乐观锁冲突：另一写入方已抢先修改
	ErrVersionConflict = errors.New("version conflict")
)

// Repositories 仓库集合
type Repositories struct {
	Tender     *TenderRepository
	Bid        *BidRepository
	Pricing    *PricingRepository
	Import     *ImportSessionRepository
	Evaluation *EvaluationRepository
	Approval   *ApprovalRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Tender:     NewTenderRepository(db),
		Bid:        NewBidRepository(db),
		Pricing:    NewPricingRepository(db),
		Import:     NewImportSessionRepository(db),
		Evaluation: NewEvaluationRepository(db),
		Approval:   NewApprovalRepository(db),
	}
}
