package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tanafus/tender/internal/tender/entity"
	"gorm.io/gorm"
)

// ApprovalRepository 审批流仓库
type ApprovalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// FindLatestByTender 查找招标的最新审批流实例（含审批级）
func (r *ApprovalRepository) FindLatestByTender(ctx context.Context, tenderID string) (*entity.ApprovalWorkflow, error) {
	var workflow entity.ApprovalWorkflow
	err := r.db.WithContext(ctx).
		Preload("Levels", func(db *gorm.DB) *gorm.DB {
			return db.Order("level ASC")
		}).
		Where("tender_id = ?", tenderID).
		Order("cycle DESC").
		First(&workflow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &workflow, nil
}

// FindAllByTender 查找招标的全部审批流实例（按轮次升序，含审批级）
func (r *ApprovalRepository) FindAllByTender(ctx context.Context, tenderID string) ([]entity.ApprovalWorkflow, error) {
	var workflows []entity.ApprovalWorkflow
	err := r.db.WithContext(ctx).
		Preload("Levels", func(db *gorm.DB) *gorm.DB {
			return db.Order("level ASC")
		}).
		Where("tender_id = ?", tenderID).
		Order("cycle ASC").
		Find(&workflows).Error
	return workflows, err
}

// Create 创建审批流实例及其审批级
func (r *ApprovalRepository) Create(ctx context.Context, workflow *entity.ApprovalWorkflow) error {
	return r.db.WithContext(ctx).Create(workflow).Error
}

// UpdateWorkflowWithVersion 带乐观锁的审批流更新（在事务内）
func (r *ApprovalRepository) UpdateWorkflowWithVersion(ctx context.Context, tx *gorm.DB, workflow *entity.ApprovalWorkflow, updates map[string]interface{}) error {
	updates["version"] = workflow.Version + 1
	updates["updated_at"] = time.Now()

	res := tx.WithContext(ctx).Model(&entity.ApprovalWorkflow{}).
		Where("id = ? AND version = ?", workflow.ID, workflow.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	workflow.Version++
	return nil
}

// SaveLevel 保存审批级（在事务内）
func (r *ApprovalRepository) SaveLevel(ctx context.Context, tx *gorm.DB, level *entity.ApprovalLevel) error {
	return tx.WithContext(ctx).Save(level).Error
}

// DB 返回底层连接（供服务层组装事务）
func (r *ApprovalRepository) DB() *gorm.DB {
	return r.db
}
