package repository

import (
	"context"
	"errors"

	"github.com/tanafus/tender/internal/tender/entity"
	"gorm.io/gorm"
)

// ImportSessionRepository 导入会话仓库
type ImportSessionRepository struct {
	db *gorm.DB
}

func NewImportSessionRepository(db *gorm.DB) *ImportSessionRepository {
	return &ImportSessionRepository{db: db}
}

// FindByBid 查找投标的导入会话
func (r *ImportSessionRepository) FindByBid(ctx context.Context, bidSubmissionID string) (*entity.ImportSession, error) {
	var session entity.ImportSession
	err := r.db.WithContext(ctx).
		Where("bid_submission_id = ?", bidSubmissionID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// Create 创建导入会话
func (r *ImportSessionRepository) Create(ctx context.Context, session *entity.ImportSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// Save 保存导入会话（阶段产物整体落盘）
func (r *ImportSessionRepository) Save(ctx context.Context, session *entity.ImportSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}
