package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tanafus/tender/internal/tender/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EvaluationRepository 评标仓库
type EvaluationRepository struct {
	db *gorm.DB
}

func NewEvaluationRepository(db *gorm.DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// FindPanelByTender 查找招标的评标小组
func (r *EvaluationRepository) FindPanelByTender(ctx context.Context, tenderID string) (*entity.EvaluationPanel, error) {
	var panel entity.EvaluationPanel
	err := r.db.WithContext(ctx).
		Where("tender_id = ?", tenderID).
		First(&panel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &panel, nil
}

// CreatePanel 创建评标小组
func (r *EvaluationRepository) CreatePanel(ctx context.Context, panel *entity.EvaluationPanel) error {
	return r.db.WithContext(ctx).Create(panel).Error
}

// UpdatePanelWithVersion 带乐观锁的小组状态更新
func (r *EvaluationRepository) UpdatePanelWithVersion(ctx context.Context, panel *entity.EvaluationPanel, updates map[string]interface{}) error {
	updates["version"] = panel.Version + 1
	updates["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).Model(&entity.EvaluationPanel{}).
		Where("id = ? AND version = ?", panel.ID, panel.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	panel.Version++
	return nil
}

// UpsertScore 按(panelist, bid, criterion)键幂等写入评分
//
// Panelists score concurrently on disjoint keys; the conflict target makes
// retries safe without cross-panelist coordination.
func (r *EvaluationRepository) UpsertScore(ctx context.Context, score *entity.EvaluationScore) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "bid_submission_id"},
				{Name: "criterion_id"},
				{Name: "panelist_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"score", "comment", "is_final", "updated_at"}),
		}).
		Create(score).Error
}

// FindScoresByTender 查询招标的全部评分
func (r *EvaluationRepository) FindScoresByTender(ctx context.Context, tenderID string) ([]entity.EvaluationScore, error) {
	var scores []entity.EvaluationScore
	err := r.db.WithContext(ctx).
		Where("tender_id = ?", tenderID).
		Find(&scores).Error
	return scores, err
}

// FindScoresByPanelist 查询某评委在招标下的评分
func (r *EvaluationRepository) FindScoresByPanelist(ctx context.Context, tenderID, panelistID string) ([]entity.EvaluationScore, error) {
	var scores []entity.EvaluationScore
	err := r.db.WithContext(ctx).
		Where("tender_id = ? AND panelist_id = ?", tenderID, panelistID).
		Find(&scores).Error
	return scores, err
}

// FindCombinedEntries 查询综合评分条目（按名次升序）
func (r *EvaluationRepository) FindCombinedEntries(ctx context.Context, tenderID string) ([]entity.CombinedScoreEntry, error) {
	var entries []entity.CombinedScoreEntry
	err := r.db.WithContext(ctx).
		Where("tender_id = ?", tenderID).
		Order("final_rank ASC").
		Find(&entries).Error
	return entries, err
}

// ReplaceCombinedEntries 整组替换综合评分（在事务内，失败时旧值保持不动）
func (r *EvaluationRepository) ReplaceCombinedEntries(ctx context.Context, tx *gorm.DB, tenderID string, entries []entity.CombinedScoreEntry) error {
	if err := tx.WithContext(ctx).
		Where("tender_id = ?", tenderID).
		Delete(&entity.CombinedScoreEntry{}).Error; err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&entries).Error
}

// DB 返回底层连接（供服务层组装事务）
func (r *EvaluationRepository) DB() *gorm.DB {
	return r.db
}
