package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tanafus/tender/internal/tender/entity"
	"gorm.io/gorm"
)

// BidRepository 投标仓库
type BidRepository struct {
	db *gorm.DB
}

func NewBidRepository(db *gorm.DB) *BidRepository {
	return &BidRepository{db: db}
}

// FindByID 根据ID查找投标
func (r *BidRepository) FindByID(ctx context.Context, id string) (*entity.BidSubmission, error) {
	var bid entity.BidSubmission
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bid, nil
}

// FindByTender 查询招标下的全部投标
func (r *BidRepository) FindByTender(ctx context.Context, tenderID string) ([]entity.BidSubmission, error) {
	var bids []entity.BidSubmission
	err := r.db.WithContext(ctx).
		Where("tender_id = ?", tenderID).
		Order("submitted_at ASC").
		Find(&bids).Error
	return bids, err
}

// FindByTenderAndBidder 查询投标人在该招标下的投标
func (r *BidRepository) FindByTenderAndBidder(ctx context.Context, tenderID, bidderID string) (*entity.BidSubmission, error) {
	var bid entity.BidSubmission
	err := r.db.WithContext(ctx).
		Where("tender_id = ? AND bidder_id = ?", tenderID, bidderID).
		First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bid, nil
}

// Create 创建投标
func (r *BidRepository) Create(ctx context.Context, bid *entity.BidSubmission) error {
	return r.db.WithContext(ctx).Create(bid).Error
}

// UpdateWithVersion 带乐观锁的投标更新
func (r *BidRepository) UpdateWithVersion(ctx context.Context, bid *entity.BidSubmission, updates map[string]interface{}) error {
	updates["version"] = bid.Version + 1
	updates["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).Model(&entity.BidSubmission{}).
		Where("id = ? AND version = ?", bid.ID, bid.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	bid.Version++
	return nil
}

// OpenSubmitted 将招标下所有submitted投标置为opened
func (r *BidRepository) OpenSubmitted(ctx context.Context, tx *gorm.DB, tenderID string) error {
	return tx.WithContext(ctx).Model(&entity.BidSubmission{}).
		Where("tender_id = ? AND status = ?", tenderID, entity.BidStatusSubmitted).
		Updates(map[string]interface{}{
			"status":     entity.BidStatusOpened,
			"updated_at": time.Now(),
		}).Error
}

// CountByTenderAndStatus 统计招标下某状态的投标数
func (r *BidRepository) CountByTenderAndStatus(ctx context.Context, tenderID, status string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.BidSubmission{}).
		Where("tender_id = ? AND status = ?", tenderID, status).
		Count(&count).Error
	return count, err
}

// DB 返回底层连接（供服务层组装事务）
func (r *BidRepository) DB() *gorm.DB {
	return r.db
}
