package repository

import (
	"context"

	"github.com/tanafus/tender/internal/tender/entity"
	"gorm.io/gorm"
)

// PricingRepository 报价行仓库
type PricingRepository struct {
	db *gorm.DB
}

func NewPricingRepository(db *gorm.DB) *PricingRepository {
	return &PricingRepository{db: db}
}

// FindByBid 查询投标的全部报价行
func (r *PricingRepository) FindByBid(ctx context.Context, bidSubmissionID string) ([]entity.BidPricingLine, error) {
	var lines []entity.BidPricingLine
	err := r.db.WithContext(ctx).
		Where("bid_submission_id = ?", bidSubmissionID).
		Order("row_index ASC").
		Find(&lines).Error
	return lines, err
}

// FindByTender 查询招标下全部报价行（按投标分组消费）
func (r *PricingRepository) FindByTender(ctx context.Context, tenderID string) ([]entity.BidPricingLine, error) {
	var lines []entity.BidPricingLine
	err := r.db.WithContext(ctx).
		Joins("JOIN bid_submissions ON bid_submissions.id = bid_pricing_lines.bid_submission_id").
		Where("bid_submissions.tender_id = ?", tenderID).
		Order("bid_pricing_lines.bid_submission_id ASC, bid_pricing_lines.row_index ASC").
		Find(&lines).Error
	return lines, err
}

// ReplaceForBid 以整组替换方式写入投标的报价行（在事务内）
func (r *PricingRepository) ReplaceForBid(ctx context.Context, tx *gorm.DB, bidSubmissionID string, lines []entity.BidPricingLine) error {
	if err := tx.WithContext(ctx).
		Where("bid_submission_id = ?", bidSubmissionID).
		Delete(&entity.BidPricingLine{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&lines).Error
}
