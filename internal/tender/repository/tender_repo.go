package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tanafus/tender/internal/tender/entity"
	"gorm.io/gorm"
)

// TenderRepository 招标仓库
type TenderRepository struct {
	db *gorm.DB
}

func NewTenderRepository(db *gorm.DB) *TenderRepository {
	return &TenderRepository{db: db}
}

// FindAll 查询招标列表
func (r *TenderRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Tender, int64, error) {
	var items []entity.Tender
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Tender{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if reference := filters["reference"]; reference != "" {
		query = query.Where("reference = ?", reference)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 根据ID查找招标
func (r *TenderRepository) FindByID(ctx context.Context, id string) (*entity.Tender, error) {
	var tender entity.Tender
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&tender).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tender, nil
}

// FindByIDWithDetails 查找招标并加载BOQ与评标准则
func (r *TenderRepository) FindByIDWithDetails(ctx context.Context, id string) (*entity.Tender, error) {
	var tender entity.Tender
	err := r.db.WithContext(ctx).
		Preload("BOQItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, item_number ASC")
		}).
		Preload("Criteria", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("id = ?", id).
		First(&tender).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tender, nil
}

// Create 创建招标
func (r *TenderRepository) Create(ctx context.Context, tender *entity.Tender) error {
	return r.db.WithContext(ctx).Create(tender).Error
}

// UpdateWithVersion 带乐观锁的状态更新
//
// The update only lands when the caller still holds the current version;
// a losing writer gets ErrVersionConflict.
func (r *TenderRepository) UpdateWithVersion(ctx context.Context, tender *entity.Tender, updates map[string]interface{}) error {
	updates["version"] = tender.Version + 1
	updates["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).Model(&entity.Tender{}).
		Where("id = ? AND version = ?", tender.ID, tender.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	tender.Version++
	return nil
}

// FindBOQItems 查询招标的BOQ条目
func (r *TenderRepository) FindBOQItems(ctx context.Context, tenderID string) ([]entity.BOQItem, error) {
	var items []entity.BOQItem
	err := r.db.WithContext(ctx).
		Where("tender_id = ?", tenderID).
		Order("sort_order ASC, item_number ASC").
		Find(&items).Error
	return items, err
}

// FindCriteria 查询招标的评标准则
func (r *TenderRepository) FindCriteria(ctx context.Context, tenderID string) ([]entity.EvaluationCriterion, error) {
	var criteria []entity.EvaluationCriterion
	err := r.db.WithContext(ctx).
		Where("tender_id = ?", tenderID).
		Order("sort_order ASC").
		Find(&criteria).Error
	return criteria, err
}
