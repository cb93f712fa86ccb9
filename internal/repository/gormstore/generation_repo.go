package gormstore

import (
	"context"

	"imagepay/internal/model"

	"gorm.io/gorm"
)

type GenerationRepository struct {
	db *gorm.DB
}

func NewGenerationRepository(db *gorm.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

func (r *GenerationRepository) Create(ctx context.Context, generation *model.Generation) error {
	return r.db.WithContext(ctx).Create(generation).Error
}

func (r *GenerationRepository) ListByUserID(ctx context.Context, userID string) ([]*model.Generation, error) {
	var generations []*model.Generation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&generations).Error
	return generations, err
}

func (r *GenerationRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Generation{}).Count(&total).Error
	return total, err
}

func (r *GenerationRepository) SumCost(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Generation{}).
		Select("COALESCE(SUM(cost), 0)").
		Scan(&total).Error
	return total, err
}
