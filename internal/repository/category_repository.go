package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"entropy-planner/internal/model"
)

// CategoryRepository manages task categories.
type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// GetOrCreate finds an active category by name (case-insensitive) or creates it.
func (r *CategoryRepository) GetOrCreate(ctx context.Context, name string) (*model.Category, error) {
	var category model.Category
	db := r.db.WithContext(ctx)
	err := db.Where("LOWER(name) = LOWER(?) AND is_active = ?", name, true).First(&category).Error
	switch {
	case err == nil:
		return &category, nil
	case err == gorm.ErrRecordNotFound:
		category = model.Category{Name: name, IsActive: true}
		if err := db.Create(&category).Error; err != nil {
			return nil, fmt.Errorf("create category: %w", err)
		}
		return &category, nil
	default:
		return nil, fmt.Errorf("find category: %w", err)
	}
}

// FindActiveByID resolves a category only if it exists and is still active.
func (r *CategoryRepository) FindActiveByID(ctx context.Context, id uint) (*model.Category, error) {
	var category model.Category
	if err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&category).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *CategoryRepository) ListActive(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// Deactivate soft-retires a category; old tasks keep their reference.
func (r *CategoryRepository) Deactivate(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&model.Category{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("deactivate category: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
