package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"entropy-planner/internal/model"
)

// TemplateRepository handles CRUD for recurring task templates.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, template *model.Template) error {
	if err := r.db.WithContext(ctx).Create(template).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) FindByID(ctx context.Context, templateID uint) (*model.Template, error) {
	var template model.Template
	if err := r.db.WithContext(ctx).Preload("Category").First(&template, templateID).Error; err != nil {
		return nil, err
	}
	return &template, nil
}

// ListAll returns every template, active first, then by name.
func (r *TemplateRepository) ListAll(ctx context.Context) ([]model.Template, error) {
	var templates []model.Template
	if err := r.db.WithContext(ctx).Preload("Category").
		Order("is_active DESC, name ASC").
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// ListDue returns active templates whose next run is at or before now.
func (r *TemplateRepository) ListDue(ctx context.Context, now time.Time) ([]model.Template, error) {
	var templates []model.Template
	if err := r.db.WithContext(ctx).Preload("Category").
		Where("is_active = ? AND next_run <= ?", true, now).
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list due templates: %w", err)
	}
	return templates, nil
}

// ListUpcoming returns active templates due up to the given horizon, soonest
// first, capped at limit.
func (r *TemplateRepository) ListUpcoming(ctx context.Context, until time.Time, limit int) ([]model.Template, error) {
	var templates []model.Template
	if err := r.db.WithContext(ctx).Preload("Category").
		Where("is_active = ? AND next_run <= ?", true, until).
		Order("next_run ASC").
		Limit(limit).
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list upcoming templates: %w", err)
	}
	return templates, nil
}

func (r *TemplateRepository) CountByActive(ctx context.Context) (total, active int64, err error) {
	if err = r.db.WithContext(ctx).Model(&model.Template{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count templates: %w", err)
	}
	if err = r.db.WithContext(ctx).Model(&model.Template{}).Where("is_active = ?", true).Count(&active).Error; err != nil {
		return 0, 0, fmt.Errorf("count active templates: %w", err)
	}
	return total, active, nil
}

func (r *TemplateRepository) Save(ctx context.Context, template *model.Template) error {
	if err := r.db.WithContext(ctx).Save(template).Error; err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) Delete(ctx context.Context, templateID uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Template{}, templateID).Error; err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}
