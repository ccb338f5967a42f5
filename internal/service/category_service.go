package service

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"entropy-planner/internal/model"
	"entropy-planner/internal/repository"
)

// CategoryService provides helpers around categories. Tasks and templates
// consume categories as references; this covers the small CRUD the transport
// layer needs to keep that reference pool alive.
type CategoryService struct {
	repo *repository.CategoryRepository
}

func NewCategoryService(repo *repository.CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

func (s *CategoryService) List(ctx context.Context) ([]model.Category, error) {
	return s.repo.ListActive(ctx)
}

func (s *CategoryService) GetOrCreate(ctx context.Context, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("category name is required")
	}
	return s.repo.GetOrCreate(ctx, name)
}

func (s *CategoryService) Deactivate(ctx context.Context, id uint) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
