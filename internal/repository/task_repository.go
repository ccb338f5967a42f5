package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"entropy-planner/internal/model"
)

// TaskRepository handles CRUD and bucket queries for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Preload("Category").First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListActiveInBucket returns tasks counting toward the bucket [start, end):
// not moved, not deleted, sorted by priority then creation time.
func (r *TaskRepository) ListActiveInBucket(ctx context.Context, start, end time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Preload("Category").
		Where("date >= ? AND date < ? AND moved = ? AND deleted = ?", start, end, false, false).
		Order("priority ASC, created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list bucket tasks: %w", err)
	}
	return tasks, nil
}

// ListVisibleInBucket returns all non-deleted tasks in [start, end), moved ones
// included. The tomorrow list is rendered from this view.
func (r *TaskRepository) ListVisibleInBucket(ctx context.Context, start, end time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Preload("Category").
		Where("date >= ? AND date < ? AND deleted = ?", start, end, false).
		Order("priority ASC, created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list bucket tasks: %w", err)
	}
	return tasks, nil
}

// ListUncompletedInBucket returns the carry-forward working set for [start, end).
func (r *TaskRepository) ListUncompletedInBucket(ctx context.Context, start, end time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("date >= ? AND date < ? AND completed = ? AND moved = ? AND deleted = ?",
			start, end, false, false, false).
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list uncompleted tasks: %w", err)
	}
	return tasks, nil
}

// FindActiveByTitle looks up an active task in [start, end) whose title matches
// case-insensitively within the given category. Returns nil when absent.
func (r *TaskRepository) FindActiveByTitle(ctx context.Context, title string, categoryID uint, start, end time.Time) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Where("LOWER(title) = LOWER(?) AND category_id = ? AND date >= ? AND date < ? AND moved = ? AND deleted = ?",
			title, categoryID, start, end, false, false).
		First(&task).Error
	switch {
	case err == nil:
		return &task, nil
	case err == gorm.ErrRecordNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("find task by title: %w", err)
	}
}

// FindUncompletedByTitle is FindActiveByTitle narrowed to unfinished tasks.
// The carry-side duplicate checks use it, so a completed twin never masks
// unfinished work.
func (r *TaskRepository) FindUncompletedByTitle(ctx context.Context, title string, categoryID uint, start, end time.Time) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Where("LOWER(title) = LOWER(?) AND category_id = ? AND date >= ? AND date < ? AND completed = ? AND moved = ? AND deleted = ?",
			title, categoryID, start, end, false, false, false).
		First(&task).Error
	switch {
	case err == nil:
		return &task, nil
	case err == gorm.ErrRecordNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("find task by title: %w", err)
	}
}

// FindMovedTwin finds the moved-marked record in [start, end) that a
// carried-forward task was created from, matched by its copied fields.
func (r *TaskRepository) FindMovedTwin(ctx context.Context, task *model.Task, start, end time.Time) (*model.Task, error) {
	var twin model.Task
	err := r.db.WithContext(ctx).
		Where("title = ? AND description = ? AND priority = ? AND category_id = ? AND date >= ? AND date < ? AND moved = ?",
			task.Title, task.Description, task.Priority, task.CategoryID, start, end, true).
		First(&twin).Error
	switch {
	case err == nil:
		return &twin, nil
	case err == gorm.ErrRecordNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("find moved twin: %w", err)
	}
}

func (r *TaskRepository) Save(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// Updates applies a partial field map to a task.
func (r *TaskRepository) Updates(ctx context.Context, taskID uint, fields map[string]interface{}) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{ID: taskID}).Updates(fields).Error; err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// HardDelete removes a task row permanently. Used only when carry-back retires
// the original record; everything user-facing soft-deletes instead.
func (r *TaskRepository) HardDelete(ctx context.Context, taskID uint) error {
	if err := r.db.WithContext(ctx).Delete(&model.Task{}, taskID).Error; err != nil {
		return fmt.Errorf("hard delete task: %w", err)
	}
	return nil
}
