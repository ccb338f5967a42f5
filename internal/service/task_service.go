package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"entropy-planner/internal/clock"
	"entropy-planner/internal/model"
	"entropy-planner/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string
	Description string
	Priority    int
	CategoryID  uint
	// Date pins the task to the bucket starting at that instant. Left zero,
	// the task lands in today's bucket.
	Date *time.Time
}

// TaskPatch is a partial update; nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Priority    *int
	CategoryID  *uint
	Completed   *bool
	Date        *time.Time
}

// CarryForwardResult reports what a carry-forward sweep did, so a cached view
// can be reconciled without refetching everything.
type CarryForwardResult struct {
	Created  []model.Task
	MovedIDs []uint
}

// TaskService owns the day-boundary task lifecycle: creation, carry-forward,
// carry-back and deletion with linked-record cleanup.
type TaskService struct {
	taskRepo     *repository.TaskRepository
	categoryRepo *repository.CategoryRepository
	cutoffHour   int
}

func NewTaskService(taskRepo *repository.TaskRepository, categoryRepo *repository.CategoryRepository, cutoffHour int) *TaskService {
	return &TaskService{taskRepo: taskRepo, categoryRepo: categoryRepo, cutoffHour: cutoffHour}
}

// Create validates input and stores a new task. Without an explicit date the
// task goes into the bucket containing now.
func (s *TaskService) Create(ctx context.Context, input TaskInput, now time.Time) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationf("title is required")
	}
	if input.Priority < model.PriorityHigh || input.Priority > model.PriorityLow {
		return nil, validationf("priority must be between %d and %d", model.PriorityHigh, model.PriorityLow)
	}
	if input.CategoryID == 0 {
		return nil, validationf("category is required")
	}
	category, err := s.categoryRepo.FindActiveByID(ctx, input.CategoryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validationf("category does not exist or is inactive")
		}
		return nil, err
	}

	date := clock.Boundaries(now, s.cutoffHour).TodayStart
	if input.Date != nil {
		date = clock.BucketStart(*input.Date, s.cutoffHour)
	}

	task := model.Task{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Priority:    input.Priority,
		CategoryID:  category.ID,
		Date:        date,
	}
	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}
	task.Category = category
	return &task, nil
}

// CheckDuplicate is the advisory pre-create check: it looks for an
// uncompleted active task in today's bucket with the same title
// (case-insensitive) and category. Returns nil when no duplicate exists.
// Racing with a concurrent create is accepted; this is a hint for the caller,
// not a constraint.
func (s *TaskService) CheckDuplicate(ctx context.Context, title string, categoryID uint, now time.Time) (*model.Task, error) {
	b := clock.Boundaries(now, s.cutoffHour)
	return s.taskRepo.FindUncompletedByTitle(ctx, strings.TrimSpace(title), categoryID, b.TodayStart, b.TomorrowStart)
}

// CarryForward moves every uncompleted task of today's bucket into tomorrow's.
// A copy is created only when tomorrow has no uncompleted active task with the
// same title and category (a finished twin does not count); the original is
// marked moved either way, so nothing stays active-and-uncompleted in today's
// bucket afterwards.
func (s *TaskService) CarryForward(ctx context.Context, now time.Time) (CarryForwardResult, error) {
	var result CarryForwardResult
	b := clock.Boundaries(now, s.cutoffHour)

	uncompleted, err := s.taskRepo.ListUncompletedInBucket(ctx, b.TodayStart, b.TomorrowStart)
	if err != nil {
		return result, err
	}

	for i := range uncompleted {
		task := uncompleted[i]

		existing, err := s.taskRepo.FindUncompletedByTitle(ctx, task.Title, task.CategoryID, b.TomorrowStart, b.DayAfterTomorrowStart)
		if err != nil {
			return result, err
		}
		if existing == nil {
			originalID := task.ID
			carried := model.Task{
				Title:          task.Title,
				Description:    task.Description,
				Priority:       task.Priority,
				CategoryID:     task.CategoryID,
				Date:           b.TomorrowStart,
				OriginalTaskID: &originalID,
			}
			if err := s.taskRepo.Create(ctx, &carried); err != nil {
				return result, err
			}
			result.Created = append(result.Created, carried)
		}

		// Unconditional: the task must leave today's list whether or not a
		// tomorrow copy was produced.
		if err := s.taskRepo.Updates(ctx, task.ID, map[string]interface{}{"moved": true}); err != nil {
			return result, err
		}
		result.MovedIDs = append(result.MovedIDs, task.ID)
	}

	log.Printf("[info] carry-forward: %d created, %d marked moved", len(result.Created), len(result.MovedIDs))
	return result, nil
}

// CarryBack returns a tomorrow-bucket task to today. When the task was itself
// produced by a carry-forward, the original record it points at is retired for
// good so it can never resurface.
func (s *TaskService) CarryBack(ctx context.Context, taskID uint, now time.Time) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	b := clock.Boundaries(now, s.cutoffHour)
	if !task.ActiveIn(b.TomorrowStart) {
		return nil, ErrNotTomorrowTask
	}

	existing, err := s.taskRepo.FindActiveByTitle(ctx, task.Title, task.CategoryID, b.TodayStart, b.TomorrowStart)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != task.ID {
		return nil, &DuplicateError{Existing: *existing}
	}

	task.Date = b.TodayStart
	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}

	if task.OriginalTaskID != nil {
		// The original may already be gone; that's fine.
		if err := s.taskRepo.HardDelete(ctx, *task.OriginalTaskID); err != nil {
			log.Printf("retire original task %d: %v", *task.OriginalTaskID, err)
		}
		task.OriginalTaskID = nil
		if err := s.taskRepo.Updates(ctx, task.ID, map[string]interface{}{"original_task_id": nil}); err != nil {
			return nil, err
		}
	}

	log.Printf("[info] carry-back: task %d returned to today", task.ID)
	return task, nil
}

// Delete soft-deletes a task. Deleting a tomorrow-bucket task also deletes the
// moved-marked record it was carried from, so the pair cannot reappear in
// today's list under any query.
func (s *TaskService) Delete(ctx context.Context, taskID uint, now time.Time) error {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	if clock.InTomorrow(task.Date, now, s.cutoffHour) {
		b := clock.Boundaries(now, s.cutoffHour)
		twin, err := s.taskRepo.FindMovedTwin(ctx, task, b.TodayStart, b.TomorrowStart)
		if err != nil {
			return err
		}
		if twin != nil {
			if err := s.taskRepo.Updates(ctx, twin.ID, map[string]interface{}{"deleted": true}); err != nil {
				return err
			}
			log.Printf("[info] delete: linked moved task %d removed with %d", twin.ID, task.ID)
		}
	}

	return s.taskRepo.Updates(ctx, taskID, map[string]interface{}{"deleted": true})
}

// Update applies a partial patch. A completed=true transition stamps
// CompletedAt once; it is never overwritten afterwards.
func (s *TaskService) Update(ctx context.Context, taskID uint, patch TaskPatch, now time.Time) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return nil, validationf("title is required")
		}
		task.Title = title
	}
	if patch.Description != nil {
		task.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Priority != nil {
		if *patch.Priority < model.PriorityHigh || *patch.Priority > model.PriorityLow {
			return nil, validationf("priority must be between %d and %d", model.PriorityHigh, model.PriorityLow)
		}
		task.Priority = *patch.Priority
	}
	if patch.CategoryID != nil {
		category, err := s.categoryRepo.FindActiveByID(ctx, *patch.CategoryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, validationf("category does not exist or is inactive")
			}
			return nil, err
		}
		task.CategoryID = category.ID
		task.Category = category
	}
	if patch.Date != nil {
		task.Date = clock.BucketStart(*patch.Date, s.cutoffHour)
	}
	if patch.Completed != nil {
		if *patch.Completed && task.CompletedAt == nil {
			stamp := now
			task.CompletedAt = &stamp
		}
		task.Completed = *patch.Completed
	}

	if err := s.taskRepo.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Get fetches a single task by id.
func (s *TaskService) Get(ctx context.Context, taskID uint) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

// ListBuckets returns today's active tasks and tomorrow's visible ones.
// Moved tasks are hidden from today (they live on as audit records) but a
// moved task sitting in tomorrow would be a carried copy, which is never
// marked moved, so tomorrow just excludes deleted rows.
func (s *TaskService) ListBuckets(ctx context.Context, now time.Time) (today, tomorrow []model.Task, err error) {
	b := clock.Boundaries(now, s.cutoffHour)
	today, err = s.taskRepo.ListActiveInBucket(ctx, b.TodayStart, b.TomorrowStart)
	if err != nil {
		return nil, nil, err
	}
	tomorrow, err = s.taskRepo.ListVisibleInBucket(ctx, b.TomorrowStart, b.DayAfterTomorrowStart)
	if err != nil {
		return nil, nil, err
	}
	return today, tomorrow, nil
}

// ListByDate returns the tasks of the bucket containing the given instant.
func (s *TaskService) ListByDate(ctx context.Context, date time.Time) ([]model.Task, error) {
	b := clock.Boundaries(date, s.cutoffHour)
	return s.taskRepo.ListActiveInBucket(ctx, b.TodayStart, b.TomorrowStart)
}
