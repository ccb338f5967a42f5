package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"entropy-planner/internal/clock"
	"entropy-planner/internal/model"
	"entropy-planner/internal/repository"
)

// Sweep outcome per template.
const (
	SweepCreated = "created"
	SweepSkipped = "skipped-duplicate"
	SweepFailed  = "error"
)

// SweepResult records what happened to one due template during a sweep.
type SweepResult struct {
	TemplateID   uint
	TemplateName string
	TaskTitle    string
	Status       string
	Err          error
}

// TemplateInput represents data required to create a template.
type TemplateInput struct {
	Name         string
	Description  string
	CategoryID   uint
	TaskTemplate model.TaskTemplate
	Recurrence   model.Recurrence
}

// TemplatePatch is a partial update; nil fields are left untouched.
type TemplatePatch struct {
	Name         *string
	Description  *string
	CategoryID   *uint
	TaskTemplate *model.TaskTemplate
	Recurrence   *model.Recurrence
}

// TemplateStats summarizes the template table for the transport layer.
type TemplateStats struct {
	Total    int64
	Active   int64
	Inactive int64
	Upcoming []model.Template
}

// TemplateService is the recurrence engine: it maintains template schedules
// and materializes tasks into the current today-bucket exactly once per due
// period.
type TemplateService struct {
	templateRepo *repository.TemplateRepository
	taskRepo     *repository.TaskRepository
	categoryRepo *repository.CategoryRepository
	cutoffHour   int
	// sweepMu makes Sweep single-flight across every trigger (cron jobs,
	// startup catch-up, manual command); the duplicate guard inside is a
	// check-then-act sequence and must never interleave with itself.
	sweepMu sync.Mutex
}

func NewTemplateService(templateRepo *repository.TemplateRepository, taskRepo *repository.TaskRepository, categoryRepo *repository.CategoryRepository, cutoffHour int) *TemplateService {
	return &TemplateService{
		templateRepo: templateRepo,
		taskRepo:     taskRepo,
		categoryRepo: categoryRepo,
		cutoffHour:   cutoffHour,
	}
}

// NextRunAfter computes the next due instant strictly after now for the given
// cadence. Monthly day-of-month values past the end of the target month clamp
// to its last day, so a day-31 template fires on Feb 28 instead of skipping
// into March.
func NextRunAfter(rec model.Recurrence, now time.Time) time.Time {
	interval := rec.Interval
	if interval < 1 {
		interval = 1
	}
	candidate := time.Date(now.Year(), now.Month(), now.Day(), rec.Hour, rec.Minute, 0, 0, now.Location())

	switch rec.Type {
	case model.RecurWeekly:
		for offset := 0; offset < 14; offset++ {
			check := candidate.AddDate(0, 0, offset)
			if check.After(now) && containsWeekday(rec.DaysOfWeek, check.Weekday()) {
				return check
			}
		}
		// Degenerate day set: fall back to plain week stepping.
		return candidate.AddDate(0, 0, 7*interval)
	case model.RecurMonthly:
		day := rec.DayOfMonth
		if day < 1 {
			day = 1
		}
		candidate = monthlyInstant(now.Year(), now.Month(), day, rec.Hour, rec.Minute, now.Location())
		if !candidate.After(now) {
			candidate = monthlyInstant(now.Year(), now.Month()+time.Month(interval), day, rec.Hour, rec.Minute, now.Location())
		}
		return candidate
	default:
		// Daily and custom cadences both step by interval days.
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, interval)
		}
		return candidate
	}
}

func containsWeekday(days []int, weekday time.Weekday) bool {
	for _, d := range days {
		if d == int(weekday) {
			return true
		}
	}
	return false
}

// monthlyInstant builds the due instant on the given day of month, clamped to
// the month's length. time.Date normalizes month overflow first.
func monthlyInstant(year int, month time.Month, day, hour, minute int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, hour, minute, 0, 0, loc)
	if last := daysInMonth(first.Month(), first.Year()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, 0, 0, loc)
}

func daysInMonth(month time.Month, year int) int {
	firstOfNextMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNextMonth.AddDate(0, 0, -1).Day()
}

// Create validates input and stores a template with its initial schedule.
func (s *TemplateService) Create(ctx context.Context, input TemplateInput, now time.Time) (*model.Template, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationf("name is required")
	}
	if strings.TrimSpace(input.TaskTemplate.Title) == "" {
		return nil, validationf("task title is required")
	}
	if !validRecurrenceType(input.Recurrence.Type) {
		return nil, validationf("recurrence type must be daily, weekly, monthly or custom")
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

	template := model.Template{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		CategoryID:  category.ID,
		TaskTemplate: model.TaskTemplate{
			Title:       strings.TrimSpace(input.TaskTemplate.Title),
			Description: strings.TrimSpace(input.TaskTemplate.Description),
			Priority:    input.TaskTemplate.Priority,
		},
		Recurrence: input.Recurrence,
		IsActive:   true,
		NextRun:    NextRunAfter(input.Recurrence, now),
	}
	if template.TaskTemplate.Priority == 0 {
		template.TaskTemplate.Priority = model.PriorityMedium
	}

	if err := s.templateRepo.Create(ctx, &template); err != nil {
		return nil, err
	}
	template.Category = category
	return &template, nil
}

// Update applies a partial patch. Changing the recurrence recomputes the
// schedule from now.
func (s *TemplateService) Update(ctx context.Context, templateID uint, patch TemplatePatch, now time.Time) (*model.Template, error) {
	template, err := s.find(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, validationf("name is required")
		}
		template.Name = name
	}
	if patch.Description != nil {
		template.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.CategoryID != nil {
		category, err := s.categoryRepo.FindActiveByID(ctx, *patch.CategoryID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, validationf("category does not exist or is inactive")
			}
			return nil, err
		}
		template.CategoryID = category.ID
		template.Category = category
	}
	if patch.TaskTemplate != nil {
		if strings.TrimSpace(patch.TaskTemplate.Title) == "" {
			return nil, validationf("task title is required")
		}
		template.TaskTemplate = *patch.TaskTemplate
	}
	if patch.Recurrence != nil {
		if !validRecurrenceType(patch.Recurrence.Type) {
			return nil, validationf("recurrence type must be daily, weekly, monthly or custom")
		}
		template.Recurrence = *patch.Recurrence
		template.NextRun = NextRunAfter(template.Recurrence, now)
	}

	if err := s.templateRepo.Save(ctx, template); err != nil {
		return nil, err
	}
	return template, nil
}

func (s *TemplateService) Delete(ctx context.Context, templateID uint) error {
	if _, err := s.find(ctx, templateID); err != nil {
		return err
	}
	return s.templateRepo.Delete(ctx, templateID)
}

func (s *TemplateService) List(ctx context.Context) ([]model.Template, error) {
	return s.templateRepo.ListAll(ctx)
}

func (s *TemplateService) Get(ctx context.Context, templateID uint) (*model.Template, error) {
	return s.find(ctx, templateID)
}

// ToggleActive flips the active flag. Reactivation recomputes the schedule
// from now, so a template paused for a week does not fire for the stale dates.
func (s *TemplateService) ToggleActive(ctx context.Context, templateID uint, now time.Time) (*model.Template, error) {
	template, err := s.find(ctx, templateID)
	if err != nil {
		return nil, err
	}

	template.IsActive = !template.IsActive
	if template.IsActive {
		template.NextRun = NextRunAfter(template.Recurrence, now)
	}

	if err := s.templateRepo.Save(ctx, template); err != nil {
		return nil, err
	}
	return template, nil
}

// RunNow force-materializes a task from an active template, bypassing the
// schedule gate. The cadence is left untouched; only lastRun and the counter
// move.
func (s *TemplateService) RunNow(ctx context.Context, templateID uint, now time.Time) (*model.Task, error) {
	template, err := s.find(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !template.IsActive {
		return nil, ErrInactive
	}

	task, err := s.materialize(ctx, template, now)
	if err != nil {
		return nil, err
	}

	lastRun := now
	template.LastRun = &lastRun
	template.CreatedTasksCount++
	if err := s.templateRepo.Save(ctx, template); err != nil {
		return nil, err
	}

	log.Printf("[info] template %d run manually, task %d created", template.ID, task.ID)
	return task, nil
}

// Sweep processes every template due at now. Each due template advances its
// schedule exactly once; a task is materialized only when today's bucket has
// no active task with the template's title and category, which makes repeated
// sweeps at the same instant safe. One template failing does not stop the
// batch. A sweep that arrives while another is still running gets
// ErrSweepRunning instead of racing it.
func (s *TemplateService) Sweep(ctx context.Context, now time.Time) ([]SweepResult, error) {
	if !s.sweepMu.TryLock() {
		return nil, ErrSweepRunning
	}
	defer s.sweepMu.Unlock()

	due, err := s.templateRepo.ListDue(ctx, now)
	if err != nil {
		return nil, err
	}

	results := make([]SweepResult, 0, len(due))
	for i := range due {
		template := &due[i]
		result := SweepResult{
			TemplateID:   template.ID,
			TemplateName: template.Name,
			TaskTitle:    template.TaskTemplate.Title,
		}

		b := clock.Boundaries(now, s.cutoffHour)
		existing, err := s.taskRepo.FindActiveByTitle(ctx, template.TaskTemplate.Title, template.CategoryID, b.TodayStart, b.TomorrowStart)
		switch {
		case err != nil:
			result.Status = SweepFailed
			result.Err = err
		case existing != nil:
			result.Status = SweepSkipped
		default:
			if _, err := s.materialize(ctx, template, now); err != nil {
				result.Status = SweepFailed
				result.Err = err
			} else {
				result.Status = SweepCreated
			}
		}

		if result.Status != SweepFailed {
			// Advance the schedule whether a task was created or skipped;
			// the counter tracks processing attempts, not tasks.
			lastRun := now
			template.LastRun = &lastRun
			template.NextRun = NextRunAfter(template.Recurrence, now)
			template.CreatedTasksCount++
			if err := s.templateRepo.Save(ctx, template); err != nil {
				result.Status = SweepFailed
				result.Err = err
			}
		}

		if result.Err != nil {
			log.Printf("sweep template %q: %v", template.Name, result.Err)
		}
		results = append(results, result)
	}

	return results, nil
}

// Stats returns template counts and the runs coming up within a week.
func (s *TemplateService) Stats(ctx context.Context, now time.Time) (TemplateStats, error) {
	var stats TemplateStats
	total, active, err := s.templateRepo.CountByActive(ctx)
	if err != nil {
		return stats, err
	}
	upcoming, err := s.templateRepo.ListUpcoming(ctx, now.AddDate(0, 0, 7), 10)
	if err != nil {
		return stats, err
	}
	stats.Total = total
	stats.Active = active
	stats.Inactive = total - active
	stats.Upcoming = upcoming
	return stats, nil
}

func (s *TemplateService) materialize(ctx context.Context, template *model.Template, now time.Time) (*model.Task, error) {
	task := model.Task{
		Title:       template.TaskTemplate.Title,
		Description: template.TaskTemplate.Description,
		Priority:    template.TaskTemplate.Priority,
		CategoryID:  template.CategoryID,
		Date:        clock.Boundaries(now, s.cutoffHour).TodayStart,
	}
	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TemplateService) find(ctx context.Context, templateID uint) (*model.Template, error) {
	template, err := s.templateRepo.FindByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return template, nil
}

func validRecurrenceType(value string) bool {
	switch value {
	case model.RecurDaily, model.RecurWeekly, model.RecurMonthly, model.RecurCustom:
		return true
	}
	return false
}
