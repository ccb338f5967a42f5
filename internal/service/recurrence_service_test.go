package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"entropy-planner/internal/model"
)

func at(y int, m time.Month, d, hour, min int) time.Time {
	return time.Date(y, m, d, hour, min, 0, 0, time.UTC)
}

func TestNextRunAfter(t *testing.T) {
	tests := []struct {
		name string
		rec  model.Recurrence
		now  time.Time
		want time.Time
	}{
		{
			"daily before today's time fires today",
			model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 9},
			at(2025, time.March, 10, 6, 0),
			at(2025, time.March, 10, 9, 0),
		},
		{
			"daily after today's time fires tomorrow",
			model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5},
			at(2025, time.March, 10, 6, 0),
			at(2025, time.March, 11, 5, 0),
		},
		{
			"custom steps by interval days",
			model.Recurrence{Type: model.RecurCustom, Interval: 3, Hour: 5},
			at(2025, time.March, 10, 6, 0),
			at(2025, time.March, 13, 5, 0),
		},
		{
			// 2025-03-12 is a Wednesday; Monday=1 must land on the next week.
			"weekly monday evaluated on wednesday",
			model.Recurrence{Type: model.RecurWeekly, Interval: 1, DaysOfWeek: []int{1}, Hour: 9},
			at(2025, time.March, 12, 10, 0),
			at(2025, time.March, 17, 9, 0),
		},
		{
			"weekly same day later time fires today",
			model.Recurrence{Type: model.RecurWeekly, Interval: 1, DaysOfWeek: []int{3}, Hour: 18},
			at(2025, time.March, 12, 10, 0),
			at(2025, time.March, 12, 18, 0),
		},
		{
			"weekly empty day set falls back to week stepping",
			model.Recurrence{Type: model.RecurWeekly, Interval: 2, Hour: 9},
			at(2025, time.March, 12, 10, 0),
			at(2025, time.March, 26, 9, 0),
		},
		{
			"monthly later this month",
			model.Recurrence{Type: model.RecurMonthly, Interval: 1, DayOfMonth: 20, Hour: 5},
			at(2025, time.March, 10, 6, 0),
			at(2025, time.March, 20, 5, 0),
		},
		{
			"monthly already passed moves to next month",
			model.Recurrence{Type: model.RecurMonthly, Interval: 1, DayOfMonth: 5, Hour: 5},
			at(2025, time.March, 10, 6, 0),
			at(2025, time.April, 5, 5, 0),
		},
		{
			"monthly day 31 clamps to short month",
			model.Recurrence{Type: model.RecurMonthly, Interval: 1, DayOfMonth: 31, Hour: 9},
			at(2025, time.January, 31, 10, 0),
			at(2025, time.February, 28, 9, 0),
		},
		{
			"monthly interval crosses year boundary",
			model.Recurrence{Type: model.RecurMonthly, Interval: 2, DayOfMonth: 15, Hour: 5},
			at(2025, time.November, 20, 6, 0),
			at(2026, time.January, 15, 5, 0),
		},
		{
			"zero interval treated as one",
			model.Recurrence{Type: model.RecurDaily, Hour: 5},
			at(2025, time.March, 10, 6, 0),
			at(2025, time.March, 11, 5, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRunAfter(tt.rec, tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("NextRunAfter = %v, want %v", got, tt.want)
			}
		})
	}
}

func (e *testEnv) mustCreateTemplate(t *testing.T, name, taskTitle string, rec model.Recurrence, now time.Time) *model.Template {
	t.Helper()
	template, err := e.templateSvc.Create(context.Background(), TemplateInput{
		Name:         name,
		CategoryID:   e.category.ID,
		TaskTemplate: model.TaskTemplate{Title: taskTitle, Priority: model.PriorityMedium},
		Recurrence:   rec,
	}, now)
	if err != nil {
		t.Fatalf("create template %q: %v", name, err)
	}
	return template
}

func TestTemplateCreateComputesInitialNextRun(t *testing.T) {
	env := newTestEnv(t)

	now := at(2025, time.March, 10, 6, 0)
	template := env.mustCreateTemplate(t, "Зарядка", "Сделать зарядку",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5}, now)

	if want := at(2025, time.March, 11, 5, 0); !template.NextRun.Equal(want) {
		t.Errorf("NextRun = %v, want %v", template.NextRun, want)
	}
	if !template.IsActive {
		t.Error("new template must start active")
	}
}

func TestTemplateCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	now := at(2025, time.March, 10, 6, 0)

	tests := []struct {
		name  string
		input TemplateInput
	}{
		{"missing name", TemplateInput{CategoryID: env.category.ID, TaskTemplate: model.TaskTemplate{Title: "x"}, Recurrence: model.Recurrence{Type: model.RecurDaily}}},
		{"missing task title", TemplateInput{Name: "n", CategoryID: env.category.ID, Recurrence: model.Recurrence{Type: model.RecurDaily}}},
		{"bad recurrence type", TemplateInput{Name: "n", CategoryID: env.category.ID, TaskTemplate: model.TaskTemplate{Title: "x"}, Recurrence: model.Recurrence{Type: "yearly"}}},
		{"missing category", TemplateInput{Name: "n", TaskTemplate: model.TaskTemplate{Title: "x"}, Recurrence: model.Recurrence{Type: model.RecurDaily}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.templateSvc.Create(context.Background(), tt.input, now); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSweepMaterializesOncePerDuePeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Template due at day N 05:00, swept at day N 06:00.
	created := env.mustCreateTemplate(t, "Отчёт", "Написать отчёт",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5},
		at(2025, time.March, 9, 6, 0))

	now := at(2025, time.March, 10, 6, 0)
	results, err := env.templateSvc.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(results) != 1 || results[0].Status != SweepCreated {
		t.Fatalf("results = %+v, want one created", results)
	}

	template, err := env.templateSvc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if want := at(2025, time.March, 11, 5, 0); !template.NextRun.Equal(want) {
		t.Errorf("NextRun = %v, want %v", template.NextRun, want)
	}
	if template.LastRun == nil || !template.LastRun.Equal(now) {
		t.Errorf("LastRun = %v, want %v", template.LastRun, now)
	}
	if template.CreatedTasksCount != 1 {
		t.Errorf("CreatedTasksCount = %d, want 1", template.CreatedTasksCount)
	}

	// Second sweep at the same instant: the schedule already moved past now,
	// so nothing is due and no second task appears.
	results, err = env.templateSvc.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("second sweep processed %d templates, want 0", len(results))
	}

	var count int64
	env.db.Model(&model.Task{}).Count(&count)
	if count != 1 {
		t.Errorf("store has %d tasks, want exactly 1 materialization", count)
	}
}

func TestSweepSkipsWhenTaskAlreadyExists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	template := env.mustCreateTemplate(t, "Уборка", "Убраться дома",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5},
		at(2025, time.March, 9, 6, 0))

	// The task already sits in today's bucket, e.g. created by hand.
	now := at(2025, time.March, 10, 6, 0)
	if _, err := env.taskSvc.Create(ctx, TaskInput{
		Title:      "Убраться дома",
		Priority:   model.PriorityMedium,
		CategoryID: env.category.ID,
	}, now); err != nil {
		t.Fatalf("create task: %v", err)
	}

	results, err := env.templateSvc.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(results) != 1 || results[0].Status != SweepSkipped {
		t.Fatalf("results = %+v, want one skipped-duplicate", results)
	}

	// The schedule and the attempt counter advance on skip too.
	reloaded, err := env.templateSvc.Get(ctx, template.ID)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if !reloaded.NextRun.After(now) {
		t.Errorf("NextRun = %v, must advance past %v even on skip", reloaded.NextRun, now)
	}
	if reloaded.CreatedTasksCount != 1 {
		t.Errorf("CreatedTasksCount = %d, want 1", reloaded.CreatedTasksCount)
	}

	var count int64
	env.db.Model(&model.Task{}).Count(&count)
	if count != 1 {
		t.Errorf("store has %d tasks, want 1 (no duplicate materialization)", count)
	}
}

func TestSweepIsSingleFlight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.mustCreateTemplate(t, "Гонка", "Задача под гонкой",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5},
		at(2025, time.March, 9, 6, 0))

	// All triggers share one guard: concurrent sweeps either run alone or are
	// turned away, never interleave.
	now := at(2025, time.March, 10, 6, 0)
	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.templateSvc.Sweep(ctx, now)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil && !errors.Is(err, ErrSweepRunning) {
			t.Errorf("sweep %d: %v", i, err)
		}
	}

	var count int64
	env.db.Model(&model.Task{}).Count(&count)
	if count != 1 {
		t.Errorf("store has %d tasks, want exactly 1 regardless of overlapping sweeps", count)
	}
}

func TestSweepIgnoresInactiveAndFutureTemplates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := at(2025, time.March, 10, 6, 0)
	// Due but switched off.
	paused := env.mustCreateTemplate(t, "Пауза", "Задача на паузе",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5},
		at(2025, time.March, 9, 6, 0))
	if _, err := env.templateSvc.ToggleActive(ctx, paused.ID, at(2025, time.March, 9, 7, 0)); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	// Active but not due yet.
	env.mustCreateTemplate(t, "Позже", "Задача на потом",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 23}, now)

	results, err := env.templateSvc.Sweep(ctx, now)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("sweep processed %d templates, want 0", len(results))
	}
}

func TestRunNowLeavesScheduleUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := at(2025, time.March, 10, 6, 0)
	template := env.mustCreateTemplate(t, "Вручную", "Ручная задача",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5}, now)
	scheduled := template.NextRun

	task, err := env.templateSvc.RunNow(ctx, template.ID, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("run now: %v", err)
	}
	if task.Title != "Ручная задача" {
		t.Errorf("task title = %q", task.Title)
	}

	reloaded, err := env.templateSvc.Get(ctx, template.ID)
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if !reloaded.NextRun.Equal(scheduled) {
		t.Errorf("NextRun = %v, manual runs must not perturb the cadence (%v)", reloaded.NextRun, scheduled)
	}
	if reloaded.CreatedTasksCount != 1 {
		t.Errorf("CreatedTasksCount = %d, want 1", reloaded.CreatedTasksCount)
	}
	if reloaded.LastRun == nil {
		t.Error("LastRun must be stamped")
	}
}

func TestRunNowRejectsInactiveTemplate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := at(2025, time.March, 10, 6, 0)
	template := env.mustCreateTemplate(t, "Спит", "Спящая задача",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5}, now)
	if _, err := env.templateSvc.ToggleActive(ctx, template.ID, now); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	if _, err := env.templateSvc.RunNow(ctx, template.ID, now); !errors.Is(err, ErrInactive) {
		t.Errorf("err = %v, want ErrInactive", err)
	}
}

func TestToggleActiveRecomputesOnReactivation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	template := env.mustCreateTemplate(t, "Перезапуск", "Возобновлённая задача",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5},
		at(2025, time.March, 1, 6, 0))
	frozen := template.NextRun

	off, err := env.templateSvc.ToggleActive(ctx, template.ID, at(2025, time.March, 2, 6, 0))
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if off.IsActive {
		t.Fatal("template must be inactive after toggle")
	}
	if !off.NextRun.Equal(frozen) {
		t.Errorf("deactivation must freeze NextRun, got %v want %v", off.NextRun, frozen)
	}

	// Reactivate a week later: the schedule restarts from now, not the stale date.
	resumeAt := at(2025, time.March, 9, 6, 0)
	on, err := env.templateSvc.ToggleActive(ctx, template.ID, resumeAt)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if want := at(2025, time.March, 10, 5, 0); !on.NextRun.Equal(want) {
		t.Errorf("NextRun = %v, want recomputed %v", on.NextRun, want)
	}
}

func TestTemplateUpdateRecomputesNextRunOnRecurrenceChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := at(2025, time.March, 10, 6, 0)
	template := env.mustCreateTemplate(t, "Сдвиг", "Задача со сдвигом",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5}, now)

	updated, err := env.templateSvc.Update(ctx, template.ID, TemplatePatch{
		Recurrence: &model.Recurrence{Type: model.RecurMonthly, Interval: 1, DayOfMonth: 20, Hour: 5},
	}, now)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if want := at(2025, time.March, 20, 5, 0); !updated.NextRun.Equal(want) {
		t.Errorf("NextRun = %v, want %v", updated.NextRun, want)
	}

	// A name-only patch leaves the schedule alone.
	name := "Новое имя"
	renamed, err := env.templateSvc.Update(ctx, template.ID, TemplatePatch{Name: &name}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !renamed.NextRun.Equal(updated.NextRun) {
		t.Errorf("NextRun changed on rename: %v -> %v", updated.NextRun, renamed.NextRun)
	}
}

func TestTemplateStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := at(2025, time.March, 10, 6, 0)
	env.mustCreateTemplate(t, "Скоро", "Скорая задача",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5}, now)
	far := env.mustCreateTemplate(t, "Нескоро", "Дальняя задача",
		model.Recurrence{Type: model.RecurMonthly, Interval: 1, DayOfMonth: 25, Hour: 5}, now)
	paused := env.mustCreateTemplate(t, "Выключен", "Выключенная задача",
		model.Recurrence{Type: model.RecurDaily, Interval: 1, Hour: 5}, now)
	if _, err := env.templateSvc.ToggleActive(ctx, paused.ID, now); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	stats, err := env.templateSvc.Stats(ctx, now)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Active != 2 || stats.Inactive != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", stats.Total, stats.Active, stats.Inactive)
	}
	// Only the daily template is due within a week; the monthly one (Mar 25)
	// sits outside the 7-day horizon.
	if len(stats.Upcoming) != 1 {
		t.Fatalf("upcoming = %d templates, want 1", len(stats.Upcoming))
	}
	if stats.Upcoming[0].ID == far.ID {
		t.Error("monthly template outside the horizon must not be listed")
	}
}
