package service

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"entropy-planner/internal/model"
	"entropy-planner/internal/repository"
)

// testEnv wires the services against an in-memory sqlite database.
type testEnv struct {
	db          *gorm.DB
	taskRepo    *repository.TaskRepository
	taskSvc     *TaskService
	templateSvc *TemplateService
	categorySvc *CategoryService
	category    *model.Category
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	// A pooled second connection would see its own empty :memory: database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&model.Category{}, &model.Task{}, &model.Template{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	categoryRepo := repository.NewCategoryRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	templateRepo := repository.NewTemplateRepository(db)

	category, err := categoryRepo.GetOrCreate(context.Background(), "Работа")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	return &testEnv{
		db:          db,
		taskRepo:    taskRepo,
		taskSvc:     NewTaskService(taskRepo, categoryRepo, 5),
		templateSvc: NewTemplateService(templateRepo, taskRepo, categoryRepo, 5),
		categorySvc: NewCategoryService(categoryRepo),
		category:    category,
	}
}

// tuesdayNight is Tuesday 02:00; with cutoff 5 the today-bucket is Monday 05:00.
var tuesdayNight = time.Date(2025, time.March, 11, 2, 0, 0, 0, time.UTC)

func (e *testEnv) mustCreateTask(t *testing.T, title string, now time.Time) *model.Task {
	t.Helper()
	task, err := e.taskSvc.Create(context.Background(), TaskInput{
		Title:      title,
		Priority:   model.PriorityMedium,
		CategoryID: e.category.ID,
	}, now)
	if err != nil {
		t.Fatalf("create task %q: %v", title, err)
	}
	return task
}

func (e *testEnv) countTasksByID(t *testing.T, id uint) int64 {
	t.Helper()
	var count int64
	if err := e.db.Model(&model.Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	return count
}
