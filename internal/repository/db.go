package repository

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"entropy-planner/internal/model"
)

// NewDB opens the planner's SQLite database, runs migrations and seeds the
// starter categories. The sweep scheduler and the bot poll concurrently, so
// the DSN gets a busy timeout instead of failing fast on a locked file.
func NewDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = "entropy_planner.db"
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(withBusyTimeout(dsn)), &gorm.Config{
		Logger: dbLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Category{}, &model.Task{}, &model.Template{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	if err := seedCategories(db); err != nil {
		return nil, err
	}

	return db, nil
}

func withBusyTimeout(dsn string) string {
	if strings.Contains(dsn, "_busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_busy_timeout=5000"
}

// seedCategories inserts the default categories on first start; reruns are
// no-ops because the names already exist.
func seedCategories(db *gorm.DB) error {
	defaults := []model.Category{
		{Name: "Личное", Icon: "🏠", Color: "#3b82f6", IsActive: true},
		{Name: "Работа", Icon: "💼", Color: "#f59e0b", IsActive: true},
	}
	for _, category := range defaults {
		var count int64
		if err := db.Model(&model.Category{}).
			Where("LOWER(name) = LOWER(?)", category.Name).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check seed category: %w", err)
		}
		if count > 0 {
			continue
		}
		if err := db.Create(&category).Error; err != nil {
			return fmt.Errorf("seed category %q: %w", category.Name, err)
		}
	}
	return nil
}

// ensureDirForSQLite creates parent dir for SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	// Ignore DSNs with explicit mode=memory or network.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	// Strip file: prefix if present.
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}
