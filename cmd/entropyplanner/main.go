package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"entropy-planner/internal/bot"
	"entropy-planner/internal/config"
	"entropy-planner/internal/repository"
	"entropy-planner/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	templateRepo := repository.NewTemplateRepository(db)

	categorySvc := service.NewCategoryService(categoryRepo)
	taskSvc := service.NewTaskService(taskRepo, categoryRepo, cfg.CutoffHour)
	templateSvc := service.NewTemplateService(templateRepo, taskRepo, categoryRepo, cfg.CutoffHour)

	telegramBot, err := bot.New(cfg.TelegramToken, userRepo, categorySvc, taskSvc, templateSvc, &cfg)
	if err != nil {
		log.Fatalf("bot: %v", err)
	}

	sweep := func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		results, err := templateSvc.Sweep(jobCtx, time.Now())
		if errors.Is(err, service.ErrSweepRunning) {
			log.Println("[info] sweep already in progress, tick skipped")
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sweep: %v", err)
			return
		}
		for _, r := range results {
			log.Printf("[info] sweep template %q: %s", r.TemplateName, r.Status)
		}
	}

	scheduler := service.NewSchedulerService(time.Local)
	if _, err := scheduler.ScheduleInterval(cfg.SweepInterval, sweep); err != nil {
		log.Fatalf("schedule sweep: %v", err)
	}
	// Extra sweep right at the day boundary, so templates due at the cutoff
	// materialize on time instead of waiting for the next interval tick.
	boundary := fmt.Sprintf("%02d:00", cfg.CutoffHour)
	if _, err := scheduler.ScheduleDaily(boundary, sweep); err != nil {
		log.Fatalf("schedule boundary sweep: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Catch up on templates that came due while the process was down.
	go sweep()

	log.Println("Entropy planner bot started.")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("bot stopped with error: %v", err)
	}
	log.Println("Shutdown complete.")
}
