package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"entropy-planner/internal/config"
	"entropy-planner/internal/model"
	"entropy-planner/internal/repository"
	"entropy-planner/internal/service"
)

// Bot is the thin Telegram driver over the planner services. All semantics
// live below it; the bot only parses commands and renders replies.
type Bot struct {
	api         *tgbotapi.BotAPI
	userRepo    *repository.UserRepository
	categorySvc *service.CategoryService
	taskSvc     *service.TaskService
	templateSvc *service.TemplateService
	config      *config.Config
}

func New(token string, userRepo *repository.UserRepository, categorySvc *service.CategoryService, taskSvc *service.TaskService, templateSvc *service.TemplateService, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:         api,
		userRepo:    userRepo,
		categorySvc: categorySvc,
		taskSvc:     taskSvc,
		templateSvc: templateSvc,
		config:      cfg,
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			log.Printf("handle message: %v", err)
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, "Я понимаю только команды. Набери /help для списка.")
	}

	log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	switch msg.Command() {
	case "start":
		return b.handleStart(msg, user)
	case "help":
		return b.handleHelp(msg)
	case "add":
		return b.handleAdd(ctx, msg)
	case "today":
		return b.handleToday(ctx, msg)
	case "date":
		return b.handleDate(ctx, msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "carry":
		return b.handleCarry(ctx, msg)
	case "back":
		return b.handleBack(ctx, msg)
	case "templates":
		return b.handleTemplates(ctx, msg)
	case "newtemplate":
		return b.handleNewTemplate(ctx, msg)
	case "runtpl":
		return b.handleRunTemplate(ctx, msg)
	case "toggletpl":
		return b.handleToggleTemplate(ctx, msg)
	case "deltpl":
		return b.handleDeleteTemplate(ctx, msg)
	case "sweep":
		return b.handleSweep(ctx, msg)
	case "stats":
		return b.handleStats(ctx, msg)
	case "categories":
		return b.handleCategories(ctx, msg)
	case "newcategory":
		return b.handleNewCategory(ctx, msg)
	case "delcategory":
		return b.handleDeleteCategory(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message, user *model.User) error {
	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я планировщик с границей дня в %02d:00 — всё, что до неё, ещё «вчера».</b>\n\n"+
			"Основные команды:\n"+
			"• /add — добавить задачу\n"+
			"• /today — задачи на сегодня и завтра\n"+
			"• /carry — перенести невыполненное на завтра\n"+
			"• /templates — регулярные шаблоны\n"+
			"• /help — все команды",
		escape(user.DisplayName()), b.config.CutoffHour,
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Команды</b>\n" +
		"• /add название | описание | приоритет (1–3) | категория\n" +
		"• /today — списки на сегодня и завтра\n" +
		"• /date 2025-03-11 — список конкретного дня\n" +
		"• /done &lt;id&gt; — отметить задачу выполненной\n" +
		"• /delete &lt;id&gt; — удалить задачу\n" +
		"• /carry — перенести невыполненное на завтра\n" +
		"• /back &lt;id&gt; — вернуть завтрашнюю задачу на сегодня\n" +
		"• /templates — список шаблонов\n" +
		"• /newtemplate имя | задача | расписание | категория\n" +
		"   расписание: daily, custom:3, weekly:1,3, monthly:15\n" +
		"• /runtpl &lt;id&gt; — создать задачу из шаблона сейчас\n" +
		"• /toggletpl &lt;id&gt; — включить/выключить шаблон\n" +
		"• /deltpl &lt;id&gt; — удалить шаблон\n" +
		"• /sweep — обработать шаблоны вручную\n" +
		"• /stats — статистика шаблонов\n" +
		"• /categories, /newcategory &lt;имя&gt;, /delcategory &lt;id&gt;"
	return b.sendText(msg.Chat.ID, text)
}

// /add название | описание | приоритет | категория
func (b *Bot) handleAdd(ctx context.Context, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, "Формат: /add название | описание | приоритет (1–3) | категория")
	}

	parts := strings.Split(args, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	input := service.TaskInput{Title: parts[0], Priority: model.PriorityMedium}
	if len(parts) > 1 {
		input.Description = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		priority, err := strconv.Atoi(parts[2])
		if err != nil {
			return b.sendText(msg.Chat.ID, "Приоритет должен быть числом от 1 до 3.")
		}
		input.Priority = priority
	}
	categoryName := "Личное"
	if len(parts) > 3 && parts[3] != "" {
		categoryName = parts[3]
	}

	category, err := b.categorySvc.GetOrCreate(ctx, categoryName)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	input.CategoryID = category.ID

	now := time.Now()
	if existing, err := b.taskSvc.CheckDuplicate(ctx, input.Title, input.CategoryID, now); err == nil && existing != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf(
			"⚠️ Похожая задача уже есть сегодня: «%s» (#%d). Если всё равно нужно — повтори команду с другим названием.",
			escape(existing.Title), existing.ID))
	}

	task, err := b.taskSvc.Create(ctx, input, now)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}

	log.Printf("[info] task created id=%d user=%d", task.ID, msg.From.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Задача «%s» (#%d) добавлена в список на сегодня.", escape(task.Title), task.ID))
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	now := time.Now()
	today, tomorrow, err := b.taskSvc.ListBuckets(ctx, now)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, buildDaySummary(today, tomorrow, now, b.config.CutoffHour))
}

// /date 2025-03-11 — список конкретного дня.
func (b *Bot) handleDate(ctx context.Context, msg *tgbotapi.Message) error {
	arg := strings.TrimSpace(msg.CommandArguments())
	day, err := time.ParseInLocation("2006-01-02", arg, time.Local)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Формат: /date 2025-03-11")
	}

	// The calendar date names the bucket that starts at the cutoff that day.
	at := time.Date(day.Year(), day.Month(), day.Day(), b.config.CutoffHour, 0, 0, 0, time.Local)
	tasks, err := b.taskSvc.ListByDate(ctx, at)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>%s</b>\n", day.Format("02.01.2006")))
	writeTaskSection(&builder, tasks)
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /done 12")
	}

	completed := true
	task, err := b.taskSvc.Update(ctx, taskID, service.TaskPatch{Completed: &completed}, time.Now())
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Задача «%s» выполнена.", escape(task.Title)))
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /delete 12")
	}

	task, err := b.taskSvc.Get(ctx, taskID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if err := b.taskSvc.Delete(ctx, taskID, time.Now()); err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🗑 Задача «%s» удалена.", escape(task.Title)))
}

func (b *Bot) handleCarry(ctx context.Context, msg *tgbotapi.Message) error {
	result, err := b.taskSvc.CarryForward(ctx, time.Now())
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if len(result.MovedIDs) == 0 {
		return b.sendText(msg.Chat.ID, "Все задачи на сегодня выполнены — переносить нечего. 🎉")
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📦 Перенесено на завтра: %d (новых копий: %d)\n", len(result.MovedIDs), len(result.Created)))
	for _, task := range result.Created {
		builder.WriteString(fmt.Sprintf("• #%d %s\n", task.ID, escape(task.Title)))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleBack(ctx context.Context, msg *tgbotapi.Message) error {
	taskID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID задачи: /back 12")
	}

	task, err := b.taskSvc.CarryBack(ctx, taskID, time.Now())
	if err != nil {
		var dup *service.DuplicateError
		if errors.As(err, &dup) {
			return b.sendText(msg.Chat.ID, fmt.Sprintf(
				"⚠️ На сегодня уже есть задача «%s» (#%d). Сначала удали или выполни её, потом повтори /back %d.",
				escape(dup.Existing.Title), dup.Existing.ID, taskID))
		}
		if errors.Is(err, service.ErrNotTomorrowTask) {
			return b.sendText(msg.Chat.ID, "Эта задача не стоит на завтра, возвращать нечего.")
		}
		return b.replyError(msg.Chat.ID, err)
	}

	return b.sendText(msg.Chat.ID, fmt.Sprintf("↩️ Задача «%s» возвращена на сегодня.", escape(task.Title)))
}

func (b *Bot) handleTemplates(ctx context.Context, msg *tgbotapi.Message) error {
	templates, err := b.templateSvc.List(ctx)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if len(templates) == 0 {
		return b.sendText(msg.Chat.ID, "Шаблонов пока нет. Создай через /newtemplate.")
	}

	var builder strings.Builder
	builder.WriteString("♻️ <b>Регулярные шаблоны</b>\n")
	for _, template := range templates {
		builder.WriteString(formatTemplate(template))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

// /newtemplate имя | задача | расписание | категория
func (b *Bot) handleNewTemplate(ctx context.Context, msg *tgbotapi.Message) error {
	parts := strings.Split(strings.TrimSpace(msg.CommandArguments()), "|")
	if len(parts) < 4 {
		return b.sendText(msg.Chat.ID, "Формат: /newtemplate имя | задача | расписание | категория\nРасписание: daily, custom:3, weekly:1,3, monthly:15")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	recurrence, err := parseRecurrence(parts[2], b.config.CutoffHour)
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Не понял расписание: %s", escape(err.Error())))
	}

	category, err := b.categorySvc.GetOrCreate(ctx, parts[3])
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}

	template, err := b.templateSvc.Create(ctx, service.TemplateInput{
		Name:       parts[0],
		CategoryID: category.ID,
		TaskTemplate: model.TaskTemplate{
			Title:    parts[1],
			Priority: model.PriorityMedium,
		},
		Recurrence: recurrence,
	}, time.Now())
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}

	return b.sendText(msg.Chat.ID, fmt.Sprintf(
		"♻️ Шаблон «%s» (#%d) создан. Следующий запуск: %s.",
		escape(template.Name), template.ID, template.NextRun.Format("2006-01-02 15:04")))
}

func (b *Bot) handleRunTemplate(ctx context.Context, msg *tgbotapi.Message) error {
	templateID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID шаблона: /runtpl 3")
	}

	task, err := b.templateSvc.RunNow(ctx, templateID, time.Now())
	if err != nil {
		if errors.Is(err, service.ErrInactive) {
			return b.sendText(msg.Chat.ID, "Шаблон выключен. Сначала включи его: /toggletpl "+strconv.FormatUint(uint64(templateID), 10))
		}
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Из шаблона создана задача «%s» (#%d).", escape(task.Title), task.ID))
}

func (b *Bot) handleToggleTemplate(ctx context.Context, msg *tgbotapi.Message) error {
	templateID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID шаблона: /toggletpl 3")
	}

	template, err := b.templateSvc.ToggleActive(ctx, templateID, time.Now())
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if template.IsActive {
		return b.sendText(msg.Chat.ID, fmt.Sprintf(
			"▶️ Шаблон «%s» включён. Следующий запуск: %s.",
			escape(template.Name), template.NextRun.Format("2006-01-02 15:04")))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("⏸ Шаблон «%s» выключен.", escape(template.Name)))
}

func (b *Bot) handleDeleteTemplate(ctx context.Context, msg *tgbotapi.Message) error {
	templateID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID шаблона: /deltpl 3")
	}
	if err := b.templateSvc.Delete(ctx, templateID); err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, "🗑 Шаблон удалён.")
}

func (b *Bot) handleSweep(ctx context.Context, msg *tgbotapi.Message) error {
	results, err := b.templateSvc.Sweep(ctx, time.Now())
	if err != nil {
		if errors.Is(err, service.ErrSweepRunning) {
			return b.sendText(msg.Chat.ID, "Обработка шаблонов уже идёт, попробуй через минуту.")
		}
		return b.replyError(msg.Chat.ID, err)
	}
	if len(results) == 0 {
		return b.sendText(msg.Chat.ID, "Нет шаблонов, готовых к запуску.")
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("⏰ Обработано шаблонов: %d\n", len(results)))
	for _, r := range results {
		switch r.Status {
		case service.SweepCreated:
			builder.WriteString(fmt.Sprintf("• %s — создана «%s»\n", escape(r.TemplateName), escape(r.TaskTitle)))
		case service.SweepSkipped:
			builder.WriteString(fmt.Sprintf("• %s — уже есть, пропущено\n", escape(r.TemplateName)))
		default:
			builder.WriteString(fmt.Sprintf("• %s — ошибка\n", escape(r.TemplateName)))
		}
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	now := time.Now()
	stats, err := b.templateSvc.Stats(ctx, now)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	activeUsers, err := b.userRepo.CountSeenSince(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}

	var builder strings.Builder
	builder.WriteString("📊 <b>Шаблоны</b>\n")
	builder.WriteString(fmt.Sprintf("Всего: %d · активных: %d · выключенных: %d\n", stats.Total, stats.Active, stats.Inactive))
	builder.WriteString(fmt.Sprintf("Пользователей за месяц: %d\n", activeUsers))
	if len(stats.Upcoming) > 0 {
		builder.WriteString("\n<b>Ближайшие запуски</b>\n")
		for _, template := range stats.Upcoming {
			builder.WriteString(fmt.Sprintf("• %s — %s\n", escape(template.Name), template.NextRun.Format("2006-01-02 15:04")))
		}
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleCategories(ctx context.Context, msg *tgbotapi.Message) error {
	categories, err := b.categorySvc.List(ctx)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if len(categories) == 0 {
		return b.sendText(msg.Chat.ID, "Категории пока пусты. Добавь через /newcategory.")
	}

	var builder strings.Builder
	builder.WriteString("📂 <b>Категории</b>\n")
	for _, category := range categories {
		builder.WriteString(fmt.Sprintf("• #%d %s %s\n", category.ID, category.Icon, escape(strings.TrimSpace(category.Name))))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleNewCategory(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		return b.sendText(msg.Chat.ID, "Укажи имя: /newcategory Здоровье")
	}
	category, err := b.categorySvc.GetOrCreate(ctx, name)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📂 Категория «%s» (#%d) готова.", escape(category.Name), category.ID))
}

func (b *Bot) handleDeleteCategory(ctx context.Context, msg *tgbotapi.Message) error {
	categoryID, err := parseID(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, "Укажи ID категории: /delcategory 2")
	}
	if err := b.categorySvc.Deactivate(ctx, categoryID); err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, "📂 Категория скрыта. Старые задачи сохранят её.")
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	return b.userRepo.Touch(ctx, from.ID, from.FirstName, from.LastName, from.UserName, time.Now())
}

func (b *Bot) replyError(chatID int64, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return b.sendText(chatID, "Не нашёл запись с таким ID.")
	case errors.Is(err, service.ErrValidation):
		return b.sendText(chatID, fmt.Sprintf("Проверь ввод: %s", escape(err.Error())))
	default:
		return b.sendText(chatID, fmt.Sprintf("Ошибка: %s", escape(err.Error())))
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func parseID(args string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(args), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(value), nil
}

// parseRecurrence turns the compact command syntax into a Recurrence:
// "daily", "custom:3" (every 3 days), "weekly:1,3" (Mon+Wed), "monthly:15".
func parseRecurrence(raw string, cutoffHour int) (model.Recurrence, error) {
	rec := model.Recurrence{Interval: 1, Hour: cutoffHour}

	kind, arg, _ := strings.Cut(strings.ToLower(strings.TrimSpace(raw)), ":")
	switch kind {
	case model.RecurDaily:
		rec.Type = model.RecurDaily
	case model.RecurCustom:
		rec.Type = model.RecurCustom
		if arg == "" {
			return rec, fmt.Errorf("custom требует интервал, например custom:3")
		}
		interval, err := strconv.Atoi(arg)
		if err != nil || interval < 1 {
			return rec, fmt.Errorf("интервал должен быть числом ≥ 1")
		}
		rec.Interval = interval
	case model.RecurWeekly:
		rec.Type = model.RecurWeekly
		if arg == "" {
			return rec, fmt.Errorf("weekly требует дни недели, например weekly:1,3 (0=вс)")
		}
		for _, piece := range strings.Split(arg, ",") {
			day, err := strconv.Atoi(strings.TrimSpace(piece))
			if err != nil || day < 0 || day > 6 {
				return rec, fmt.Errorf("день недели должен быть от 0 (вс) до 6 (сб)")
			}
			rec.DaysOfWeek = append(rec.DaysOfWeek, day)
		}
	case model.RecurMonthly:
		rec.Type = model.RecurMonthly
		if arg == "" {
			return rec, fmt.Errorf("monthly требует число месяца, например monthly:15")
		}
		day, err := strconv.Atoi(arg)
		if err != nil || day < 1 || day > 31 {
			return rec, fmt.Errorf("число месяца должно быть от 1 до 31")
		}
		rec.DayOfMonth = day
	default:
		return rec, fmt.Errorf("неизвестный тип %q", kind)
	}

	return rec, nil
}
