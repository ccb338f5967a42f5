package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"entropy-planner/internal/clock"
	"entropy-planner/internal/model"
)

const (
	iconHigh   = "🔴"
	iconMedium = "🟡"
	iconLow    = "🟢"
	iconDone   = "✅"
)

// buildDaySummary renders the two bucket lists. Tasks arrive already sorted by
// priority and creation time.
func buildDaySummary(today, tomorrow []model.Task, now time.Time, cutoffHour int) string {
	b := clock.Boundaries(now, cutoffHour)

	var builder strings.Builder
	builder.WriteString("📋 <b>Сегодня</b>")
	builder.WriteString(fmt.Sprintf(" <i>(%s → %s)</i>\n", b.TodayStart.Format("02.01 15:04"), b.TomorrowStart.Format("02.01 15:04")))
	writeTaskSection(&builder, today)

	builder.WriteString("\n📅 <b>Завтра</b>\n")
	writeTaskSection(&builder, tomorrow)

	return strings.TrimSpace(builder.String())
}

func writeTaskSection(builder *strings.Builder, tasks []model.Task) {
	if len(tasks) == 0 {
		builder.WriteString("— пусто\n")
		return
	}
	for _, task := range tasks {
		builder.WriteString(formatTask(task))
	}
}

func formatTask(task model.Task) string {
	var b strings.Builder

	icon := priorityIcon(task.Priority)
	if task.Completed {
		icon = iconDone
	}
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s", icon, task.ID, escape(strings.TrimSpace(task.Title))))

	if task.Category != nil {
		if name := strings.TrimSpace(task.Category.Name); name != "" {
			b.WriteString(fmt.Sprintf(" <i>(%s)</i>", escape(name)))
		}
	}
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("\n   📝 %s", escape(strings.TrimSpace(task.Description))))
	}

	b.WriteByte('\n')
	return b.String()
}

func formatTemplate(template model.Template) string {
	var b strings.Builder

	state := "▶️"
	if !template.IsActive {
		state = "⏸"
	}
	b.WriteString(fmt.Sprintf("%s <b>#%d</b> %s → «%s»\n", state, template.ID, escape(template.Name), escape(template.TaskTemplate.Title)))
	b.WriteString(fmt.Sprintf("   🔄 %s", describeRecurrence(template.Recurrence)))
	if template.IsActive {
		b.WriteString(fmt.Sprintf(" · следующий запуск %s", template.NextRun.Format("2006-01-02 15:04")))
	}
	b.WriteString(fmt.Sprintf("\n   📈 Запусков: %d", template.CreatedTasksCount))
	if template.LastRun != nil {
		b.WriteString(fmt.Sprintf(" · последний %s", template.LastRun.Format("2006-01-02 15:04")))
	}
	b.WriteString("\n")
	return b.String()
}

func describeRecurrence(rec model.Recurrence) string {
	switch rec.Type {
	case model.RecurDaily:
		return "каждый день"
	case model.RecurWeekly:
		names := []string{"вс", "пн", "вт", "ср", "чт", "пт", "сб"}
		var days []string
		for _, d := range rec.DaysOfWeek {
			if d >= 0 && d < len(names) {
				days = append(days, names[d])
			}
		}
		if len(days) == 0 {
			return "еженедельно"
		}
		return "по " + strings.Join(days, ", ")
	case model.RecurMonthly:
		return fmt.Sprintf("каждый месяц %d числа", rec.DayOfMonth)
	default:
		return fmt.Sprintf("каждые %d дн.", rec.Interval)
	}
}

func priorityIcon(priority int) string {
	switch priority {
	case model.PriorityHigh:
		return iconHigh
	case model.PriorityMedium:
		return iconMedium
	default:
		return iconLow
	}
}

func escape(s string) string {
	return html.EscapeString(s)
}
