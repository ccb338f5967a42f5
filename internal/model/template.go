package model

import "time"

// Recurrence cadence types.
const (
	RecurDaily   = "daily"
	RecurWeekly  = "weekly"
	RecurMonthly = "monthly"
	RecurCustom  = "custom"
)

// TaskTemplate holds the fields copied into every task a template creates.
type TaskTemplate struct {
	Title       string
	Description string
	Priority    int `gorm:"default:2"`
}

// Recurrence describes when a template is due. DaysOfWeek uses 0=Sunday..6.
type Recurrence struct {
	Type       string
	Interval   int   `gorm:"default:1"`
	DaysOfWeek []int `gorm:"serializer:json"`
	DayOfMonth int
	Hour       int `gorm:"default:5"`
	Minute     int
}

// Template is a recurring task definition. NextRun is maintained by the
// recurrence engine only; a materialized task carries no reference back here.
type Template struct {
	ID           uint `gorm:"primaryKey"`
	Name         string
	Description  string
	CategoryID   uint `gorm:"index"`
	Category     *Category
	TaskTemplate TaskTemplate `gorm:"embedded;embeddedPrefix:task_"`
	Recurrence   Recurrence   `gorm:"embedded;embeddedPrefix:recur_"`
	IsActive     bool         `gorm:"default:true;index:idx_template_due"`
	NextRun      time.Time    `gorm:"index:idx_template_due"`
	LastRun      *time.Time
	// Incremented on every sweep that considers the template, created or
	// skipped alike, so it counts processing attempts rather than tasks.
	CreatedTasksCount int `gorm:"default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
