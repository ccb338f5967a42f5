package model

import "time"

// Task priorities, high to low.
const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
)

// Task represents a single item in one day bucket. Date always holds a
// bucket-start instant produced by the clock package, never an arbitrary time.
type Task struct {
	ID          uint `gorm:"primaryKey"`
	Title       string
	Description string
	Priority    int  `gorm:"default:2"`
	CategoryID  uint `gorm:"index"`
	Category    *Category
	Completed   bool `gorm:"default:false"`
	CompletedAt *time.Time
	Date        time.Time `gorm:"index"`
	Moved       bool      `gorm:"default:false"`
	Deleted     bool      `gorm:"default:false"`
	// OriginalTaskID links a carried-forward copy back to the task it was
	// created from. Set only by carry-forward, cleared by carry-back.
	OriginalTaskID *uint
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ActiveIn reports whether the task belongs to the bucket starting at
// bucketStart and still counts toward it.
func (t Task) ActiveIn(bucketStart time.Time) bool {
	return t.Date.Equal(bucketStart) && !t.Moved && !t.Deleted
}
