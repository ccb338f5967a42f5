package model

import (
	"strings"
	"time"
)

// User is the Telegram identity behind the planner. LastSeenAt moves on every
// command, so stale accounts can be told apart from active ones.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	LastSeenAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayName picks the friendliest available name for replies.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "друг"
}
