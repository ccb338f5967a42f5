package model

import "time"

// Category groups tasks by area (work, health, study, etc.).
// Deactivated categories stay in the table so old tasks keep their reference.
type Category struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"index:idx_category_name_active"`
	Color     string `gorm:"default:#3b82f6"`
	Icon      string `gorm:"default:📁"`
	IsActive  bool   `gorm:"default:true;index:idx_category_name_active"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Tasks     []Task `gorm:"foreignKey:CategoryID"`
}
