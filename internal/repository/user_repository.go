package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"entropy-planner/internal/model"
)

// UserRepository tracks the Telegram identities that talk to the planner.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Touch upserts a user by TelegramID, refreshing profile fields and the
// last-seen timestamp in one statement.
func (r *UserRepository) Touch(ctx context.Context, telegramID int64, firstName, lastName, username string, now time.Time) (*model.User, error) {
	user := model.User{
		TelegramID: telegramID,
		FirstName:  firstName,
		LastName:   lastName,
		Username:   username,
		LastSeenAt: now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "telegram_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"first_name", "last_name", "username", "last_seen_at", "updated_at"}),
		}).
		Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("touch user: %w", err)
	}
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	return &user, nil
}

// CountSeenSince counts users active at or after the given instant.
func (r *UserRepository) CountSeenSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("last_seen_at >= ?", since).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}
