// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the DeviceToken
// model backing the push-notification dispatcher.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// RegisterDeviceToken stores (or refreshes) a push token for a user. The same
// token re-registered for the same user only bumps UpdatedAt; a token moving
// to a new platform value is updated in place.
func RegisterDeviceToken(ctx context.Context, db *gorm.DB, userID, token, platform string) error {
	var existing domain.DeviceToken
	err := db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		First(&existing).Error
	switch {
	case err == nil:
		existing.Platform = platform
		existing.UpdatedAt = time.Now().UTC()
		return db.WithContext(ctx).Save(&existing).Error
	case err == gorm.ErrRecordNotFound:
		return db.WithContext(ctx).Create(&domain.DeviceToken{
			UserID:    userID,
			Token:     token,
			Platform:  platform,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}).Error
	default:
		return err
	}
}

// ListDeviceTokens returns all push tokens registered for a user. An empty
// slice simply means the user has no reachable devices.
func ListDeviceTokens(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	var tokens []string
	err := db.WithContext(ctx).
		Model(&domain.DeviceToken{}).
		Where("user_id = ?", userID).
		Pluck("token", &tokens).Error
	return tokens, err
}
