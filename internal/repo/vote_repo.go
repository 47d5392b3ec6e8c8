// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the vote-toggle primitives for the
// MessageVote model.
//
// The repository stays thin on purpose: the check-then-toggle sequence and
// its serialization live in the service and delivery layers. Each function
// here is a single statement against the composite (message_id, user_id) key.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// GetVote fetches the vote row for (messageID, userID), or ErrNotFound.
func GetVote(ctx context.Context, db *gorm.DB, messageID uint, userID string) (*domain.MessageVote, error) {
	var v domain.MessageVote
	err := db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVote inserts a vote row. The composite primary key makes a second
// insert for the same (message, user) pair fail with a constraint error.
func CreateVote(ctx context.Context, db *gorm.DB, messageID uint, userID string, dir int) error {
	return db.WithContext(ctx).Create(&domain.MessageVote{
		MessageID: messageID,
		UserID:    userID,
		Dir:       dir,
	}).Error
}

// DeleteVote removes the vote row for (messageID, userID). Removing an
// absent row affects zero rows and is not an error.
func DeleteVote(ctx context.Context, db *gorm.DB, messageID uint, userID string) error {
	return db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Delete(&domain.MessageVote{}).Error
}

// DeleteMessageVotes removes every vote on the given message. Used by the
// delete cascade so a deleted message carries no residual tally.
func DeleteMessageVotes(ctx context.Context, db *gorm.DB, messageID uint) error {
	return db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Delete(&domain.MessageVote{}).Error
}
