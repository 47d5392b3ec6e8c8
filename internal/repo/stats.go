// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used by the
// notification dispatcher (badge counts) and operational metrics. Each
// function is context-aware and safe to call from services or the core.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// UnreadCount returns how many messages addressed to recipientID are still
// unread across all conversations. The push dispatcher attaches this as the
// badge value so a device shows the true backlog, not just +1.
func UnreadCount(ctx context.Context, db *gorm.DB, recipientID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("receiver_id = ? AND is_read = ? AND deleted = ?", recipientID, false, false).
		Count(&total).Error
	return total, err
}

// ConversationStats returns aggregate metadata for the pair (userA, userB):
// the total number of messages exchanged in either direction and how many of
// those addressed to userA are still unread.
//
// Return values:
//   - total:  messages between the two users, both directions
//   - unread: messages to userA from userB not yet marked read
//   - err:    database error, if any
func ConversationStats(ctx context.Context, db *gorm.DB, userA, userB string) (total, unread int64, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userA, userB, userB, userA)
	if err = q.Count(&total).Error; err != nil {
		return 0, 0, err
	}

	err = db.WithContext(ctx).Model(&domain.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", userA, userB, false).
		Count(&unread).Error
	if err != nil {
		return 0, 0, err
	}
	return total, unread, nil
}
