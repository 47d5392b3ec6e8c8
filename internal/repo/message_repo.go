// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the conversation query that joins sender identity and the
// summed vote tally.
//
// Error semantics:
//   - Missing rows surface as gorm.ErrRecordNotFound (ErrNotFound).
//   - Unknown sender/receiver IDs violate the FK constraints and surface as
//     raw DB errors for the service layer to classify.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// ConversationRow is one row of the conversation query: the message columns
// flattened together with the (possibly absent) sender identity and the
// aggregate vote score. Identity columns are pointers so a vanished sender
// scans as nil and can be replaced with the sentinel display identity.
type ConversationRow struct {
	ID         uint
	SenderID   string
	ReceiverID string
	Body       *string
	FileURL    *string
	VoiceURL   *string
	VideoURL   *string
	ReplyTo    *uint
	IsRead     bool
	IsSent     bool
	Edited     bool
	Deleted    bool
	CreatedAt  time.Time

	UserName *string
	Avatar   *string
	Verified *bool
	Vote     int64
}

// conversationSelect is shared by ListConversation and GetConversationRow.
const conversationSelect = `m.id, m.sender_id, m.receiver_id, m.body, ` +
	`m.file_url, m.voice_url, m.video_url, m.reply_to, ` +
	`m.is_read, m.is_sent, m.edited, m.deleted, m.created_at, ` +
	`u.user_name AS user_name, u.avatar AS avatar, u.verified AS verified, ` +
	`COALESCE(SUM(v.dir), 0) AS vote`

// CreateMessage inserts a new message row. The body must already be
// encrypted by the caller; this layer never sees plaintext.
func CreateMessage(ctx context.Context, db *gorm.DB, senderID, receiverID string,
	body, fileURL, voiceURL, videoURL *string, replyTo *uint, isRead bool) (*domain.Message, error) {
	m := &domain.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		FileURL:    fileURL,
		VoiceURL:   voiceURL,
		VideoURL:   videoURL,
		ReplyTo:    replyTo,
		IsRead:     isRead,
		CreatedAt:  time.Now().UTC(),
	}
	return m, db.WithContext(ctx).Create(m).Error
}

// MarkSent flips the is_sent flag. Idempotent: re-marking an already sent
// message is a no-op, and a missing ID affects zero rows without error.
func MarkSent(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Update("is_sent", true).Error
}

// GetMessage fetches a message row by ID, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageForSender fetches a message by ID constrained to its original
// sender. Used by edit/delete so that a non-sender cannot distinguish
// "missing" from "not yours": both come back as ErrNotFound.
func GetMessageForSender(ctx context.Context, db *gorm.DB, id uint, senderID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("id = ? AND sender_id = ?", id, senderID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveMessage persists every column of an already-loaded message row.
func SaveMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	return db.WithContext(ctx).Save(m).Error
}

// MarkConversationRead flags all messages sent by senderID to recipientID as
// read. It returns the number of rows flipped; calling it when nothing is
// unread is a cheap no-op.
func MarkConversationRead(ctx context.Context, db *gorm.DB, recipientID, senderID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", recipientID, senderID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// ListConversation returns every message exchanged between userA and userB
// (both directions), joined with the sender identity and the summed vote
// tally, in ascending ID order (oldest first). Bodies come back still
// encrypted; decryption is the service layer's job.
func ListConversation(ctx context.Context, db *gorm.DB, userA, userB string) ([]ConversationRow, error) {
	var rows []ConversationRow
	err := db.WithContext(ctx).
		Table("messages AS m").
		Select(conversationSelect).
		Joins("LEFT JOIN users AS u ON u.id = m.sender_id").
		Joins("LEFT JOIN message_votes AS v ON v.message_id = m.id").
		Where("(m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?)",
			userA, userB, userB, userA).
		Group("m.id").
		Order("m.id ASC").
		Scan(&rows).Error
	return rows, err
}

// GetConversationRow returns the single-message variant of ListConversation:
// one message joined with sender identity and vote tally, or ErrNotFound.
func GetConversationRow(ctx context.Context, db *gorm.DB, id uint) (*ConversationRow, error) {
	var rows []ConversationRow
	err := db.WithContext(ctx).
		Table("messages AS m").
		Select(conversationSelect).
		Joins("LEFT JOIN users AS u ON u.id = m.sender_id").
		Joins("LEFT JOIN message_votes AS v ON v.message_id = m.id").
		Where("m.id = ?", id).
		Group("m.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}
