// Package domain defines the persistence models for the messaging relay.
// This file holds the wire-level event shape shared by the delivery core and
// the service layer.
package domain

import "time"

// Sentinel display identity used when a message's sender row no longer
// exists (account removed after the message was stored).
const (
	UnknownUserName   = "Unknown user"
	UnknownUserAvatar = "https://static.messenger.example/avatars/default.webp"
)

// MessageEvent is the fully hydrated representation of a message as it
// travels over a live connection: the persisted row joined with the sender's
// display identity and the current vote tally, with the body already
// decrypted (nil when absent or when decryption failed).
//
// The same shape is used for history replay, freshly sent messages, vote
// refreshes, and edits; only the outbound envelope tag differs.
type MessageEvent struct {
	ID         uint      `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Message    *string   `json:"message"`
	FileURL    *string   `json:"fileUrl"`
	VoiceURL   *string   `json:"voiceUrl"`
	VideoURL   *string   `json:"videoUrl"`
	ReplyTo    *uint     `json:"id_return"`
	UserName   string    `json:"user_name"`
	Avatar     string    `json:"avatar"`
	Verified   bool      `json:"verified"`
	IsRead     bool      `json:"is_read"`
	Vote       int64     `json:"vote"`
	Edited     bool      `json:"edited"`
	Deleted    bool      `json:"deleted"`
}
