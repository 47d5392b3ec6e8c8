// Package domain defines the persistence models for users, private messages,
// message votes, and device push tokens. These types are mapped with GORM and
// form the core data layer of the messaging relay.
package domain

import (
	"time"
)

// User represents a registered account that can participate in private
// conversations. Users are referenced by messages (sender/receiver), votes,
// and device tokens.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email / UserName: unique identifiers; UserName is the display handle.
//   - Avatar: profile image URL shown next to messages.
//   - Verified: trust badge propagated onto message events.
//   - Blocked: administratively disabled accounts cannot authenticate.
//   - CreatedAt: timestamp managed by GORM.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Email     string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_user_email"`
	UserName  string    `json:"user_name"  gorm:"type:varchar(64);not null;uniqueIndex:ux_user_name"`
	Avatar    string    `json:"avatar"     gorm:"type:text"`
	Verified  bool      `json:"verified"   gorm:"not null;default:false"`
	Blocked   bool      `json:"-"          gorm:"not null;default:false"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Message represents a single private message between two users. The body is
// stored encrypted; decryption happens in the service layer on the way out.
//
// Lifecycle flags:
//   - IsRead: set when the receiver's connection has observed the message.
//   - IsSent: flipped once after the row is durably persisted.
//   - Edited: monotonic; set on the first successful edit, never reset.
//   - Deleted: monotonic; deletion also irreversibly clears Body, the
//     attachment URLs, and ReplyTo.
//
// The auto-incremented ID doubles as the ordering key for conversation
// history (ascending = oldest first).
type Message struct {
	ID         uint      `json:"id"          gorm:"primaryKey;autoIncrement"`
	SenderID   string    `json:"sender_id"   gorm:"type:char(36);not null;index:idx_msg_sender"`
	ReceiverID string    `json:"receiver_id" gorm:"type:char(36);not null;index:idx_msg_receiver"`
	Body       *string   `json:"-"           gorm:"type:text"` // encrypted at rest
	FileURL    *string   `json:"fileUrl"     gorm:"type:text"`
	VoiceURL   *string   `json:"voiceUrl"    gorm:"type:text"`
	VideoURL   *string   `json:"videoUrl"    gorm:"type:text"`
	ReplyTo    *uint     `json:"id_return"`
	IsRead     bool      `json:"is_read"     gorm:"not null;default:false"`
	IsSent     bool      `json:"is_sent"     gorm:"not null;default:false"`
	Edited     bool      `json:"edited"      gorm:"not null;default:false"`
	Deleted    bool      `json:"deleted"     gorm:"not null;default:false"`
	CreatedAt  time.Time `json:"created_at"`

	// Sender is the authoring user. Messages are cascade-deleted if the
	// account is removed; history queries fall back to a sentinel identity
	// when the join comes back empty.
	Sender User `json:"-" gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// MessageVote records a single user's vote on a message. The composite
// primary key (MessageID, UserID) structurally guarantees at most one vote
// row per user per message; toggling removes the row instead of storing a
// negative direction.
type MessageVote struct {
	MessageID uint   `json:"message_id" gorm:"primaryKey;autoIncrement:false"`
	UserID    string `json:"user_id"    gorm:"type:char(36);primaryKey"`
	Dir       int    `json:"dir"        gorm:"not null;check:dir <= 1"`

	// Message is the voted-on message. Votes are cascade-deleted with it.
	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for MessageVote.
func (MessageVote) TableName() string { return "message_votes" }

// DeviceToken maps a user to a push-notification token for one installed
// client. A user may hold several tokens (one per device); the notification
// dispatcher fans out to all of them.
type DeviceToken struct {
	ID        uint      `json:"id"       gorm:"primaryKey;autoIncrement"`
	UserID    string    `json:"user_id"  gorm:"type:char(36);not null;index:idx_device_user"`
	Token     string    `json:"token"    gorm:"type:text;not null"`
	Platform  string    `json:"platform" gorm:"type:varchar(16);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for DeviceToken.
func (DeviceToken) TableName() string { return "device_tokens" }
