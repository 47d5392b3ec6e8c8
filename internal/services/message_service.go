// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns message persistence consistency: encrypt-then-store on the way in,
// fetch-join-decrypt on the way out, and the edit/delete/vote/read rules in
// between. The delivery core calls into this service and never touches the
// repositories or the codec directly.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// the acting user and message identifiers.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/crypto"
	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageService coordinates message persistence, retrieval, and mutation.
// It owns the encrypt/decrypt boundary: repositories only ever see encrypted
// bodies, callers only ever see plaintext events.
type MessageService struct {
	DB    *gorm.DB
	Codec *crypto.Codec
}

// SendInput carries the client-supplied payload of a new message.
type SendInput struct {
	Message  *string
	FileURL  *string
	VoiceURL *string
	VideoURL *string
	ReplyTo  *uint
}

// Send persists a new message from sender to receiverID and returns the
// hydrated event to fan out. The body is encrypted before it reaches the
// store; the insert and the mark-sent flip run in one transaction.
//
// The returned event carries the sender's display identity, a zero vote
// tally, and fresh lifecycle flags, matching what a subsequent fetch of the
// row would produce.
func (s *MessageService) Send(ctx context.Context, sender *domain.User, receiverID string, in SendInput) (*domain.MessageEvent, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("sender.id", sender.ID),
			attribute.String("receiver.id", receiverID),
		),
	)
	defer span.End()

	encrypted := s.Codec.Encrypt(in.Message)

	var m *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		m, err = repo.CreateMessage(ctx, tx, sender.ID, receiverID,
			encrypted, in.FileURL, in.VoiceURL, in.VideoURL, in.ReplyTo, false)
		if err != nil {
			return err
		}
		return repo.MarkSent(ctx, tx, m.ID)
	})
	if err != nil {
		return nil, err
	}

	return &domain.MessageEvent{
		ID:         m.ID,
		CreatedAt:  m.CreatedAt,
		SenderID:   sender.ID,
		ReceiverID: receiverID,
		Message:    in.Message,
		FileURL:    in.FileURL,
		VoiceURL:   in.VoiceURL,
		VideoURL:   in.VideoURL,
		ReplyTo:    in.ReplyTo,
		UserName:   sender.UserName,
		Avatar:     sender.Avatar,
		Verified:   sender.Verified,
		IsRead:     false,
		Vote:       0,
		Edited:     false,
		Deleted:    false,
	}, nil
}

// History returns every message exchanged between userID and peerID, both
// directions, oldest first (ascending ID). Bodies are decrypted per row; a
// row whose body fails to decrypt comes back with a nil body rather than
// failing the whole fetch. A vanished sender is replaced with the sentinel
// display identity.
func (s *MessageService) History(ctx context.Context, userID, peerID string) ([]domain.MessageEvent, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "History",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("peer.id", peerID),
		),
	)
	defer span.End()

	rows, err := repo.ListConversation(ctx, s.DB, userID, peerID)
	if err != nil {
		return nil, err
	}
	events := make([]domain.MessageEvent, 0, len(rows))
	for i := range rows {
		events = append(events, s.eventFromRow(&rows[i]))
	}
	return events, nil
}

// Get returns the hydrated event for a single message, or ErrMessageNotFound.
func (s *MessageService) Get(ctx context.Context, id uint) (*domain.MessageEvent, error) {
	row, err := repo.GetConversationRow(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	ev := s.eventFromRow(row)
	return &ev, nil
}

// ToggleVote applies the vote-toggle semantics for userID on messageID.
//
// Rules:
//   - dir must be <= 1; larger values are rejected with ErrInvalidVote.
//   - The message must exist (ErrMessageNotFound) and must not be deleted
//     (ErrMessageDeleted).
//   - dir == 1 toggles: an existing vote row is removed, an absent one is
//     inserted. Any other accepted direction only ever removes.
//
// The check-then-toggle sequence runs in a transaction; callers that need
// cross-connection serialization (the delivery core does) hold their own
// gate around this call.
func (s *MessageService) ToggleVote(ctx context.Context, userID string, messageID uint, dir int) error {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ToggleVote",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("message.id", int(messageID)),
		),
	)
	defer span.End()

	if dir > 1 {
		return ErrInvalidVote
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(ctx, tx, messageID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		if msg.Deleted {
			return ErrMessageDeleted
		}

		_, err = repo.GetVote(ctx, tx, messageID, userID)
		switch {
		case err == nil:
			return repo.DeleteVote(ctx, tx, messageID, userID)
		case errors.Is(err, repo.ErrNotFound):
			if dir != 1 {
				// Nothing to remove and nothing to add.
				return nil
			}
			return repo.CreateVote(ctx, tx, messageID, userID, dir)
		default:
			return err
		}
	})
}

// Edit replaces the body of a message. Only the original sender may edit
// (anyone else gets ErrMessageNotFound); editing a deleted message is
// rejected with ErrMessageDeleted. On success the stored body is replaced
// with the encrypted new text and the edited flag is set, permanently.
func (s *MessageService) Edit(ctx context.Context, userID string, messageID uint, body string) error {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Edit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("message.id", int(messageID)),
		),
	)
	defer span.End()

	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyBody
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessageForSender(ctx, tx, messageID, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		if msg.Deleted {
			return ErrMessageDeleted
		}

		msg.Body = s.Codec.Encrypt(&body)
		msg.Edited = true
		return repo.SaveMessage(ctx, tx, msg)
	})
}

// Delete marks a message deleted and irreversibly clears its body,
// attachment references, and reply-to link. Every vote on the message is
// removed in the same transaction. Only the original sender may delete;
// anyone else gets ErrMessageNotFound. It returns the deleted message ID as
// confirmation.
func (s *MessageService) Delete(ctx context.Context, userID string, messageID uint) (uint, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("message.id", int(messageID)),
		),
	)
	defer span.End()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessageForSender(ctx, tx, messageID, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}

		msg.Body = nil
		msg.FileURL = nil
		msg.VoiceURL = nil
		msg.VideoURL = nil
		msg.ReplyTo = nil
		msg.Deleted = true
		if err := repo.SaveMessage(ctx, tx, msg); err != nil {
			return err
		}
		return repo.DeleteMessageVotes(ctx, tx, messageID)
	})
	if err != nil {
		return 0, err
	}
	return messageID, nil
}

// MarkRead flags all messages from senderID addressed to recipientID as
// read. Safe to call repeatedly; the periodic per-session refresher does.
func (s *MessageService) MarkRead(ctx context.Context, recipientID, senderID string) error {
	_, err := repo.MarkConversationRead(ctx, s.DB, recipientID, senderID)
	return err
}

// Recipient resolves a conversation peer to a real account, mapping a
// missing row to ErrRecipientNotFound.
func (s *MessageService) Recipient(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return u, nil
}

// eventFromRow hydrates a wire event from a conversation row: decrypts the
// body (nil on failure) and substitutes the sentinel identity when the
// sender record no longer exists.
func (s *MessageService) eventFromRow(row *repo.ConversationRow) domain.MessageEvent {
	ev := domain.MessageEvent{
		ID:         row.ID,
		CreatedAt:  row.CreatedAt,
		SenderID:   row.SenderID,
		ReceiverID: row.ReceiverID,
		Message:    s.Codec.Decrypt(row.Body),
		FileURL:    row.FileURL,
		VoiceURL:   row.VoiceURL,
		VideoURL:   row.VideoURL,
		ReplyTo:    row.ReplyTo,
		UserName:   domain.UnknownUserName,
		Avatar:     domain.UnknownUserAvatar,
		IsRead:     row.IsRead,
		Vote:       row.Vote,
		Edited:     row.Edited,
		Deleted:    row.Deleted,
	}
	if row.UserName != nil {
		ev.UserName = *row.UserName
	}
	if row.Avatar != nil {
		ev.Avatar = *row.Avatar
	}
	if row.Verified != nil {
		ev.Verified = *row.Verified
	}
	return ev
}
