// Package notify pushes "new message" notifications to a recipient's
// registered devices through Firebase Cloud Messaging.
//
// Delivery is strictly best-effort: the relay never blocks or fails a
// message send because a push could not go out. Failures are logged and
// dropped.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-messenger-backend/internal/repo"
)

const defaultEndpoint = "https://fcm.googleapis.com/fcm/send"

// Dispatcher delivers an out-of-band notification about a new message.
type Dispatcher interface {
	NotifyNewMessage(ctx context.Context, recipientID, senderName, preview string)
}

// Nop is a Dispatcher that does nothing. Used when push is not configured.
type Nop struct{}

// NotifyNewMessage implements Dispatcher.
func (Nop) NotifyNewMessage(context.Context, string, string, string) {}

// FCMDispatcher sends notifications through the FCM HTTP API, fanning out
// to every device token registered for the recipient. The unread badge is
// recomputed from the store per notification.
type FCMDispatcher struct {
	DB        *gorm.DB
	ServerKey string
	Endpoint  string
	Client    *http.Client
}

// NewFCMDispatcher wires a dispatcher against the default FCM endpoint.
func NewFCMDispatcher(db *gorm.DB, serverKey string) *FCMDispatcher {
	return &FCMDispatcher{
		DB:        db,
		ServerKey: serverKey,
		Endpoint:  defaultEndpoint,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type fcmPayload struct {
	To           string          `json:"to"`
	Notification fcmNotification `json:"notification"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Badge int64  `json:"badge"`
	Sound string `json:"sound"`
}

// NotifyNewMessage pushes to every device of recipientID. Errors are logged
// at warn level and never propagated; a recipient with no registered
// devices is a silent no-op.
func (d *FCMDispatcher) NotifyNewMessage(ctx context.Context, recipientID, senderName, preview string) {
	tokens, err := repo.ListDeviceTokens(ctx, d.DB, recipientID)
	if err != nil {
		log.Warn().Err(err).Str("recipient_id", recipientID).Msg("push: device token lookup failed")
		return
	}
	if len(tokens) == 0 {
		return
	}

	badge, err := repo.UnreadCount(ctx, d.DB, recipientID)
	if err != nil {
		log.Warn().Err(err).Str("recipient_id", recipientID).Msg("push: unread count failed")
		badge = 0
	}

	for _, tok := range tokens {
		if err := d.send(ctx, tok, senderName, preview, badge); err != nil {
			log.Warn().
				Err(err).
				Str("recipient_id", recipientID).
				Msg("push: delivery failed")
		}
	}
}

func (d *FCMDispatcher) send(ctx context.Context, token, title, body string, badge int64) error {
	payload, err := json.Marshal(fcmPayload{
		To: token,
		Notification: fcmNotification{
			Title: title,
			Body:  body,
			Badge: badge,
			Sound: "default",
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+d.ServerKey)

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fcm responded %d", resp.StatusCode)
	}
	return nil
}
