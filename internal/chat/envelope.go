package chat

import (
	"encoding/json"
	"errors"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

// ErrMalformedEnvelope is returned by ParseInbound for input that is not
// exactly one recognized event. The session reports it as a notice and
// keeps running.
var ErrMalformedEnvelope = errors.New("envelope must contain exactly one of send, update, delete, vote")

// SendEvent is a request to create a new message in the conversation.
type SendEvent struct {
	Message  *string `json:"message"`
	FileURL  *string `json:"fileUrl"`
	VoiceURL *string `json:"voiceUrl"`
	VideoURL *string `json:"videoUrl"`
	ReplyTo  *uint   `json:"id_return"`
}

// UpdateEvent is a request to replace the body of an existing message.
type UpdateEvent struct {
	ID      uint   `json:"id"`
	Message string `json:"message"`
}

// DeleteEvent is a request to delete an existing message.
type DeleteEvent struct {
	ID uint `json:"id"`
}

// VoteEvent is a request to toggle the requester's vote on a message.
type VoteEvent struct {
	ID  uint `json:"id"`
	Dir int  `json:"dir"`
}

// Inbound is the closed union of client events. Exactly one field is
// non-nil after a successful parse.
type Inbound struct {
	Send   *SendEvent
	Update *UpdateEvent
	Delete *DeleteEvent
	Vote   *VoteEvent
}

type inboundWire struct {
	Send   *SendEvent   `json:"send"`
	Update *UpdateEvent `json:"update"`
	Delete *DeleteEvent `json:"delete"`
	Vote   *VoteEvent   `json:"vote"`
}

// ParseInbound decodes one envelope from raw. The envelope must carry
// exactly one recognized tag; anything else is ErrMalformedEnvelope.
func ParseInbound(raw []byte) (*Inbound, error) {
	var w inboundWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, ErrMalformedEnvelope
	}
	in := &Inbound{Send: w.Send, Update: w.Update, Delete: w.Delete, Vote: w.Vote}
	n := 0
	if in.Send != nil {
		n++
	}
	if in.Update != nil {
		n++
	}
	if in.Delete != nil {
		n++
	}
	if in.Vote != nil {
		n++
	}
	if n != 1 {
		return nil, ErrMalformedEnvelope
	}
	return in, nil
}

// Outbound envelope constructors. Each wraps its payload under the single
// tag clients switch on.

// MessageEnvelope wraps a new or refreshed message event.
func MessageEnvelope(ev *domain.MessageEvent) map[string]any {
	return map[string]any{"message": ev}
}

// UpdateEnvelope wraps an edited message event.
func UpdateEnvelope(ev *domain.MessageEvent) map[string]any {
	return map[string]any{"update": ev}
}

// DeletedEnvelope confirms a deletion by id.
func DeletedEnvelope(id uint) map[string]any {
	return map[string]any{"deleted": map[string]uint{"id": id}}
}

// NoticeEnvelope carries a recoverable error back to the requester.
func NoticeEnvelope(text string) map[string]any {
	return map[string]any{"notice": text}
}
