package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-messenger-backend/internal/assistant"
	"github.com/tbourn/go-messenger-backend/internal/auth"
	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/notify"
	"github.com/tbourn/go-messenger-backend/internal/services"
)

// SessionState tracks where a connection session is in its lifecycle.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateActive
	StateClosing
	StateClosed
)

// DuplexConn is the full transport handle a session runs over: the
// registry's write side plus the inbound read side. *websocket.Conn
// satisfies it.
type DuplexConn interface {
	Conn
	ReadMessage() (messageType int, p []byte, err error)
}

// lockedConn serializes writes to the underlying transport. The registry
// hands a session's connection to peer sessions for fan-out, so frames
// arrive from several goroutines at once; the websocket transport permits
// only one concurrent writer per connection.
type lockedConn struct {
	writeMu sync.Mutex
	conn    DuplexConn
}

func (c *lockedConn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *lockedConn) Close() error { return c.conn.Close() }

func (c *lockedConn) ReadMessage() (int, []byte, error) { return c.conn.ReadMessage() }

// Hub owns the shared pieces every session needs: the presence registry,
// the message service, and the external collaborators. One Hub per process.
type Hub struct {
	Registry  *Registry
	Messages  *services.MessageService
	Gateway   auth.Gateway
	Notifier  notify.Dispatcher
	Assistant assistant.Responder

	// AssistantUserName is the handle of the auto-responder account. Empty
	// disables assistant replies.
	AssistantUserName string

	// ReadRefreshInterval is the period of the per-session read-receipt
	// refresher. Zero means the 1s default.
	ReadRefreshInterval time.Duration

	// AssistantChunkDelay paces consecutive assistant reply chunks so they
	// arrive in order on the client. Zero means the 1s default.
	AssistantChunkDelay time.Duration

	// voteMu serializes every vote check-then-toggle across the process.
	// Two concurrent votes from different connections must never both
	// observe "no existing vote".
	voteMu sync.Mutex
}

func (h *Hub) refreshInterval() time.Duration {
	if h.ReadRefreshInterval > 0 {
		return h.ReadRefreshInterval
	}
	return time.Second
}

func (h *Hub) chunkDelay() time.Duration {
	if h.AssistantChunkDelay > 0 {
		return h.AssistantChunkDelay
	}
	return time.Second
}

// Session is one authenticated connection between a user and a single
// conversation peer.
type Session struct {
	hub   *Hub
	user  *domain.User
	peer  *domain.User
	conn  DuplexConn
	state SessionState
}

// Open performs the pre-registration half of the session lifecycle:
// credential validation and the recipient-existence check. It returns a
// typed error (auth.* or services.ErrRecipientNotFound) so the transport
// layer can reject the handshake before any registration happens.
func (h *Hub) Open(ctx context.Context, token, receiverID string) (*Session, error) {
	s := &Session{hub: h, state: StateConnecting}

	user, err := h.Gateway.Authenticate(ctx, token)
	if err != nil {
		s.state = StateClosed
		return nil, err
	}
	s.user = user
	s.state = StateAuthenticated

	peer, err := h.Messages.Recipient(ctx, receiverID)
	if err != nil {
		s.state = StateClosed
		return nil, err
	}
	s.peer = peer
	return s, nil
}

// User returns the authenticated principal of the session.
func (s *Session) User() *domain.User { return s.user }

// Run drives the session over conn until the transport disconnects or the
// initial history replay fails. It registers with the presence table,
// replays the conversation backlog oldest-first, starts the read-receipt
// refresher, and then loops over inbound envelopes. On return the session
// is fully torn down: refresher stopped, registration removed, conn closed.
func (s *Session) Run(ctx context.Context, conn DuplexConn) error {
	// Wrap once before anything can write: the handle registered below is
	// shared with peer sessions, and every writer must pass the same gate.
	conn = &lockedConn{conn: conn}
	s.conn = conn
	reg := s.hub.Registry

	superseded := reg.Connect(conn, s.user.ID, s.peer.ID)
	if superseded != nil {
		// Caller obligation from Registry.Connect: the replaced handle must
		// be closed or it leaks.
		superseded.Close() //nolint:errcheck
		sessionsSuperseded.Inc()
	}
	s.state = StateActive
	sessionsActive.Inc()

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	var wg sync.WaitGroup

	defer func() {
		s.state = StateClosing
		stopRefresh()
		wg.Wait()
		reg.Disconnect(conn, s.user.ID, s.peer.ID)
		conn.Close() //nolint:errcheck
		sessionsActive.Dec()
		s.state = StateClosed
	}()

	// Everything the peer already sent is read the moment we attach.
	if err := s.hub.Messages.MarkRead(ctx, s.user.ID, s.peer.ID); err != nil {
		log.Warn().Err(err).Str("user_id", s.user.ID).Msg("session: initial mark-read failed")
	}

	// Backlog replay is the one per-session store operation that is fatal:
	// a client attached to a half-replayed conversation cannot reconcile.
	history, err := s.hub.Messages.History(ctx, s.user.ID, s.peer.ID)
	if err != nil {
		return err
	}
	for i := range history {
		if err := conn.WriteJSON(MessageEnvelope(&history[i])); err != nil {
			return err
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.refreshReadReceipts(refreshCtx)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		s.dispatch(ctx, raw)
	}
}

// refreshReadReceipts re-marks the peer's messages as read once per
// interval while the session is active. It must stop the instant the
// session leaves ACTIVE; Run waits for it on teardown.
func (s *Session) refreshReadReceipts(ctx context.Context) {
	t := time.NewTicker(s.hub.refreshInterval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.hub.Messages.MarkRead(ctx, s.user.ID, s.peer.ID); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Str("user_id", s.user.ID).Msg("session: read-receipt refresh failed")
			}
		}
	}
}

// dispatch handles one raw inbound frame. Every failure path ends in a
// notice to this connection; nothing here may crash the session loop.
func (s *Session) dispatch(ctx context.Context, raw []byte) {
	in, err := ParseInbound(raw)
	if err != nil {
		s.notice(err.Error())
		return
	}
	switch {
	case in.Send != nil:
		s.handleSend(ctx, in.Send)
	case in.Update != nil:
		s.handleUpdate(ctx, in.Update)
	case in.Delete != nil:
		s.handleDelete(ctx, in.Delete)
	case in.Vote != nil:
		s.handleVote(ctx, in.Vote)
	}
}

func (s *Session) handleSend(ctx context.Context, e *SendEvent) {
	ev, err := s.hub.Messages.Send(ctx, s.user, s.peer.ID, services.SendInput{
		Message:  e.Message,
		FileURL:  e.FileURL,
		VoiceURL: e.VoiceURL,
		VideoURL: e.VideoURL,
		ReplyTo:  e.ReplyTo,
	})
	if err != nil {
		log.Error().Err(err).Str("sender_id", s.user.ID).Msg("session: send failed")
		s.notice("message could not be delivered")
		return
	}
	messagesRouted.Inc()
	s.hub.Registry.Route(MessageEnvelope(ev), s.user.ID, s.peer.ID)

	go s.notifyPeer(ev)

	if s.hub.Assistant != nil && s.hub.AssistantUserName != "" &&
		s.peer.UserName == s.hub.AssistantUserName && e.Message != nil {
		go s.assistantReply(ctx, *e.Message)
	}
}

// notifyPeer fires the best-effort push for a freshly sent message. The
// session context is deliberately not used: the push should survive an
// immediate disconnect.
func (s *Session) notifyPeer(ev *domain.MessageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	preview := "Sent you an attachment"
	if ev.Message != nil {
		preview = *ev.Message
	}
	s.hub.Notifier.NotifyNewMessage(ctx, s.peer.ID, s.user.UserName, preview)
}

// assistantApology is delivered in place of a reply when the responder
// fails; the user should hear something rather than silence.
const assistantApology = "Sorry, I can't answer right now. Please try again in a moment."

// assistantReply asks the responder for reply chunks and feeds each one
// back through the normal send path with sender and receiver swapped.
// Chunks are paced apart so the client renders them in order.
func (s *Session) assistantReply(ctx context.Context, text string) {
	chunks, err := s.hub.Assistant.Reply(ctx, text)
	if err != nil {
		log.Warn().Err(err).Msg("session: assistant reply failed")
		if ctx.Err() != nil {
			return
		}
		chunks = []string{assistantApology}
	}
	for i, chunk := range chunks {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.hub.chunkDelay()):
			}
		}
		ev, err := s.hub.Messages.Send(ctx, s.peer, s.user.ID, services.SendInput{Message: &chunk})
		if err != nil {
			log.Warn().Err(err).Msg("session: assistant chunk persist failed")
			return
		}
		messagesRouted.Inc()
		s.hub.Registry.Route(MessageEnvelope(ev), s.peer.ID, s.user.ID)
	}
}

func (s *Session) handleVote(ctx context.Context, e *VoteEvent) {
	s.hub.voteMu.Lock()
	err := s.hub.Messages.ToggleVote(ctx, s.user.ID, e.ID, e.Dir)
	s.hub.voteMu.Unlock()
	if err != nil {
		s.noticeFor(err)
		return
	}
	ev, err := s.hub.Messages.Get(ctx, e.ID)
	if err != nil {
		s.noticeFor(err)
		return
	}
	// Tally refreshes go to the requester alone; other viewers pick the
	// new score up on their next fetch.
	s.write(MessageEnvelope(ev))
}

func (s *Session) handleUpdate(ctx context.Context, e *UpdateEvent) {
	if err := s.hub.Messages.Edit(ctx, s.user.ID, e.ID, e.Message); err != nil {
		s.noticeFor(err)
		return
	}
	ev, err := s.hub.Messages.Get(ctx, e.ID)
	if err != nil {
		s.noticeFor(err)
		return
	}
	s.write(UpdateEnvelope(ev))
}

func (s *Session) handleDelete(ctx context.Context, e *DeleteEvent) {
	id, err := s.hub.Messages.Delete(ctx, s.user.ID, e.ID)
	if err != nil {
		s.noticeFor(err)
		return
	}
	s.write(DeletedEnvelope(id))
}

// noticeFor maps a service error to the notice text the requester sees.
// Unexpected storage errors are logged in full but reported generically.
func (s *Session) noticeFor(err error) {
	switch {
	case errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, services.ErrMessageDeleted),
		errors.Is(err, services.ErrInvalidVote),
		errors.Is(err, services.ErrEmptyBody):
		s.notice(err.Error())
	default:
		log.Error().Err(err).Str("user_id", s.user.ID).Msg("session: event failed")
		s.notice("operation failed")
	}
}

func (s *Session) notice(text string) {
	s.write(NoticeEnvelope(text))
}

func (s *Session) write(env map[string]any) {
	if err := s.conn.WriteJSON(env); err != nil {
		log.Warn().Err(err).Str("user_id", s.user.ID).Msg("session: reply write failed")
	}
}
