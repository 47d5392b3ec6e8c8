package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-messenger-backend/internal/auth"
	"github.com/tbourn/go-messenger-backend/internal/chat"
	"github.com/tbourn/go-messenger-backend/internal/services"
)

// Handler bundles the HTTP endpoints with their dependencies.
type Handler struct {
	Hub      *chat.Hub
	Gateway  auth.Gateway
	upgrader websocket.Upgrader
}

// New constructs a Handler. Buffer sizes feed the websocket upgrader; the
// origin check is left permissive because browsers are not the primary
// client and credential checks happen before the upgrade.
func New(hub *chat.Hub, gw auth.Gateway, readBuf, writeBuf int) *Handler {
	return &Handler{
		Hub:     hub,
		Gateway: gw,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// bearerToken extracts the session credential: the Authorization header
// when present, otherwise the "token" query parameter (browsers cannot set
// headers on websocket handshakes).
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.Query("token")
}

// PrivateChat upgrades GET /ws/private/:receiver_id to a websocket and runs
// the conversation session on it. Credential and recipient checks happen
// before the upgrade so rejections arrive as plain HTTP statuses.
func (h *Handler) PrivateChat(c *gin.Context) {
	sess, err := h.Hub.Open(c.Request.Context(), bearerToken(c), c.Param("receiver_id"))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrUnknownUser):
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid session token")
		case errors.Is(err, auth.ErrUserBlocked):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "account is blocked")
		case errors.Is(err, services.ErrRecipientNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "recipient not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not open session")
		}
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote its own response.
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The request context dies with the handler; the session outlives it.
	if err := sess.Run(context.Background(), conn); err != nil {
		log.Error().Err(err).Str("user_id", sess.User().ID).Msg("session ended with error")
	}
}
