package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messenger-backend/internal/auth"
	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/repo"
)

const ctxKeyUser = "user"

// AuthRequired authenticates the request through the session gateway and
// stores the resolved account for downstream handlers. The user ID is also
// exposed under "userID" so the rate limiter can bucket per user.
func (h *Handler) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := h.Gateway.Authenticate(c.Request.Context(), bearerToken(c))
		if err != nil {
			if errors.Is(err, auth.ErrUserBlocked) {
				fail(c, http.StatusForbidden, ErrCodeForbidden, "account is blocked")
				return
			}
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid session token")
			return
		}
		c.Set(ctxKeyUser, u)
		c.Set("userID", u.ID)
		c.Next()
	}
}

// currentUser returns the account stored by AuthRequired.
func currentUser(c *gin.Context) *domain.User {
	v, _ := c.Get(ctxKeyUser)
	u, _ := v.(*domain.User)
	return u
}

// registerDeviceRequest is the payload of POST /devices.
type registerDeviceRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform"`
}

// RegisterDevice stores a push-notification device token for the
// authenticated user. Re-registering an existing token updates it in place.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token is required")
		return
	}
	u := currentUser(c)
	if err := repo.RegisterDeviceToken(c.Request.Context(), h.Hub.Messages.DB, u.ID, req.Token, req.Platform); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeRegisterFailed, "could not register device")
		return
	}
	c.Status(http.StatusNoContent)
}

// ConversationStats reports message totals for the conversation between the
// authenticated user and :peer_id: overall count and how many are addressed
// to the caller and still unread.
func (h *Handler) ConversationStats(c *gin.Context) {
	u := currentUser(c)
	total, unread, err := repo.ConversationStats(c.Request.Context(), h.Hub.Messages.DB, u.ID, c.Param("peer_id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not compute stats")
		return
	}
	ok(c, http.StatusOK, gin.H{"total": total, "unread": unread})
}
