package handlers

import (
	"net/http"
	"strings"

	"imagestudio-backend/internal/auth"
	"imagestudio-backend/internal/realtime"
	"imagestudio-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// RealtimeHandler upgrades an authenticated HTTP request into a socket
// registered with the Hub. The bearer token is read from the
// Authorization header, or from the token query parameter when the header
// is absent, since browsers cannot set custom headers on a WebSocket
// handshake.
type RealtimeHandler struct {
	hub      *realtime.Hub
	users    UserRepository
	upgrader websocket.Upgrader
}

// NewRealtimeHandler creates a new realtime handler. allowedOrigins
// mirrors the REST API's CORS allowlist so the socket handshake enforces
// the same origin policy.
func NewRealtimeHandler(hub *realtime.Hub, users UserRepository, allowedOrigins []string) *RealtimeHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &RealtimeHandler{
		hub:   hub,
		users: users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}
}

// Connect authenticates the handshake via an Authorization header where
// the client can set one, falling back to ?token= for browser WebSocket
// clients that can't, then upgrades the connection and registers it with
// the Hub under the caller's user ID.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		if parts := strings.SplitN(bearer, " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		utils.SendError(c, http.StatusUnauthorized, "missing bearer token", nil)
		return
	}

	claims, err := auth.VerifyToken(token)
	if err != nil {
		utils.SendError(c, http.StatusUnauthorized, "invalid token", err)
		return
	}

	user, err := h.users.GetByClerkID(c.Request.Context(), claims.Subject)
	if err != nil {
		utils.SendError(c, http.StatusUnauthorized, "unrecognized user", err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.hub.Register(ws, user.UserID.String())
}
