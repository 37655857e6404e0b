package broker

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/observer/broker/internal/auth"
	"github.com/observer/broker/internal/idgen"
)

// Authenticator resolves handshake-time identity (spec 4.D). Implemented
// by *auth.Service.
type Authenticator interface {
	ResolveHandshake(ctx context.Context, token string) auth.Identity
}

// Handler upgrades HTTP requests to the message channel (spec 6.1),
// resolving auth at handshake time rather than via a subsequent message,
// generalized from the teacher's websocket.Handler.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, auth Authenticator, logger *slog.Logger) *Handler {
	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := extractHandshakeToken(r)

	identity := h.auth.ResolveHandshake(r.Context(), token)
	username := identity.Username
	var userID *uuid.UUID
	if identity.Authenticated {
		uid := identity.UserID
		userID = &uid
	} else {
		username = "Guest_" + idgen.GuestSuffix()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	connectionID := uuid.NewString()
	connection := NewConnection(connectionID, h.hub, conn, h.logger, identity.Authenticated, userID, username)

	h.hub.Register(connection)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		connection.WritePump(ctx)
		cancel()
	}()
	connection.ReadPump(ctx)
	cancel()
}

// extractHandshakeToken reads the bearer token from handshake metadata:
// the Authorization header for clients that can set one, or a token
// query parameter for browser WebSocket clients that cannot.
func extractHandshakeToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "Bearer "
		if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
			return auth[len(prefix):]
		}
	}
	return r.URL.Query().Get("token")
}
