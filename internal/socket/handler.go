package socket

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TokenVerifier resolves a bearer token to a user ID.
type TokenVerifier interface {
	UserID(token string) (string, error)
}

// WSHandler upgrades, then authenticates from the token query parameter.
// A rejected connection is closed before any frame is written.
func WSHandler(hub *Hub, verifier TokenVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		userID, err := verifier.UserID(r.URL.Query().Get("token"))
		if err != nil {
			hub.metrics.AuthFailures.Inc()
			hub.log.Warn("socket authentication failed", "remote", r.RemoteAddr, "error", err)
			_ = conn.Close()
			return
		}

		session := NewSession(hub, conn, userID)
		if err := session.sendInit(); err != nil {
			_ = conn.Close()
			return
		}
		if !hub.Register(session) {
			_ = conn.Close()
		}
	}
}
