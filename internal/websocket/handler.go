package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades the request and runs it as a client of the user
// returned by userID. Requests without a user are rejected.
func HandleWebSocket(hub *Hub, userID func(*http.Request) string, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		logger.Debug("websocket connected", "user_id", uid)
		client := NewClient(hub, conn, uid)
		client.Run(r.Context())
		logger.Debug("websocket disconnected", "user_id", uid)
	}
}
