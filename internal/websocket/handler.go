package websocket

import (
	"log"
	"net/http"

	"fletera-backend/internal/middleware"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The dashboard and the driver PWA are served from other origins
		return true
	},
}

// HandleWebSocket upgrades an HTTP connection to a WebSocket. Browsers
// cannot set headers on the handshake, so the token comes as a query
// parameter; requests routed through Auth can fall back to the context.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var userClaims middleware.UserClaims

		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			var ok bool
			userClaims, ok = middleware.ParseToken(tokenString)
			if !ok {
				log.Println("❌ Invalid token on WebSocket handshake")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		} else {
			var ok bool
			userClaims, ok = middleware.GetUserFromContext(r)
			if !ok {
				log.Println("❌ No user in context for WebSocket connection")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("❌ WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(userClaims.UserID, userClaims.Role, conn, hub)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
