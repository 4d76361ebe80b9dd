package relay

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// The relay carries only opaque signaling metadata; any origin may
	// connect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewServer builds the relay's HTTP surface: a health endpoint and the
// websocket upgrade route.
func NewServer(hub *Hub) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "Relay server is healthy.")
	})
	router.GET("/ws", serveWs(hub))

	return router
}

// serveWs upgrades the connection, registers a session with the hub, and
// starts its read and write pumps.
func serveWs(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Warn("failed to upgrade connection", "err", err)
			return
		}

		sess := NewSession(hub, conn)
		hub.Register <- sess

		go sess.WritePump()
		go sess.ReadPump()
	}
}
