package ws

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ws"
	"github.com/rs/zerolog/log"
)

type wsHandler struct {
	notificationHub *ws.WebSocketNotificationHub
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func RegisterRoutes(rg *gin.RouterGroup, hub *ws.WebSocketNotificationHub) {
	handler := wsHandler{
		notificationHub: hub,
	}

	routes := rg.Group("/ws")
	routes.GET("/game/:id", handler.serveWs)
}

func (wsh *wsHandler) serveWs(c *gin.Context) {
	topic := ws.GameTopic(c.Param("id"))
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Cannot upgrade ws connection")
		return
	}
	defer conn.Close()
	defer wsh.notificationHub.UnregisterListener(topic, conn)

	wsh.notificationHub.RegisterListener(topic, conn)

	// clients only listen; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug().Err(err).Str("topic", topic).Msg("ws connection closed")
			return
		}
	}
}
