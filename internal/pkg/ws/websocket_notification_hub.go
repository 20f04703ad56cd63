package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// WebSocketNotificationHub fans events out to websocket listeners by topic.
type WebSocketNotificationHub struct {
	mu        sync.Mutex
	listeners map[string][]*websocket.Conn
}

func NewNotificationHub() *WebSocketNotificationHub {
	return &WebSocketNotificationHub{
		listeners: make(map[string][]*websocket.Conn),
	}
}

func GameTopic(gameId string) string {
	return "game/" + gameId
}

func (hub *WebSocketNotificationHub) RegisterListener(topic string, conn *websocket.Conn) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	hub.listeners[topic] = append(hub.listeners[topic], conn)
}

func (hub *WebSocketNotificationHub) UnregisterListener(topic string, conn *websocket.Conn) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	hub.removeLocked(topic, conn)
}

func (hub *WebSocketNotificationHub) ListenerCount(topic string) int {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	return len(hub.listeners[topic])
}

// Publish writes event to every listener of topic. Listeners that fail the
// write are dropped.
func (hub *WebSocketNotificationHub) Publish(topic string, event any) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for _, listener := range append([]*websocket.Conn(nil), hub.listeners[topic]...) {
		_ = listener.SetWriteDeadline(time.Now().Add(writeWait))
		if err := listener.WriteJSON(event); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Dropping websocket listener")
			hub.removeLocked(topic, listener)
			_ = listener.Close()
		}
	}
}

func (hub *WebSocketNotificationHub) removeLocked(topic string, conn *websocket.Conn) {
	conns := hub.listeners[topic]
	for i, listener := range conns {
		if listener == conn {
			conns = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(hub.listeners, topic)
		return
	}
	hub.listeners[topic] = conns
}
