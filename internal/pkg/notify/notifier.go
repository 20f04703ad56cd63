// Package notify tells subscribers that a game changed.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ws"
)

const (
	GameUpdatedType = "GAME_UPDATED"
	gameEventsTopic = "escrow.game.events"
)

type Notifier interface {
	GameUpdated(ctx context.Context, game model.Game)
}

type GameEvent struct {
	Id      string         `json:"id"`
	Type    string         `json:"type"`
	Payload model.GameView `json:"payload"`
}

func (GameEvent) GetEventTopicName() string {
	return gameEventsTopic
}

// GetOrderingKey keeps the events of one game in order.
func (e GameEvent) GetOrderingKey() string {
	return e.Payload.Id
}

func NewGameEvent(game model.Game) GameEvent {
	return GameEvent{
		Id:      uuid.NewString(),
		Type:    GameUpdatedType,
		Payload: model.NewGameView(game),
	}
}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) GameUpdated(ctx context.Context, game model.Game) {
	for _, n := range m {
		n.GameUpdated(ctx, game)
	}
}

type Noop struct{}

func (Noop) GameUpdated(context.Context, model.Game) {}

type hubNotifier struct {
	hub *ws.WebSocketNotificationHub
}

func NewHubNotifier(hub *ws.WebSocketNotificationHub) Notifier {
	return hubNotifier{hub: hub}
}

func (n hubNotifier) GameUpdated(_ context.Context, game model.Game) {
	n.hub.Publish(ws.GameTopic(game.Id), NewGameEvent(game))
}

type pubsubNotifier struct {
	client *pubsub.Client
}

func NewPubsubNotifier(client *pubsub.Client) Notifier {
	return pubsubNotifier{client: client}
}

// GameUpdated queues the event; delivery is confirmed in the background.
func (n pubsubNotifier) GameUpdated(ctx context.Context, game model.Game) {
	n.client.Publish(ctx, NewGameEvent(game))
}
