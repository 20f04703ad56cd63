package game

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/apperr"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/utils"
	"github.com/rs/zerolog/log"
)

// DepositConfirmed is emitted by the chain event relay once a player's
// deposit into the escrow is sealed.
type DepositConfirmed struct {
	EscrowId string `json:"escrowId"`
	GameId   string `json:"gameId"`
	Wallet   string `json:"wallet"`
	TxId     string `json:"txId"`
}

type depositBridge struct {
	gameService *gameService
}

func (b *depositBridge) handleDepositConfirmed(ctx context.Context, message *gcppubsub.Message) {
	log.Info().Msg("Received message payload " + string(message.Data))
	messagePayload, err := utils.JsonDecodeByteStream[DepositConfirmed](message.Data)
	if err != nil {
		log.Warn().Err(err).Msg("Error while parsing DepositConfirmed message")
		message.Ack()
		return
	}

	if b.applyDeposit(ctx, *messagePayload) {
		message.Ack()
		return
	}
	message.Nack()
}

// applyDeposit reports whether the message is done with. Only failures that
// may pass on redelivery return false.
func (b *depositBridge) applyDeposit(ctx context.Context, event DepositConfirmed) bool {
	game, err := b.gameService.get(ctx, event.GameId)
	if err != nil {
		log.Warn().Err(err).Str("gameId", event.GameId).Msg("Error while handling DepositConfirmed")
		return apperr.KindOf(err) != apperr.KindUnexpected
	}
	if game.EscrowAccount != event.EscrowId {
		log.Warn().
			Str("gameId", event.GameId).
			Str("escrowId", event.EscrowId).
			Msg("DepositConfirmed escrow does not match game, dropping")
		return true
	}

	if _, err := b.gameService.deposit(ctx, event.GameId, event.Wallet, event.TxId); err != nil {
		log.Warn().Err(err).Str("gameId", event.GameId).Msg("Error while handling DepositConfirmed")
		return apperr.KindOf(err) != apperr.KindUnexpected
	}
	return true
}
