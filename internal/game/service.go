package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/apperr"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/escrow"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ledger"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/notify"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/retry"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/utils"
	"github.com/rs/zerolog/log"
)

var depositStatuses = []model.GameStatus{model.GameWaiting, model.GameMatched, model.GameActive}

type gameService struct {
	store    ledger.Store
	notifier notify.Notifier
	retry    retry.Policy
	now      func() time.Time
}

func (gs *gameService) createGame(ctx context.Context, req CreateGameRequest) (*model.Game, *reject.ProblemWithTrace) {
	if details := req.missingFields(); len(details) > 0 {
		return nil, &reject.ProblemWithTrace{
			Problem: reject.RequestValidationProblem(details...),
			Cause:   apperr.Validation("missing required fields"),
		}
	}
	if err := escrow.ValidateWager(*req.WagerAmount); err != nil {
		return nil, reject.FromError(err)
	}
	if !escrow.VerifyAccount(req.GameType, req.GameId, req.EscrowAccount) {
		return nil, reject.FromError(apperr.New(apperr.CodeEscrowMismatch, "escrow account does not belong to this game"))
	}

	game := &model.Game{
		Id:            req.GameId,
		GameType:      req.GameType,
		Player1Wallet: req.Player1Wallet,
		WagerAmount:   *req.WagerAmount,
		HouseFee:      escrow.HouseFee(*req.WagerAmount),
		EscrowAccount: escrow.DeriveAccount(req.GameType, req.GameId),
		GameStatus:    model.GameWaiting,
		CreatedAt:     gs.now().UTC(),
	}
	if req.DepositReceipt != "" {
		receipt := req.DepositReceipt
		game.Player1DepositReceipt = &receipt
	}

	err := gs.withRetry(ctx, func(ctx context.Context) error {
		return gs.store.Create(ctx, game)
	})
	if errors.Is(err, apperr.ErrGameExists) {
		// the same create replayed after a lost response is not a conflict
		existing, getErr := gs.store.Get(ctx, req.GameId)
		if getErr == nil && sameCreate(existing, game) {
			return existing, nil
		}
	}
	if err != nil {
		return nil, reject.FromError(err)
	}

	log.Info().
		Str("gameId", game.Id).
		Str("gameType", game.GameType).
		Str("wager", game.WagerAmount.String()).
		Msg("Game created")
	gs.notifier.GameUpdated(ctx, *game)
	return game, nil
}

func sameCreate(existing *model.Game, requested *model.Game) bool {
	return existing.Player1Wallet == requested.Player1Wallet &&
		existing.GameType == requested.GameType &&
		existing.WagerAmount.Equal(requested.WagerAmount)
}

func (gs *gameService) getGame(ctx context.Context, id string) (*model.Game, *reject.ProblemWithTrace) {
	game, err := gs.get(ctx, id)
	if err != nil {
		return nil, reject.FromError(err)
	}
	return game, nil
}

func (gs *gameService) getGames(ctx context.Context, page utils.PageRequest, gameType string) ([]model.Game, int64, *reject.ProblemWithTrace) {
	var games []model.Game
	var total int64
	err := gs.withRetry(ctx, func(ctx context.Context) error {
		var err error
		games, total, err = gs.store.ListWaitingGames(ctx, gameType, page.Size, page.Offset)
		return err
	})
	if err != nil {
		return nil, 0, reject.FromError(err)
	}
	return games, total, nil
}

func (gs *gameService) cancelGame(ctx context.Context, id string, wallet string) (*model.Game, *reject.ProblemWithTrace) {
	game, err := gs.cancel(ctx, id, wallet)
	if err != nil {
		return nil, reject.FromError(err)
	}
	return game, nil
}

func (gs *gameService) cancel(ctx context.Context, id string, wallet string) (*model.Game, error) {
	if wallet == "" {
		return nil, apperr.Validation("wallet is required")
	}
	game, err := gs.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if game.Player1Wallet != wallet {
		return nil, apperr.New(apperr.CodeNotPlayer, "only the creator may cancel a game")
	}
	if !game.GameStatus.CanTransitionTo(model.GameCancelled) {
		return nil, apperr.IneligibleState(fmt.Sprintf("game %s cannot be cancelled", id), string(game.GameStatus))
	}

	err = gs.update(ctx, id, ledger.Guard{
		Statuses: []model.GameStatus{model.GameWaiting},
		Unset:    []string{"player2_wallet"},
	}, map[string]any{
		"game_status":  model.GameCancelled,
		"cancelled_at": gs.now().UTC(),
	})
	if errors.Is(err, apperr.ErrConflict) {
		current, getErr := gs.get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.GameStatus == model.GameCancelled {
			return current, nil
		}
		return nil, apperr.IneligibleState(fmt.Sprintf("game %s was matched before it could be cancelled", id), string(current.GameStatus))
	}
	if err != nil {
		return nil, err
	}

	game, err = gs.get(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Info().Str("gameId", id).Msg("Game cancelled")
	gs.notifier.GameUpdated(ctx, *game)
	return game, nil
}

func (gs *gameService) confirmDeposit(ctx context.Context, id string, wallet string, receipt string) (*model.Game, *reject.ProblemWithTrace) {
	game, err := gs.deposit(ctx, id, wallet, receipt)
	if err != nil {
		return nil, reject.FromError(err)
	}
	return game, nil
}

// deposit records a player's deposit receipt and activates a matched game
// once both deposits are in.
func (gs *gameService) deposit(ctx context.Context, id string, wallet string, receipt string) (*model.Game, error) {
	if wallet == "" || receipt == "" {
		return nil, apperr.Validation("wallet and receipt are required")
	}
	game, err := gs.get(ctx, id)
	if err != nil {
		return nil, err
	}

	column, current := depositSlot(game, wallet)
	if column == "" {
		return nil, apperr.New(apperr.CodeNotPlayer, fmt.Sprintf("%s is not a player of game %s", wallet, id))
	}
	if current != nil {
		if *current != receipt {
			return nil, apperr.New(apperr.CodeDepositMismatch, "a different deposit receipt is already recorded")
		}
		return game, nil
	}
	if !isDepositStatus(game.GameStatus) {
		return nil, apperr.IneligibleState(fmt.Sprintf("game %s no longer accepts deposits", id), string(game.GameStatus))
	}

	err = gs.update(ctx, id, ledger.Guard{Statuses: depositStatuses, Unset: []string{column}}, map[string]any{column: receipt})
	if err != nil && !errors.Is(err, apperr.ErrConflict) {
		return nil, err
	}
	if game, err = gs.get(ctx, id); err != nil {
		return nil, err
	}
	if _, current = depositSlot(game, wallet); current == nil || *current != receipt {
		return nil, apperr.ErrConflict
	}

	if game.GameStatus == model.GameMatched && game.BothDeposited() {
		err = gs.update(ctx, id, ledger.Guard{Statuses: []model.GameStatus{model.GameMatched}}, map[string]any{
			"game_status": model.GameActive,
		})
		switch {
		case err == nil:
			log.Info().Str("gameId", id).Msg("Both deposits confirmed, game active")
		case errors.Is(err, apperr.ErrConflict):
			log.Debug().Str("gameId", id).Msg("Game left matched state before activation")
		default:
			return nil, err
		}
		if game, err = gs.get(ctx, id); err != nil {
			return nil, err
		}
	}

	gs.notifier.GameUpdated(ctx, *game)
	return game, nil
}

func depositSlot(game *model.Game, wallet string) (string, *string) {
	switch {
	case wallet == game.Player1Wallet:
		return "player1_deposit_receipt", game.Player1DepositReceipt
	case game.Player2Wallet != nil && wallet == *game.Player2Wallet:
		return "player2_deposit_receipt", game.Player2DepositReceipt
	}
	return "", nil
}

func isDepositStatus(status model.GameStatus) bool {
	for _, s := range depositStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (gs *gameService) get(ctx context.Context, id string) (*model.Game, error) {
	var game *model.Game
	err := gs.withRetry(ctx, func(ctx context.Context) error {
		var err error
		game, err = gs.store.Get(ctx, id)
		return err
	})
	return game, err
}

func (gs *gameService) update(ctx context.Context, id string, guard ledger.Guard, patch map[string]any) error {
	return gs.withRetry(ctx, func(ctx context.Context) error {
		return gs.store.ConditionalUpdate(ctx, id, guard, patch)
	})
}

func (gs *gameService) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, gs.retry, ledger.IsTransient, fn)
}
