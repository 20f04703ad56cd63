package matchmaking

import (
	"context"
	"errors"
	"strings"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/apperr"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/escrow"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ledger"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/notify"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/retry"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type JoinRequest struct {
	Wallet      string           `json:"wallet"`
	GameType    string           `json:"gameType"`
	WagerAmount *decimal.Decimal `json:"wagerAmount"`
}

// Result is either a match into an existing game or unmatched, in which
// case the caller creates a waiting game of its own.
type Result struct {
	Matched       bool             `json:"matched"`
	GameId        string           `json:"gameId,omitempty"`
	WagerAmount   *decimal.Decimal `json:"wagerAmount,omitempty"`
	EscrowAccount string           `json:"escrowAccount,omitempty"`
}

var unmatched = &Result{Matched: false}

type Engine struct {
	store       ledger.Store
	notifier    notify.Notifier
	maxAttempts int
	retry       retry.Policy
}

func NewEngine(store ledger.Store, notifier notify.Notifier, maxAttempts int, policy retry.Policy) *Engine {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Engine{
		store:       store,
		notifier:    notifier,
		maxAttempts: maxAttempts,
		retry:       policy,
	}
}

// Join seats wallet as the second player of the best fitting waiting game.
// A lost race for a candidate searches again, up to the attempt limit.
func (e *Engine) Join(ctx context.Context, req JoinRequest) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	wager := *req.WagerAmount

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		var candidate *model.Game
		err := retry.Do(ctx, e.retry, ledger.IsTransient, func(ctx context.Context) error {
			var err error
			candidate, err = e.store.FindCandidateWaitingGame(ctx, req.GameType, wager, req.Wallet)
			return err
		})
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return unmatched, nil
		}

		err = e.claim(ctx, candidate.Id, req.Wallet)
		if errors.Is(err, apperr.ErrConflict) {
			log.Debug().
				Str("gameId", candidate.Id).
				Int("attempt", attempt).
				Msg("Lost race for waiting game, searching again")
			continue
		}
		if err != nil {
			return nil, err
		}

		log.Info().
			Str("gameId", candidate.Id).
			Str("player2", req.Wallet).
			Str("wager", candidate.WagerAmount.String()).
			Msg("Wager matched")
		e.notifyMatched(ctx, candidate.Id)

		matchedWager := candidate.WagerAmount
		return &Result{
			Matched:       true,
			GameId:        candidate.Id,
			WagerAmount:   &matchedWager,
			EscrowAccount: candidate.EscrowAccount,
		}, nil
	}

	log.Info().Str("wallet", req.Wallet).Int("attempts", e.maxAttempts).Msg("No waiting game could be claimed")
	return unmatched, nil
}

func (e *Engine) claim(ctx context.Context, gameId string, wallet string) error {
	guard := ledger.Guard{
		Statuses: []model.GameStatus{model.GameWaiting},
		Unset:    []string{"player2_wallet"},
	}
	patch := map[string]any{
		"player2_wallet": wallet,
		"game_status":    model.GameMatched,
	}

	// set once an attempt failed without telling whether the write landed
	mayHaveLanded := false
	err := retry.Do(ctx, e.retry, ledger.IsTransient, func(ctx context.Context) error {
		err := e.store.ConditionalUpdate(ctx, gameId, guard, patch)
		if ledger.IsTransient(err) {
			mayHaveLanded = true
		}
		return err
	})
	if !errors.Is(err, apperr.ErrConflict) || !mayHaveLanded {
		return err
	}

	// only an earlier attempt of this join can have seated wallet
	game, getErr := e.store.Get(ctx, gameId)
	if getErr == nil && game.Player2Wallet != nil && *game.Player2Wallet == wallet {
		return nil
	}
	return err
}

func (e *Engine) notifyMatched(ctx context.Context, gameId string) {
	game, err := e.store.Get(ctx, gameId)
	if err != nil {
		log.Warn().Err(err).Str("gameId", gameId).Msg("Cannot load matched game for notification")
		return
	}
	e.notifier.GameUpdated(ctx, *game)
}

func validate(req JoinRequest) error {
	if strings.TrimSpace(req.Wallet) == "" || strings.TrimSpace(req.GameType) == "" {
		return apperr.Validation("wallet and gameType are required")
	}
	if req.WagerAmount == nil {
		return apperr.Validation("wagerAmount is required")
	}
	return escrow.ValidateWager(*req.WagerAmount)
}
