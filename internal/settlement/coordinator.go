// Package settlement pays out games exactly once and keeps the ledger in
// step with the chain.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/apperr"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/escrow"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ledger"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/notify"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/retry"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const maxClaimAttempts = 3

var errClaimLost = errors.New("settlement claim lost")

type Result struct {
	GameId       string          `json:"gameId"`
	WinnerWallet string          `json:"winnerWallet"`
	WinnerAmount decimal.Decimal `json:"winnerAmount"`
	Receipt      string          `json:"receipt"`
	// Pending is set when the payout is confirmed but the ledger has not
	// caught up yet.
	Pending bool `json:"pending,omitempty"`
}

type Options struct {
	ClaimTTL    time.Duration
	LedgerRetry retry.Policy
}

type Coordinator struct {
	store    ledger.Store
	transfer blockchain.Transferer
	notifier notify.Notifier
	claimTTL time.Duration
	retry    retry.Policy
	now      func() time.Time
}

func NewCoordinator(store ledger.Store, transfer blockchain.Transferer, notifier notify.Notifier, opts Options) *Coordinator {
	return &Coordinator{
		store:    store,
		transfer: transfer,
		notifier: notifier,
		claimTTL: opts.ClaimTTL,
		retry:    opts.LedgerRetry,
		now:      time.Now,
	}
}

// Resolve pays the pot of a matched or active game to winner. Exactly one
// caller ever triggers the transfer; the others get "already settled" with
// the existing result or "already resolving".
func (c *Coordinator) Resolve(ctx context.Context, gameId string, winner string) (*Result, error) {
	if gameId == "" || winner == "" {
		return nil, apperr.Validation("gameId and winnerWallet are required")
	}

	for attempt := 1; attempt <= maxClaimAttempts; attempt++ {
		game, err := c.get(ctx, gameId)
		if err != nil {
			return nil, err
		}

		switch {
		case game.GameStatus == model.GameCompleted:
			return alreadySettled(game)
		case game.GameStatus == model.GameResolving:
			recovered, err := c.recover(ctx, game)
			if err != nil {
				return nil, err
			}
			switch recovered.GameStatus {
			case model.GameCompleted:
				return alreadySettled(recovered)
			case model.GameResolving:
				return nil, apperr.ErrAlreadyResolving
			}
			continue
		case !game.GameStatus.IsPayoutEligible():
			return nil, apperr.IneligibleState(
				fmt.Sprintf("game %s is %s and cannot be resolved", gameId, game.GameStatus),
				string(game.GameStatus))
		}

		if game.Player2Wallet == nil || !game.HasPlayer(winner) {
			return nil, apperr.New(apperr.CodeNotPlayer, fmt.Sprintf("%s is not a player of game %s", winner, gameId))
		}

		result, err := c.settle(ctx, game, winner)
		if errors.Is(err, errClaimLost) {
			continue
		}
		if errors.Is(err, apperr.ErrReconciliationPending) {
			return result, nil
		}
		return result, err
	}
	return nil, apperr.ErrAlreadyResolving
}

// Reconcile finishes a game stuck in the settlement lock. It never
// transfers; it completes the game from a known receipt or releases a
// stale claim that provably moved nothing.
func (c *Coordinator) Reconcile(ctx context.Context, gameId string) (*model.Game, error) {
	game, err := c.get(ctx, gameId)
	if err != nil {
		return nil, err
	}

	switch game.GameStatus {
	case model.GameCompleted:
		_, err := alreadySettled(game)
		return game, err
	case model.GameResolving:
	default:
		return nil, apperr.IneligibleState(fmt.Sprintf("game %s has no settlement to reconcile", gameId), string(game.GameStatus))
	}

	if !c.recoverable(game) {
		return nil, apperr.WithMetadata(apperr.CodeAlreadyResolve, "settlement claim is still live", map[string]string{
			"claimedAt": game.ClaimedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.recover(ctx, game)
}

// settle runs the claim, transfer and reconcile steps for one game.
func (c *Coordinator) settle(ctx context.Context, game *model.Game, winner string) (*Result, error) {
	claimed, err := c.claim(ctx, game, winner)
	if err != nil {
		return nil, err
	}
	// past the claim the settlement runs to completion even if the caller goes
	// away, and nothing but the transfer sits between claim and payout
	ctx = context.WithoutCancel(ctx)

	payout := escrow.ComputePayout(game.WagerAmount)
	receipt, err := c.transfer.Transfer(ctx, game.EscrowAccount, winner, payout.WinnerAmount)
	if err != nil {
		if !errors.Is(err, apperr.ErrTransferOutcomeUnknown) {
			log.Warn().Err(err).Str("gameId", game.Id).Str("claimId", *claimed.ClaimId).Msg("Payout failed, releasing claim")
			c.release(ctx, claimed)
			return nil, err
		}

		found, queryErr := c.transfer.QueryReceipt(ctx, game.EscrowAccount)
		if queryErr != nil {
			log.Warn().
				Err(err).
				AnErr("queryErr", queryErr).
				Str("gameId", game.Id).
				Str("claimId", *claimed.ClaimId).
				Msg("Payout outcome unknown, keeping claim for recovery")
			c.notifyCurrent(ctx, game.Id)
			return nil, err
		}
		log.Warn().Str("gameId", game.Id).Str("receipt", found.Reference).Msg("Payout outcome resolved from chain")
		receipt = found
	}

	return c.reconcile(ctx, claimed, receipt.Reference)
}

func (c *Coordinator) claim(ctx context.Context, game *model.Game, winner string) (*model.Game, error) {
	claimId := uuid.NewString()
	from := game.GameStatus
	claimedAt := c.now().UTC()

	err := c.update(ctx, game.Id, ledger.Guard{Statuses: []model.GameStatus{from}}, map[string]any{
		"game_status":  model.GameResolving,
		"claim_id":     claimId,
		"claimed_at":   claimedAt,
		"claimed_from": from,
		"claim_winner": winner,
	})
	if errors.Is(err, apperr.ErrConflict) {
		// a retried write may still have been ours
		current, getErr := c.get(ctx, game.Id)
		if getErr != nil || current.ClaimId == nil || *current.ClaimId != claimId {
			return nil, errClaimLost
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}

	claimed := *game
	claimed.GameStatus = model.GameResolving
	claimed.ClaimId = &claimId
	claimed.ClaimedAt = &claimedAt
	claimed.ClaimedFrom = &from
	claimed.ClaimWinner = &winner

	log.Info().Str("gameId", game.Id).Str("claimId", claimId).Str("winner", winner).Msg("Settlement claimed")
	return &claimed, nil
}

// reconcile completes a claimed game whose payout is confirmed. When the
// ledger cannot be written the receipt is stored on the claim so recovery
// can finish without another transfer.
func (c *Coordinator) reconcile(ctx context.Context, game *model.Game, receipt string) (*Result, error) {
	winner := *game.ClaimWinner
	payout := escrow.ComputePayout(game.WagerAmount)
	settlement := ledger.Settlement{
		GameId:      game.Id,
		ClaimId:     *game.ClaimId,
		Winner:      winner,
		Loser:       game.Opponent(winner),
		Receipt:     receipt,
		WagerAmount: game.WagerAmount,
		Payout:      payout,
		CompletedAt: c.now().UTC(),
	}
	result := &Result{
		GameId:       game.Id,
		WinnerWallet: winner,
		WinnerAmount: payout.WinnerAmount,
		Receipt:      receipt,
	}

	err := c.withRetry(ctx, func(ctx context.Context) error {
		return c.store.CompleteSettlement(ctx, settlement)
	})
	if errors.Is(err, apperr.ErrConflict) {
		current, getErr := c.get(ctx, game.Id)
		if getErr == nil && current.GameStatus == model.GameCompleted &&
			current.ResolutionReceipt != nil && *current.ResolutionReceipt == receipt {
			err = nil
		}
	}
	if err == nil {
		log.Info().
			Str("gameId", game.Id).
			Str("claimId", settlement.ClaimId).
			Str("receipt", receipt).
			Str("winnerAmount", payout.WinnerAmount.String()).
			Msg("Settlement completed")
		c.notifyCurrent(ctx, game.Id)
		return result, nil
	}

	log.Error().Err(err).Str("gameId", game.Id).Str("receipt", receipt).Msg("Payout confirmed but ledger completion failed")
	recordErr := c.update(ctx, game.Id, ledger.Guard{
		Statuses: []model.GameStatus{model.GameResolving},
		ClaimId:  settlement.ClaimId,
	}, map[string]any{"resolution_receipt": receipt})
	if recordErr != nil {
		log.Error().Err(recordErr).Str("gameId", game.Id).Str("receipt", receipt).Msg("Cannot record payout receipt, recovery will query the chain")
	}

	c.notifyCurrent(ctx, game.Id)
	result.Pending = true
	return result, apperr.Wrap(apperr.CodeReconciliationPending, "payout confirmed, ledger pending", err)
}

// recover moves a Resolving game forward without transferring. The
// returned game is Completed, back in its pre-claim status, or still
// Resolving when nothing could be decided.
func (c *Coordinator) recover(ctx context.Context, game *model.Game) (*model.Game, error) {
	if !c.recoverable(game) {
		return game, nil
	}
	if game.ClaimId == nil || game.ClaimWinner == nil {
		return nil, fmt.Errorf("game %s is resolving without a claim", game.Id)
	}

	receipt := ""
	if game.ResolutionReceipt != nil {
		receipt = *game.ResolutionReceipt
	}
	if receipt == "" {
		found, err := c.transfer.QueryReceipt(ctx, game.EscrowAccount)
		switch {
		case err == nil:
			receipt = found.Reference
		case errors.Is(err, apperr.ErrReceiptNotFound):
			log.Warn().Str("gameId", game.Id).Str("claimId", *game.ClaimId).Msg("Stale claim moved nothing, releasing")
			c.release(ctx, game)
			return c.get(ctx, game.Id)
		default:
			return nil, err
		}
	}

	log.Warn().Str("gameId", game.Id).Str("receipt", receipt).Msg("Completing settlement from recorded payout")
	if _, err := c.reconcile(ctx, game, receipt); err != nil && !errors.Is(err, apperr.ErrReconciliationPending) {
		return nil, err
	}
	return c.get(ctx, game.Id)
}

// recoverable reports whether a Resolving game may be moved forward by
// someone other than the claim holder.
func (c *Coordinator) recoverable(game *model.Game) bool {
	if game.GameStatus != model.GameResolving {
		return false
	}
	if game.ResolutionReceipt != nil && *game.ResolutionReceipt != "" {
		return true
	}
	return game.ClaimedAt == nil || c.now().Sub(*game.ClaimedAt) >= c.claimTTL
}

// release hands a claimed game back to the status it was claimed from.
// Claims with a recorded receipt are never released.
func (c *Coordinator) release(ctx context.Context, game *model.Game) {
	from := model.GameActive
	if game.ClaimedFrom != nil {
		from = *game.ClaimedFrom
	}

	err := c.update(ctx, game.Id, ledger.Guard{
		Statuses: []model.GameStatus{model.GameResolving},
		Unset:    []string{"resolution_receipt"},
		ClaimId:  *game.ClaimId,
	}, map[string]any{
		"game_status":  from,
		"claim_id":     nil,
		"claimed_at":   nil,
		"claimed_from": nil,
		"claim_winner": nil,
	})
	if err != nil && !errors.Is(err, apperr.ErrConflict) {
		log.Error().Err(err).Str("gameId", game.Id).Msg("Cannot release settlement claim")
		return
	}
	c.notifyCurrent(ctx, game.Id)
}

func alreadySettled(game *model.Game) (*Result, error) {
	result := &Result{
		GameId:       game.Id,
		WinnerAmount: escrow.WinnerAmount(game.WagerAmount),
	}
	metadata := map[string]string{}
	if game.WinnerWallet != nil {
		result.WinnerWallet = *game.WinnerWallet
		metadata["winnerWallet"] = *game.WinnerWallet
	}
	if game.ResolutionReceipt != nil {
		result.Receipt = *game.ResolutionReceipt
		metadata["receipt"] = *game.ResolutionReceipt
	}
	return result, apperr.WithMetadata(apperr.CodeAlreadySettled, fmt.Sprintf("game %s already settled", game.Id), metadata)
}

func (c *Coordinator) notifyCurrent(ctx context.Context, gameId string) {
	game, err := c.get(ctx, gameId)
	if err != nil {
		log.Warn().Err(err).Str("gameId", gameId).Msg("Cannot load game for notification")
		return
	}
	c.notifier.GameUpdated(ctx, *game)
}

func (c *Coordinator) get(ctx context.Context, id string) (*model.Game, error) {
	var game *model.Game
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		game, err = c.store.Get(ctx, id)
		return err
	})
	return game, err
}

func (c *Coordinator) update(ctx context.Context, id string, guard ledger.Guard, patch map[string]any) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		return c.store.ConditionalUpdate(ctx, id, guard, patch)
	})
}

func (c *Coordinator) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, c.retry, ledger.IsTransient, fn)
}
