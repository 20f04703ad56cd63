// Package ledger is the authoritative store of games and player stats.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/apperr"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/escrow"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/shopspring/decimal"
)

// Guard is the precondition of a conditional update. Every set field must
// hold on the stored row for the patch to apply.
type Guard struct {
	Statuses []model.GameStatus
	// Unset lists columns that must still be NULL.
	Unset   []string
	ClaimId string
}

type PlayerDelta struct {
	GamesWon int64
	Earnings decimal.Decimal
}

// Settlement is everything needed to complete a claimed game.
type Settlement struct {
	GameId      string
	ClaimId     string
	Winner      string
	Loser       string
	Receipt     string
	WagerAmount decimal.Decimal
	Payout      escrow.Payout
	CompletedAt time.Time
}

type Store interface {
	Get(ctx context.Context, id string) (*model.Game, error)
	Create(ctx context.Context, game *model.Game) error
	// FindCandidateWaitingGame returns nil when no waiting game fits.
	FindCandidateWaitingGame(ctx context.Context, gameType string, maxAmount decimal.Decimal, excludeWallet string) (*model.Game, error)
	// ConditionalUpdate returns apperr.ErrConflict when the guard did not hold.
	ConditionalUpdate(ctx context.Context, id string, guard Guard, patch map[string]any) error
	UpsertPlayerStats(ctx context.Context, address string, delta PlayerDelta) error
	// CompleteSettlement atomically marks the claimed game completed, writes
	// its settlement record and applies both players' stats.
	CompleteSettlement(ctx context.Context, s Settlement) error
	GetPlayer(ctx context.Context, address string) (*model.Player, error)
	GetSettlement(ctx context.Context, gameId string) (*model.SettlementRecord, error)
	ListWaitingGames(ctx context.Context, gameType string, limit int, offset int) ([]model.Game, int64, error)
	ListResolving(ctx context.Context, limit int) ([]model.Game, error)
}

// IsTransient reports whether a store error is worth retrying. Domain
// errors and cancellation are final.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	_, isDomain := apperr.As(err)
	return !isDomain
}
