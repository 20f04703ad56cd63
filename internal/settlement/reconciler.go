package settlement

import (
	"context"
	"time"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/rs/zerolog/log"
)

const reconcileBatchSize = 50

// Reconciler periodically recovers games left in the settlement lock.
type Reconciler struct {
	coordinator *Coordinator
	interval    time.Duration
}

func NewReconciler(coordinator *Coordinator, interval time.Duration) *Reconciler {
	return &Reconciler{coordinator: coordinator, interval: interval}
}

// Start blocks until ctx is done.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Msg("Settlement reconciler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Settlement reconciler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce makes one pass over resolving games and returns how many left
// the lock.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	games, err := r.coordinator.store.ListResolving(ctx, reconcileBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Cannot list resolving games")
		return 0
	}

	settled := 0
	for i := range games {
		game := &games[i]
		if !r.coordinator.recoverable(game) {
			continue
		}

		recovered, err := r.coordinator.recover(ctx, game)
		if err != nil {
			log.Warn().Err(err).Str("gameId", game.Id).Msg("Reconciliation attempt failed")
			continue
		}
		if recovered.GameStatus != model.GameResolving {
			settled++
			log.Info().Str("gameId", game.Id).Str("status", string(recovered.GameStatus)).Msg("Game reconciled")
		}
	}
	return settled
}
