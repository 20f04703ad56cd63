package profile

import (
	"context"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ledger"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/reject"
)

type profileService struct {
	store ledger.Store
}

func (s *profileService) findByAddress(ctx context.Context, address string) (*Profile, *reject.ProblemWithTrace) {
	player, err := s.store.GetPlayer(ctx, address)
	if err != nil {
		return nil, reject.FromError(err)
	}

	profile := newProfile(*player)
	return &profile, nil
}
