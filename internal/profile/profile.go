package profile

import (
	"time"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/shopspring/decimal"
)

type Profile struct {
	Address       string          `json:"address"`
	GamesWon      int64           `json:"gamesWon"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func newProfile(p model.Player) Profile {
	return Profile{
		Address:       p.Address,
		GamesWon:      p.GamesWon,
		TotalEarnings: p.TotalEarnings,
		UpdatedAt:     p.UpdatedAt,
	}
}
