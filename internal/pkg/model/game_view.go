package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GameView is the client facing shape of a game. The settlement lock is
// reported as an active game that is settling.
type GameView struct {
	Id                    string          `json:"id"`
	GameType              string          `json:"gameType"`
	Player1Wallet         string          `json:"player1Wallet"`
	Player2Wallet         *string         `json:"player2Wallet,omitempty"`
	WagerAmount           decimal.Decimal `json:"wagerAmount"`
	HouseFee              decimal.Decimal `json:"houseFee"`
	EscrowAccount         string          `json:"escrowAccount"`
	Status                GameStatus      `json:"status"`
	Settling              bool            `json:"settling"`
	Player1DepositReceipt *string         `json:"player1DepositReceipt,omitempty"`
	Player2DepositReceipt *string         `json:"player2DepositReceipt,omitempty"`
	WinnerWallet          *string         `json:"winnerWallet,omitempty"`
	ResolutionReceipt     *string         `json:"resolutionReceipt,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	CompletedAt           *time.Time      `json:"completedAt,omitempty"`
	CancelledAt           *time.Time      `json:"cancelledAt,omitempty"`
}

func NewGameView(g Game) GameView {
	v := GameView{
		Id:                    g.Id,
		GameType:              g.GameType,
		Player1Wallet:         g.Player1Wallet,
		Player2Wallet:         g.Player2Wallet,
		WagerAmount:           g.WagerAmount,
		HouseFee:              g.HouseFee,
		EscrowAccount:         g.EscrowAccount,
		Status:                g.GameStatus,
		Player1DepositReceipt: g.Player1DepositReceipt,
		Player2DepositReceipt: g.Player2DepositReceipt,
		CreatedAt:             g.CreatedAt,
		CompletedAt:           g.CompletedAt,
		CancelledAt:           g.CancelledAt,
	}
	if g.GameStatus == GameResolving {
		v.Settling = true
		if g.ClaimedFrom != nil {
			v.Status = *g.ClaimedFrom
		} else {
			v.Status = GameActive
		}
	}
	if g.GameStatus == GameCompleted {
		v.WinnerWallet = g.WinnerWallet
		v.ResolutionReceipt = g.ResolutionReceipt
	}
	return v
}
