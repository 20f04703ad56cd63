package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Game struct {
	Id                    string          `gorm:"primaryKey;size:128"`
	GameType              string          `gorm:"size:64;not null;index:idx_game_matchmaking,priority:2"`
	Player1Wallet         string          `gorm:"size:128;not null;index"`
	Player2Wallet         *string         `gorm:"size:128;index"`
	WagerAmount           decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	HouseFee              decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	EscrowAccount         string          `gorm:"size:128;not null;uniqueIndex"`
	GameStatus            GameStatus      `gorm:"size:16;not null;index:idx_game_matchmaking,priority:1"`
	Player1DepositReceipt *string
	Player2DepositReceipt *string
	WinnerWallet          *string `gorm:"size:128"`
	ResolutionReceipt     *string

	ClaimId     *string `gorm:"size:64"`
	ClaimedAt   *time.Time
	ClaimedFrom *GameStatus `gorm:"size:16"`
	ClaimWinner *string     `gorm:"size:128"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

func (Game) TableName() string {
	return "game"
}

func (g Game) HasPlayer(wallet string) bool {
	if wallet == "" {
		return false
	}
	return g.Player1Wallet == wallet || (g.Player2Wallet != nil && *g.Player2Wallet == wallet)
}

// Opponent returns the other player of the game, or empty when wallet is
// not seated or the second seat is still open.
func (g Game) Opponent(wallet string) string {
	switch {
	case g.Player1Wallet == wallet && g.Player2Wallet != nil:
		return *g.Player2Wallet
	case g.Player2Wallet != nil && *g.Player2Wallet == wallet:
		return g.Player1Wallet
	}
	return ""
}

func (g Game) BothDeposited() bool {
	return g.Player1DepositReceipt != nil && g.Player2DepositReceipt != nil
}
