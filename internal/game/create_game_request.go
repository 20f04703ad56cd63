package game

import (
	"strings"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/reject"
	"github.com/shopspring/decimal"
)

const fieldRequired = "error.request.field-required"

type CreateGameRequest struct {
	GameId         string           `json:"gameId"`
	GameType       string           `json:"gameType"`
	Player1Wallet  string           `json:"player1Wallet"`
	WagerAmount    *decimal.Decimal `json:"wagerAmount"`
	EscrowAccount  string           `json:"escrowAccount"`
	DepositReceipt string           `json:"depositReceipt"`
}

func (r CreateGameRequest) missingFields() []reject.ProblemDetail {
	var details []reject.ProblemDetail
	required := map[string]string{
		"gameId":        r.GameId,
		"gameType":      r.GameType,
		"player1Wallet": r.Player1Wallet,
		"escrowAccount": r.EscrowAccount,
	}
	for _, property := range []string{"gameId", "gameType", "player1Wallet", "escrowAccount"} {
		if strings.TrimSpace(required[property]) == "" {
			details = append(details, reject.ProblemDetail{Property: property, Code: fieldRequired})
		}
	}
	if r.WagerAmount == nil {
		details = append(details, reject.ProblemDetail{Property: "wagerAmount", Code: fieldRequired})
	}
	return details
}

type DepositRequest struct {
	Wallet  string `json:"wallet"`
	Receipt string `json:"receipt"`
}

type CancelRequest struct {
	Wallet string `json:"wallet"`
}
