package escrow

import (
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/apperr"
	"github.com/shopspring/decimal"
)

// MaxWagerDecimals keeps the fee and payout within the 8 fractional digits
// of the chain's fixed point amounts.
const MaxWagerDecimals = 6

var (
	HouseFeeRate = decimal.RequireFromString("0.03")
	two          = decimal.NewFromInt(2)
)

// Payout is the split of a settled pot.
type Payout struct {
	Pot           decimal.Decimal `json:"pot"`
	HouseFee      decimal.Decimal `json:"houseFee"`
	HouseFeeTotal decimal.Decimal `json:"houseFeeTotal"`
	WinnerAmount  decimal.Decimal `json:"winnerAmount"`
	LoserDelta    decimal.Decimal `json:"loserDelta"`
}

// HouseFee is the per player fee charged on a wager.
func HouseFee(wager decimal.Decimal) decimal.Decimal {
	return wager.Mul(HouseFeeRate)
}

func WinnerAmount(wager decimal.Decimal) decimal.Decimal {
	return ComputePayout(wager).WinnerAmount
}

// ComputePayout splits the pot of two equal wagers. WinnerAmount plus both
// fees always equals the pot exactly.
func ComputePayout(wager decimal.Decimal) Payout {
	fee := HouseFee(wager)
	pot := wager.Mul(two)
	feeTotal := fee.Mul(two)
	return Payout{
		Pot:           pot,
		HouseFee:      fee,
		HouseFeeTotal: feeTotal,
		WinnerAmount:  pot.Sub(feeTotal),
		LoserDelta:    wager.Neg(),
	}
}

func ValidateWager(wager decimal.Decimal) error {
	if !wager.IsPositive() {
		return apperr.New(apperr.CodeWagerInvalid, "wager amount must be positive")
	}
	if !wager.Equal(wager.Truncate(MaxWagerDecimals)) {
		return apperr.New(apperr.CodeWagerInvalid, "wager amount has more than 6 decimal places")
	}
	return nil
}
