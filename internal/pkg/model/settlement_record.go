package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SettlementRecord is written once per completed game in the same
// transaction that applies player stats.
type SettlementRecord struct {
	Id           uint64          `gorm:"primaryKey;autoIncrement"`
	GameId       string          `gorm:"size:128;not null;uniqueIndex"`
	ClaimId      string          `gorm:"size:64;not null"`
	Receipt      string          `gorm:"not null"`
	WinnerWallet string          `gorm:"size:128;not null"`
	LoserWallet  string          `gorm:"size:128;not null"`
	WagerAmount  decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	HouseFee     decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	WinnerAmount decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Breakdown    datatypes.JSON
	SettledAt    time.Time
}

func (SettlementRecord) TableName() string {
	return "settlement_record"
}
