package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Player struct {
	Address       string          `gorm:"primaryKey;size:128"`
	GamesWon      int64           `gorm:"not null"`
	TotalEarnings decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Player) TableName() string {
	return "player"
}
