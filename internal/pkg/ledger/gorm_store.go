package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/apperr"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, id string) (*model.Game, error) {
	var game model.Game
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&game).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return &game, nil
}

func (s *GormStore) Create(ctx context.Context, game *model.Game) error {
	err := s.db.WithContext(ctx).Create(game).Error
	if isDuplicate(err) {
		return apperr.Wrap(apperr.CodeGameExists, fmt.Sprintf("game %s already exists", game.Id), err)
	}
	return err
}

func (s *GormStore) FindCandidateWaitingGame(
	ctx context.Context,
	gameType string,
	maxAmount decimal.Decimal,
	excludeWallet string,
) (*model.Game, error) {
	var games []model.Game
	err := s.db.WithContext(ctx).
		Where("game_status = ? AND game_type = ? AND player2_wallet IS NULL", model.GameWaiting, gameType).
		Where("wager_amount <= ?", maxAmount).
		Where("player1_wallet <> ?", excludeWallet).
		Order("wager_amount DESC").
		Order("created_at ASC").
		Limit(1).
		Find(&games).Error
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, nil
	}
	return &games[0], nil
}

func (s *GormStore) ConditionalUpdate(ctx context.Context, id string, guard Guard, patch map[string]any) error {
	return conditionalUpdate(s.db.WithContext(ctx), id, guard, patch)
}

func conditionalUpdate(db *gorm.DB, id string, guard Guard, patch map[string]any) error {
	q := db.Model(&model.Game{}).Where("id = ?", id)
	if len(guard.Statuses) > 0 {
		q = q.Where("game_status IN ?", statusStrings(guard.Statuses))
	}
	for _, column := range guard.Unset {
		q = q.Where(clause.Expr{SQL: "? IS NULL", Vars: []any{clause.Column{Name: column}}})
	}
	if guard.ClaimId != "" {
		q = q.Where("claim_id = ?", guard.ClaimId)
	}

	res := q.Updates(patch)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrConflict
	}
	return nil
}

func (s *GormStore) UpsertPlayerStats(ctx context.Context, address string, delta PlayerDelta) error {
	return upsertPlayer(s.db.WithContext(ctx), address, delta)
}

func upsertPlayer(db *gorm.DB, address string, delta PlayerDelta) error {
	now := time.Now().UTC()
	player := model.Player{
		Address:       address,
		GamesWon:      delta.GamesWon,
		TotalEarnings: delta.Earnings,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]any{
			"games_won":      gorm.Expr("player.games_won + excluded.games_won"),
			"total_earnings": gorm.Expr("player.total_earnings + excluded.total_earnings"),
			"updated_at":     gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&player).Error
}

func (s *GormStore) CompleteSettlement(ctx context.Context, st Settlement) error {
	breakdown, err := json.Marshal(st.Payout)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := conditionalUpdate(tx, st.GameId, Guard{
			Statuses: []model.GameStatus{model.GameResolving},
			ClaimId:  st.ClaimId,
		}, map[string]any{
			"game_status":        model.GameCompleted,
			"winner_wallet":      st.Winner,
			"resolution_receipt": st.Receipt,
			"completed_at":       st.CompletedAt,
		})
		if err != nil {
			return err
		}

		record := model.SettlementRecord{
			GameId:       st.GameId,
			ClaimId:      st.ClaimId,
			Receipt:      st.Receipt,
			WinnerWallet: st.Winner,
			LoserWallet:  st.Loser,
			WagerAmount:  st.WagerAmount,
			HouseFee:     st.Payout.HouseFeeTotal,
			WinnerAmount: st.Payout.WinnerAmount,
			Breakdown:    datatypes.JSON(breakdown),
			SettledAt:    st.CompletedAt,
		}
		if err := tx.Create(&record).Error; err != nil {
			if isDuplicate(err) {
				return apperr.Wrap(apperr.CodeConflict, "settlement already recorded", err)
			}
			return err
		}

		if err := upsertPlayer(tx, st.Winner, PlayerDelta{GamesWon: 1, Earnings: st.Payout.WinnerAmount}); err != nil {
			return err
		}
		return upsertPlayer(tx, st.Loser, PlayerDelta{Earnings: st.Payout.LoserDelta})
	})
}

func (s *GormStore) GetPlayer(ctx context.Context, address string) (*model.Player, error) {
	var player model.Player
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func (s *GormStore) GetSettlement(ctx context.Context, gameId string) (*model.SettlementRecord, error) {
	var record model.SettlementRecord
	err := s.db.WithContext(ctx).Where("game_id = ?", gameId).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *GormStore) ListWaitingGames(ctx context.Context, gameType string, limit int, offset int) ([]model.Game, int64, error) {
	waiting := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.Game{}).Where("game_status = ?", model.GameWaiting)
		if gameType != "" {
			q = q.Where("game_type = ?", gameType)
		}
		return q
	}

	var total int64
	if err := waiting().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var games []model.Game
	err := waiting().Order("created_at ASC").Limit(limit).Offset(offset).Find(&games).Error
	return games, total, err
}

func (s *GormStore) ListResolving(ctx context.Context, limit int) ([]model.Game, error) {
	var games []model.Game
	err := s.db.WithContext(ctx).
		Where("game_status = ?", model.GameResolving).
		Order("claimed_at ASC").
		Limit(limit).
		Find(&games).Error
	return games, err
}

func statusStrings(statuses []model.GameStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
