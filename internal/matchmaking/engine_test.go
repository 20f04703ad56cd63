package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/apperr"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/escrow"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ledger"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/ledger/ledgertest"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/notify"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = retry.Policy{Attempts: 2, Min: time.Millisecond, Max: time.Millisecond, Factor: 1}

var base = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, store ledger.Store, id string, player1 string, wager string, createdAt time.Time) {
	t.Helper()
	w := decimal.RequireFromString(wager)
	require.NoError(t, store.Create(context.Background(), &model.Game{
		Id:            id,
		GameType:      "rps",
		Player1Wallet: player1,
		WagerAmount:   w,
		HouseFee:      escrow.HouseFee(w),
		EscrowAccount: escrow.DeriveAccount("rps", id),
		GameStatus:    model.GameWaiting,
		CreatedAt:     createdAt,
	}))
}

func join(wallet string, wager string) JoinRequest {
	w := decimal.RequireFromString(wager)
	return JoinRequest{Wallet: wallet, GameType: "rps", WagerAmount: &w}
}

func TestJoinMatchesLowerWaitingWager(t *testing.T) {
	store := ledgertest.NewStore(t)
	seed(t, store, "g1", "alice", "0.01", base)
	engine := NewEngine(store, notify.Noop{}, 3, testPolicy)

	result, err := engine.Join(context.Background(), join("bob", "0.05"))
	require.NoError(t, err)

	require.True(t, result.Matched)
	assert.Equal(t, "g1", result.GameId)
	assert.Equal(t, "0.01", result.WagerAmount.String())
	assert.Equal(t, escrow.DeriveAccount("rps", "g1"), result.EscrowAccount)

	game, err := store.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, model.GameMatched, game.GameStatus)
	assert.Equal(t, "bob", *game.Player2Wallet)
	assert.True(t, decimal.RequireFromString("0.01").Equal(game.WagerAmount))
}

func TestJoinUnmatched(t *testing.T) {
	store := ledgertest.NewStore(t)
	seed(t, store, "g1", "alice", "0.05", base)
	engine := NewEngine(store, notify.Noop{}, 3, testPolicy)

	result, err := engine.Join(context.Background(), join("bob", "0.01"))
	require.NoError(t, err)
	assert.False(t, result.Matched)

	result, err = engine.Join(context.Background(), join("alice", "1"))
	require.NoError(t, err)
	assert.False(t, result.Matched, "a wallet never joins its own game")
}

func TestJoinValidation(t *testing.T) {
	engine := NewEngine(ledgertest.NewStore(t), notify.Noop{}, 3, testPolicy)

	_, err := engine.Join(context.Background(), JoinRequest{Wallet: "bob", GameType: "rps"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = engine.Join(context.Background(), join("", "0.01"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = engine.Join(context.Background(), join("bob", "-0.01"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestJoinStormMatchesExactlyOnce(t *testing.T) {
	store := ledgertest.NewStore(t)
	seed(t, store, "g1", "alice", "0.01", base)
	engine := NewEngine(store, notify.Noop{}, 3, testPolicy)

	const joiners = 25
	results := make([]*Result, joiners)
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := engine.Join(context.Background(), join(fmt.Sprintf("joiner-%d", i), "0.01"))
			if assert.NoError(t, err) {
				results[i] = r
			}
		}(i)
	}
	wg.Wait()

	matched := 0
	var winner string
	for i, r := range results {
		if r != nil && r.Matched {
			matched++
			winner = fmt.Sprintf("joiner-%d", i)
		}
	}
	assert.Equal(t, 1, matched)

	game, err := store.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, winner, *game.Player2Wallet)
}

// stealingStore lets a competitor claim the first candidate handed out.
type stealingStore struct {
	ledger.Store
	once sync.Once
}

func (s *stealingStore) FindCandidateWaitingGame(ctx context.Context, gameType string, maxAmount decimal.Decimal, excludeWallet string) (*model.Game, error) {
	game, err := s.Store.FindCandidateWaitingGame(ctx, gameType, maxAmount, excludeWallet)
	if game != nil {
		s.once.Do(func() {
			_ = s.Store.ConditionalUpdate(ctx, game.Id, ledger.Guard{Unset: []string{"player2_wallet"}},
				map[string]any{"player2_wallet": "competitor", "game_status": model.GameMatched})
		})
	}
	return game, err
}

func TestJoinRetriesAfterLostRace(t *testing.T) {
	inner := ledgertest.NewStore(t)
	seed(t, inner, "best", "alice", "0.03", base)
	seed(t, inner, "next", "carol", "0.02", base)
	engine := NewEngine(&stealingStore{Store: inner}, notify.Noop{}, 3, testPolicy)

	result, err := engine.Join(context.Background(), join("bob", "0.05"))
	require.NoError(t, err)

	require.True(t, result.Matched)
	assert.Equal(t, "next", result.GameId)
}

func TestJoinGivesUpAfterMaxAttempts(t *testing.T) {
	inner := ledgertest.NewStore(t)
	seed(t, inner, "only", "alice", "0.03", base)
	engine := NewEngine(&stealingStore{Store: inner}, notify.Noop{}, 1, testPolicy)

	result, err := engine.Join(context.Background(), join("bob", "0.05"))
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

// staleCandidateStore keeps handing out the first candidate it found, the
// way a read can miss an update committed right after it.
type staleCandidateStore struct {
	ledger.Store
	mu        sync.Mutex
	candidate *model.Game
}

func (s *staleCandidateStore) FindCandidateWaitingGame(ctx context.Context, gameType string, maxAmount decimal.Decimal, excludeWallet string) (*model.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candidate != nil {
		stale := *s.candidate
		return &stale, nil
	}
	game, err := s.Store.FindCandidateWaitingGame(ctx, gameType, maxAmount, excludeWallet)
	s.candidate = game
	return game, err
}

func TestSameWalletJoinsMatchOnce(t *testing.T) {
	inner := ledgertest.NewStore(t)
	seed(t, inner, "g1", "alice", "0.01", base)
	engine := NewEngine(&staleCandidateStore{Store: inner}, notify.Noop{}, 3, testPolicy)

	first, err := engine.Join(context.Background(), join("bob", "0.01"))
	require.NoError(t, err)
	require.True(t, first.Matched)
	assert.Equal(t, "g1", first.GameId)

	second, err := engine.Join(context.Background(), join("bob", "0.01"))
	require.NoError(t, err)
	assert.False(t, second.Matched)
}

func TestSameWalletJoinStorm(t *testing.T) {
	inner := ledgertest.NewStore(t)
	seed(t, inner, "g1", "alice", "0.01", base)
	engine := NewEngine(&staleCandidateStore{Store: inner}, notify.Noop{}, 3, testPolicy)

	const joins = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	matched := 0
	for i := 0; i < joins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := engine.Join(context.Background(), join("bob", "0.01"))
			if assert.NoError(t, err) && r.Matched {
				mu.Lock()
				matched++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, matched)
}

// landedThenFailedStore applies the first update but reports a transient
// error, like a commit whose acknowledgement was lost.
type landedThenFailedStore struct {
	ledger.Store
	once sync.Once
}

func (s *landedThenFailedStore) ConditionalUpdate(ctx context.Context, id string, guard ledger.Guard, patch map[string]any) error {
	var lost bool
	s.once.Do(func() {
		lost = true
	})
	err := s.Store.ConditionalUpdate(ctx, id, guard, patch)
	if lost && err == nil {
		return errors.New("connection reset by peer")
	}
	return err
}

func TestJoinRecognizesOwnRetriedClaim(t *testing.T) {
	inner := ledgertest.NewStore(t)
	seed(t, inner, "g1", "alice", "0.01", base)
	engine := NewEngine(&landedThenFailedStore{Store: inner}, notify.Noop{}, 3, testPolicy)

	result, err := engine.Join(context.Background(), join("bob", "0.01"))
	require.NoError(t, err)
	require.True(t, result.Matched)
	assert.Equal(t, "g1", result.GameId)
}

func TestJoinOverHttp(t *testing.T) {
	store := ledgertest.NewStore(t)
	seed(t, store, "g1", "alice", "0.01", base)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router.Group("/escrow-api"), NewEngine(store, notify.Noop{}, 3, testPolicy))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/escrow-api/matchmaking/join",
		strings.NewReader(`{"wallet":"bob","gameType":"rps","wagerAmount":0.05}`))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"matched":true,"gameId":"g1","wagerAmount":"0.01","escrowAccount":"`+escrow.DeriveAccount("rps", "g1")+`"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/escrow-api/matchmaking/join", strings.NewReader(`{"wallet":"bob"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
