package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/apperr"
	"github.com/kollektive-hackathon/escrowplay-backend/internal/pkg/blockchain"
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

type fakeTransferer struct {
	mu          sync.Mutex
	calls       atomic.Int32
	queries     atomic.Int32
	transferErr error
	queryErr    error
	receipts    map[string]blockchain.Receipt
	amounts     []decimal.Decimal
	delay       time.Duration
}

func newFakeTransferer() *fakeTransferer {
	return &fakeTransferer{receipts: map[string]blockchain.Receipt{}}
}

func (f *fakeTransferer) Transfer(_ context.Context, escrowAccount string, _ string, amount decimal.Decimal) (blockchain.Receipt, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.amounts = append(f.amounts, amount)
	if f.transferErr != nil {
		return blockchain.Receipt{}, f.transferErr
	}
	receipt := blockchain.Receipt{Reference: fmt.Sprintf("tx-%s-%d", escrowAccount[:8], n)}
	f.receipts[escrowAccount] = receipt
	return receipt, nil
}

func (f *fakeTransferer) QueryReceipt(_ context.Context, escrowAccount string) (blockchain.Receipt, error) {
	f.queries.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return blockchain.Receipt{}, f.queryErr
	}
	if r, ok := f.receipts[escrowAccount]; ok {
		return r, nil
	}
	return blockchain.Receipt{}, apperr.ErrReceiptNotFound
}

func (f *fakeTransferer) set(fn func(f *fakeTransferer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// flakyStore fails settlement commits while failing is set.
type flakyStore struct {
	ledger.Store
	failing atomic.Bool
}

func (s *flakyStore) CompleteSettlement(ctx context.Context, settlement ledger.Settlement) error {
	if s.failing.Load() {
		return errors.New("database is locked")
	}
	return s.Store.CompleteSettlement(ctx, settlement)
}

type fixture struct {
	store       ledger.Store
	transferer  *fakeTransferer
	coordinator *Coordinator
	clock       *clock
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T, store ledger.Store) *fixture {
	if store == nil {
		store = ledgertest.NewStore(t)
	}
	transferer := newFakeTransferer()
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	coordinator := NewCoordinator(store, transferer, notify.Noop{}, Options{ClaimTTL: 15 * time.Minute, LedgerRetry: testPolicy})
	coordinator.now = c.Now
	return &fixture{store: store, transferer: transferer, coordinator: coordinator, clock: c}
}

func (f *fixture) seedGame(t *testing.T, id string, status model.GameStatus, wager string) *model.Game {
	w := decimal.RequireFromString(wager)
	bob := "bob"
	p1, p2 := "deposit-alice", "deposit-bob"
	game := &model.Game{
		Id:                    id,
		GameType:              "rps",
		Player1Wallet:         "alice",
		Player2Wallet:         &bob,
		WagerAmount:           w,
		HouseFee:              escrow.HouseFee(w),
		EscrowAccount:         escrow.DeriveAccount("rps", id),
		GameStatus:            status,
		Player1DepositReceipt: &p1,
		Player2DepositReceipt: &p2,
	}
	if status == model.GameWaiting || status == model.GameCancelled {
		game.Player2Wallet = nil
		game.Player2DepositReceipt = nil
	}
	require.NoError(t, f.store.Create(context.Background(), game))
	return game
}

func TestResolvePaysWinner(t *testing.T) {
	f := newFixture(t, nil)
	f.seedGame(t, "g1", model.GameActive, "0.01")

	result, err := f.coordinator.Resolve(context.Background(), "g1", "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", result.WinnerWallet)
	assert.Equal(t, "0.0194", result.WinnerAmount.String())
	assert.False(t, result.Pending)
	assert.NotEmpty(t, result.Receipt)
	assert.Equal(t, int32(1), f.transferer.calls.Load())
	assert.Equal(t, "0.0194", f.transferer.amounts[0].String())

	game, err := f.store.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, model.GameCompleted, game.GameStatus)
	assert.Equal(t, "alice", *game.WinnerWallet)
	assert.Equal(t, result.Receipt, *game.ResolutionReceipt)
	assert.NotNil(t, game.CompletedAt)

	winner, err := f.store.GetPlayer(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), winner.GamesWon)
	assert.Equal(t, "0.0194", winner.TotalEarnings.String())

	loser, err := f.store.GetPlayer(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), loser.GamesWon)
	assert.Equal(t, "-0.01", loser.TotalEarnings.String())

	record, err := f.store.GetSettlement(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, result.Receipt, record.Receipt)
}

// transferAwareNotifier records how many transfers had been made at each
// notification.
type transferAwareNotifier struct {
	transferer *fakeTransferer
	mu         sync.Mutex
	seen       []int32
}

func (n *transferAwareNotifier) GameUpdated(context.Context, model.Game) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, n.transferer.calls.Load())
}

func TestResolveNotifiesOnlyAfterTransfer(t *testing.T) {
	f := newFixture(t, nil)
	f.seedGame(t, "g1", model.GameActive, "0.01")
	notifier := &transferAwareNotifier{transferer: f.transferer}
	f.coordinator.notifier = notifier

	_, err := f.coordinator.Resolve(context.Background(), "g1", "alice")
	require.NoError(t, err)

	require.NotEmpty(t, notifier.seen)
	for _, calls := range notifier.seen {
		assert.Equal(t, int32(1), calls)
	}
}

func TestResolveAmbiguousNotifiesAfterTransfer(t *testing.T) {
	f := newFixture(t, nil)
	f.seedGame(t, "g1", model.GameActive, "0.01")
	f.transferer.set(func(f *fakeTransferer) {
		f.transferErr = apperr.TransferOutcomeUnknown(context.DeadlineExceeded)
	})
	notifier := &transferAwareNotifier{transferer: f.transferer}
	f.coordinator.notifier = notifier

	_, err := f.coordinator.Resolve(context.Background(), "g1", "alice")
	require.ErrorIs(t, err, apperr.ErrTransferOutcomeUnknown)

	require.Len(t, notifier.seen, 1)
	assert.Equal(t, int32(1), notifier.seen[0])
}

func TestResolveMatchedGame(t *testing.T) {
	f := newFixture(t, nil)
	f.seedGame(t, "g1", model.GameMatched, "1")

	result, err := f.coordinator.Resolve(context.Background(), "g1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "1.94", result.WinnerAmount.String())
}

func TestResolveTwiceReturnsExistingResult(t *testing.T) {
	f := newFixture(t, nil)
	f.seedGame(t, "g1", model.GameActive, "0.01")

	first, err := f.coordinator.Resolve(context.Background(), "g1", "alice")
	require.NoError(t, err)

	second, err := f.coordinator.Resolve(context.Background(), "g1", "bob")
	require.ErrorIs(t, err, apperr.ErrAlreadySettled)
	assert.Equal(t, first.Receipt, second.Receipt)
	assert.Equal(t, "alice", second.WinnerWallet)

	domainErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, first.Receipt, domainErr.Metadata["receipt"])
	assert.Equal(t, int32(1), f.transferer.calls.Load())
}

func TestConcurrentResolveTransfersOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.seedGame(t, "g1", model.GameActive, "0.01")
	f.transferer.delay = 20 * time.Millisecond

	const callers = 8
	var wg sync.WaitGroup
	var successes atomic.Int32
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			winner := "alice"
			if i%2 == 1 {
				winner = "bob"
			}
			_, err := f.coordinator.Resolve(context.Background(), "g1", winner)
			if err == nil {
				successes.Add(1)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(1), f.transferer.calls.Load())
	for _, err := range errs {
		if err != nil {
			assert.True(t, errors.Is(err, apperr.ErrAlreadyResolving) || errors.Is(err, apperr.ErrAlreadySettled), err.Error())
		}
	}

	winner, err := f.store.GetPlayer(context.Background(), "alice")
	bob, bobErr := f.store.GetPlayer(context.Background(), "bob")
	require.NoError(t, err)
	require.NoError(t, bobErr)
	assert.Equal(t, int64(1), winner.GamesWon+bob.GamesWon)
}

func TestResolveIneligibleGames(t *testing.T) {
	f := newFixture(t, nil)
	f.seedGame(t, "cancelled", model.GameCancelled, "0.01")
	f.seedGame(t, "waiting", model.GameWaiting, "0.01")

	_, err := f.coordinator.Resolve(context.Background(), "cancelled", "alice")
	assert.ErrorIs(t, err, apperr.ErrIneligibleState)

	_, err = f.coordinator.Resolve(context.Background(), "waiting", "alice")
	assert.ErrorIs(t, err, apperr.ErrIneligibleState)

	_, err = f.coordinator.Resolve(context.Background(), "missing", "alice")
	assert.ErrorIs(t, err, apperr.ErrGameNotFound)

	assert.Equal(t, int32(0), f.transferer.calls.Load())
}

func TestResolveRejectsOutsider(t *testing.T) {
	f := newFixture(t, nil)
	f.seedGame(t, "g1", model.GameActive, "0.01")

	_, err := f.coordinator.Resolve(context.Background(), "g1", "mallory")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, int32(0), f.transferer.calls.Load())

	game, err := f.store.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, model.GameActive, game.GameStatus)
}

func TestDefiniteTransferFailureReleasesClaim(t *testing.T) {
	f := newFixture(t, nil)
	f.seedGame(t, "g1", model.GameMatched, "0.01")
	f.transferer.set(func(f *fakeTransferer) {
		f.transferErr = apperr.TransferFailed(errors.New("insufficient escrow balance"))
	})

	_, err := f.coordinator.Resolve(context.Background(), "g1", "alice")
	require.ErrorIs(t, err, apperr.ErrTransferFailed)

	game, err := f.store.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, model.GameMatched, game.GameStatus)
	assert.Nil(t, game.ClaimId)
	assert.Nil(t, game.ClaimedFrom)

	f.transferer.set(func(f *fakeTransferer) { f.transferErr = nil })
	result, err := f.coordinator.Resolve(context.Background(), "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", result.WinnerWallet)
	assert.Equal(t, int32(2), f.transferer.calls.Load())
}

func TestAmbiguousTransferResolvedByReceipt(t *testing.T) {
	f := newFixture(t, nil)
	game := f.seedGame(t, "g1", model.GameActive, "0.01")
	f.transferer.set(func(f *fakeTransferer) {
		f.transferErr = apperr.TransferOutcomeUnknown(context.DeadlineExceeded)
		f.receipts[game.EscrowAccount] = blockchain.Receipt{Reference: "tx-landed"}
	})

	result, err := f.coordinator.Resolve(context.Background(), "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "tx-landed", result.Receipt)

	stored, err := f.store.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, model.GameCompleted, stored.GameStatus)
	assert.Equal(t, int32(1), f.transferer.calls.Load())
}

func TestAmbiguousTransferKeepsClaimUntilStale(t *testing.T) {
	f := newFixture(t, nil)
	f.seedGame(t, "g1", model.GameActive, "0.01")
	f.transferer.set(func(f *fakeTransferer) {
		f.transferErr = apperr.TransferOutcomeUnknown(context.DeadlineExceeded)
	})

	_, err := f.coordinator.Resolve(context.Background(), "g1", "alice")
	require.ErrorIs(t, err, apperr.ErrTransferOutcomeUnknown)

	game, err := f.store.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, model.GameResolving, game.GameStatus)

	_, err = f.coordinator.Resolve(context.Background(), "g1", "alice")
	assert.ErrorIs(t, err, apperr.ErrAlreadyResolving)

	_, err = f.coordinator.Reconcile(context.Background(), "g1")
	assert.ErrorIs(t, err, apperr.ErrAlreadyResolving)
	assert.Equal(t, int32(1), f.transferer.calls.Load())

	f.clock.Advance(16 * time.Minute)
	recovered, err := f.coordinator.Reconcile(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, model.GameActive, recovered.GameStatus)
	assert.Nil(t, recovered.ClaimId)
	assert.Equal(t, int32(1), f.transferer.calls.Load())

	f.transferer.set(func(f *fakeTransferer) { f.transferErr = nil })
	result, err := f.coordinator.Resolve(context.Background(), "g1", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", result.WinnerWallet)
}

func TestStaleClaimWithLandedPayoutCompletes(t *testing.T) {
	f := newFixture(t, nil)
	game := f.seedGame(t, "g1", model.GameActive, "0.01")
	f.transferer.set(func(f *fakeTransferer) {
		f.transferErr = apperr.TransferOutcomeUnknown(context.DeadlineExceeded)
		f.queryErr = errors.New("access node unavailable")
	})

	_, err := f.coordinator.Resolve(context.Background(), "g1", "bob")
	require.ErrorIs(t, err, apperr.ErrTransferOutcomeUnknown)

	f.transferer.set(func(f *fakeTransferer) {
		f.queryErr = nil
		f.receipts[game.EscrowAccount] = blockchain.Receipt{Reference: "tx-late"}
	})
	f.clock.Advance(time.Hour)

	result, err := f.coordinator.Resolve(context.Background(), "g1", "alice")
	require.ErrorIs(t, err, apperr.ErrAlreadySettled)
	assert.Equal(t, "bob", result.WinnerWallet)
	assert.Equal(t, "tx-late", result.Receipt)
	assert.Equal(t, int32(1), f.transferer.calls.Load())
}

func TestLedgerFailureAfterPayoutReconciles(t *testing.T) {
	store := &flakyStore{Store: ledgertest.NewStore(t)}
	store.failing.Store(true)
	f := newFixture(t, store)
	f.seedGame(t, "g1", model.GameActive, "0.01")

	result, err := f.coordinator.Resolve(context.Background(), "g1", "alice")
	require.NoError(t, err)
	assert.True(t, result.Pending)

	game, err := f.store.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, model.GameResolving, game.GameStatus)
	assert.Equal(t, result.Receipt, *game.ResolutionReceipt)

	_, err = f.coordinator.Resolve(context.Background(), "g1", "alice")
	assert.ErrorIs(t, err, apperr.ErrAlreadyResolving)

	store.failing.Store(false)
	reconciled, err := f.coordinator.Reconcile(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, model.GameCompleted, reconciled.GameStatus)
	assert.Equal(t, int32(1), f.transferer.calls.Load())
	assert.Equal(t, int32(0), f.transferer.queries.Load())

	_, err = f.coordinator.Reconcile(context.Background(), "g1")
	assert.ErrorIs(t, err, apperr.ErrAlreadySettled)

	winner, err := f.store.GetPlayer(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), winner.GamesWon)
	assert.Equal(t, "0.0194", winner.TotalEarnings.String())
}

func TestReconcileIneligible(t *testing.T) {
	f := newFixture(t, nil)
	f.seedGame(t, "g1", model.GameActive, "0.01")

	_, err := f.coordinator.Reconcile(context.Background(), "g1")
	assert.ErrorIs(t, err, apperr.ErrIneligibleState)
}
