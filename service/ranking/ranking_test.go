package ranking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kylycht/coinsengine/model"
	"github.com/kylycht/coinsengine/storage"
	"github.com/kylycht/coinsengine/storage/memory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	lock       sync.Mutex
	currencies []model.Currency
}

func (s *staticSource) ListAll() []model.Currency {
	s.lock.Lock()
	defer s.lock.Unlock()

	result := make([]model.Currency, len(s.currencies))
	copy(result, s.currencies)
	return result
}

func (s *staticSource) set(currencies ...model.Currency) {
	s.lock.Lock()
	s.currencies = currencies
	s.lock.Unlock()
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func ids(entries []model.BalanceEntry) []string {
	result := make([]string, len(entries))
	for i, e := range entries {
		result[i] = e.AccountID
	}
	return result
}

func assertSortedDescending(t *testing.T, entries []model.BalanceEntry) {
	t.Helper()
	for i := 1; i < len(entries); i++ {
		assert.True(t, entries[i-1].Amount.GreaterThanOrEqual(entries[i].Amount),
			"%s before %s", entries[i-1].Amount, entries[i].Amount)
	}
}

func TestRank_TieBreakByAccountID(t *testing.T) {
	gold := model.Currency{ID: "gold"}
	balances := []model.BalanceEntry{
		{AccountID: "alice", Amount: amount(50)},
		{AccountID: "carol", Amount: amount(100)},
		{AccountID: "bob", Amount: amount(100)},
	}

	ranked := Rank(gold, balances, 0)

	assert.Equal(t, []string{"bob", "carol", "alice"}, ids(ranked))
	assertSortedDescending(t, ranked)
	assert.Equal(t, "carol", balances[1].AccountID, "input must not be reordered")
}

func TestRank_NormalizesAndLimits(t *testing.T) {
	coins := model.Currency{ID: "coins"}
	balances := []model.BalanceEntry{
		{AccountID: "dave", Amount: decimal.RequireFromString("10.9")},
		{AccountID: "erin", Amount: decimal.RequireFromString("10.1")},
		{AccountID: "frank", Amount: decimal.RequireFromString("11")},
	}

	ranked := Rank(coins, balances, 2)

	require.Len(t, ranked, 2)
	assert.Equal(t, []string{"frank", "dave"}, ids(ranked))
	assert.True(t, amount(10).Equal(ranked[1].Amount))

	gems := model.Currency{ID: "gems", Decimal: true}
	ranked = Rank(gems, balances, 0)
	assert.Equal(t, []string{"frank", "dave", "erin"}, ids(ranked))
}

func TestService_Refresh(t *testing.T) {
	store := memory.New()
	store.Set("gold", "alice", amount(50))
	store.Set("gold", "bob", amount(100))
	store.Set("gold", "carol", amount(100))

	source := &staticSource{}
	source.set(model.Currency{ID: "gold"}, model.Currency{ID: "coins"})

	svc := New(source, store, Options{}, zerolog.Nop())

	assert.Empty(t, svc.SnapshotFor("gold"))
	_, ok := svc.LastRefresh("gold")
	assert.False(t, ok)

	svc.Refresh(context.Background())

	snap := svc.SnapshotFor("GOLD")
	assert.Equal(t, []string{"bob", "carol", "alice"}, ids(snap))
	assertSortedDescending(t, snap)

	// no balances yields an empty, present snapshot
	assert.Empty(t, svc.SnapshotFor("coins"))
	_, ok = svc.LastRefresh("coins")
	assert.True(t, ok)

	pos, ok := svc.PositionOf("gold", "alice")
	assert.True(t, ok)
	assert.Equal(t, 3, pos)

	_, ok = svc.PositionOf("gold", "nobody")
	assert.False(t, ok)
}

func TestService_SnapshotIsACopy(t *testing.T) {
	store := memory.New()
	store.Set("gold", "alice", amount(50))

	source := &staticSource{}
	source.set(model.Currency{ID: "gold"})

	svc := New(source, store, Options{}, zerolog.Nop())
	svc.Refresh(context.Background())

	snap := svc.SnapshotFor("gold")
	snap[0].AccountID = "mallory"

	assert.Equal(t, "alice", svc.SnapshotFor("gold")[0].AccountID)
}

func TestService_FailureKeepsPreviousSnapshot(t *testing.T) {
	store := memory.New()
	store.Set("gold", "alice", amount(50))
	store.Set("coins", "bob", amount(10))

	source := &staticSource{}
	source.set(model.Currency{ID: "gold"}, model.Currency{ID: "coins"})

	svc := New(source, store, Options{}, zerolog.Nop())
	svc.Refresh(context.Background())

	coinsBefore := svc.SnapshotFor("coins")
	coinsTakenAt, _ := svc.LastRefresh("coins")

	store.Fail("coins", storage.ErrUnavailable)
	store.Set("coins", "carol", amount(99))
	store.Set("gold", "dave", amount(70))

	svc.Refresh(context.Background())

	assert.Equal(t, coinsBefore, svc.SnapshotFor("coins"))
	takenAt, _ := svc.LastRefresh("coins")
	assert.Equal(t, coinsTakenAt, takenAt)
	assert.Equal(t, []string{"dave", "alice"}, ids(svc.SnapshotFor("gold")))

	store.Fail("coins", nil)
	svc.Refresh(context.Background())
	assert.Equal(t, []string{"carol", "bob"}, ids(svc.SnapshotFor("coins")))
}

func TestService_FailureWithoutPreviousSnapshot(t *testing.T) {
	store := memory.New()
	store.Fail("coins", storage.ErrUnavailable)

	source := &staticSource{}
	source.set(model.Currency{ID: "coins"})

	svc := New(source, store, Options{}, zerolog.Nop())
	svc.Refresh(context.Background())

	assert.Empty(t, svc.SnapshotFor("coins"))
	_, ok := svc.LastRefresh("coins")
	assert.False(t, ok)
}

func TestService_InterruptedCycleKeepsSnapshots(t *testing.T) {
	store := memory.New()
	store.Set("coins", "bob", amount(2))
	store.Set("gold", "alice", amount(5))

	source := &staticSource{}
	source.set(model.Currency{ID: "coins"}, model.Currency{ID: "gold"})

	svc := New(source, store, Options{Concurrency: 1}, zerolog.Nop())
	svc.Refresh(context.Background())
	require.Len(t, svc.SnapshotFor("coins"), 1)
	require.Len(t, svc.SnapshotFor("gold"), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Refresh(ctx)

	assert.Equal(t, []string{"bob"}, ids(svc.SnapshotFor("coins")))
	assert.Equal(t, []string{"alice"}, ids(svc.SnapshotFor("gold")))
}

func TestService_DropsUnregisteredCurrencies(t *testing.T) {
	store := memory.New()
	store.Set("gold", "alice", amount(50))

	source := &staticSource{}
	source.set(model.Currency{ID: "gold"})

	svc := New(source, store, Options{}, zerolog.Nop())
	svc.Refresh(context.Background())
	require.Len(t, svc.SnapshotFor("gold"), 1)

	source.set()
	svc.Refresh(context.Background())

	assert.Empty(t, svc.SnapshotFor("gold"))
	_, ok := svc.LastRefresh("gold")
	assert.False(t, ok)
}

func TestService_Page(t *testing.T) {
	store := memory.New()
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		store.Set("gold", id, amount(int64(100-i)))
	}

	source := &staticSource{}
	source.set(model.Currency{ID: "gold"})

	svc := New(source, store, Options{}, zerolog.Nop())
	svc.Refresh(context.Background())

	page, pages := svc.Page("gold", 1, 2)
	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"a", "b"}, ids(page))

	page, _ = svc.Page("gold", 3, 2)
	assert.Equal(t, []string{"e"}, ids(page))

	page, _ = svc.Page("gold", 42, 2)
	assert.Equal(t, []string{"e"}, ids(page))

	page, _ = svc.Page("gold", -1, 2)
	assert.Equal(t, []string{"a", "b"}, ids(page))

	page, pages = svc.Page("unknown", 1, 2)
	assert.Empty(t, page)
	assert.Zero(t, pages)
}

// blockingStore blocks every fetch until release is closed.
type blockingStore struct {
	started  chan string
	release  chan struct{}
	inflight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func newBlockingStore() *blockingStore {
	return &blockingStore{started: make(chan string, 16), release: make(chan struct{})}
}

func (b *blockingStore) FetchBalances(ctx context.Context, currencyID string) ([]model.BalanceEntry, error) {
	n := b.inflight.Add(1)
	defer b.inflight.Add(-1)
	for {
		seen := b.maxSeen.Load()
		if n <= seen || b.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	b.calls.Add(1)

	b.started <- currencyID
	<-b.release

	return []model.BalanceEntry{{AccountID: "alice", Amount: amount(1)}}, nil
}

func TestService_StopCompletesInflightCycle(t *testing.T) {
	store := newBlockingStore()
	source := &staticSource{}
	source.set(model.Currency{ID: "gold"})

	svc := New(source, store, Options{FetchTimeout: time.Minute}, zerolog.Nop())
	svc.Start(time.Hour)
	assert.True(t, svc.Running())

	<-store.started

	stopped := make(chan struct{})
	go func() {
		svc.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("stop returned before the in-flight cycle completed")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	<-stopped

	assert.False(t, svc.Running())
	assert.Len(t, svc.SnapshotFor("gold"), 1)

	// second stop is a no-op
	svc.Stop()
	assert.False(t, svc.Running())
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestService_CyclesNeverOverlap(t *testing.T) {
	store := newBlockingStore()
	source := &staticSource{}
	source.set(model.Currency{ID: "gold"})

	svc := New(source, store, Options{}, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Refresh(context.Background())
		}()
	}

	<-store.started
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	wg.Wait()

	assert.Equal(t, int32(1), store.maxSeen.Load())
	assert.Equal(t, int32(3), store.calls.Load())
}

func TestService_StartTwiceReplacesSchedule(t *testing.T) {
	store := memory.New()
	store.Set("gold", "alice", amount(1))

	source := &staticSource{}
	source.set(model.Currency{ID: "gold"})

	svc := New(source, store, Options{}, zerolog.Nop())
	svc.Start(10 * time.Millisecond)
	svc.Start(10 * time.Millisecond)
	assert.True(t, svc.Running())

	assert.Eventually(t, func() bool {
		return len(svc.SnapshotFor("gold")) == 1
	}, time.Second, 5*time.Millisecond)

	store.Set("gold", "bob", amount(2))
	assert.Eventually(t, func() bool {
		return len(svc.SnapshotFor("gold")) == 2
	}, time.Second, 5*time.Millisecond)

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.Running())
}

func TestService_ConcurrentReadsDuringRefresh(t *testing.T) {
	store := memory.New()
	for i := 0; i < 100; i++ {
		store.Set("gold", string(rune('a'+i%26))+string(rune('a'+i/26)), amount(int64(i%7)))
	}

	source := &staticSource{}
	source.set(model.Currency{ID: "gold"})

	svc := New(source, store, Options{}, zerolog.Nop())
	svc.Refresh(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			svc.Refresh(context.Background())
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
			snap := svc.SnapshotFor("gold")
			assert.Len(t, snap, 100)
			assertSortedDescending(t, snap)
		}
	}
}
