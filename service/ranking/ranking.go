package ranking

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kylycht/coinsengine/model"
	"github.com/kylycht/coinsengine/service"
	"github.com/kylycht/coinsengine/storage"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	defaultInterval     = time.Minute
	defaultConcurrency  = 4
	defaultFetchTimeout = 10 * time.Second
)

// Options tune refresh cycles.
type Options struct {
	Limit        int           // entries kept per snapshot, 0 keeps all
	Concurrency  int64         // currencies fetched in parallel
	FetchTimeout time.Duration // per currency fetch timeout
}

// snapshot is immutable once published.
type snapshot struct {
	entries  []model.BalanceEntry
	position map[string]int // account id -> 1-based rank
	takenAt  time.Time
}

// Service periodically ranks account balances of every registered
// currency. Each currency's snapshot is replaced wholesale, readers
// never observe a partially written ranking.
type Service struct {
	snapshots  sync.Map   // currency id -> *snapshot
	cycleLock  sync.Mutex // one refresh cycle at a time
	lock       sync.Mutex // guards doneC and finishedC
	doneC      chan struct{}
	finishedC  chan struct{}
	currencies service.CurrencySource
	store      storage.BalanceStore
	opts       Options
	log        zerolog.Logger
	now        func() time.Time
}

func New(currencies service.CurrencySource, store storage.BalanceStore, opts Options, log zerolog.Logger) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}

	return &Service{
		currencies: currencies,
		store:      store,
		opts:       opts,
		log:        log.With().Str("component", "ranking").Logger(),
		now:        time.Now,
	}
}

// Start runs a refresh cycle right away and then every interval.
// Calling Start again replaces the running schedule.
func (s *Service) Start(interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.stop()

	doneC := make(chan struct{})
	finishedC := make(chan struct{})
	s.doneC, s.finishedC = doneC, finishedC

	ticker := time.NewTicker(interval)

	go func() {
		defer close(finishedC)
		defer ticker.Stop()

		s.Refresh(context.Background())

		for {
			select {
			case <-doneC:
				return

			case <-ticker.C:
				select {
				case <-doneC:
					return
				default:
				}
				s.Refresh(context.Background())
			}
		}
	}()

	s.log.Info().Dur("interval", interval).Msg("balance ranking started")
}

// Stop halts future cycles. A cycle in progress completes
// before Stop returns. Stopping twice is a no-op.
func (s *Service) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.stop() {
		s.log.Info().Msg("balance ranking stopped")
	}
}

// Running reports whether a schedule is active.
func (s *Service) Running() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.doneC != nil
}

// stop must be called with s.lock held.
func (s *Service) stop() bool {
	if s.doneC == nil {
		return false
	}

	close(s.doneC)
	<-s.finishedC
	s.doneC, s.finishedC = nil, nil

	return true
}

// Refresh runs one cycle: every registered currency is fetched, ranked
// and published. A failed fetch keeps that currency's previous snapshot.
func (s *Service) Refresh(ctx context.Context) {
	s.cycleLock.Lock()
	defer s.cycleLock.Unlock()

	var (
		currencies = s.currencies.ListAll()
		known      = make(map[string]struct{}, len(currencies))
		sem        = semaphore.NewWeighted(s.opts.Concurrency)
		wg         = sync.WaitGroup{}
	)

	for _, c := range currencies {
		known[c.ID] = struct{}{}
	}

	for _, c := range currencies {
		if err := sem.Acquire(ctx, 1); err != nil {
			s.log.Error().Err(err).Str("currency", c.ID).Msg("refresh cycle interrupted")
			break
		}

		wg.Add(1)
		go func(c model.Currency) {
			defer wg.Done()
			defer sem.Release(1)

			s.refreshCurrency(ctx, c)
		}(c)
	}

	wg.Wait()

	s.snapshots.Range(func(key, _ any) bool {
		if _, ok := known[key.(string)]; !ok {
			s.snapshots.Delete(key)
		}
		return true
	})

	s.log.Debug().Int("currencies", len(currencies)).Msg("refresh cycle completed")
}

func (s *Service) refreshCurrency(ctx context.Context, c model.Currency) {
	fetchCtx, cancelFn := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancelFn()

	balances, err := s.store.FetchBalances(fetchCtx, c.ID)
	if err != nil {
		s.log.Error().Err(err).Str("currency", c.ID).Msg("unable to fetch balances, keeping previous ranking")
		return
	}

	entries := Rank(c, balances, s.opts.Limit)

	position := make(map[string]int, len(entries))
	for i, e := range entries {
		position[e.AccountID] = i + 1
	}

	s.snapshots.Store(c.ID, &snapshot{entries: entries, position: position, takenAt: s.now()})
}

// Rank sorts balances descending by amount, equal amounts by account id
// ascending. Amounts are normalized to the currency's numeric domain.
// limit > 0 keeps only the top entries.
func Rank(c model.Currency, balances []model.BalanceEntry, limit int) []model.BalanceEntry {
	entries := make([]model.BalanceEntry, len(balances))
	for i, b := range balances {
		entries[i] = model.BalanceEntry{AccountID: b.AccountID, Amount: c.Normalize(b.Amount)}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if cmp := entries[i].Amount.Cmp(entries[j].Amount); cmp != 0 {
			return cmp > 0
		}
		return entries[i].AccountID < entries[j].AccountID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	return entries
}

func (s *Service) load(currencyID string) (*snapshot, bool) {
	v, ok := s.snapshots.Load(strings.ToLower(currencyID))
	if !ok {
		return nil, false
	}
	return v.(*snapshot), true
}

// SnapshotFor implements storage.Leaderboard.
func (s *Service) SnapshotFor(currencyID string) []model.BalanceEntry {
	snap, ok := s.load(currencyID)
	if !ok {
		return []model.BalanceEntry{}
	}

	result := make([]model.BalanceEntry, len(snap.entries))
	copy(result, snap.entries)

	return result
}

// PositionOf implements storage.Leaderboard.
func (s *Service) PositionOf(currencyID, accountID string) (int, bool) {
	snap, ok := s.load(currencyID)
	if !ok {
		return 0, false
	}

	pos, ok := snap.position[accountID]
	return pos, ok
}

// Page returns the 1-based page of the ranking and the number of pages.
// Out of range pages are clamped.
func (s *Service) Page(currencyID string, page, perPage int) ([]model.BalanceEntry, int) {
	entries := s.SnapshotFor(currencyID)
	if perPage <= 0 {
		perPage = 10
	}

	pages := (len(entries) + perPage - 1) / perPage
	if pages == 0 {
		return entries, 0
	}

	page = max(1, min(page, pages))
	from := (page - 1) * perPage
	to := min(from+perPage, len(entries))

	return entries[from:to], pages
}

// LastRefresh returns when the currency's snapshot was published.
func (s *Service) LastRefresh(currencyID string) (time.Time, bool) {
	snap, ok := s.load(currencyID)
	if !ok {
		return time.Time{}, false
	}
	return snap.takenAt, true
}
