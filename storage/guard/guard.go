package guard

import (
	"context"
	"time"

	"github.com/eapache/go-resiliency/breaker"
	"github.com/kylycht/coinsengine/model"
	"github.com/kylycht/coinsengine/storage"
	"github.com/pkg/errors"
)

// Guard trips a circuit breaker after repeated unavailability of the
// wrapped store so refresh cycles stop hammering a store that is down.
type Guard struct {
	store   storage.BalanceStore
	breaker *breaker.Breaker
}

// New wraps store. errorThreshold consecutive unavailable errors open the
// breaker, which stays open for timeout and closes again after
// successThreshold successful fetches.
func New(store storage.BalanceStore, errorThreshold, successThreshold int, timeout time.Duration) *Guard {
	if errorThreshold <= 0 {
		errorThreshold = 3
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Guard{
		store:   store,
		breaker: breaker.New(errorThreshold, successThreshold, timeout),
	}
}

// FetchBalances implements storage.BalanceStore.
func (g *Guard) FetchBalances(ctx context.Context, currencyID string) ([]model.BalanceEntry, error) {
	var (
		result   []model.BalanceEntry
		queryErr error
	)

	err := g.breaker.Run(func() error {
		entries, err := g.store.FetchBalances(ctx, currencyID)
		if errors.Is(err, storage.ErrUnavailable) {
			return err
		}
		result, queryErr = entries, err
		return nil
	})

	switch {
	case errors.Is(err, breaker.ErrBreakerOpen):
		return nil, errors.Wrap(storage.ErrUnavailable, err.Error())
	case err != nil:
		return nil, err
	}

	return result, queryErr
}
