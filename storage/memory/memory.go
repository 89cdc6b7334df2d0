package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/kylycht/coinsengine/model"
	"github.com/kylycht/coinsengine/storage"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Store keeps balances in memory. Useful for tests
// and single-node setups without a database.
type Store struct {
	lock     sync.RWMutex                          // guards balances and failures
	balances map[string]map[string]decimal.Decimal // currency -> account -> amount
	failures map[string]error                      // currency -> forced fetch error
}

func New() *Store {
	return &Store{
		balances: make(map[string]map[string]decimal.Decimal),
		failures: make(map[string]error),
	}
}

// Set stores the balance of an account.
func (s *Store) Set(currencyID, accountID string, amount decimal.Decimal) {
	currencyID = strings.ToLower(currencyID)

	s.lock.Lock()
	defer s.lock.Unlock()

	accounts, ok := s.balances[currencyID]
	if !ok {
		accounts = make(map[string]decimal.Decimal)
		s.balances[currencyID] = accounts
	}
	accounts[accountID] = amount
}

// Fail makes every fetch for the currency return err
// until it is called again with a nil error.
func (s *Store) Fail(currencyID string, err error) {
	currencyID = strings.ToLower(currencyID)

	s.lock.Lock()
	defer s.lock.Unlock()

	if err == nil {
		delete(s.failures, currencyID)
		return
	}
	s.failures[currencyID] = err
}

// FetchBalances implements storage.BalanceStore.
func (s *Store) FetchBalances(ctx context.Context, currencyID string) ([]model.BalanceEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(storage.ErrUnavailable, err.Error())
	}

	currencyID = strings.ToLower(currencyID)

	s.lock.RLock()
	defer s.lock.RUnlock()

	if err, failing := s.failures[currencyID]; failing {
		return nil, err
	}

	accounts := s.balances[currencyID]
	result := make([]model.BalanceEntry, 0, len(accounts))
	for accountID, amount := range accounts {
		result = append(result, model.BalanceEntry{AccountID: accountID, Amount: amount})
	}

	return result, nil
}
