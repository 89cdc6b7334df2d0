package storage

import (
	"context"

	"github.com/kylycht/coinsengine/model"
	"github.com/pkg/errors"
)

// ErrUnavailable is returned when the balance store
// cannot serve a request right now. Callers retry later.
var ErrUnavailable = errors.New("balance store unavailable")

// BalanceStore interface describes the
// authoritative source of account balances
type BalanceStore interface {
	// FetchBalances returns all account balances
	// held in the given currency
	FetchBalances(ctx context.Context, currencyID string) ([]model.BalanceEntry, error)
}

// Leaderboard interface describes read access
// to the published balance rankings
type Leaderboard interface {
	// SnapshotFor returns the latest ranking for the currency,
	// empty if none has been computed yet
	SnapshotFor(currencyID string) []model.BalanceEntry

	// PositionOf returns the 1-based rank of the account
	PositionOf(currencyID, accountID string) (int, bool)

	// Page returns the 1-based page of the ranking
	// and the total number of pages
	Page(currencyID string, page, perPage int) ([]model.BalanceEntry, int)
}
