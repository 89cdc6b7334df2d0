package persistence

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"net"

	"github.com/kylycht/coinsengine/model"
	"github.com/kylycht/coinsengine/storage"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Persistence struct {
	dbConn *sql.DB
}

func New(dbConn *sql.DB) storage.BalanceStore {
	return &Persistence{
		dbConn: dbConn,
	}
}

// FetchBalances implements storage.BalanceStore.
func (p *Persistence) FetchBalances(ctx context.Context, currencyID string) ([]model.BalanceEntry, error) {
	fetchQuery := `SELECT account_id, amount 
				  FROM balances 
				  WHERE currency_id=$1`

	rows, err := p.dbConn.QueryContext(ctx, fetchQuery, currencyID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result := []model.BalanceEntry{}

	for rows.Next() {
		var (
			e      model.BalanceEntry
			amount string
		)

		if err := rows.Scan(&e.AccountID, &amount); err != nil {
			return nil, errors.Wrap(err, "scan balance row")
		}

		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrapf(err, "parse amount of account %s", e.AccountID)
		}

		result = append(result, e)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return result, nil
}

// classify maps connectivity failures to storage.ErrUnavailable
// and leaves query errors as they are.
func classify(err error) error {
	var (
		pqErr  *pq.Error
		netErr net.Error
	)

	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return errors.Wrap(storage.ErrUnavailable, err.Error())
	case errors.As(err, &pqErr):
		// class 08: connection exception, class 57: operator intervention
		if c := pqErr.Code.Class(); c == "08" || c == "57" {
			return errors.Wrap(storage.ErrUnavailable, pqErr.Message)
		}
	}

	return errors.Wrap(err, "query balances")
}
