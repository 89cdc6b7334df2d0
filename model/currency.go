package model

import (
	"github.com/shopspring/decimal"
)

// Placeholder tokens understood by external formatters
const (
	PlaceholderAmount         = "%amount%"
	PlaceholderCurrencyID     = "%currency_id%"
	PlaceholderCurrencyName   = "%currency_name%"
	PlaceholderCurrencySymbol = "%currency_symbol%"

	// DefaultFormat renders the amount followed by the symbol
	DefaultFormat = PlaceholderAmount + PlaceholderCurrencySymbol
)

// Currency holds information
// on a registered currency
type Currency struct {
	ID                 string          // lower-case unique identifier
	Name               string          // display name
	Symbol             string          // display symbol
	Format             string          // render template, see Placeholder* tokens
	CommandAliases     []string        // first alias is canonical
	Decimal            bool            // fractional balances allowed
	PermissionRequired bool            // use is permission gated
	TransferAllowed    bool            // peer-to-peer transfers allowed
	StartValue         decimal.Decimal // balance of new accounts
	MaxValue           decimal.Decimal // zero means unbounded
	PrimaryEconomy     bool            // bridged to the host economy
}

// CanonicalAlias returns the first command alias
// or the id when no alias is set.
func (c Currency) CanonicalAlias() string {
	if len(c.CommandAliases) == 0 {
		return c.ID
	}
	return c.CommandAliases[0]
}

// Unbounded reports whether balances have no upper limit.
func (c Currency) Unbounded() bool {
	return !c.MaxValue.IsPositive()
}

// Normalize maps amount into the currency's numeric domain:
// integral currencies drop the fractional part.
func (c Currency) Normalize(amount decimal.Decimal) decimal.Decimal {
	if c.Decimal {
		return amount
	}
	return amount.Truncate(0)
}

// Clamp normalizes amount and keeps it within [0, MaxValue].
func (c Currency) Clamp(amount decimal.Decimal) decimal.Decimal {
	amount = c.Normalize(amount)
	if amount.IsNegative() {
		return decimal.Zero
	}
	if !c.Unbounded() && amount.GreaterThan(c.MaxValue) {
		return c.MaxValue
	}
	return amount
}

// Placeholders returns the currency tokens and their values.
func (c Currency) Placeholders() map[string]string {
	return map[string]string{
		PlaceholderCurrencyID:     c.ID,
		PlaceholderCurrencyName:   c.Name,
		PlaceholderCurrencySymbol: c.Symbol,
	}
}

// Clone returns a copy that shares no slices with c.
func (c Currency) Clone() Currency {
	aliases := make([]string, len(c.CommandAliases))
	copy(aliases, c.CommandAliases)
	c.CommandAliases = aliases
	return c
}

// BalanceEntry holds a single account balance
// for a currency
type BalanceEntry struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}
