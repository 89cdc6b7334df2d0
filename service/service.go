package service

import (
	"github.com/kylycht/coinsengine/model"
)

// CommandFacade interface describes the collaborator
// that binds command aliases to currencies
type CommandFacade interface {
	// Wire binds aliases to the currency,
	// the first alias is canonical
	Wire(currency model.Currency, aliases []string) error

	// Unwire removes the command registered
	// under the canonical alias
	Unwire(canonicalAlias string)
}

// EconomyBridge interface describes the adapter
// exposing the primary currency to the host economy
type EconomyBridge interface {
	// Available reports whether the host
	// economy capability is present
	Available() bool

	// Activate bridges the currency
	Activate(currency model.Currency) error

	// Deactivate tears the bridge down
	Deactivate()
}

// DefinitionLoader interface describes the source
// of currency definitions
type DefinitionLoader interface {
	// ExtractDefaults seeds dir with bundled definitions
	// when it does not exist
	ExtractDefaults(dir string) error

	// LoadDir returns all well-formed definitions in dir
	LoadDir(dir string) ([]model.Currency, error)
}

// CurrencySource interface describes read
// access to the registered currencies
type CurrencySource interface {
	// ListAll returns a snapshot of all registered currencies
	ListAll() []model.Currency
}
