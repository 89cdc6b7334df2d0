package leaderboard

import (
	"strings"
	"sync"

	"github.com/kylycht/coinsengine/model"
	"github.com/pkg/errors"
)

// ErrAliasTaken is returned when an alias is bound to another command.
var ErrAliasTaken = errors.New("alias already bound")

type command struct {
	currencyID string
	aliases    []string
}

// Aliases binds command aliases to currencies. It is the
// command facade the registry notifies on (un)registration.
type Aliases struct {
	lock     sync.RWMutex
	commands map[string]command // canonical alias -> command
	index    map[string]string  // alias -> canonical alias
}

func NewAliases() *Aliases {
	return &Aliases{
		commands: make(map[string]command),
		index:    make(map[string]string),
	}
}

// Wire binds aliases to the currency under a command named after the
// first alias, replacing a previous command of that name. Aliases owned
// by other commands are skipped and reported with ErrAliasTaken.
func (a *Aliases) Wire(currency model.Currency, aliases []string) error {
	if len(aliases) == 0 {
		return errors.Errorf("no aliases for currency %s", currency.ID)
	}

	canonical := strings.ToLower(aliases[0])

	a.lock.Lock()
	defer a.lock.Unlock()

	a.unwire(canonical)

	var (
		bound []string
		taken []string
	)

	for _, alias := range aliases {
		alias = strings.ToLower(alias)
		if owner, ok := a.index[alias]; ok && owner != canonical {
			taken = append(taken, alias)
			continue
		}
		a.index[alias] = canonical
		bound = append(bound, alias)
	}

	a.commands[canonical] = command{currencyID: currency.ID, aliases: bound}

	if len(taken) > 0 {
		return errors.Wrapf(ErrAliasTaken, "%s", strings.Join(taken, ","))
	}

	return nil
}

// Unwire removes the command registered under the canonical alias.
func (a *Aliases) Unwire(canonicalAlias string) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.unwire(strings.ToLower(canonicalAlias))
}

func (a *Aliases) unwire(canonical string) {
	cmd, ok := a.commands[canonical]
	if !ok {
		return
	}

	for _, alias := range cmd.aliases {
		if a.index[alias] == canonical {
			delete(a.index, alias)
		}
	}
	delete(a.commands, canonical)
}

// Resolve returns the id of the currency bound to alias.
func (a *Aliases) Resolve(alias string) (string, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	canonical, ok := a.index[strings.ToLower(alias)]
	if !ok {
		return "", false
	}
	return a.commands[canonical].currencyID, true
}
