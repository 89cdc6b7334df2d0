package economy

import (
	"sync"

	"github.com/kylycht/coinsengine/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrNotAvailable is returned by Activate when the host
// economy capability is not present.
var ErrNotAvailable = errors.New("host economy capability not available")

// Bridge exposes one currency to the host economy.
type Bridge struct {
	lock      sync.RWMutex
	available bool
	active    *model.Currency
	log       zerolog.Logger
}

// New creates a bridge. available reports whether the
// host economy capability is present.
func New(available bool, log zerolog.Logger) *Bridge {
	return &Bridge{
		available: available,
		log:       log.With().Str("component", "economy").Logger(),
	}
}

// Available implements service.EconomyBridge.
func (b *Bridge) Available() bool {
	return b.available
}

// Activate implements service.EconomyBridge.
func (b *Bridge) Activate(c model.Currency) error {
	if !b.available {
		return ErrNotAvailable
	}

	c = c.Clone()

	b.lock.Lock()
	b.active = &c
	b.lock.Unlock()

	b.log.Info().Str("currency", c.ID).Msg("economy bridge activated")
	return nil
}

// Deactivate implements service.EconomyBridge.
func (b *Bridge) Deactivate() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.active == nil {
		return
	}

	b.log.Info().Str("currency", b.active.ID).Msg("economy bridge deactivated")
	b.active = nil
}

// Active returns the bridged currency, if any.
func (b *Bridge) Active() (model.Currency, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if b.active == nil {
		return model.Currency{}, false
	}
	return b.active.Clone(), true
}
