package registry

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kylycht/coinsengine/model"
	"github.com/kylycht/coinsengine/service"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrPrimaryConflict is returned in strict mode when a second
	// primary economy currency is registered.
	ErrPrimaryConflict = errors.New("primary economy currency already registered")

	// ErrCapabilityMissing is logged when a primary economy currency
	// exists but the host economy is not available.
	ErrCapabilityMissing = errors.New("primary economy currency found, but host economy is not available")

	// ErrInvalidID is returned when registering a currency without id.
	ErrInvalidID = errors.New("currency id is empty")
)

// Options tune the registry behaviour.
type Options struct {
	Dir             string   // currency definitions directory
	ExtractDefaults bool     // seed Dir with bundled definitions when missing
	StrictPrimary   bool     // reject a second primary economy currency
	ShortcutAliases []string // wired to the bridged currency, first is canonical
}

// state is replaced wholesale on every mutation.
type state struct {
	currencies map[string]model.Currency // id -> definition
	candidates map[string]struct{}       // ids whose definition asks to be primary
	primary    string                    // id of the primary economy currency
}

// Registry owns the registered currencies. Reads are lock free,
// mutations are serialised and publish a new state.
type Registry struct {
	lock     sync.Mutex // serialises mutators
	current  atomic.Pointer[state]
	bridging bool   // set by OnLoad, bridge follows the primary currency
	bridged  string // id of the currency held by the bridge
	loader   service.DefinitionLoader
	commands service.CommandFacade
	bridge   service.EconomyBridge
	opts     Options
	log      zerolog.Logger
}

// New creates an empty registry. commands and bridge may be nil.
func New(loader service.DefinitionLoader, commands service.CommandFacade, bridge service.EconomyBridge, opts Options, log zerolog.Logger) *Registry {
	if commands == nil {
		commands = nopCommands{}
	}

	r := &Registry{
		loader:   loader,
		commands: commands,
		bridge:   bridge,
		opts:     opts,
		log:      log.With().Str("component", "registry").Logger(),
	}
	r.current.Store(emptyState())

	return r
}

// Register inserts or replaces the currency under its id. A replaced
// currency is logged. When the currency is flagged primary and another
// one already is, the new one wins unless Options.StrictPrimary is set;
// the displaced currency loses its flag.
func (r *Registry) Register(c model.Currency) error {
	c = c.Clone()
	c.ID = strings.ToLower(strings.TrimSpace(c.ID))
	if c.ID == "" {
		return ErrInvalidID
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	cur := r.current.Load()
	next := cur.clone()

	if c.PrimaryEconomy && cur.primary != "" && cur.primary != c.ID {
		if r.opts.StrictPrimary {
			return errors.Wrapf(ErrPrimaryConflict, "%s conflicts with %s", c.ID, cur.primary)
		}
		r.log.Warn().Str("currency", c.ID).Str("displaced", cur.primary).Msg("primary economy currency replaced")
	}

	old, exists := cur.currencies[c.ID]
	next.currencies[c.ID] = c

	switch {
	case c.PrimaryEconomy:
		next.candidates[c.ID] = struct{}{}
		next.promote(c.ID)
	case cur.primary == c.ID:
		delete(next.candidates, c.ID)
		next.primary = ""
		next.promote(next.fallbackPrimary())
	default:
		delete(next.candidates, c.ID)
	}

	r.current.Store(next)

	if exists {
		r.log.Warn().Str("currency", c.ID).Msg("currency already registered, definition overwritten")
		r.commands.Unwire(old.CanonicalAlias())
	}

	if err := r.commands.Wire(c.Clone(), c.CommandAliases); err != nil {
		r.log.Error().Err(err).Str("currency", c.ID).Msg("unable to wire currency commands")
	}

	r.syncBridge(next, exists && r.bridged == c.ID)

	r.log.Info().Str("currency", c.ID).Msg("currency registered")
	return nil
}

// Unregister removes the currency. It returns false when id is unknown.
func (r *Registry) Unregister(id string) bool {
	id = strings.ToLower(id)

	r.lock.Lock()
	defer r.lock.Unlock()

	cur := r.current.Load()

	old, exists := cur.currencies[id]
	if !exists {
		return false
	}

	next := cur.clone()
	delete(next.currencies, id)
	delete(next.candidates, id)
	if next.primary == id {
		next.primary = ""
		next.promote(next.fallbackPrimary())
	}

	r.current.Store(next)
	r.syncBridge(next, false)

	r.commands.Unwire(old.CanonicalAlias())
	r.log.Info().Str("currency", id).Msg("currency unregistered")

	return true
}

// Lookup returns the currency registered under id, case-insensitively.
func (r *Registry) Lookup(id string) (model.Currency, bool) {
	c, ok := r.current.Load().currencies[strings.ToLower(id)]
	if !ok {
		return model.Currency{}, false
	}
	return c.Clone(), true
}

// ListAll implements service.CurrencySource. Order is unspecified.
func (r *Registry) ListAll() []model.Currency {
	currencies := r.current.Load().currencies

	result := make([]model.Currency, 0, len(currencies))
	for _, c := range currencies {
		result = append(result, c.Clone())
	}

	return result
}

// FindPrimaryEconomy returns the primary economy currency, if any.
func (r *Registry) FindPrimaryEconomy() (model.Currency, bool) {
	s := r.current.Load()
	if s.primary == "" {
		return model.Currency{}, false
	}
	return s.currencies[s.primary].Clone(), true
}

// Len returns the number of registered currencies.
func (r *Registry) Len() int {
	return len(r.current.Load().currencies)
}

// OnLoad registers every currency found in Options.Dir and bridges the
// primary economy currency. Failures are logged and never fatal.
func (r *Registry) OnLoad() {
	if r.opts.ExtractDefaults {
		if err := r.loader.ExtractDefaults(r.opts.Dir); err != nil {
			r.log.Error().Err(err).Str("dir", r.opts.Dir).Msg("unable to extract default currencies")
		}
	}

	currencies, err := r.loader.LoadDir(r.opts.Dir)
	if err != nil {
		r.log.Error().Err(err).Str("dir", r.opts.Dir).Msg("unable to load currencies")
	}

	for _, c := range currencies {
		if err := r.Register(c); err != nil {
			r.log.Error().Err(err).Str("currency", c.ID).Msg("currency skipped")
		}
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.bridging = true
	r.syncBridge(r.current.Load(), false)
}

// OnShutdown deactivates the bridge, unwires every currency and clears the registry.
func (r *Registry) OnShutdown() {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.deactivateBridge()
	r.bridging = false

	for _, c := range r.current.Load().currencies {
		r.commands.Unwire(c.CanonicalAlias())
	}

	r.current.Store(emptyState())
	r.log.Info().Msg("registry cleared")
}

// syncBridge points the bridge at the primary currency of s. force
// re-activates it even when the bridged currency is unchanged, for
// overwritten definitions. Must be called with r.lock held.
func (r *Registry) syncBridge(s *state, force bool) {
	if !r.bridging || (r.bridged == s.primary && !force) {
		return
	}

	r.deactivateBridge()

	if s.primary == "" {
		return
	}

	primary := s.currencies[s.primary].Clone()

	if r.bridge == nil || !r.bridge.Available() {
		r.log.Error().Err(ErrCapabilityMissing).Str("currency", primary.ID).Msg("economy bridge disabled")
		return
	}

	if err := r.bridge.Activate(primary); err != nil {
		r.log.Error().Err(err).Str("currency", primary.ID).Msg("unable to activate economy bridge")
		return
	}
	r.bridged = primary.ID

	if len(r.opts.ShortcutAliases) == 0 {
		return
	}

	if err := r.commands.Wire(primary, r.opts.ShortcutAliases); err != nil {
		r.log.Error().Err(err).Str("currency", primary.ID).Msg("unable to wire economy shortcuts")
	}
}

// deactivateBridge must be called with r.lock held.
func (r *Registry) deactivateBridge() {
	if r.bridged == "" {
		return
	}

	if len(r.opts.ShortcutAliases) > 0 {
		r.commands.Unwire(r.opts.ShortcutAliases[0])
	}
	if r.bridge != nil {
		r.bridge.Deactivate()
	}
	r.bridged = ""
}

func emptyState() *state {
	return &state{
		currencies: map[string]model.Currency{},
		candidates: map[string]struct{}{},
	}
}

func (s *state) clone() *state {
	next := &state{
		currencies: make(map[string]model.Currency, len(s.currencies)+1),
		candidates: make(map[string]struct{}, len(s.candidates)+1),
		primary:    s.primary,
	}
	for id, c := range s.currencies {
		next.currencies[id] = c
	}
	for id := range s.candidates {
		next.candidates[id] = struct{}{}
	}
	return next
}

// promote makes id the only currency carrying the primary flag.
// An empty id leaves the registry without primary currency.
func (s *state) promote(id string) {
	if prev, ok := s.currencies[s.primary]; ok && s.primary != id {
		prev.PrimaryEconomy = false
		s.currencies[s.primary] = prev
	}

	s.primary = id
	if c, ok := s.currencies[id]; ok {
		c.PrimaryEconomy = true
		s.currencies[id] = c
	}
}

// fallbackPrimary picks the candidate with the smallest id.
func (s *state) fallbackPrimary() string {
	ids := make([]string, 0, len(s.candidates))
	for id := range s.candidates {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	return ids[0]
}

type nopCommands struct{}

func (nopCommands) Wire(model.Currency, []string) error { return nil }
func (nopCommands) Unwire(string)                       {}
