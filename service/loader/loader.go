package loader

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kylycht/coinsengine/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ErrMalformed is returned for definitions that cannot be parsed or validated.
var ErrMalformed = errors.New("malformed currency definition")

//go:embed defaults/*.yml
var defaults embed.FS

// source mirrors a currency definition file.
// Pointers distinguish missing keys from zero values.
type source struct {
	Name               *string  `yaml:"Name"`
	Symbol             *string  `yaml:"Symbol"`
	Format             *string  `yaml:"Format"`
	CommandAliases     *string  `yaml:"Command_Aliases"`
	Decimal            bool     `yaml:"Decimal"`
	PermissionRequired bool     `yaml:"Permission_Required"`
	TransferAllowed    bool     `yaml:"Transfer_Allowed"`
	StartValue         *float64 `yaml:"Start_Value"`
	MaxValue           *float64 `yaml:"Max_Value"`
	Economy            struct {
		Vault bool `yaml:"Vault"`
	} `yaml:"Economy"`
}

// FromSource builds a currency from a raw definition. id is usually the
// source file name; it is lower-cased and becomes the currency id.
func FromSource(id string, raw []byte) (model.Currency, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return model.Currency{}, errors.Wrap(ErrMalformed, "empty id")
	}

	var src source
	if err := yaml.Unmarshal(raw, &src); err != nil {
		return model.Currency{}, errors.Wrapf(ErrMalformed, "%s: %v", id, err)
	}

	c := model.Currency{
		ID:                 id,
		Name:               valueOr(src.Name, capitalize(id)),
		Decimal:            src.Decimal,
		PermissionRequired: src.PermissionRequired,
		TransferAllowed:    src.TransferAllowed,
		PrimaryEconomy:     src.Economy.Vault,
		StartValue:         decimal.Zero,
		MaxValue:           decimal.Zero,
	}
	c.Symbol = valueOr(src.Symbol, c.Name)
	c.Format = valueOr(src.Format, model.DefaultFormat)
	c.CommandAliases = splitAliases(valueOr(src.CommandAliases, c.Name))

	if src.StartValue != nil {
		c.StartValue = decimal.NewFromFloat(*src.StartValue)
	}
	if src.MaxValue != nil {
		c.MaxValue = decimal.NewFromFloat(*src.MaxValue)
	}

	if err := validate(c); err != nil {
		return model.Currency{}, errors.Wrapf(ErrMalformed, "%s: %v", id, err)
	}

	return c, nil
}

func validate(c model.Currency) error {
	switch {
	case len(c.CommandAliases) == 0:
		return errors.New("no command aliases")
	case c.StartValue.IsNegative():
		return errors.New("negative start value")
	case c.MaxValue.IsNegative():
		return errors.New("negative max value")
	case !c.Unbounded() && c.StartValue.GreaterThan(c.MaxValue):
		return errors.New("start value exceeds max value")
	}
	return nil
}

func valueOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// capitalize turns "gold_coins" into "Gold Coins".
func capitalize(id string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(id, "_", " "))
}

// splitAliases lower-cases a comma separated list, dropping blanks and
// duplicates while keeping the first occurrence order.
func splitAliases(list string) []string {
	var (
		aliases []string
		seen    = make(map[string]struct{})
	)

	for _, a := range strings.Split(strings.ToLower(list), ",") {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		aliases = append(aliases, a)
	}

	return aliases
}

// Loader materializes currency definitions from a directory.
type Loader struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Loader {
	return &Loader{log: log.With().Str("component", "loader").Logger()}
}

// LoadDir parses every *.yml and *.yaml file in dir. Malformed files are
// logged and skipped. The result is sorted by id.
func (l *Loader) LoadDir(dir string) ([]model.Currency, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read currencies dir %s", dir)
	}

	var result []model.Currency

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())

		raw, err := os.ReadFile(path)
		if err != nil {
			l.log.Error().Err(err).Str("file", path).Msg("unable to read currency definition, skipping")
			continue
		}

		c, err := FromSource(strings.TrimSuffix(entry.Name(), ext), raw)
		if err != nil {
			l.log.Error().Err(err).Str("file", path).Msg("malformed currency definition, skipping")
			continue
		}

		l.log.Debug().Str("currency", c.ID).Str("file", path).Msg("loaded currency definition")
		result = append(result, c)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

// ExtractDefaults creates dir with the bundled currency definitions
// when it does not exist yet. An existing dir is left untouched.
func (l *Loader) ExtractDefaults(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "stat currencies dir %s", dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create currencies dir %s", dir)
	}

	files, err := fs.ReadDir(defaults, "defaults")
	if err != nil {
		return errors.Wrap(err, "read bundled currencies")
	}

	for _, f := range files {
		content, err := defaults.ReadFile("defaults/" + f.Name())
		if err != nil {
			return errors.Wrapf(err, "read bundled currency %s", f.Name())
		}

		if err := os.WriteFile(filepath.Join(dir, f.Name()), content, 0o644); err != nil {
			return errors.Wrapf(err, "write bundled currency %s", f.Name())
		}

		l.log.Info().Str("file", f.Name()).Msg("extracted default currency")
	}

	return nil
}
