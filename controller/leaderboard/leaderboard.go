package leaderboard

import (
	"net/http"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/kylycht/coinsengine/model"
	"github.com/kylycht/coinsengine/storage"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Currencies describes read access to the currency registry.
type Currencies interface {
	Lookup(id string) (model.Currency, bool)
	ListAll() []model.Currency
	FindPrimaryEconomy() (model.Currency, bool)
}

func New(currencies Currencies, ranking storage.Leaderboard, aliases *Aliases) *Leaderboard {
	return &Leaderboard{currencies: currencies, ranking: ranking, aliases: aliases}
}

type Leaderboard struct {
	currencies Currencies
	ranking    storage.Leaderboard
	aliases    *Aliases
}

type CurrencyView struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Symbol             string          `json:"symbol"`
	Format             string          `json:"format"`
	CommandAliases     []string        `json:"command_aliases"`
	Decimal            bool            `json:"decimal"`
	PermissionRequired bool            `json:"permission_required"`
	TransferAllowed    bool            `json:"transfer_allowed"`
	StartValue         decimal.Decimal `json:"start_value"`
	MaxValue           decimal.Decimal `json:"max_value"`
	PrimaryEconomy     bool            `json:"primary_economy"`
}

type RankView struct {
	Position  int             `json:"position"`
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type TopView struct {
	Currency string     `json:"currency"`
	Page     int        `json:"page"`
	Pages    int        `json:"pages"`
	Entries  []RankView `json:"entries"`
}

func toView(c model.Currency) CurrencyView {
	return CurrencyView{
		ID:                 c.ID,
		Name:               c.Name,
		Symbol:             c.Symbol,
		Format:             c.Format,
		CommandAliases:     c.CommandAliases,
		Decimal:            c.Decimal,
		PermissionRequired: c.PermissionRequired,
		TransferAllowed:    c.TransferAllowed,
		StartValue:         c.StartValue,
		MaxValue:           c.MaxValue,
		PrimaryEconomy:     c.PrimaryEconomy,
	}
}

// resolve looks the currency up by alias first, then by id.
func (l *Leaderboard) resolve(alias string) (model.Currency, bool) {
	if l.aliases != nil {
		if id, ok := l.aliases.Resolve(alias); ok {
			if c, found := l.currencies.Lookup(id); found {
				return c, true
			}
		}
	}
	return l.currencies.Lookup(alias)
}

// List godoc
//
//	@Summary		List currencies
//	@Tags			currencies
//	@Success		200	{array}	CurrencyView
//	@Router			/currencies [get]
func (l *Leaderboard) List(ctx *fiber.Ctx) error {
	currencies := l.currencies.ListAll()
	sort.Slice(currencies, func(i, j int) bool { return currencies[i].ID < currencies[j].ID })

	views := make([]CurrencyView, 0, len(currencies))
	for _, c := range currencies {
		views = append(views, toView(c))
	}

	return ctx.JSON(views)
}

// Get godoc
//
//	@Summary		Get currency by alias or id
//	@Tags			currencies
//	@Param			alias	path	string	true	"Currency alias or id" example(coins)
//	@Success		200	{object}	CurrencyView
//	@Failure		404	{string}	string "unknown currency: gold"
//	@Router			/currencies/{alias} [get]
func (l *Leaderboard) Get(ctx *fiber.Ctx) error {
	c, ok := l.resolve(ctx.Params("alias"))
	if !ok {
		return fiber.NewError(http.StatusNotFound, "unknown currency: "+ctx.Params("alias"))
	}

	return ctx.JSON(toView(c))
}

// Top godoc
//
//	@Summary		Ranking of top balances
//	@Tags			leaderboard
//	@Param			alias		path	string	true	"Currency alias or id" example(coins)
//	@Param			page		query	int		false	"Page, 1-based" example(1)
//	@Param			per_page	query	int		false	"Entries per page" example(10)
//	@Success		200	{object}	TopView
//	@Failure		404	{string}	string "unknown currency: gold"
//	@Router			/currencies/{alias}/top [get]
func (l *Leaderboard) Top(ctx *fiber.Ctx) error {
	c, ok := l.resolve(ctx.Params("alias"))
	if !ok {
		return fiber.NewError(http.StatusNotFound, "unknown currency: "+ctx.Params("alias"))
	}

	page := ctx.QueryInt("page", 1)
	perPage := ctx.QueryInt("per_page", 10)

	entries, pages := l.ranking.Page(c.ID, page, perPage)
	if perPage <= 0 {
		perPage = 10
	}
	page = max(1, min(page, pages))

	log.Debug().Str("currency", c.ID).Int("page", page).Int("pages", pages).Msg("serving ranking")

	view := TopView{Currency: c.ID, Page: page, Pages: pages, Entries: make([]RankView, 0, len(entries))}
	for i, e := range entries {
		view.Entries = append(view.Entries, RankView{
			Position:  (page-1)*perPage + i + 1,
			AccountID: e.AccountID,
			Amount:    e.Amount,
		})
	}

	return ctx.JSON(view)
}

// Position godoc
//
//	@Summary		Rank of an account
//	@Tags			leaderboard
//	@Param			alias	path	string	true	"Currency alias or id" example(coins)
//	@Param			account	path	string	true	"Account id" example(alice)
//	@Success		200	{object}	RankView
//	@Failure		404	{string}	string "account alice is not ranked"
//	@Router			/currencies/{alias}/position/{account} [get]
func (l *Leaderboard) Position(ctx *fiber.Ctx) error {
	c, ok := l.resolve(ctx.Params("alias"))
	if !ok {
		return fiber.NewError(http.StatusNotFound, "unknown currency: "+ctx.Params("alias"))
	}

	account := ctx.Params("account")

	entries := l.ranking.SnapshotFor(c.ID)

	pos, ok := l.ranking.PositionOf(c.ID, account)
	if !ok {
		return fiber.NewError(http.StatusNotFound, "account "+account+" is not ranked")
	}

	// the ranking may have been republished between both reads
	if pos > len(entries) || entries[pos-1].AccountID != account {
		pos = 0
		for i, e := range entries {
			if e.AccountID == account {
				pos = i + 1
				break
			}
		}
		if pos == 0 {
			return fiber.NewError(http.StatusNotFound, "account "+account+" is not ranked")
		}
	}

	return ctx.JSON(RankView{Position: pos, AccountID: account, Amount: entries[pos-1].Amount})
}

// Economy godoc
//
//	@Summary		Primary economy currency
//	@Tags			currencies
//	@Success		200	{object}	CurrencyView
//	@Failure		404	{string}	string "no primary economy currency"
//	@Router			/economy [get]
func (l *Leaderboard) Economy(ctx *fiber.Ctx) error {
	c, ok := l.currencies.FindPrimaryEconomy()
	if !ok {
		return fiber.NewError(http.StatusNotFound, "no primary economy currency")
	}

	return ctx.JSON(toView(c))
}

// Routes mounts the handlers on router.
func (l *Leaderboard) Routes(router fiber.Router) {
	router.Get("/currencies", l.List)
	router.Get("/currencies/:alias", l.Get)
	router.Get("/currencies/:alias/top", l.Top)
	router.Get("/currencies/:alias/position/:account", l.Position)
	router.Get("/economy", l.Economy)
}
