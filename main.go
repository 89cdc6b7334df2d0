package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/kylycht/coinsengine/controller/leaderboard"
	"github.com/kylycht/coinsengine/service/economy"
	"github.com/kylycht/coinsengine/service/loader"
	"github.com/kylycht/coinsengine/service/ranking"
	"github.com/kylycht/coinsengine/service/registry"
	"github.com/kylycht/coinsengine/storage"
	"github.com/kylycht/coinsengine/storage/guard"
	"github.com/kylycht/coinsengine/storage/memory"
	"github.com/kylycht/coinsengine/storage/persistence"
	"github.com/kylycht/coinsengine/storage/remote"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// shortcut aliases wired to the primary economy currency
var economyShortcuts = []string{"baltop"}

func main() {
	path := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()

	cfg, err := LoadConfig(*path)
	if err != nil {
		log.Error().Err(err).Msg("unable to read configuration file")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := New(cfg); err != nil {
		log.Error().Err(err).Msg("unable to initialize application")
		os.Exit(1)
	}
}

func New(cfg Config) error {
	a := Application{cfg: cfg}
	return a.init()
}

type Application struct {
	cfg      Config               // application configuration
	fiberApp *fiber.App           // underlying fiber application
	store    storage.BalanceStore // authoritative balances
	dbConn   *sql.DB              // underlying persistence connection, postgres store only
	aliases  *leaderboard.Aliases // command facade
	bridge   *economy.Bridge      // host economy adapter
	registry *registry.Registry   // registered currencies
	ranking  *ranking.Service     // periodic balance rankings
	stopC    chan os.Signal       // handle interrupt for clean up(close connections, etc)
}

func (a *Application) init() error {
	a.fiberApp = fiber.New()
	a.stopC = make(chan os.Signal, 1)
	signal.Notify(a.stopC, os.Interrupt, syscall.SIGTERM)

	if err := a.initStore(); err != nil {
		return err
	}

	a.aliases = leaderboard.NewAliases()
	a.bridge = economy.New(a.cfg.Economy.Enabled, log.Logger)

	opts := registry.Options{
		Dir:             a.cfg.CurrenciesDir,
		ExtractDefaults: a.cfg.ExtractDefaults,
		StrictPrimary:   a.cfg.StrictPrimary,
	}
	if a.cfg.Economy.CommandShortcuts {
		opts.ShortcutAliases = economyShortcuts
	}

	a.registry = registry.New(loader.New(log.Logger), a.aliases, a.bridge, opts, log.Logger)
	a.registry.OnLoad()
	log.Info().Int("currencies", a.registry.Len()).Msg("currencies loaded")

	a.ranking = ranking.New(a.registry, a.store, ranking.Options{
		Limit:        a.cfg.RankingLimit,
		Concurrency:  a.cfg.FetchConcurrency,
		FetchTimeout: a.cfg.FetchTimeout(),
	}, log.Logger)
	a.ranking.Start(a.cfg.RefreshInterval())

	a.buildRoutes()
	go a.stop()
	log.Debug().Msg("preparing fiber http server")

	if err := a.fiberApp.Listen(a.cfg.HTTPPort); err != nil {
		log.Error().Err(err).Msg("unable to start http server")
	}

	return nil
}

func (a *Application) initStore() error {
	var store storage.BalanceStore

	switch a.cfg.BalanceStore {
	case "memory":
		a.store = memory.New()
		return nil

	case "remote":
		client, err := remote.New(a.cfg.RemoteURL, a.cfg.RemoteAPIKey, a.cfg.RemoteRatePerSecond)
		if err != nil {
			log.Error().Err(err).Msg("unable to create ledger client")
			return err
		}
		store = client

	default:
		connStr := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
			a.cfg.DBUsername,
			a.cfg.DBPassword,
			a.cfg.DBHost,
			a.cfg.DBPort,
			a.cfg.DBName,
		)
		log.Debug().Str("host", a.cfg.DBHost).Str("db", a.cfg.DBName).Msg("initialize db connection")

		dbConn, err := sql.Open("postgres", connStr)
		if err != nil {
			log.Error().Err(err).Msg("unable to connect to db")
			return err
		}

		a.dbConn = dbConn
		store = persistence.New(dbConn)
	}

	a.store = guard.New(store,
		a.cfg.Breaker.ErrorThreshold,
		a.cfg.Breaker.SuccessThreshold,
		a.cfg.BreakerTimeout(),
	)

	return nil
}

func (a *Application) buildRoutes() {
	leaderboard.New(a.registry, a.ranking, a.aliases).Routes(a.fiberApp)
}

func (a *Application) stop() {
	<-a.stopC
	a.ranking.Stop()
	a.registry.OnShutdown()
	a.fiberApp.Shutdown()
	if a.dbConn != nil {
		a.dbConn.Close()
	}
	os.Exit(0)
}
