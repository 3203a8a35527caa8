package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alvarohm/upbot/config"
	"github.com/alvarohm/upbot/internal/adapters/notify"
	"github.com/alvarohm/upbot/internal/adapters/polymarket"
	"github.com/alvarohm/upbot/internal/adapters/storage"
	"github.com/alvarohm/upbot/internal/bot"
	"github.com/alvarohm/upbot/internal/domain"
	"github.com/alvarohm/upbot/internal/executor"
	"github.com/alvarohm/upbot/internal/ports"
	"github.com/alvarohm/upbot/internal/risk"
	"github.com/alvarohm/upbot/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one evaluation cycle and exit")
	paper := flag.Bool("paper", false, "force paper trading (overrides config)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full position table (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *paper {
		cfg.Trading.PaperTrading = true
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	slog.Info("upbot starting",
		"config", *configPath,
		"series", cfg.Trading.SeriesSlug,
		"paper", cfg.Trading.PaperTrading,
		"tick", cfg.TickInterval(),
		"once", *once,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	markets := polymarket.NewMarketService(client, cfg.Trading.SeriesSlug)

	var exchange ports.ExchangeClient
	if !cfg.Trading.PaperTrading {
		auth, err := polymarket.NewAuthClient(cfg.API.CLOBBase, cfg.API.GammaBase, cfg.PrivateKey, cfg.FunderAddress)
		if err != nil {
			slog.Error("failed to create auth client", "err", err)
			os.Exit(1)
		}
		if err := auth.EnsureCreds(ctx); err != nil {
			slog.Error("failed to derive API credentials — check PRIVATE_KEY", "err", err)
			os.Exit(1)
		}
		slog.Info("authenticated with CLOB", "address", auth.Address(), "maker", auth.Maker().Hex())

		exchange, err = polymarket.NewExchange(auth, cfg.API.PolygonRPC)
		if err != nil {
			slog.Error("failed to create exchange client", "err", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open trade journal", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ledger := domain.NewLedger()
	policy := risk.New(risk.Config{
		MinLead: cfg.MinTimeToTrade(),
	})
	gen := strategy.New(strategy.Config{
		ProfitTarget:    cfg.Trading.ProfitTargetCents,
		MaxBuyPrice:     cfg.Trading.MaxBuyPriceCents,
		MaxPositionSize: cfg.Trading.MaxPositionSize,
		SellBeforeStart: cfg.SellBeforeStart(),
		MinTimeToTrade:  cfg.MinTimeToTrade(),
	}, policy)
	exec := executor.New(exchange, ledger, store, executor.Config{
		Paper:        cfg.Trading.PaperTrading,
		ProfitTarget: cfg.Trading.ProfitTargetCents,
	})
	notifier := notify.NewConsole(*table)

	b := bot.New(markets, exchange, exec, gen, ledger, notifier, bot.Config{
		Paper:         cfg.Trading.PaperTrading,
		TickInterval:  cfg.TickInterval(),
		ReconcileEach: cfg.Trading.ReconcileEachTicks,
	})

	if *once {
		if err := b.RunOnce(ctx); err != nil {
			slog.Error("cycle failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := b.Run(ctx); err != nil {
		slog.Error("bot exited with error", "err", err)
		os.Exit(1)
	}

	// Resting protective orders survive the process; clear them so a
	// restart starts from a clean book.
	if !cfg.Trading.PaperTrading {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := exec.CancelAllOrders(shutdownCtx); err != nil {
			slog.Warn("failed to cancel open orders on shutdown", "err", err)
		}
	}

	slog.Info("upbot stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
