package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"coinsentry/internal/analysis"
	"coinsentry/internal/bot"
	"coinsentry/internal/cache"
	"coinsentry/internal/config"
	"coinsentry/internal/db"
	"coinsentry/internal/handler"
	"coinsentry/internal/job"
	"coinsentry/internal/logging"
	"coinsentry/internal/provider"
	"coinsentry/internal/repository"
	"coinsentry/internal/service"
	"coinsentry/internal/setup"
	"coinsentry/internal/tui"
	"coinsentry/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
)

var (
	loadEnvFunc            = godotenv.Load
	initTracerFunc         = tracing.InitTracer
	connectRedisFunc       = cache.Connect
	connectPostgresFunc    = db.Connect
	newNotifierFunc        = bot.NewNotifier
	runTUIFunc             = tui.Run
	newRouterFunc          = gin.New
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
	exitFunc               = os.Exit
)

type options struct {
	gui        bool
	daemon     bool
	once       bool
	setup      bool
	configPath string
	symbol     string
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("coinsentry", flag.ContinueOnError)
	fs.BoolVar(&opts.gui, "gui", false, "interactive terminal dashboard")
	fs.BoolVar(&opts.daemon, "daemon", false, "background monitoring with Telegram alerts")
	fs.BoolVar(&opts.once, "once", false, "run one check and exit")
	fs.BoolVar(&opts.setup, "setup", false, "interactive configuration wizard")
	fs.StringVar(&opts.configPath, "config", config.DefaultPath, "path to the config file")
	fs.StringVar(&opts.symbol, "symbol", "", "limit --once to a single symbol")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	modes := 0
	for _, on := range []bool{opts.gui, opts.daemon, opts.once, opts.setup} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		return opts, fmt.Errorf("pick one of --gui, --daemon, --once, --setup")
	}
	if modes == 0 {
		opts.gui = true
	}
	return opts, nil
}

func main() {
	loadEnvFunc()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitFunc(2)
		return
	}

	if opts.setup {
		wizard := setup.NewWizard(os.Stdin, os.Stdout, sendTestMessage)
		if err := wizard.Run(opts.configPath); err != nil {
			fmt.Fprintln(os.Stderr, "setup failed:", err)
			exitFunc(1)
		}
		return
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitFunc(1)
		return
	}

	if err := logging.Setup(cfg.Log.Level, cfg.Log.File); err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		exitFunc(1)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	// Optional subsystems degrade to disabled.
	redisClient, err := connectRedisFunc(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, snapshot cache disabled")
		redisClient = nil
	}
	pool, err := connectPostgresFunc(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, persistence disabled")
		pool = nil
	}

	var priceStore service.PriceStore
	var alertSink job.AlertSink
	var alertLog handler.AlertLog
	var pricePruner job.HistoryPruner
	if pool != nil {
		priceRepo := repository.NewPriceRepository(pool, tracer)
		alertRepo := repository.NewAlertRepository(pool, tracer)
		if err := priceRepo.RunMigrations(ctx); err != nil {
			log.Fatal().Err(err).Msg("price history migrations failed")
		}
		if err := alertRepo.RunMigrations(ctx); err != nil {
			log.Fatal().Err(err).Msg("alert log migrations failed")
		}
		priceStore = priceRepo
		alertSink = alertRepo
		alertLog = alertRepo
		pricePruner = priceRepo
	}

	rates := provider.NewExchangeRateProvider(tracer)
	binance := provider.NewBinanceProvider(tracer, rates)
	sentiment := provider.NewFearGreedProvider(tracer)

	marketCache := cache.NewMarketCache(redisClient, 2*time.Minute)
	markets := service.NewMarketService(tracer, binance, sentiment, rates, priceStore, marketCache)
	alerts := service.NewAlertService(cfg.Alerts, cfg.PriceLevels)
	summaries := service.NewSummaryService(cfg.SummaryHours, cfg.QuietHours)

	switch {
	case opts.gui:
		if err := runTUIFunc(markets, cfg.Symbols); err != nil {
			log.Fatal().Err(err).Msg("dashboard failed")
		}

	case opts.once:
		if err := runOnce(ctx, cfg, opts, markets, alerts); err != nil {
			log.Fatal().Err(err).Msg("check failed")
		}

	case opts.daemon:
		runDaemon(ctx, cancel, cfg, tracer, markets, alerts, summaries, alertSink, alertLog, pricePruner)
	}
}

func loadConfig(opts options) (*config.Config, error) {
	if !config.Exists(opts.configPath) {
		return nil, fmt.Errorf("no config at %s, run with --setup first", opts.configPath)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	problems := cfg.Validate()
	if opts.gui {
		// The dashboard only needs symbols; Telegram may stay unset.
		if len(cfg.Symbols) == 0 {
			return nil, fmt.Errorf("no symbols configured, run with --setup")
		}
		return cfg, nil
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("config problems:\n  %s\nrun with --setup to fix them",
			strings.Join(problems, "\n  "))
	}
	return cfg, nil
}

func runOnce(ctx context.Context, cfg *config.Config, opts options, markets *service.MarketService, alerts *service.AlertService) error {
	symbols := cfg.Symbols
	if opts.symbol != "" {
		symbols = []string{strings.ToUpper(opts.symbol)}
	}

	notifier, err := newNotifierFunc(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MessageDelay)
	if err != nil {
		return err
	}

	for _, symbol := range symbols {
		md, err := markets.Snapshot(ctx, symbol)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("check failed")
			continue
		}
		weekly, err := markets.WeeklyExtremes(ctx, symbol)
		if err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("weekly extremes unavailable")
		}

		pred := analysis.Predict(md)
		opp := analysis.ScoreOpportunity(md, pred, weekly)
		fmt.Println(strings.ReplaceAll(bot.FormatReport(md, pred, opp), "*", ""))
		fmt.Println()

		if err := notifier.SendReport(md, pred, opp); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("telegram report failed")
		}

		for _, a := range alerts.Evaluate(md, pred) {
			fmt.Println("alert:", a.Message)
			if err := notifier.SendAlert(a); err != nil {
				log.Warn().Err(err).Msg("telegram send failed")
			}
		}
	}
	return nil
}

func runDaemon(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	tracer trace.Tracer,
	markets *service.MarketService,
	alerts *service.AlertService,
	summaries *service.SummaryService,
	alertSink job.AlertSink,
	alertLog handler.AlertLog,
	pricePruner job.HistoryPruner,
) {
	notifier, err := newNotifierFunc(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MessageDelay)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram setup failed")
	}

	d := job.NewDaemon(tracer, cfg, markets, alerts, summaries, notifier, alertSink, pricePruner)
	notifier.RegisterCommands(markets, cfg.Symbols, d.StatusLine)

	r := newRouterFunc()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("coinsentry"))
	handler.New(tracer, d, alertLog).RegisterRoutes(r, cfg.HTTPAPIKey)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: r,
	}
	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("status api failed")
		}
	}()

	go d.Run(ctx)

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("shutting down")

	cancel()
	notifier.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Error().Err(err).Msg("status api forced to shut down")
	}
}

// sendTestMessage verifies Telegram credentials for the setup wizard.
func sendTestMessage(token string, chatID int64) error {
	notifier, err := newNotifierFunc(token, chatID, 0)
	if err != nil {
		return err
	}
	if !notifier.Enabled() {
		return fmt.Errorf("token is empty")
	}
	return notifier.SendText("coinsentry is configured correctly")
}
