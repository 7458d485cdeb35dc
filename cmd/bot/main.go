// tradelink bot - builds trade-in checkout links for group members over Telegram.
// Also serves health, Prometheus metrics and operator MCP tools over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradelink/internal/access"
	"tradelink/internal/adapter"
	"tradelink/internal/cart"
	"tradelink/internal/cart/browser"
	"tradelink/internal/catalog"
	"tradelink/internal/config"
	"tradelink/internal/conversation"
	"tradelink/internal/handler"
	"tradelink/internal/metrics"
	"tradelink/internal/middleware"
	"tradelink/internal/router"
	"tradelink/internal/storefront"
	"tradelink/internal/telegram"
	"tradelink/internal/tradein"
	"tradelink/internal/transport"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := initLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	policy, err := conversation.ParsePolicy(cfg.Chat.LinkPolicy)
	if err != nil {
		return err
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("store", cfg.Store.Host+"/"+cfg.Store.Locale),
		slog.String("link_policy", string(policy)),
		slog.Int64("access_group", cfg.Access.GroupID),
	)

	store := adapter.Config{StoreHost: cfg.Store.Host, StoreLocale: cfg.Store.Locale}

	products, err := loadCatalog(cfg, store)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheusRecorder(reg)

	httpClient := transport.NewHTTPClient(cfg.Store.HTTPTimeout)

	resolver, err := storefront.New(storefront.Config{
		Store:          store,
		CapacityAPIURL: cfg.Store.CapacityAPIURL,
		HTTPClient:     httpClient,
		Timeout:        cfg.Store.HTTPTimeout,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("creating resolver: %w", err)
	}

	devices, err := tradein.New(tradein.Config{
		Endpoint:   cfg.Store.TradeInAPIURL,
		HTTPClient: httpClient,
		Timeout:    cfg.Store.HTTPTimeout,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating trade-in client: %w", err)
	}

	// The enrollment browser is only needed when links carry a validated device.
	var driver cart.DiscountEnrollmentDriver
	if policy == conversation.PolicyIMEI {
		chrome := browser.NewChrome(browser.ChromeOptions{
			ExecPath: cfg.Browser.ChromePath,
			Headless: cfg.Browser.Headless,
			Logger:   logger,
		})
		defer chrome.Close()

		d, err := browser.New(browser.Config{
			Open:        chrome.Open,
			WaitTimeout: cfg.Browser.WaitTimeout,
			PostalCode:  cfg.Browser.PostalCode,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("creating enrollment driver: %w", err)
		}
		driver = d
	}

	links, err := cart.New(cart.Config{
		Store:      store,
		HTTPClient: httpClient,
		Timeout:    cfg.Store.HTTPTimeout,
		Driver:     driver,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("creating cart builder: %w", err)
	}

	bot, err := telegram.Open(telegram.Config{
		APIID:    cfg.Bot.APIID,
		APIHash:  cfg.Bot.APIHash,
		BotToken: cfg.Bot.Token,
		Dir:      cfg.Bot.TDLibDir,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening telegram session: %w", err)
	}
	defer func() {
		if err := bot.Close(); err != nil {
			logger.Warn("closing telegram session failed", slog.String("error", err.Error()))
		}
	}()

	var cache access.Cache
	if cfg.Access.RedisAddr != "" {
		rdb, err := access.DialRedis(ctx, cfg.Access.RedisAddr, cfg.Access.RedisPassword, cfg.Access.RedisDB)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		cache = access.NewRedisCache(rdb, "tradelink:")
		logger.Info("membership cache enabled", slog.String("redis_addr", cfg.Access.RedisAddr))
	}

	guard, err := access.NewGuard(access.Config{
		Source:  bot,
		GroupID: cfg.Access.GroupID,
		Cache:   cache,
		TTL:     cfg.Access.CacheTTL,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating access guard: %w", err)
	}

	engine, err := conversation.New(conversation.Config{
		Catalog:         products,
		Resolver:        resolver,
		Devices:         devices,
		Links:           links,
		Messenger:       bot,
		Policy:          policy,
		Metrics:         recorder,
		Logger:          logger,
		StartCommand:    cfg.Chat.StartCommand,
		GenerateCommand: cfg.Chat.GenerateCommand,
	})
	if err != nil {
		return fmt.Errorf("creating conversation engine: %w", err)
	}

	rt, err := router.New(router.Config{
		Engine:    engine,
		Guard:     guard,
		Messenger: bot,
		Metrics:   recorder,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating router: %w", err)
	}

	h, err := handler.New(handler.Config{
		Catalog:  products,
		Resolver: resolver,
		Devices:  devices,
		Links:    links,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Version:  version,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating handler: %w", err)
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.OperatorAuth(cfg.Operator.Token, logger),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	botErr := make(chan error, 1)
	go func() {
		logger.Info("bot listening for updates", slog.Int("products", products.Len()))
		botErr <- bot.Run(ctx, rt.Submit)
	}()

	var (
		runErr     error
		botStopped bool
	)
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case err := <-botErr:
		botStopped = true
		if err != nil {
			runErr = fmt.Errorf("bot error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}
	stop()

	// Give in-flight conversations and requests time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		server.Close()
		if runErr == nil {
			runErr = fmt.Errorf("shutdown error: %w", err)
		}
	}

	// Run returns once ctx is done; then let queued events finish
	drained := make(chan struct{})
	go func() {
		if !botStopped {
			<-botErr
		}
		rt.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn("bot did not stop before shutdown deadline")
	}

	logger.Info("bot stopped")
	return runErr
}

// loadCatalog reads the catalog file when configured, else the built-in list.
func loadCatalog(cfg *config.Config, store adapter.Config) (*catalog.Catalog, error) {
	if cfg.Store.CatalogFile == "" {
		return catalog.Default(store.BaseURL()), nil
	}
	c, err := catalog.LoadFile(cfg.Store.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return c, nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
