package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	stemmiddleware "github.com/Ramsey-B/stem/pkg/middleware"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/Ramsey-B/stem/pkg/tracing/exporters"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/bridge"
	"github.com/Ramsey-B/fern/pkg/commonly"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/host"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/kafka"
	fernmiddleware "github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/poller"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/session"
	"github.com/Ramsey-B/fern/pkg/socket"
)

const version = "0.1.0"

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

func main() {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	accounts, err := cfg.ParseAccounts()
	if err != nil {
		logger.WithError(err).Error("Invalid account configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEnabled {
		shutdown, err := initTracing(ctx, cfg)
		if err != nil {
			logger.WithError(err).Error("Failed to initialize tracing")
			os.Exit(1)
		}
		defer shutdown()
	}

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	var mirror *events.Emitter
	if cfg.KafkaEnabled {
		producer := kafka.NewProducer(kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaActivityTopic), logger)
		defer func() { _ = producer.Close() }()
		mirror = events.NewEmitter(producer, logger)
	}

	hostHTTP := httpclient.NewClient(httpclient.Config{Timeout: cfg.RemoteTimeout}, logger)
	caps := host.Capabilities{
		Router:      host.NewStaticRouter(),
		Sessions:    session.NewStore(redisClient, logger),
		Replies:     host.NewWebhookDispatcher(hostHTTP, cfg.AgentWebhookURL, cfg.AgentWebhookToken, logger),
		ReplyPrefix: cfg.ReplyPrefix,
	}

	registry := bridge.NewRegistry(func(account models.Account) (*bridge.Adapter, error) {
		httpCfg := httpclient.DefaultConfig()
		httpCfg.Timeout = cfg.RemoteTimeout
		client := commonly.NewClient(account, httpclient.NewClient(httpCfg, logger), logger)

		// The connection forwards events to the adapter, which does not
		// exist yet when the connection is built.
		var adapter *bridge.Adapter
		conn := socket.NewConnection(socket.Config{
			AccountID: account.AccountID,
			BaseURL:   account.BaseURL,
			Token:     account.RuntimeToken,
		}, func(event models.Event) {
			adapter.HandleEvent(event)
		}, logger)

		adapter = bridge.NewAdapter(account, client, conn, caps, mirror, logger)
		return adapter, nil
	}, logger)

	for _, account := range accounts {
		if !account.Enabled {
			continue
		}
		if err := registry.StartAccount(ctx, account); err != nil {
			logger.WithError(err).Errorf("Failed to start bridge for account %s", account.AccountID)
		}
	}

	var catchup *poller.Poller
	if cfg.PollerEnabled {
		catchup = poller.NewPoller(registry, redisClient, poller.Config{
			Interval: cfg.PollerInterval,
			Enabled:  cfg.PollerEnabled,
		}, logger)
		catchup.Start()
	}

	checker := health.NewChecker(redisClient, registry, version)
	e := newServer(cfg, logger, registry, accounts, checker)
	checker.SetReady(true)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Admin server stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	checker.SetReady(false)
	if catchup != nil {
		catchup.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	registry.StopAll(shutdownCtx)
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Admin server shutdown failed")
	}
}

func newZapLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.PrettyLogs {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newServer(cfg config.Config, logger ectologger.Logger, registry *bridge.Registry, accounts map[string]models.Account, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.HTTPErrorHandler = stemmiddleware.Error(logger)

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(stemmiddleware.Context())
	e.Use(stemmiddleware.Logger(logger))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
	e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1", fernmiddleware.Authentication(logger, cfg.AdminToken))
	handlers.NewAccountHandler(registry, accounts, logger).RegisterRoutes(api)

	return e
}

func initTracing(ctx context.Context, cfg config.Config) (func(), error) {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	tracing.SetTracer(provider.Tracer(cfg.AppName))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}, nil
}
