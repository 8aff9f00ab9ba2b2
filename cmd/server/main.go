// Command server starts the StreamPulse API HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"streampulse/internal/api"
	"streampulse/internal/directory"
	"streampulse/internal/enrich"
	"streampulse/internal/lifecycle"
	"streampulse/internal/observability/logging"
	"streampulse/internal/observability/metrics"
	"streampulse/internal/server"
	"streampulse/internal/serverutil"
	"streampulse/internal/storage"
)

func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	eventLimit := flag.Int("rate-event-limit", 0, "maximum webhook deliveries per window for a single source")
	eventWindow := flag.Duration("rate-event-window", 0, "window for counting webhook deliveries")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed event throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed event throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed to call the API")
	thumbnailDelay := flag.Duration("thumbnail-delay", 0, "delay before applying scheduled thumbnails")
	enrichInterval := flag.Duration("enrich-interval", 0, "interval between deferred enrichment passes")
	flag.Parse()

	logger := logging.New(logging.Config{Level: firstNonEmpty(*logLevel, os.Getenv("STREAMPULSE_LOG_LEVEL"))})
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("STREAMPULSE_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("STREAMPULSE_ADDR"))

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("STREAMPULSE_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var store storage.Repository
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("STREAMPULSE_DATA"))
		store, err = storage.NewStorage(dataFile)
	case "postgres":
		if postgresDefaultDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.Option
		maxConns := resolveInt(*postgresMaxConns, "STREAMPULSE_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "STREAMPULSE_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "STREAMPULSE_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "STREAMPULSE_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "STREAMPULSE_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		if acquireTimeout := resolveDuration(*postgresAcquireTimeout, "STREAMPULSE_POSTGRES_ACQUIRE_TIMEOUT", 0); acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("STREAMPULSE_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(postgresDefaultDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	directoryConfig, err := directory.LoadConfigFromEnv()
	if err != nil {
		logger.Error("failed to load directory configuration", "error", err)
		os.Exit(1)
	}
	var directoryClient directory.Client = directory.NoopClient{}
	if directoryConfig.Enabled() {
		client, err := directoryConfig.NewHTTPClient()
		if err != nil {
			logger.Error("failed to initialise directory client", "error", err)
			os.Exit(1)
		}
		directoryClient = client
	} else {
		logger.Warn("directory API not configured, channel references resolve to themselves")
	}

	scheduler := lifecycle.NewScheduler(lifecycle.SchedulerConfig{
		Repository: store,
		Logger:     logging.WithComponent(logger, "enrichment"),
		Metrics:    recorder,
		Delay:      resolveDuration(*thumbnailDelay, "STREAMPULSE_THUMBNAIL_DELAY", 0),
	})
	correlator := lifecycle.NewCorrelator(lifecycle.CorrelatorConfig{
		Repository: store,
		Directory:  directoryClient,
		Scheduler:  scheduler,
		Logger:     logging.WithComponent(logger, "lifecycle"),
		Metrics:    recorder,
	})
	enrichService := enrich.NewService(enrich.ServiceConfig{
		Repository: store,
		Directory:  directoryClient,
		Logger:     logging.WithComponent(logger, "enrich"),
		Metrics:    recorder,
	})

	handler := api.NewHandler(store, correlator, enrichService)
	handler.Metrics = recorder
	handler.Logger = logging.WithComponent(logger, "api")

	tlsCertFile := firstNonEmpty(*tlsCert, os.Getenv("STREAMPULSE_TLS_CERT"))
	tlsKeyFile := firstNonEmpty(*tlsKey, os.Getenv("STREAMPULSE_TLS_KEY"))

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: tlsCertFile,
			KeyFile:  tlsKeyFile,
		},
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     resolveFloat(*globalRPS, "STREAMPULSE_RATE_GLOBAL_RPS"),
			GlobalBurst:   resolveInt(*globalBurst, "STREAMPULSE_RATE_GLOBAL_BURST"),
			EventLimit:    resolveInt(*eventLimit, "STREAMPULSE_RATE_EVENT_LIMIT"),
			EventWindow:   resolveDuration(*eventWindow, "STREAMPULSE_RATE_EVENT_WINDOW", time.Minute),
			RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("STREAMPULSE_RATE_REDIS_ADDR")),
			RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("STREAMPULSE_RATE_REDIS_PASSWORD")),
			RedisTimeout:  resolveDuration(*redisTimeout, "STREAMPULSE_RATE_REDIS_TIMEOUT", 2*time.Second),
		},
		CORS: server.CORSConfig{
			AllowedOrigins: splitAndTrim(firstNonEmpty(*corsOrigins, os.Getenv("STREAMPULSE_CORS_ORIGINS"))),
		},
		Logger:  logger,
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("StreamPulse API listening", "addr", listenAddr, "mode", serverMode)
		logger.Info("metrics endpoint available", "path", "/metrics")
		return serverutil.Run(groupCtx, serverutil.Config{
			Server: srv.HTTPServer(),
			TLS: serverutil.TLSConfig{
				CertFile: tlsCertFile,
				KeyFile:  tlsKeyFile,
			},
		})
	})

	interval := resolveDuration(*enrichInterval, "STREAMPULSE_ENRICH_INTERVAL", 15*time.Second)
	enrichStop := startEnrichmentWorker(groupCtx, logging.WithComponent(logger, "enrichment"), scheduler, interval)

	err = group.Wait()
	enrichStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("graceful shutdown failed", "error", shutdownErr)
	}

	if closer, ok := store.(interface{ Close(context.Context) error }); ok {
		if closeErr := closer.Close(shutdownCtx); closeErr != nil {
			logger.Warn("failed to close datastore", "error", closeErr)
		}
	}

	if err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "json", nil
}

func validateProductionDatastore(driver, resolvedPostgresDSN string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(resolvedPostgresDSN) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("STREAMPULSE_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
