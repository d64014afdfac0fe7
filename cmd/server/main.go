// Command server starts the SAMHOST transmission orchestration API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"

	"samhost/internal/api"
	"samhost/internal/auth"
	"samhost/internal/observability/logging"
	"samhost/internal/observability/metrics"
	"samhost/internal/orchestrator"
	"samhost/internal/playlist"
	"samhost/internal/push"
	"samhost/internal/registry"
	"samhost/internal/server"
	"samhost/internal/storage"
	"samhost/internal/userlock"
	"samhost/internal/wowza"
)

func main() {
	// .env is optional; flags and SAMHOST_* variables win over it.
	_ = godotenv.Load()

	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresConnectTimeout := flag.Duration("postgres-connect-timeout", 0, "timeout when opening a Postgres connection")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	wowzaHost := flag.String("wowza-host", "", "Wowza server host")
	wowzaPort := flag.Int("wowza-port", 0, "Wowza REST API port")
	wowzaStreamingPort := flag.Int("wowza-streaming-port", 0, "Wowza RTMP streaming port")
	wowzaUsername := flag.String("wowza-username", "", "Wowza REST API username")
	wowzaPassword := flag.String("wowza-password", "", "Wowza REST API password")
	wowzaApplication := flag.String("wowza-application", "", "Wowza live application name")
	lockDriver := flag.String("lock-driver", "", "user lock driver (memory or redis)")
	lockRedisAddr := flag.String("lock-redis-addr", "", "Redis address for the distributed user lock")
	lockRedisPassword := flag.String("lock-redis-password", "", "Redis password for the distributed user lock")
	corsOrigins := flag.String("cors-origins", "", "comma separated origins allowed by CORS")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	issueTokenUser := flag.String("issue-token", "", "issue an API token for the given user ID and exit")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("SAMHOST_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("SAMHOST_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	driver := strings.ToLower(firstNonEmpty(*storageDriver, os.Getenv("SAMHOST_STORAGE_DRIVER"), "json"))
	var (
		store       storage.Repository
		storeCloser func()
		err         error
	)
	switch driver {
	case "json":
		dataFile := firstNonEmpty(*dataPath, os.Getenv("SAMHOST_DATA"))
		store, err = storage.NewStorage(dataFile)
	case "postgres":
		dsn := firstNonEmpty(*postgresDSN, os.Getenv("SAMHOST_POSTGRES_DSN"))
		if dsn == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		store, err = storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			DSN:             dsn,
			MaxConnections:  int32(resolveInt(*postgresMaxConns, "SAMHOST_POSTGRES_MAX_CONNS")),
			MinConnections:  int32(resolveInt(*postgresMinConns, "SAMHOST_POSTGRES_MIN_CONNS")),
			ConnectTimeout:  resolveDuration(*postgresConnectTimeout, "SAMHOST_POSTGRES_CONNECT_TIMEOUT"),
			ApplicationName: firstNonEmpty(*postgresAppName, os.Getenv("SAMHOST_POSTGRES_APP_NAME"), "samhost"),
		})
		cancel()
		if err == nil {
			if closer, ok := store.(interface{ Close() }); ok {
				storeCloser = closer.Close
			}
		}
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}
	if storeCloser != nil {
		defer storeCloser()
	}

	tokens := auth.NewManager(store)
	if userID := strings.TrimSpace(*issueTokenUser); userID != "" {
		token, err := tokens.Issue(context.Background(), userID)
		if err != nil {
			logger.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	gateway, err := wowza.NewClient(wowza.Config{
		Host:          firstNonEmpty(*wowzaHost, os.Getenv("SAMHOST_WOWZA_HOST")),
		Port:          resolveInt(*wowzaPort, "SAMHOST_WOWZA_PORT"),
		StreamingPort: resolveInt(*wowzaStreamingPort, "SAMHOST_WOWZA_STREAMING_PORT"),
		Username:      firstNonEmpty(*wowzaUsername, os.Getenv("SAMHOST_WOWZA_USERNAME")),
		Password:      firstNonEmpty(*wowzaPassword, os.Getenv("SAMHOST_WOWZA_PASSWORD")),
		Application:   firstNonEmpty(*wowzaApplication, os.Getenv("SAMHOST_WOWZA_APPLICATION")),
	})
	if err != nil {
		logger.Error("failed to configure media server client", "error", err)
		os.Exit(1)
	}

	var locks userlock.Locker
	switch strings.ToLower(firstNonEmpty(*lockDriver, os.Getenv("SAMHOST_LOCK_DRIVER"), "memory")) {
	case "memory":
		locks = userlock.NewMemoryLocker()
	case "redis":
		redisAddr := firstNonEmpty(*lockRedisAddr, os.Getenv("SAMHOST_LOCK_REDIS_ADDR"))
		if redisAddr == "" {
			logger.Error("redis lock selected without address")
			os.Exit(1)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: firstNonEmpty(*lockRedisPassword, os.Getenv("SAMHOST_LOCK_REDIS_PASSWORD")),
		})
		defer client.Close()
		locks = userlock.NewRedisLocker(client, userlock.RedisLockerConfig{})
	default:
		logger.Error("unsupported lock driver")
		os.Exit(1)
	}

	sessions := registry.New()
	pusher := push.NewConfigurator(gateway, logging.WithComponent(logger, "push"))
	lifecycle := orchestrator.New(orchestrator.Config{
		Store:    store,
		Gateway:  gateway,
		Pusher:   pusher,
		Sessions: sessions,
		Locks:    locks,
		Logger:   logging.WithComponent(logger, "orchestrator"),
		Recorder: recorder,
	})
	applier := playlist.NewApplier(store, logging.WithComponent(logger, "commercials"))
	handler := api.NewHandler(store, lifecycle, applier, tokens, gateway, logging.WithComponent(logger, "api"))

	listenAddr := firstNonEmpty(*addr, os.Getenv("SAMHOST_ADDR"), ":8080")
	srv, err := server.New(handler, server.Config{
		Addr:    listenAddr,
		CORS:    server.CORSConfig{AllowedOrigins: splitOrigins(firstNonEmpty(*corsOrigins, os.Getenv("SAMHOST_CORS_ORIGINS")))},
		Logger:  logging.WithComponent(logger, "http"),
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("failed to configure server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", listenAddr, "storage_driver", driver)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}
		logger.Info("server stopped")
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func resolveInt(flagValue int, envName string) int {
	if flagValue > 0 {
		return flagValue
	}
	if raw := strings.TrimSpace(os.Getenv(envName)); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envName string) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if raw := strings.TrimSpace(os.Getenv(envName)); raw != "" {
		if value, err := time.ParseDuration(raw); err == nil && value > 0 {
			return value
		}
	}
	return 0
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
