package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"zapis/internal/api"
	"zapis/internal/availability"
	"zapis/internal/config"
	"zapis/internal/database"
	"zapis/internal/domain"
	"zapis/internal/events"
	"zapis/internal/export"
	"zapis/internal/google"
	"zapis/internal/logging"
	"zapis/internal/metrics"
	"zapis/internal/models"
	"zapis/internal/repository"
	"zapis/internal/service"
	"zapis/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

const ledgerCacheRefresh = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	loc, err := cfg.Booking.Location()
	if err != nil {
		return fmt.Errorf("booking timezone: %w", err)
	}

	catalog, err := loadCatalog(&logger)
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, catalog, loc, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	locker, cache := initCoordination(cfg, redisClient, &logger)

	eventBus := events.NewEventBus()
	subscribeAudit(eventBus, &logger)

	syncWorker := initLedger(ctx, cfg, db, redisClient, &logger)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	resolver := availability.NewResolver(cfg.Booking.SlotStepMinutes)
	slots := service.NewAvailabilityService(db, cache, resolver, loc, &logger)
	booking := service.NewBookingService(db, locker, cache, eventBus, syncWorker, resolver, service.BookingOptions{
		MaxAdvanceDays: cfg.Booking.MaxAdvanceDays,
		Location:       loc,
	}, &logger)

	svc := api.Services{
		Slots:    slots,
		Booking:  booking,
		Exporter: export.NewExporter(cfg.Exports.Path, loc, &logger),
		Location: loc,
		Health:   db.PingContext,
	}

	grpcServer, err := api.NewGRPCServer(&cfg.API, svc, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	httpServer := api.NewHTTPServer(&cfg.API, svc, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadCatalog(logger *zerolog.Logger) (*models.Catalog, error) {
	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = "configs/catalog.yaml"
	}
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("read catalog")
		return nil, err
	}

	var catalog models.Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("parse catalog")
		return nil, err
	}
	return &catalog, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	dirs := []string{cfg.Exports.Path}
	if cfg.Database.Path != ":memory:" {
		dirs = append(dirs, filepath.Dir(cfg.Database.Path))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error().Err(err).Str("dir", dir).Msg("Ошибка создания директории")
			return err
		}
	}
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, catalog *models.Catalog, loc *time.Location, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger, database.WithLocation(loc))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := db.SyncCatalog(ctx, catalog); err != nil {
		db.Close()
		logger.Error().Err(err).Msg("sync catalog")
		return nil, err
	}

	shops, err := db.ListShops(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("list shops")
	} else {
		logger.Info().Strs("shops", shops).Msg("catalog loaded")
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		// клиент оставляем: failover переключится на redis, когда он поднимется
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory fallback")
		return redisClient
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initCoordination builds the staff locker and slot cache. Without redis they are
// process-local, which is only correct for a single API instance.
func initCoordination(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (domain.StaffLocker, domain.SlotCache) {
	memLocker := repository.NewMemoryStaffLocker()
	memCache := repository.NewMemorySlotCache(cfg.Booking.CacheTTL)
	if redisClient == nil {
		logger.Warn().Msg("redis not configured, staff locks are process-local")
		return memLocker, memCache
	}

	locker := repository.NewFailoverStaffLocker(
		repository.NewRedisStaffLocker(redisClient, cfg.Booking.LockTTL), memLocker, logger)
	cache := repository.NewFailoverSlotCache(
		repository.NewRedisSlotCache(redisClient, cfg.Booking.CacheTTL), memCache, logger)
	return locker, cache
}

func subscribeAudit(bus *events.EventBus, logger *zerolog.Logger) {
	audit := logging.Component(logger, "audit")
	bus.OnError(func(ev *events.Event, err error) {
		audit.Error().Err(err).Str("event", ev.Type).Msg("event handler failed")
	})

	handler := func(ev *events.Event) error {
		var payload events.AppointmentEventPayload
		if err := ev.Decode(&payload); err != nil {
			return err
		}
		audit.Info().
			Str("event", ev.Type).
			Str("appointment_id", payload.AppointmentID).
			Str("shop_id", payload.ShopID).
			Str("staff_id", payload.StaffID).
			Str("status", string(payload.Status)).
			Str("previous_status", string(payload.PreviousStatus)).
			Int64("version", payload.Version).
			Msg("appointment event")
		return nil
	}
	for _, eventType := range events.AllAppointmentEvents {
		bus.Subscribe(eventType, handler)
	}
}

// initLedger starts the Google Sheets mirror. The returned worker is nil when
// the ledger is not configured or unreachable; booking never waits on it.
func initLedger(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) domain.SyncWorker {
	if !cfg.Google.Enabled() {
		logger.Info().Msg("google sheets ledger not configured")
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.AppointmentsSpreadsheetID, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without ledger")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without ledger")
		return nil
	}
	if err := sheetsService.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets header check failed")
	}
	go sheetsService.RunCacheRefresh(ctx, ledgerCacheRefresh)

	if failed, err := db.GetFailedSyncTasks(ctx); err == nil && len(failed) > 0 {
		logger.Warn().Int("count", len(failed)).Msg("ledger has failed sync tasks")
	}

	retryPolicy := worker.RetryPolicyFromConfig(cfg.Google.Retry)
	sheetsWorker := worker.NewSheetsWorker(db, sheetsService, redisClient, retryPolicy, logger)
	go sheetsWorker.Start(ctx)

	logger.Info().Msg("google sheets ledger initialized")
	return sheetsWorker
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().
		Bool("grpc", cfg.API.GRPC.Enabled).
		Str("grpc_addr", grpcServer.Addr()).
		Bool("http", cfg.API.HTTP.Enabled).
		Int("http_port", cfg.API.HTTP.Port).
		Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
