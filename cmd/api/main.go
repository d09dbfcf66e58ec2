package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/zatekoja/bedflow/internal/adapters/cache"
	"github.com/zatekoja/bedflow/internal/adapters/database"
	"github.com/zatekoja/bedflow/internal/adapters/events"
	"github.com/zatekoja/bedflow/internal/adapters/memory"
	"github.com/zatekoja/bedflow/internal/adapters/schedule"
	"github.com/zatekoja/bedflow/internal/api/handlers"
	"github.com/zatekoja/bedflow/internal/api/routes"
	"github.com/zatekoja/bedflow/internal/application/services"
	"github.com/zatekoja/bedflow/internal/domain/providers"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
	"github.com/zatekoja/bedflow/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/bedflow/internal/infrastructure/clients/redis"
	"github.com/zatekoja/bedflow/internal/infrastructure/clients/sqlite"
	"github.com/zatekoja/bedflow/internal/infrastructure/observability"
	"github.com/zatekoja/bedflow/internal/registry"
	"github.com/zatekoja/bedflow/pkg/config"
	"github.com/zatekoja/bedflow/pkg/secrets"
)

func main() {
	// Vault-held credentials must be in the environment before config is read
	if _, err := secrets.ApplyVaultSecrets(context.Background(), secrets.LoadVaultConfigFromEnv()); err != nil {
		fmt.Fprintf(os.Stderr, "bedflow: vault: %v\n", err)
		os.Exit(2)
	}

	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "bedflow: %v\n", err)
		os.Exit(2)
	}

	observability.InitLogger(observability.LoggerOptions{
		Service: cfg.OTEL.ServiceName,
		Version: cfg.OTEL.ServiceVersion,
		Env:     cfg.Env,
		Store:   cfg.Store.Driver,
	})

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	store, err := openStore(ctx, cfg, metrics)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer store.Close()

	// Redis backs the event bus, the forecast memo and the external discharge schedule.
	// The core runs without it.
	var (
		eventBus      providers.EventBus
		cacheProvider providers.CacheProvider
		redisSchedule *schedule.RedisSchedule
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without events, cache and external schedule")
		} else {
			defer redisClient.Close()
			eventBus = events.NewRedisEventBus(redisClient)
			cacheProvider = cache.NewRedisAdapter(redisClient, "bedflow")
			redisSchedule = schedule.NewRedisSchedule(redisClient)
		}
	}

	reg := registry.New(registry.WithPersister(store))
	if err := loadRegistry(ctx, reg, store); err != nil {
		log.Fatal().Err(err).Msg("failed to load bed registry")
	}

	notifier := services.NewNotifier(eventBus)
	allocationService := services.NewAllocationService(reg, notifier, metrics, services.AllocationConfig{
		MinCleaningDwell: cfg.Allocation.MinCleaningDwell,
		ReservationTTL:   cfg.Allocation.ReservationTTL,
	})
	if err := allocationService.LoadRequests(ctx, store); err != nil {
		log.Fatal().Err(err).Msg("failed to load admission requests")
	}

	wardService := services.NewWardService(reg, notifier)
	if cfg.LayoutFile != "" {
		layout, err := config.LoadWardLayout(cfg.LayoutFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.LayoutFile).Msg("failed to load ward layout")
		}
		created, err := wardService.ProvisionLayout(ctx, layout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to provision ward layout")
		}
		log.Info().Int("created", created).Int("wards", len(layout.Wards)).Msg("ward layout provisioned")
	}

	occupancyService := services.NewOccupancyService(reg, store, notifier, metrics)
	if err := occupancyService.Restore(ctx, reg.Now()); err != nil {
		log.Warn().Err(err).Msg("failed to restore in-progress day, starting fresh")
	}

	var dischargeSchedule providers.DischargeScheduleProvider = services.NewRequestDischargeSchedule(allocationService, reg)
	var scheduleWriter handlers.ScheduleWriter
	if redisSchedule != nil {
		dischargeSchedule = services.NewCombinedDischargeSchedule(dischargeSchedule, redisSchedule)
		scheduleWriter = redisSchedule
	}

	forecastService := services.NewForecastService(reg, occupancyService, dischargeSchedule, cacheProvider, metrics, cfg.Sampling.Interval)
	advisoryService := services.NewAdvisoryService(reg, forecastService)

	var sseHandler *handlers.SSEHandler
	if eventBus != nil {
		sseHandler = handlers.NewSSEHandler(eventBus)
	}

	router := routes.NewRouter(
		handlers.NewRequestHandler(allocationService),
		handlers.NewBedHandler(allocationService),
		handlers.NewWardHandler(wardService),
		handlers.NewOccupancyHandler(occupancyService),
		handlers.NewForecastHandler(forecastService, advisoryService, dischargeSchedule, scheduleWriter, reg),
		sseHandler,
		metrics,
		cfg.CORS,
	)

	// The sampler drives reservation expiry, cleaning release and occupancy sampling
	sampler := services.NewSampler(allocationService, occupancyService, cfg.Sampling.Interval, nil)
	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		sampler.Run(ctx)
	}()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     router.SetupRoutes(),
		ReadTimeout: 15 * time.Second,
		// event streams stay open, so no write timeout
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Str("store", cfg.Store.Driver).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// stop the sampler and let it checkpoint the in-progress day
	cancel()
	<-samplerDone

	if eventBus != nil {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("error closing event bus")
		}
	}

	log.Info().Msg("server stopped")
}

// loadConfig reads the environment and applies command-line overrides
func loadConfig(args []string) (*config.Config, error) {
	var layout, env, driver string

	flagSet := pflag.NewFlagSet("bedflow", pflag.ContinueOnError)
	flagSet.StringVar(&layout, "layout", "", "YAML ward layout to provision on start (overrides WARD_LAYOUT_FILE)")
	flagSet.StringVar(&env, "env", "", "runtime environment (overrides APP_ENV)")
	flagSet.StringVar(&driver, "store", "", "persistence backend: memory, postgres or sqlite (overrides STORE_DRIVER)")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if layout != "" {
		cfg.LayoutFile = layout
	}
	if env != "" {
		cfg.Env = env
	}
	if driver != "" {
		cfg.Store.Driver = driver
	}
	return cfg, cfg.Validate()
}

// openStore connects the configured persistence backend and applies its schema
func openStore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (repositories.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		client, err := postgres.NewClient(&cfg.Database)
		if err != nil {
			return nil, err
		}
		store := database.NewPostgresStore(client).WithMetrics(metrics)
		if err := store.Migrate(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return closingStore{Store: store, close: client.Close}, nil
	case "sqlite":
		client, err := sqlite.NewClient(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		store := database.NewSQLiteStore(client).WithMetrics(metrics)
		if err := store.Migrate(ctx); err != nil {
			client.Close()
			return nil, err
		}
		return closingStore{Store: store, close: client.Close}, nil
	default:
		return memory.NewStore(), nil
	}
}

// closingStore closes the underlying client along with the store
type closingStore struct {
	*database.Store
	close func() error
}

func (s closingStore) Close() error {
	return errors.Join(s.Store.Close(), s.close())
}

func loadRegistry(ctx context.Context, reg *registry.Registry, store repositories.Store) error {
	wards, err := store.ListWards(ctx)
	if err != nil {
		return err
	}
	beds, err := store.ListBeds(ctx)
	if err != nil {
		return err
	}
	if err := reg.Load(wards, beds); err != nil {
		return err
	}
	log.Info().Int("wards", len(wards)).Int("beds", len(beds)).Msg("bed registry loaded")
	return nil
}
