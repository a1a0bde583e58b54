package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/cache"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/database"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/events"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/providers/directions"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/providers/geocoding"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/providers/routing"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/providers/transport"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/search"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/surface"
	"github.com/zatekoja/fieldservice-locator/internal/api/handlers"
	"github.com/zatekoja/fieldservice-locator/internal/api/middleware"
	"github.com/zatekoja/fieldservice-locator/internal/api/routes"
	"github.com/zatekoja/fieldservice-locator/internal/application/services"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
	"github.com/zatekoja/fieldservice-locator/internal/domain/repositories"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/clients/redis"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/observability"
	"github.com/zatekoja/fieldservice-locator/pkg/config"
	"github.com/zatekoja/fieldservice-locator/pkg/secrets"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vault secrets are exported into the environment before config is read
	vaultResult, vaultErr := secrets.ApplyVaultSecrets(ctx, secrets.LoadVaultConfigFromEnv())

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Log.Env, cfg.Log.Level)
	if vaultErr != nil {
		log.Warn().Err(vaultErr).Msg("failed to import secrets from Vault")
	} else if vaultResult.Enabled {
		log.Info().Str("path", vaultResult.Path).Int("loaded", vaultResult.Loaded).Int("skipped", vaultResult.Skipped).Msg("imported secrets from Vault")
	}

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			observability.BridgeLogsToOTEL(cfg.OTEL.ServiceName)
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

	// Redis backs both the shared cache and the cross-instance event bus
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, falling back to in-process cache and events")
			redisClient = nil
		} else {
			defer redisClient.Close()
			log.Info().Msg("Redis client initialized")
		}
	}

	cacheProvider := newCacheProvider(cfg, redisClient)

	var eventBus providers.EventBus
	if redisClient != nil {
		eventBus = events.NewRedisEventBus(redisClient)
	} else {
		eventBus = events.NewMemoryEventBus()
	}
	defer eventBus.Close()

	roster, closeRoster := newRoster(ctx, cfg, cacheProvider)
	defer closeRoster()

	index := newProviderIndex(ctx, cfg, roster)

	geocoder := newGeocoder(cfg, cacheProvider, metrics)
	directionsProvider := newDirections(cfg, cacheProvider, metrics)
	routingProvider := newRouting(cfg)

	classifier, err := services.NewQueryClassifier(cfg.Search.PostalCodePattern)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid postal code pattern")
	}

	opts := &services.SessionOptions{
		Classifier: classifier,
		Resolver:   services.NewLocationResolver(geocoder, index, cfg.Search.RequestTimeout, metrics),
		Suggestions: services.NewSuggestionService(classifier, geocoder, services.SuggestionOptions{
			Debounce:  cfg.Search.SuggestDebounce,
			MinLength: cfg.Search.SuggestMinLength,
			Limit:     cfg.Search.SuggestLimit,
			Timeout:   cfg.Search.RequestTimeout,
		}),
		Ranker:     services.NewProximityRanker(),
		Roster:     roster,
		Directions: directionsProvider,
		Routing:    routingProvider,
		Bus:        eventBus,
		NewSurface: func(sessionID string) providers.MapSurface {
			return surface.NewEventSurface(sessionID, eventBus)
		},
		Profiles: map[services.View]services.RankingProfile{
			services.ViewDefault: {MaxRadiusKm: cfg.Search.MaxRadiusKm, MaxResults: cfg.Search.MaxResults},
			services.ViewCompact: {MaxRadiusKm: cfg.Search.CompactMaxRadiusKm, MaxResults: cfg.Search.CompactMaxResults},
		},
		Enricher: services.EnricherOptions{
			FallbackSpeedKmh: cfg.Search.FallbackSpeedKmh,
			Timeout:          cfg.Search.RequestTimeout,
			Concurrency:      cfg.Search.EnrichmentConcurrency,
		},
		RequestTimeout:   cfg.Search.RequestTimeout,
		FallbackSpeedKmh: cfg.Search.FallbackSpeedKmh,
		Metrics:          metrics,
	}

	registry := services.NewSessionRegistry(opts, cfg.Search.SessionTTL)
	defer registry.Close()
	go registry.Run(ctx)

	router := routes.NewRouter(
		handlers.NewSessionHandler(registry),
		handlers.NewSSEHandler(eventBus, registry, cfg.Server.HeartbeatInterval),
		handlers.NewLocatorHandler(classifier, roster),
		middleware.NewCacheMiddleware(cacheProvider, nil),
		cfg.Server.AllowedOrigins,
		metrics,
	)

	// WriteTimeout stays zero so session streams are not cut off. Request contexts
	// derive from ctx so cancelling it ends open streams on shutdown.
	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router.SetupRoutes(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}

func newCacheProvider(cfg *config.Config, redisClient *redis.Client) providers.CacheProvider {
	if cfg.Cache.Backend == "redis" && redisClient != nil {
		return cache.NewRedisAdapter(redisClient, "fsl:")
	}
	log.Info().Int("size", cfg.Cache.MemorySize).Msg("using in-memory cache")
	return cache.NewMemoryAdapter(cfg.Cache.MemorySize, cfg.Cache.MemoryTTL)
}

// newRoster prefers Postgres and falls back to the roster file
func newRoster(ctx context.Context, cfg *config.Config, cacheProvider providers.CacheProvider) (repositories.ProviderRepository, func()) {
	if cfg.Database.Enabled {
		pgClient, err := postgres.NewClient(&cfg.Database)
		if err == nil {
			adapter := database.NewProviderAdapter(pgClient)
			if err := adapter.EnsureSchema(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to ensure providers schema")
			}
			log.Info().Msg("roster served from PostgreSQL")
			return database.NewCachedProviderAdapter(adapter, cacheProvider, cfg.Roster.CacheTTLSeconds), func() { pgClient.Close() }
		}
		if cfg.Roster.File == "" {
			log.Fatal().Err(err).Msg("failed to initialize PostgreSQL client and no ROSTER_FILE configured")
		}
		log.Warn().Err(err).Msg("PostgreSQL unavailable, using roster file")
	}

	if cfg.Roster.File == "" {
		log.Warn().Msg("no roster configured, serving an empty roster")
		return database.NewStaticProviderRepository(nil), func() {}
	}
	static, err := database.LoadStaticProviderRepository(cfg.Roster.File)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.Roster.File).Msg("failed to load roster file")
	}
	log.Info().Str("file", cfg.Roster.File).Msg("roster served from file")
	return static, func() {}
}

// newProviderIndex returns the Typesense index, or nil to use in-process text matching
func newProviderIndex(ctx context.Context, cfg *config.Config, roster repositories.ProviderRepository) repositories.ProviderSearchRepository {
	if !cfg.Typesense.Enabled {
		return nil
	}
	client, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		log.Warn().Err(err).Msg("Typesense unavailable, local search runs in-process")
		return nil
	}
	if err := client.InitSchema(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to init Typesense schema")
		return nil
	}

	adapter := search.NewTypesenseAdapter(client)
	if list, err := roster.List(ctx); err == nil {
		if err := adapter.Index(ctx, list); err != nil {
			log.Warn().Err(err).Msg("failed to index roster")
		}
	}
	return adapter
}

func newGeocoder(cfg *config.Config, cacheProvider providers.CacheProvider, metrics *observability.Metrics) providers.GeocodingProvider {
	var geocoder providers.GeocodingProvider
	switch strings.ToLower(cfg.Geocoding.Provider) {
	case "google":
		geocoder = geocoding.NewGoogleProviderWithOptions(cfg.Geocoding.APIKey, cfg.Geocoding.Region, cfg.Geocoding.BaseURL, transport.NewHTTPClient(0))
	case "nominatim":
		geocoder = geocoding.NewNominatimProvider(geocoding.NominatimOptions{
			BaseURL:           cfg.Geocoding.BaseURL,
			UserAgent:         cfg.Geocoding.UserAgent,
			CountryCodes:      cfg.Geocoding.CountryCodes,
			RequestsPerSecond: cfg.Geocoding.RequestsPerSecond,
		})
	default:
		log.Warn().Str("provider", cfg.Geocoding.Provider).Msg("using mock geocoder")
		return geocoding.NewMockProvider()
	}
	log.Info().Str("provider", cfg.Geocoding.Provider).Msg("geocoding provider configured")
	return geocoding.NewCachedProvider(geocoder, cacheProvider, cfg.Geocoding.CacheTTLSeconds, metrics)
}

// newDirections falls back to a provider that is always unavailable, so every
// candidate gets a labeled estimate
func newDirections(cfg *config.Config, cacheProvider providers.CacheProvider, metrics *observability.Metrics) providers.DirectionsProvider {
	d := cfg.Directions
	var inner providers.DirectionsProvider
	switch strings.ToLower(d.Provider) {
	case "ors":
		inner = directions.NewORSProvider(d.APIKey, d.BaseURL, d.Profile, transport.NewHTTPClient(0))
	case "google":
		inner = directions.NewGoogleRoutesProvider(d.APIKey, d.BaseURL, googleTravelMode(d.Profile), transport.NewHTTPClient(0))
	default:
		log.Info().Msg("no directions provider, travel times are estimates")
		return directions.NewUnconfiguredProvider()
	}

	guarded := directions.NewBreakerProvider(inner, d.BreakerFailures, d.BreakerOpenFor)
	namespace := strings.ToLower(d.Provider) + ":" + d.Profile
	return directions.NewCachedProvider(guarded, cacheProvider, namespace, d.GeohashPrecision, d.CacheTTLSeconds, metrics)
}

// googleTravelMode maps an ORS-style profile to a Routes API travel mode
func googleTravelMode(profile string) string {
	switch {
	case strings.HasPrefix(profile, "driving"):
		return "DRIVE"
	case strings.HasPrefix(profile, "cycling"):
		return "BICYCLE"
	case strings.HasPrefix(profile, "foot"):
		return "WALK"
	default:
		return profile
	}
}

// newRouting falls back to a provider that always fails, so overlays are straight
// labeled lines
func newRouting(cfg *config.Config) providers.RoutingProvider {
	if strings.ToLower(cfg.Routing.Provider) != "osrm" {
		return routing.NewUnconfiguredProvider()
	}
	osrm := routing.NewOSRMProvider(cfg.Routing.BaseURL, cfg.Routing.Profile, transport.NewHTTPClient(0))
	return routing.NewBreakerProvider(osrm, cfg.Directions.BreakerFailures, cfg.Directions.BreakerOpenFor)
}
