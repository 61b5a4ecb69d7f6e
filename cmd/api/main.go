// Package main provides the entrypoint for the Aegis safety engine.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aegis-safety/aegis/internal/api"
	"github.com/aegis-safety/aegis/internal/auth"
	"github.com/aegis-safety/aegis/internal/connectivity"
	"github.com/aegis-safety/aegis/internal/database"
	"github.com/aegis-safety/aegis/internal/dispatch"
	"github.com/aegis-safety/aegis/internal/dispatch/offlinequeue"
	"github.com/aegis-safety/aegis/internal/geofence"
	"github.com/aegis-safety/aegis/internal/history"
	"github.com/aegis-safety/aegis/internal/location"
	"github.com/aegis-safety/aegis/internal/location/sim"
	"github.com/aegis-safety/aegis/internal/notify"
	"github.com/aegis-safety/aegis/internal/notify/gateway"
	"github.com/aegis-safety/aegis/internal/share"
	"github.com/aegis-safety/aegis/internal/telemetry"
	"github.com/aegis-safety/aegis/internal/tracking"
	"github.com/aegis-safety/aegis/pkg/geo"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "aegis-engine"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Aegis safety engine")

	port := getEnvOrDefault("APP_PORT", "8080")
	env := getEnvOrDefault("APP_ENV", "development")
	otlpEndpoint := getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")

	userID := getEnvOrDefault("AEGIS_USER_ID", "usr_local")
	userName := getEnvOrDefault("AEGIS_USER_NAME", "Aegis User")

	// Initialize OpenTelemetry
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize JWT service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
	})

	// Repositories: in-memory by default, PostgreSQL when configured.
	var (
		zoneRepo  geofence.Repository
		alertRepo dispatch.Repository
		shareRepo share.Repository
	)

	if os.Getenv("STORE") == "postgres" {
		dbConfig := database.ConfigFromEnv()
		pool, dbErr := database.Connect(ctx, dbConfig)
		if dbErr != nil {
			log.Fatal().Err(dbErr).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		zoneRepo = geofence.NewPostgresRepository(pool)
		alertRepo = dispatch.NewPostgresRepository(pool)
		shareRepo = share.NewPostgresRepository(pool)
	} else {
		zoneRepo = geofence.NewInMemoryRepository()
		alertRepo = dispatch.NewInMemoryRepository()
		shareRepo = share.NewInMemoryRepository()
		log.Info().Msg("using in-memory stores")
	}

	// Connectivity monitor drives offline queue draining.
	monitor := connectivity.NewProbeMonitor(connectivity.ProbeConfig{
		URL:    getEnvOrDefault("CONNECTIVITY_PROBE_URL", "https://connectivity.aegis-safety.io/generate_204"),
		Logger: log,
	})
	go monitor.Run(ctx)

	// Location capability. The simulated walk stands in for a platform
	// positioning source outside of device builds.
	capability := sim.New(sim.Config{
		Origin: geo.Point{
			Lat: getEnvFloat("SIM_ORIGIN_LAT", 52.3676),
			Lon: getEnvFloat("SIM_ORIGIN_LON", 4.9041),
		},
	})

	tracker := tracking.NewManager(tracking.ManagerConfig{
		Capability: capability,
		Logger:     log,
	})
	log.Info().Msg("tracking manager initialized")

	// Zone service with read-mostly cache.
	zoneService := geofence.NewService(geofence.ServiceConfig{
		Repository: zoneRepo,
		Logger:     log,
		UserID:     userID,
	})

	// Notifier: HTTP gateway when configured, otherwise a local fake that
	// logs deliveries.
	var notifier notify.Notifier
	if gatewayURL := os.Getenv("GATEWAY_URL"); gatewayURL != "" {
		notifier = gateway.NewClient(gateway.ClientConfig{
			BaseURL: gatewayURL,
			APIKey:  os.Getenv("GATEWAY_API_KEY"),
		})
		log.Info().Str("gateway_url", gatewayURL).Msg("notification gateway configured")
	} else {
		notifier = notify.NewFakeNotifier()
		log.Warn().Msg("no notification gateway configured - deliveries are simulated")
	}

	// History recorder: Pub/Sub when configured, otherwise discard.
	var recorder history.Recorder = history.NopRecorder{}
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		pubsubRecorder, psErr := history.NewPubSubRecorder(ctx, history.PubSubConfig{
			ProjectID: projectID,
			TopicName: getEnvOrDefault("PUBSUB_HISTORY_TOPIC", "alert-history"),
			Logger:    log,
		})
		if psErr != nil {
			log.Fatal().Err(psErr).Msg("failed to initialize history recorder")
		}
		defer func() {
			if closeErr := pubsubRecorder.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close history recorder")
			}
		}()
		recorder = pubsubRecorder
		log.Info().Str("project_id", projectID).Msg("history recorder initialized")
	}

	// Offline queue survives restarts.
	queue, err := offlinequeue.Open(getEnvOrDefault("OFFLINE_QUEUE_PATH", "data/offline-queue.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open offline queue")
	}
	defer func() {
		if closeErr := queue.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close offline queue")
		}
	}()

	contacts := parseContacts(os.Getenv("TRUSTED_CONTACTS"))
	if len(contacts) == 0 {
		log.Warn().Msg("no trusted contacts configured - alert triggers will be rejected")
	}

	dispatcher := dispatch.NewService(dispatch.ServiceConfig{
		Repository: alertRepo,
		Notifier:   notifier,
		Contacts:   dispatch.StaticContacts(contacts),
		Logger:     log,
		Queue:      queue,
		Signal:     monitor,
		History:    recorder,
		UserID:     userID,
		UserName:   userName,
	})
	log.Info().Int("contacts", len(contacts)).Msg("dispatch service initialized")

	// Zone transitions feed the dispatch pipeline.
	evaluator := geofence.NewEvaluator(geofence.EvaluatorConfig{
		Zones:  zoneService,
		Logger: log,
		OnTransition: func(ev geofence.Event) {
			kind := dispatch.TriggerZoneEnter
			if ev.Kind == geofence.TransitionExited {
				kind = dispatch.TriggerZoneExit
			}
			pos := location.Position{Lat: ev.Lat, Lon: ev.Lon, CapturedAt: ev.At}
			if _, trigErr := dispatcher.Trigger(ctx, kind, &ev.Zone.ID, pos); trigErr != nil {
				log.Error().Err(trigErr).Str("zone_id", ev.Zone.ID).Msg("zone trigger failed")
			}
		},
	})
	tracker.Subscribe(func(p location.Position) {
		evaluator.Evaluate(ctx, p)
	})

	shareService := share.NewService(share.ServiceConfig{
		Repository: shareRepo,
		Positions:  tracker,
		Logger:     log,
		UserID:     userID,
	})
	go shareService.RunRefresher(ctx)
	log.Info().Msg("share service initialized")

	// Scheduled maintenance: sweep lapsed share sessions, resync the zone
	// cache from the remote store.
	scheduler := cron.New()
	if _, cronErr := scheduler.AddFunc("@every 1m", func() {
		if n, sweepErr := shareService.SweepExpired(ctx); sweepErr != nil {
			log.Error().Err(sweepErr).Msg("share sweep failed")
		} else if n > 0 {
			log.Info().Int("expired", n).Msg("share sessions swept")
		}
	}); cronErr != nil {
		log.Fatal().Err(cronErr).Msg("failed to schedule share sweep")
	}
	if _, cronErr := scheduler.AddFunc("@every 5m", func() {
		zoneService.Reload(ctx)
	}); cronErr != nil {
		log.Fatal().Err(cronErr).Msg("failed to schedule zone resync")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:         Version,
		BuildTime:       BuildTime,
		Logger:          log,
		ServiceName:     serviceName,
		JWTService:      jwtService,
		TrackingManager: tracker,
		ZoneService:     zoneService,
		DispatchService: dispatcher,
		ShareService:    shareService,
		Signal:          monitor,
		OfflineQueue:    queue,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Let in-flight deliveries settle before the queue and recorder close.
	tracker.StopAll()
	cancel()
	dispatcher.Wait()

	log.Info().Msg("server stopped")
}

// parseContacts reads TRUSTED_CONTACTS as a comma-separated list of
// kind:address:name entries, e.g. "sms:+31612345678:Maya,push:tok123:Ben".
func parseContacts(raw string) []notify.Recipient {
	var recipients []notify.Recipient
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 {
			continue
		}
		r := notify.Recipient{
			Kind:    notify.RecipientKind(parts[0]),
			Address: parts[1],
		}
		if len(parts) == 3 {
			r.Name = parts[2]
		}
		recipients = append(recipients, r)
	}
	return recipients
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
