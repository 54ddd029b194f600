package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	alarmsapp "greenhouse-cloud/internal/alarms/application"
	alarmsrepo "greenhouse-cloud/internal/alarms/infrastructure/postgres"
	alarmshttp "greenhouse-cloud/internal/alarms/interfaces/http"
	"greenhouse-cloud/internal/alarms/notify"
	"greenhouse-cloud/internal/audit"
	"greenhouse-cloud/internal/auth"
	commandsapp "greenhouse-cloud/internal/commands/application"
	commandsrepo "greenhouse-cloud/internal/commands/infrastructure/postgres"
	commandshttp "greenhouse-cloud/internal/commands/interfaces/http"
	"greenhouse-cloud/internal/config"
	devicesapp "greenhouse-cloud/internal/devices/application"
	devicesrepo "greenhouse-cloud/internal/devices/infrastructure/postgres"
	deviceshttp "greenhouse-cloud/internal/devices/interfaces/http"
	"greenhouse-cloud/internal/eventbus"
	"greenhouse-cloud/internal/exports"
	"greenhouse-cloud/internal/observability/metrics"
	telemetryapp "greenhouse-cloud/internal/telemetry/application"
	telemetryinflux "greenhouse-cloud/internal/telemetry/infrastructure/influx"
	telemetryrepo "greenhouse-cloud/internal/telemetry/infrastructure/postgres"
	telemetryhttp "greenhouse-cloud/internal/telemetry/interfaces/http"
	telemetrymqtt "greenhouse-cloud/internal/telemetry/interfaces/mqtt"
	usersapp "greenhouse-cloud/internal/users/application"
	usersrepo "greenhouse-cloud/internal/users/infrastructure/postgres"
	usershttp "greenhouse-cloud/internal/users/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db)
	auditRepo := audit.NewRepository(db)

	userRepo := usersrepo.NewUserRepository(db)
	userService, err := usersapp.NewService(userRepo, []byte(cfg.JWTSecret), cfg.TokenTTL, cfg.BcryptCost)
	if err != nil {
		logger.Fatalf("user service error: %v", err)
	}
	userHandler, err := usershttp.NewHandler(userService)
	if err != nil {
		logger.Fatalf("user handler error: %v", err)
	}

	deviceRepo := devicesrepo.NewDeviceRepository(db)
	deviceService, err := devicesapp.NewService(deviceRepo)
	if err != nil {
		logger.Fatalf("device service error: %v", err)
	}
	deviceHandler, err := deviceshttp.NewHandler(deviceService, auditRepo)
	if err != nil {
		logger.Fatalf("device handler error: %v", err)
	}
	deviceVerifier := auth.NewDeviceVerifier(deviceRepo, cfg.DeviceAuth.RequireToken)

	commandRepo := commandsrepo.NewCommandRepository(db)
	commandService, err := commandsapp.NewService(commandRepo, deviceService, cfg.Commands.CompletionMode)
	if err != nil {
		logger.Fatalf("command service error: %v", err)
	}
	commandHandler, err := commandshttp.NewHandler(commandService, deviceVerifier, auditRepo)
	if err != nil {
		logger.Fatalf("command handler error: %v", err)
	}

	bus := eventbus.NewInMemoryBus()

	telemetryStore := telemetryrepo.NewTelemetryRepository(db)
	telemetryQuery := telemetryrepo.NewTelemetryQuery(db)
	telemetryOpts := []telemetryapp.Option{
		telemetryapp.WithPublisher(bus),
		telemetryapp.WithLogger(logger),
	}
	if cfg.Influx.URL != "" {
		sink, err := telemetryinflux.NewSink(cfg.Influx)
		if err != nil {
			logger.Fatalf("influx sink error: %v", err)
		}
		defer sink.Close()
		telemetryOpts = append(telemetryOpts, telemetryapp.WithSink(sink))
	}
	telemetryService, err := telemetryapp.NewService(telemetryStore, telemetryQuery, deviceRepo, telemetryOpts...)
	if err != nil {
		logger.Fatalf("telemetry service error: %v", err)
	}
	telemetryHandler, err := telemetryhttp.NewHandler(telemetryService, deviceVerifier)
	if err != nil {
		logger.Fatalf("telemetry handler error: %v", err)
	}

	alarmRepo := alarmsrepo.NewAlarmRepository(db)
	alarmOpts := []alarmsapp.Option{alarmsapp.WithLogger(logger)}
	if cfg.AlarmWebhookURL != "" {
		notifier, err := notify.NewWebhookNotifier(cfg.AlarmWebhookURL)
		if err != nil {
			logger.Fatalf("alarm webhook error: %v", err)
		}
		alarmOpts = append(alarmOpts, alarmsapp.WithNotifier(notifier))
	}
	alarmService, err := alarmsapp.NewService(alarmRepo, deviceService, alarmOpts...)
	if err != nil {
		logger.Fatalf("alarm service error: %v", err)
	}
	alarmHandler, err := alarmshttp.NewHandler(alarmService)
	if err != nil {
		logger.Fatalf("alarm handler error: %v", err)
	}
	bus.Subscribe(eventbus.EventTypeOf[telemetryapp.TelemetryReceived](), alarmService.HandleTelemetry)

	exportHandler, err := exports.NewHandler(telemetryQuery, deviceService)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MQTT.BrokerURL != "" {
		subscriber, err := telemetrymqtt.Connect(ctx, cfg.MQTT, telemetryService, logger)
		if err != nil {
			logger.Fatalf("mqtt subscriber error: %v", err)
		}
		go func() {
			if err := subscriber.Run(ctx); err != nil {
				logger.Printf("mqtt subscriber stopped: %v", err)
			}
		}()
	}

	if cfg.Commands.PendingExpiry > 0 || cfg.Commands.Retention > 0 {
		go runCommandJanitor(ctx, commandService, cfg.Commands, logger)
	}

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewDefaultPolicy())

	mux := http.NewServeMux()
	mux.Handle("/api/v1/auth/", userHandler)
	mux.Handle("/api/v1/devices", deviceHandler)
	mux.Handle("/api/v1/devices/", deviceHandler)
	mux.Handle("/api/v1/commands", commandHandler)
	mux.Handle("/api/v1/commands/", commandHandler)
	mux.HandleFunc("/ingest/telemetry", telemetryHandler.HandleIngest)
	mux.HandleFunc("/api/v1/telemetry/latest/", telemetryHandler.HandleLatest)
	mux.HandleFunc("/api/v1/telemetry/history/", telemetryHandler.HandleHistory)
	mux.Handle("/api/v1/alarms", alarmHandler)
	mux.Handle("/api/v1/alarms/", alarmHandler)
	mux.Handle("/api/v1/exports/telemetry.csv", exportHandler)
	mux.Handle("/api/v1/exports/telemetry.xlsx", exportHandler)
	mux.Handle("/api/v1/exports/telemetry.pdf", exportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

// runCommandJanitor periodically fails stale pending commands and prunes old
// terminal ones, per configuration.
func runCommandJanitor(ctx context.Context, service *commandsapp.Service, cfg config.Commands, logger *log.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if cfg.PendingExpiry > 0 {
				expired, err := service.ExpirePending(ctx, cfg.PendingExpiry)
				if err != nil {
					logger.Printf("command janitor: expire error: %v", err)
				} else if expired > 0 {
					logger.Printf("command janitor: expired %d pending commands", expired)
				}
			}
			if cfg.Retention > 0 {
				pruned, err := service.PruneTerminal(ctx, cfg.Retention)
				if err != nil {
					logger.Printf("command janitor: prune error: %v", err)
				} else if pruned > 0 {
					logger.Printf("command janitor: pruned %d terminal commands", pruned)
				}
			}
		}
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
