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

	"github.com/geocoder89/eventconnect/internal/completion"
	"github.com/geocoder89/eventconnect/internal/config"
	httpx "github.com/geocoder89/eventconnect/internal/http"
	"github.com/geocoder89/eventconnect/internal/notifications"
	"github.com/geocoder89/eventconnect/internal/observability"
	"github.com/geocoder89/eventconnect/internal/redisclient"
	"github.com/geocoder89/eventconnect/internal/registration"
	"github.com/geocoder89/eventconnect/internal/repo/postgres"
	"github.com/geocoder89/eventconnect/internal/repo/sqlite"
	"github.com/geocoder89/eventconnect/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "eventconnect-api"

func main() {
	// Load the config set up
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: serviceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(reg)

	// store broker: remote postgres when configured, embedded sqlite otherwise
	var remote store.Connector
	if cfg.DBURL != "" {
		remote = postgres.Connector{
			URL:      cfg.DBURL,
			MaxConns: int32(cfg.DBMaxConns),
			Prom:     prom,
		}
	} else {
		log.Warn("no remote store configured, running on the embedded store")
	}

	broker := store.NewBroker(store.BrokerConfig{
		Remote:         remote,
		Embedded:       sqlite.NewServer(sqlite.WithLogger(log), sqlite.WithObserver(prom)),
		ConnectTimeout: cfg.ConnectTimeout,
		PingTimeout:    cfg.PingTimeout,
		Logger:         log,
		Metrics:        prom,
	})

	notifier, err := notifications.New(notifications.Config{
		Provider:    cfg.NotifierProvider,
		FromAddress: cfg.EmailFrom,
		FromName:    cfg.EmailFromName,
		SES: notifications.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		},
		Protect: notifications.ProtectedNotifierConfig{
			Timeout: cfg.NotifierSendTimeout,
			OnStateChange: func(from, to string) {
				log.Warn("notifier circuit changed state", "from", from, "to", to)
			},
		},
	}, log)
	if err != nil {
		log.Error("notifier init failed", "err", err)
		os.Exit(1)
	}
	renderer := notifications.NewTemplateRenderer()

	dispatcher := notifications.NewDispatcher(notifier, renderer, notifications.DispatchConfig{
		BatchSize: cfg.NotifyBatchSize,
		Template:  notifications.TemplateFollowup,
		Sender:    cfg.EmailFromName,
		Logger:    log,
		Metrics:   prom,
	})

	wfCfg := completion.Config{
		Broker:     broker,
		Dispatcher: dispatcher,
		Metrics:    prom,
		Logger:     log,
	}

	if cfg.RedisAddr != "" {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rc.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			log.Warn("redis unreachable, completion events may not be published", "addr", cfg.RedisAddr, "err", err)
		}
		cancel()

		wfCfg.Publisher = rc
	}

	workflow := completion.NewWorkflow(wfCfg)

	if cfg.SeedFile != "" {
		if err := seed(ctx, cfg.SeedFile, broker, log); err != nil {
			log.Error("seed failed", "file", cfg.SeedFile, "err", err)
		}
	}

	router := httpx.NewRouter(httpx.RouterDeps{
		Env:         cfg.Env,
		ServiceName: serviceName,
		Log:         log,
		Prom:        prom,
		Gatherer:    reg,
		Completer:   workflow,
		Ready: func(ctx context.Context) (string, error) {
			if _, err := broker.Acquire(ctx); err != nil {
				return "", err
			}
			return string(broker.Mode()), nil
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// completion waits on every notification batch
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}
	if err := broker.Release(shutdownCtx); err != nil {
		log.Error("store release failed", "err", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}

	log.Info("shutdown complete")
}

// seed loads demo data without sending confirmations.
func seed(ctx context.Context, path string, broker *store.Broker, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	svc := registration.NewService(registration.Config{
		Broker: broker,
		Logger: log,
	})

	_, err = svc.Seed(ctx, f)
	return err
}
