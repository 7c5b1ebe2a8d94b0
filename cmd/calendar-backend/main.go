package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"github.com/linagora/esn-sabre-sub002/internal/app/calendars"
	"github.com/linagora/esn-sabre-sub002/internal/app/changelog"
	"github.com/linagora/esn-sabre-sub002/internal/app/objects"
	"github.com/linagora/esn-sabre-sub002/internal/app/principals"
	"github.com/linagora/esn-sabre-sub002/internal/app/scheduling"
	"github.com/linagora/esn-sabre-sub002/internal/app/sharing"
	"github.com/linagora/esn-sabre-sub002/internal/app/subscriptions"
	"github.com/linagora/esn-sabre-sub002/internal/backend"
	"github.com/linagora/esn-sabre-sub002/internal/messaging"
	"github.com/linagora/esn-sabre-sub002/internal/platform/dbpool"
	"github.com/linagora/esn-sabre-sub002/internal/platform/env"
	"github.com/linagora/esn-sabre-sub002/internal/platform/metrics"
	"github.com/linagora/esn-sabre-sub002/internal/platform/natsutil"
)

type schemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

func main() {
	ctx := context.Background()

	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	listenAddr := env.String("LISTEN_ADDR", env.DefaultListenAddr)
	ensureSchema := env.Bool("ENSURE_SCHEMA", true)
	retentionDays := env.Int("SCHEDULING_RETENTION_DAYS", 0)

	pool, err := dbpool.New(ctx, pgURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	calendarRepo := calendars.NewRepository(pool)
	instanceRepo := calendars.NewInstanceRepository(pool)
	objectRepo := objects.NewRepository(pool)
	changeRepo := changelog.NewRepository(pool)
	schedulingRepo := scheduling.NewRepository(pool)
	subscriptionRepo := subscriptions.NewRepository(pool)

	ensurers := []schemaEnsurer{}
	if ensureSchema {
		ensurers = append(ensurers,
			calendarRepo, instanceRepo, objectRepo, changeRepo, schedulingRepo, subscriptionRepo)
	}
	if err := waitForPostgres(ctx, pool, ensurers, 30*time.Second); err != nil {
		log.Fatal(err)
	}

	client, err := natsutil.ConnectJetStreamWithRetry(natsURL, 20*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	publish := messaging.NewPublishFunc(client.JS)

	directory := principals.NewCache(principals.PassthroughDirectory{})

	subscriptionSvc := subscriptions.NewService(subscriptionRepo)
	schedulingSvc := scheduling.NewService(schedulingRepo)
	objectSvc := objects.NewService(objectRepo, changeRepo)
	changelogSvc := changelog.NewService(calendarRepo, objectRepo, changeRepo)

	ops := metrics.NewCounterVec(metrics.Opts{
		Name: "calendar_backend_operations_total",
		Help: "Backend operations by name.",
	}, []string{"operation"})
	registry := metrics.NewRegistry()
	registry.MustRegister(ops)

	b := &backend.Backend{
		Objects:       objectSvc,
		Changelog:     changelogSvc,
		Scheduling:    schedulingSvc,
		Subscriptions: subscriptionSvc,
		Publish:       publish,
		Operations:    ops,
	}
	sharingSvc := sharing.NewService(instanceRepo, directory, subscriptionSvc, b)
	sharingSvc.Publish = publish
	b.Sharing = sharingSvc
	b.Calendars = &calendars.Service{
		Calendars:   calendarRepo,
		Instances:   instanceRepo,
		Objects:     objectRepo,
		Changes:     changeRepo,
		Sharing:     sharingSvc,
		Subscribers: subscriptionSvc,
		Paths:       b,
		Principals:  directory,
	}

	reaper := cron.New()
	if _, err := schedulingSvc.StartReaper(reaper, retentionDays); err != nil {
		log.Fatal(err)
	}
	reaper.Start()
	defer reaper.Stop()

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Method(http.MethodGet, "/metrics", registry.Handler())

	log.Println("calendar backend listening on", listenAddr)
	log.Fatal(http.ListenAndServe(listenAddr, router))
}

func waitForPostgres(ctx context.Context, pool *pgxpool.Pool, ensurers []schemaEnsurer, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		if lastErr == nil {
			for _, ensurer := range ensurers {
				if lastErr = ensurer.EnsureSchema(attemptCtx); lastErr != nil {
					break
				}
			}
		}
		cancel()
		if lastErr == nil {
			return nil
		}
		log.Printf("waiting for postgres readiness: %v", lastErr)
		time.Sleep(time.Second)
	}
	return lastErr
}
