// Command acsd is the access control service's entrypoint: it loads
// configuration, connects every external dependency, rebuilds the entity
// graph from Postgres, starts the command executor, and serves until an
// OS signal requests a graceful shutdown.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/access-control/acs-core/internal/adapters/mongodb"
	"github.com/access-control/acs-core/internal/adapters/postgres"
	"github.com/access-control/acs-core/internal/adapters/rabbitmq"
	"github.com/access-control/acs-core/internal/adapters/redis"
	"github.com/access-control/acs-core/internal/config"
	"github.com/access-control/acs-core/internal/domain/audit"
	"github.com/access-control/acs-core/internal/domain/cache"
	"github.com/access-control/acs-core/internal/domain/command"
	"github.com/access-control/acs-core/internal/domain/dlq"
	"github.com/access-control/acs-core/internal/domain/executor"
	"github.com/access-control/acs-core/internal/domain/graph"
	"github.com/access-control/acs-core/internal/domain/normalize"
	"github.com/access-control/acs-core/internal/domain/persistence"
	"github.com/access-control/acs-core/internal/service"
	"github.com/access-control/acs-core/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := telemetry.NewZapLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgConn := &postgres.Connection{
		PrimaryDSN: cfg.PostgresPrimaryDSN,
		ReplicaDSN: cfg.PostgresReplicaDSN,
		DBName:     cfg.PostgresDBName,
		Logger:     logger,
	}

	if err := pgConn.Connect(); err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}

	redisConn := &redis.Connection{URL: cfg.RedisURL, Logger: logger}
	rabbitConn := &rabbitmq.Connection{URL: cfg.RabbitMQURL, Logger: logger}
	mongoConn := &mongodb.Connection{URI: cfg.MongoURI, Database: cfg.TenantID, Logger: logger}

	principalRepo := postgres.NewPrincipalRepository(pgConn)
	store := postgres.NewStore(pgConn)
	auditRepo := postgres.NewAuditRepository(pgConn)
	dlqStore := mongodb.NewStore(mongoConn)
	dlqNotifier := rabbitmq.NewNotifier(rabbitConn)

	g := graph.New()

	if err := g.LoadFromStore(ctx, principalRepo); err != nil {
		logger.Fatalf("load graph: %v", err)
	}

	mirror := redis.NewMirror(redisConn)
	entityCache := cache.New(g, cfg.CacheTTL, mirror)
	entityCache.Warmup(append(append(g.Users(), g.Groups()...), g.Roles()...))

	dlqQueue := dlq.New(dlqStore, dlqNotifier)

	auditWriter, err := audit.NewWriter(ctx, auditRepo, dlqQueueSink{dlqQueue})
	if err != nil {
		logger.Fatalf("init audit writer: %v", err)
	}

	orchestrator := persistence.New(store)

	svc := service.New(g, entityCache, orchestrator, auditWriter, dlqQueue, logger,
		executor.WithCapacity(cfg.ChannelCapacity),
		executor.WithDrainDeadline(cfg.DrainDeadline),
		executor.OnSlowCommand(func(kind command.Kind, elapsed time.Duration) {
			metrics.SlowCommands.WithLabelValues(string(kind)).Inc()
		}),
	)

	go runRedriveLoop(ctx, dlqQueue, orchestrator, cfg.RedriveInterval, cfg.RedriveBatch, logger)

	logger.Infof("acs-core ready for tenant %s", cfg.TenantID)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.DrainDeadline+5*time.Second)
	defer cancel()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// runRedriveLoop periodically drains the dead-letter queue for every
// registered command kind, replaying each entry's row operations through
// the same persistence orchestrator the live path uses (spec.md §4.5). It
// does not redrive "audit_append" entries: those carry only the failed
// record's details JSON, not row operations, since an audit write never
// touches normalize/persistence in the first place.
func runRedriveLoop(ctx context.Context, q *dlq.Queue, orchestrator *persistence.Orchestrator, interval time.Duration, batch int, logger telemetry.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	redrive := func(ctx context.Context, e *dlq.Entry) error {
		var ops []normalize.RowOp
		if err := json.Unmarshal(e.Payload, &ops); err != nil {
			return err
		}

		return orchestrator.Apply(ctx, normalize.Plan{Ops: ops, EntityType: e.Operation, EntityID: e.ID})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, kind := range command.AllKinds {
				redriven, abandoned, err := q.Drain(ctx, string(kind), batch, redrive)
				if err != nil {
					logger.Errorf("dlq drain %s: %v", kind, err)
					continue
				}

				if redriven > 0 || abandoned > 0 {
					logger.Infof("dlq drain %s: redriven=%d abandoned=%d", kind, redriven, abandoned)
				}
			}
		}
	}
}

// dlqQueueSink adapts *dlq.Queue to audit.FailureSink.
type dlqQueueSink struct {
	q *dlq.Queue
}

func (s dlqQueueSink) Enqueue(ctx context.Context, operation string, payload []byte, attempts int, cause error) error {
	return s.q.Enqueue(ctx, operation, payload, attempts, cause)
}
