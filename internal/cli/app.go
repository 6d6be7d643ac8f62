package cli

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/assetflow/handover-service/internal/api/http"
	"github.com/assetflow/handover-service/internal/api/http/handlers"
	"github.com/assetflow/handover-service/internal/auth"
	"github.com/assetflow/handover-service/internal/clock"
	"github.com/assetflow/handover-service/internal/config"
	"github.com/assetflow/handover-service/internal/events"
	"github.com/assetflow/handover-service/internal/observability"
	"github.com/assetflow/handover-service/internal/persistence"
	"github.com/assetflow/handover-service/internal/repository"
	"github.com/assetflow/handover-service/internal/service"
	"github.com/assetflow/handover-service/internal/worker"
)

// bodyLimitHeadroom leaves room for the JSON envelope around a maximum size
// signature so oversize payloads reach validation and get a 413 with details.
const bodyLimitHeadroom = 64 << 10

// app holds the wired runtime shared by serve and the one-shot commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	clock   clock.Clock
	pg      *persistence.Postgres
	redis   *persistence.Redis
	repo    repository.AssignmentRepository
	metrics *observability.Metrics

	dispatcher    events.Dispatcher
	notifications *service.NotificationService
	issuer        *service.TokenIssuer
	signatures    *service.SignatureService
	handovers     *service.HandoverService
	tokens        *auth.TokenManager

	reminderSweeper *worker.ReminderSweeper
	expiryReaper    *worker.ExpiryReaper
	lease           worker.Lease
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	a := &app{
		cfg:        cfg,
		logger:     logger,
		clock:      clock.System(),
		pg:         pg,
		redis:      persistence.NewRedis(ctx, cfg.Redis, logger),
		metrics:    observability.NewMetrics(),
		dispatcher: events.NewInMemoryDispatcher(),
	}

	if pool := pg.PoolHandle(); pool != nil {
		a.repo = repository.NewAssignmentRepository(pool)
	} else {
		logger.Warn("running with in-memory assignment storage; data is lost on exit")
		a.repo = repository.NewMemoryAssignmentRepository()
	}

	if a.redis.Enabled() {
		a.lease = worker.NewRedisLease(a.redis.Client, cfg.App.Name+":sweep:")
	} else {
		a.lease = worker.NewLocalLease(a.clock)
	}

	a.notifications = service.NewNotificationService(a.dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(a.notifications)

	a.issuer = service.NewTokenIssuer(cfg.Signature, service.TokenIssuerDependencies{
		Repo:    a.repo,
		Clock:   a.clock,
		Logger:  logger,
		Metrics: a.metrics,
	})
	a.signatures = service.NewSignatureService(cfg.Signature, service.SignatureDependencies{
		Repo:       a.repo,
		Clock:      a.clock,
		Dispatcher: a.dispatcher,
		Logger:     logger,
		Metrics:    a.metrics,
	})
	a.handovers = service.NewHandoverService(service.HandoverDependencies{
		Repo:       a.repo,
		Issuer:     a.issuer,
		Clock:      a.clock,
		Dispatcher: a.dispatcher,
		Logger:     logger,
	})
	a.tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL(), a.clock)

	sweepDeps := worker.SweeperDependencies{
		Repo:       a.repo,
		Notifier:   a.notifications,
		Dispatcher: a.dispatcher,
		Logger:     logger,
		Metrics:    a.metrics,
	}
	a.reminderSweeper = worker.NewReminderSweeper(cfg.Reminder, sweepDeps)
	a.expiryReaper = worker.NewExpiryReaper(cfg.Expiry, sweepDeps)
	return a, nil
}

// Close releases backend connections.
func (a *app) Close() {
	a.redis.Close()
	a.pg.Close()
}

func (a *app) periodic(name string, task worker.Task) *worker.Periodic {
	p := &worker.Periodic{
		Name:    name,
		Clock:   a.clock,
		Lease:   a.lease,
		Task:    task,
		Logger:  a.logger,
		Metrics: a.metrics,
	}
	switch name {
	case worker.ReminderSweepName:
		p.Interval, p.LeaseTTL = a.cfg.Reminder.SweepInterval, a.cfg.Reminder.LeaseTTL
	case worker.ExpirySweepName:
		p.Interval, p.LeaseTTL = a.cfg.Expiry.SweepInterval, a.cfg.Expiry.LeaseTTL
	}
	return p
}

func (a *app) httpServer() *fiber.App {
	bodyLimit := a.cfg.Signature.MaxPayloadBytes + bodyLimitHeadroom
	if bodyLimit < fiber.DefaultBodyLimit {
		bodyLimit = fiber.DefaultBodyLimit
	}
	server := fiber.New(fiber.Config{
		AppName:               a.cfg.App.Name,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(server, a.logger, a.metrics, a.cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(a.cfg.App.Name, a.cfg.App.Version, map[string]handlers.Pinger{
			"postgres": a.pg,
			"redis":    a.redis,
		}),
		Signatures:     handlers.NewSignatureHandler(a.signatures, a.clock),
		Handovers:      handlers.NewHandoverHandler(a.handovers, a.notifications),
		AuthMiddleware: auth.NewAuthMiddleware(a.tokens),
		Metrics:        a.metrics,
	})
	return server
}
