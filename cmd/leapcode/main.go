package main

import (
	"context"
	"log/slog"
	"os"

	"leapcode/config"
	"leapcode/internal/delivery"
	"leapcode/internal/delivery/http"
	"leapcode/internal/delivery/http/middleware"
	"leapcode/internal/delivery/http/router/handler"
	"leapcode/internal/domain/service"
	"leapcode/internal/infra/auth"
	"leapcode/internal/infra/auth/google"
	logs "leapcode/internal/infra/log"
	"leapcode/internal/infra/metrics"
	"leapcode/internal/infra/persistence/postgres"
	"leapcode/internal/infra/ratelimit"
	"leapcode/internal/infra/storage"
	"leapcode/internal/usecase/impl"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle

	Deliveries []delivery.Delivery `group:"deliveries"`
}

func main() {
	fx.New(
		injectInfra(),
		injectRepo(),
		injectService(),
		injectUsecase(),
		injectDelivery(),
		injectMiddleware(),
		injectHandler(),
		fx.Invoke(
			watchLimiter,
			startServer,
		),
	).Run()
}

func injectInfra() fx.Option {
	return fx.Provide(
		config.New,
		logs.New,
		context.Background,
		postgres.New,
		newMetricsRegistry,
		fx.Annotate(
			metrics.NewCollector,
			fx.As(fx.Self()),
			fx.As(new(service.AuthMetrics)),
			fx.As(new(middleware.AdmissionRecorder)),
		),
		ratelimit.NewFromConfig,
		storage.NewAvatarCache,
	)
}

// newMetricsRegistry exposes one registry as both the registerer and the gatherer.
func newMetricsRegistry() (prometheus.Registerer, prometheus.Gatherer) {
	reg := metrics.NewRegistry()

	return reg, reg
}

func injectRepo() fx.Option {
	return fx.Options(
		fx.Provide(
			postgres.NewUserRepository,
			postgres.NewTransactionManager,
		),
	)
}

func injectService() fx.Option {
	return fx.Options(
		fx.Provide(
			auth.NewBcryptHasher,
			newTokenService,
			newOAuthExchanger,
		),
	)
}

func newTokenService(cfg *config.Config) (service.TokenService, error) {
	return auth.NewJWTService(cfg)
}

func newOAuthExchanger(cfg *config.Config) service.OAuthExchanger {
	return google.NewOAuthService(cfg)
}

func injectUsecase() fx.Option {
	return fx.Options(
		fx.Provide(
			impl.NewAuthService,
		),
	)
}

func injectMiddleware() fx.Option {
	return fx.Options(
		fx.Provide(
			middleware.NewAuthMiddleware,
			middleware.NewRateLimitMiddleware,
		),
	)
}

func injectHandler() fx.Option {
	return fx.Options(
		fx.Provide(
			handler.NewAuthHandler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				http.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

func watchLimiter(collector *metrics.Collector, limiter *ratelimit.Limiter) {
	collector.WatchTrackedClients(limiter.Len)
}

func startServer(ctx context.Context, params startServerParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start server", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}
}
