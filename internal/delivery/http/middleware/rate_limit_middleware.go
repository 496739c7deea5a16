package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"leapcode/config"
	deliverycontext "leapcode/internal/delivery/context"
	domainerrors "leapcode/internal/domain/errors"
	"leapcode/internal/infra/metrics"
	"leapcode/internal/infra/ratelimit"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

// Rate-limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
	HeaderForwardedFor       = "X-Forwarded-For"
)

// AdmissionRecorder counts limiter decisions.
type AdmissionRecorder interface {
	RecordAdmission(outcome string)
}

// rateLimitedBody is the 429 payload.
type rateLimitedBody struct {
	Detail string `json:"detail"`
	Limit  int    `json:"limit"`
	Reset  int64  `json:"reset"`
}

// RateLimitMiddleware applies the admission limiter to every request.
type RateLimitMiddleware struct {
	limiter  *ratelimit.Limiter
	enabled  bool
	recorder AdmissionRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// RateLimitParams holds dependencies for RateLimitMiddleware, injected by Fx.
type RateLimitParams struct {
	fx.In

	Config   *config.Config
	Limiter  *ratelimit.Limiter
	Recorder AdmissionRecorder `optional:"true"`
	Logger   *slog.Logger
}

// NewRateLimitMiddleware is the constructor for RateLimitMiddleware.
func NewRateLimitMiddleware(params RateLimitParams) *RateLimitMiddleware {
	enabled := params.Config.RateLimit != nil && params.Config.RateLimit.Enabled

	return &RateLimitMiddleware{
		limiter:  params.Limiter,
		enabled:  enabled && params.Limiter != nil,
		recorder: params.Recorder,
		logger:   params.Logger,
		now:      time.Now,
	}
}

// Handle admits or rejects the request. A disabled limiter passes every request through untouched.
func (m *RateLimitMiddleware) Handle(next echo.HandlerFunc) echo.HandlerFunc {
	if !m.enabled {
		return next
	}

	return func(c echo.Context) error {
		req := c.Request()
		identity := ratelimit.ClientIdentity(req.Header.Get(HeaderForwardedFor), req.RemoteAddr)
		decision := m.limiter.Allow(identity)

		header := c.Response().Header()
		header.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
		header.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
		header.Set(HeaderRateLimitReset, strconv.FormatInt(decision.Reset, 10))

		if decision.Allowed {
			m.record(metrics.AdmissionAllowed)

			return next(c)
		}

		outcome := metrics.AdmissionRejected
		if decision.Blacklisted {
			outcome = metrics.AdmissionBlacklisted
		}
		m.record(outcome)

		deliverycontext.GetLoggerOrDefault(req.Context(), m.logger).Warn("Request rejected by rate limiter",
			slog.String("client", identity),
			slog.String("outcome", outcome),
			slog.Int64("reset", decision.Reset),
		)

		retryAfter := max(decision.Reset-m.now().Unix(), 0)
		header.Set(HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))

		return c.JSON(http.StatusTooManyRequests, rateLimitedBody{
			Detail: domainerrors.ErrRateLimited.Message(),
			Limit:  decision.Limit,
			Reset:  decision.Reset,
		})
	}
}

func (m *RateLimitMiddleware) record(outcome string) {
	if m.recorder != nil {
		m.recorder.RecordAdmission(outcome)
	}
}
