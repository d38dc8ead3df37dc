package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/dca-plugin/config"
	"github.com/vultisig/dca-plugin/internal/validator"
	"github.com/vultisig/dca-plugin/service"
)

// IdempotencyStore remembers request keys. SetNX reports false when the key
// was already taken.
type IdempotencyStore interface {
	SetNX(ctx context.Context, key string, value string, expiry time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

type Server struct {
	cfg         config.ServerConfig
	schedules   service.Schedule
	idempotency IdempotencyStore
	sdClient    statsd.ClientInterface
	logger      *logrus.Logger
}

// NewServer returns a new server. idempotency may be nil, in which case
// Idempotency-Key headers are ignored.
func NewServer(
	cfg config.ServerConfig,
	schedules service.Schedule,
	idempotency IdempotencyStore,
	sdClient statsd.ClientInterface,
	logger *logrus.Logger,
) *Server {
	if sdClient == nil {
		sdClient = &statsd.NoOpClient{}
	}
	return &Server{
		cfg:         cfg,
		schedules:   schedules,
		idempotency: idempotency,
		sdClient:    sdClient,
		logger:      logger,
	}
}

// Echo builds the router with every middleware and route installed.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(log.INFO)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("2M")) // set maximum allowed size for a request body to 2M
	e.Use(s.statsdMiddleware)
	e.Use(middleware.CORS())
	if s.cfg.RateLimit > 0 {
		limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{Rate: s.cfg.RateLimit, Burst: 30, ExpiresIn: 5 * time.Minute},
		)
		e.Use(middleware.RateLimiter(limiterStore))
	}

	e.Validator = validator.New()

	e.GET("/ping", s.Ping)

	grp := e.Group("/dca")
	grp.POST("/schedules", s.CreateSchedule)
	grp.GET("/schedules/:owner", s.GetSchedulesByOwner)
	grp.POST("/run", s.TriggerRun)
	grp.GET("/run/:taskId", s.GetRunStatus)
	grp.POST("/withdraw", s.WithdrawAll)
	grp.GET("/price", s.GetCurrentPrice)
	grp.GET("/config", s.GetConfig)
	grp.GET("/info", s.GetContractInfo)
	grp.GET("/history/:scheduleId", s.GetInstructionHistory)

	return e
}

func (s *Server) StartServer() error {
	return s.Echo().Start(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
}

func (s *Server) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "DCA plugin server is running")
}
