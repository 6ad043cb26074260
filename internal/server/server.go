package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/fidelio/internal/activity"
	activitydomain "github.com/smallbiznis/fidelio/internal/activity/domain"
	"github.com/smallbiznis/fidelio/internal/audit"
	auditdomain "github.com/smallbiznis/fidelio/internal/audit/domain"
	"github.com/smallbiznis/fidelio/internal/clock"
	"github.com/smallbiznis/fidelio/internal/config"
	"github.com/smallbiznis/fidelio/internal/loyalty"
	loyaltydomain "github.com/smallbiznis/fidelio/internal/loyalty/domain"
	"github.com/smallbiznis/fidelio/internal/membership"
	membershipdomain "github.com/smallbiznis/fidelio/internal/membership/domain"
	"github.com/smallbiznis/fidelio/internal/metrics"
	"github.com/smallbiznis/fidelio/internal/points"
	pointsdomain "github.com/smallbiznis/fidelio/internal/points/domain"
	"github.com/smallbiznis/fidelio/internal/program"
	programdomain "github.com/smallbiznis/fidelio/internal/program/domain"
	"github.com/smallbiznis/fidelio/internal/reversal"
	reversaldomain "github.com/smallbiznis/fidelio/internal/reversal/domain"
	"github.com/smallbiznis/fidelio/internal/sweeplease"
	"github.com/smallbiznis/fidelio/internal/tier"
	tierdomain "github.com/smallbiznis/fidelio/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	metrics.Module,
	fx.Provide(registerGin),
	audit.Module,
	tier.Module,
	program.Module,
	points.Module,
	activity.Module,
	membership.Module,
	reversal.Module,
	loyalty.Module,
	sweeplease.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin() *gin.Engine {
	return NewEngine()
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.Engine(),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	clk           clock.Clock
	loyaltySvc    loyaltydomain.Service
	pointsSvc     pointsdomain.Service
	activitySvc   activitydomain.Service
	membershipSvc membershipdomain.Service
	tierSvc       tierdomain.Service
	programSvc    programdomain.Service
	reversalSvc   reversaldomain.Service
	auditSvc      auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Clock         clock.Clock
	LoyaltySvc    loyaltydomain.Service
	PointsSvc     pointsdomain.Service
	ActivitySvc   activitydomain.Service
	MembershipSvc membershipdomain.Service
	TierSvc       tierdomain.Service
	ProgramSvc    programdomain.Service
	ReversalSvc   reversaldomain.Service
	AuditSvc      auditdomain.Service `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		clk:           p.Clock,
		loyaltySvc:    p.LoyaltySvc,
		pointsSvc:     p.PointsSvc,
		activitySvc:   p.ActivitySvc,
		membershipSvc: p.MembershipSvc,
		tierSvc:       p.TierSvc,
		programSvc:    p.ProgramSvc,
		reversalSvc:   p.ReversalSvc,
		auditSvc:      p.AuditSvc,
	}

	s.registerEventRoutes()
	s.registerCustomerRoutes()
	s.registerRedemptionRoutes()
	s.registerAdminRoutes()

	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerEventRoutes() {
	events := s.engine.Group("/v1/events")

	events.POST("/order-placed", s.OrderPlaced)
	events.POST("/order-cancelled", s.OrderCancelled)
	events.POST("/return-completed", s.ReturnCompleted)
	events.POST("/return-reversed", s.ReturnReversed)
}

func (s *Server) registerCustomerRoutes() {
	customers := s.engine.Group("/v1/customers")

	customers.GET("/:id/balance", s.GetBalance)
	customers.GET("/:id/transactions", s.ListTransactions)
	customers.GET("/:id/membership", s.GetMembership)
	customers.POST("/:id/enroll", s.EnrollCustomer)
	customers.POST("/:id/retire", s.RetireCustomer)
}

func (s *Server) registerRedemptionRoutes() {
	redemptions := s.engine.Group("/v1/redemptions")

	redemptions.POST("/calculate", s.CalculateRedemption)
	redemptions.POST("/apply", s.ApplyRedemption)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.GET("/tiers", s.ListTiers)
	admin.POST("/tiers", s.CreateTier)
	admin.GET("/tiers/:slug", s.GetTierBySlug)
	admin.PATCH("/tiers/:slug", s.UpdateTier)

	admin.GET("/config", s.GetProgramConfig)
	admin.PATCH("/config", s.UpdateProgramConfig)

	admin.POST("/customers/:id/points", s.AdjustPoints)
	admin.POST("/customers/:id/rebuild", s.RebuildBalance)

	admin.GET("/audit-logs", s.ListAuditLogs)
}
