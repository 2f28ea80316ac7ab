package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/retailsales/internal/config"
	factdomain "github.com/smallbiznis/retailsales/internal/fact/domain"
	"github.com/smallbiznis/retailsales/internal/observability"
	obsmiddleware "github.com/smallbiznis/retailsales/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/retailsales/internal/observability/metrics"
	obstracing "github.com/smallbiznis/retailsales/internal/observability/tracing"
	rollupdomain "github.com/smallbiznis/retailsales/internal/rollup/domain"
	scddomain "github.com/smallbiznis/retailsales/internal/scd/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug,
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine  *gin.Engine
	rollups rollupdomain.ReadService
	facts   factdomain.Service
	address scddomain.Service
}

type ServerParams struct {
	fx.In

	Gin     *gin.Engine
	Rollups rollupdomain.ReadService
	Facts   factdomain.Service
	Address scddomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:  p.Gin,
		rollups: p.Rollups,
		facts:   p.Facts,
		address: p.Address,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")

	rollups := api.Group("/rollups")
	{
		rollups.GET("", s.ListRollupTables)
		rollups.GET("/:table/snapshots", s.ListSnapshots)
		rollups.GET("/:table/history", s.ListHistory)
		rollups.GET("/:table/commits", s.ListCommits)
	}

	customers := api.Group("/customers")
	{
		customers.GET("/:id/address", s.GetCustomerAddress)
		customers.GET("/:id/addresses", s.ListCustomerAddresses)
		customers.POST("/:id/addresses", s.ApplyCustomerAddress)
	}

	api.POST("/transactions", s.CreateTransaction)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
