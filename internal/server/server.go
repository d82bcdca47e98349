package server

import (
	"context"

	"github.com/dushixiang/kanban/internal/config"
	"github.com/dushixiang/kanban/internal/handler"
	"github.com/dushixiang/kanban/internal/query"
	"github.com/dushixiang/kanban/internal/service"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Server HTTP 服务
type Server struct {
	logger *zap.Logger
	echo   *echo.Echo
	listen string
}

// New 组装 HTTP 服务与路由
func New(cfg *config.AppConfig, store *config.Store, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("http 请求",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	client := query.NewClient(cfg.Upstream.Timeout())
	queryService := service.NewQueryService(logger, client)
	queryHandler := handler.NewQueryHandler(logger, store, queryService)

	api := e.Group("/api")
	api.GET("/dash", queryHandler.ListDashboards)
	api.GET("/dash/:dash/graph/:graph", queryHandler.QueryGraph)
	api.GET("/dash/:dash/log/:log", queryHandler.QueryLog)

	return &Server{
		logger: logger,
		echo:   e,
		listen: cfg.Listen,
	}
}

// Start 启动监听，阻塞直到服务退出
func (s *Server) Start() error {
	s.logger.Info("服务启动", zap.String("listen", s.listen))
	return s.echo.Start(s.listen)
}

// Shutdown 优雅退出
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
