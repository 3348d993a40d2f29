package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"quorum/internal/logger"
	"quorum/internal/tracing"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const shutdownGrace = 5 * time.Second

// Server 提供共识决策的 HTTP 入口。
type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr    string
	Engine  Decider
	Events  EventLog
	Metrics http.Handler
}

// NewServer 构建 HTTP server。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("http server requires a consensus engine")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9991"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestTracer(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	NewRouter(cfg.Engine, cfg.Events).Register(router.Group("/api/consensus"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler 返回底层 http.Handler（测试用）。
func (s *Server) Handler() http.Handler { return s.router }

// requestTracer 为每个请求开 span，并在响应头回传 trace id。
func requestTracer() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracing.Start(c.Request.Context(), c.Request.Method+" "+route,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		)
		defer span.End()
		if id := tracing.TraceID(ctx); id != "" {
			c.Header("X-Trace-Id", id)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 监听并服务，直到 ctx 取消（优雅退出）或监听失败。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	drained := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(drained)
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			logger.Warnf("HTTP 服务关闭超时: %v", err)
		}
	})
	logger.Infof("HTTP 服务监听 %s", ln.Addr())
	err = srv.Serve(ln)
	if !stop() {
		<-drained
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
