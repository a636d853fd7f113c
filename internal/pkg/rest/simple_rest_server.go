package rest

import (
	"context"
	"errors"
	"fmt"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"sopr-stats-sol/internal/pkg/logger"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Route 单条路由，Path 支持 chi 的 {param} 语法
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

type SimpleRestServer struct {
	port   int
	router chi.Router
	server *http.Server
}

// NewSimpleRestServer 创建并返回一个新的 REST 服务实例
func NewSimpleRestServer(port int, readTimeout, writeTimeout time.Duration, routes []Route) *SimpleRestServer {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Prometheus Metrics 路由
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// 注册自定义路由
	for _, rt := range routes {
		method := rt.Method
		if method == "" {
			method = http.MethodGet
		}
		r.MethodFunc(method, rt.Path, rt.Handler)
	}

	return &SimpleRestServer{
		port:   port,
		router: r,
		server: &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", port),
			Handler:           r,
			ReadHeaderTimeout: readTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
		},
	}
}

// Handler 返回路由，测试中配合 httptest 使用
func (s *SimpleRestServer) Handler() http.Handler {
	return s.router
}

// Start 启动 REST 服务
func (s *SimpleRestServer) Start() {
	go func() {
		logger.Infof("[SimpleRestServer] starting on port %d", s.port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("[SimpleRestServer] REST 服务启动失败: %v", err)
		}
	}()
}

// Stop 停止 REST 服务
func (s *SimpleRestServer) Stop() {
	logger.Infof("[SimpleRestServer] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		logger.Warnf("[SimpleRestServer] shutdown: %v", err)
	}
}
