package main

import (
	"flag"
	"fmt"
	"github.com/zeromicro/go-zero/core/logx"
	zerosvc "github.com/zeromicro/go-zero/core/service"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"sopr-stats-sol/internal/config"
	"sopr-stats-sol/internal/handler"
	"sopr-stats-sol/internal/pkg/configloader"
	"sopr-stats-sol/internal/pkg/logger"
	"sopr-stats-sol/internal/pkg/rest"
	"sopr-stats-sol/internal/pkg/utils"
	"sopr-stats-sol/internal/sopr"
	"sopr-stats-sol/internal/svc"
	"syscall"
)

var configFile = flag.String("f", "etc/sopr-stats-svc/test.yaml", "the config file")

func main() {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
		}
	}()
	defer logger.Sync()

	flag.Parse()
	logger.Infof("Loading config from %s", *configFile)

	// 加载配置
	var c config.Config
	if err := configloader.LoadConfig(*configFile, &c); err != nil {
		panic(fmt.Sprintf("配置加载失败: %v", err))
	}

	// 初始化 zap 日志
	logger.InitLogger(c.LogConf.ToLogOption())
	logx.SetWriter(logger.ZapWriter{})

	if c.Providers.Helius.ApiKey == "" {
		logger.Warnf("helius api_key is empty, holder transactions will be unavailable")
	}

	// 初始化依赖注入上下文
	svcCtx := svc.NewServiceContext(&c)

	// 构造 go-zero ServiceGroup 管理服务
	sg := zerosvc.NewServiceGroup()

	app, err := sopr.NewApp(svcCtx)
	if err != nil {
		panic(fmt.Sprintf("初始化失败: %v", err))
	}
	sg.Add(app)

	// 构建 rest 服务
	sg.Add(initializeRestServer(&c, app))

	// 启动服务
	if ip, err := utils.GetLocalIP(); err == nil {
		logger.Infof("sopr stats starting on %s:%d", ip, c.Server.Port)
	}
	go sg.Start()

	// 等待退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down services...")
	sg.Stop()
}

func initializeRestServer(c *config.Config, app *sopr.App) *rest.SimpleRestServer {
	healthCheck := handler.HealthCheck(app)
	routes := []rest.Route{
		{Path: "/healthz", Handler: healthCheck},
		{Path: "/health/readiness", Handler: healthCheck},
		{Path: "/health/liveness", Handler: healthCheck},
		{Path: "/api/v1/sopr/{address}", Handler: handler.GetSopr(app)},
		{Method: http.MethodDelete, Path: "/api/v1/sopr/sessions/{session}", Handler: handler.ResetSession(app)},
		{Path: "/ws/sopr", Handler: handler.SoprStream(app)},
	}
	return rest.NewSimpleRestServer(c.Server.Port, c.Server.ReadTimeout, c.Server.WriteTimeout, routes)
}
