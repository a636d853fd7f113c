package svc

import (
	"net/http"
	"sopr-stats-sol/internal/config"
	"sopr-stats-sol/internal/sopr/analytics"
	"sopr-stats-sol/internal/sopr/provider"
	"sopr-stats-sol/internal/sopr/requestqueue"
	"time"
)

// ServiceContext 由配置构造的共享依赖
//
// 所有 provider 共用一个请求队列：http 请求经 QueuedTransport 排队，
// SDK 调用经 requestqueue.Do 排队。
type ServiceContext struct {
	Cfg        *config.Config
	Queue      *requestqueue.RequestQueue
	HttpClient *http.Client

	Prices  analytics.PriceSource
	Holders analytics.HolderDirectory
	Txs     analytics.TransactionHistory
}

func NewServiceContext(c *config.Config) *ServiceContext {
	queue, err := requestqueue.NewRequestQueue(c.RateLimit.ToQueueConfig())
	if err != nil {
		panic(err)
	}

	httpClient := &http.Client{
		Transport: &requestqueue.QueuedTransport{
			Queue: queue,
			Base:  newBaseTransport(),
		},
	}

	p := &c.Providers
	dex := provider.NewDexScreenerClient(p.DexScreener.BaseURL, httpClient)
	gecko := provider.NewGeckoTerminalClient(p.GeckoTerminal.BaseURL, p.GeckoTerminal.Limit, httpClient)

	return &ServiceContext{
		Cfg:        c,
		Queue:      queue,
		HttpClient: httpClient,
		Prices:     provider.NewMarketPriceSource(dex, gecko, p.Cache.TTL),
		Holders: provider.NewRpcHolderDirectory(
			p.Rpc.Endpoint,
			httpClient,
			queue,
			c.Sopr.HolderLimit,
			p.Rpc.Timeout,
			p.Cache.TTL,
		),
		Txs: provider.NewHeliusHistory(p.Helius.BaseURL, p.Helius.ApiKey, p.Helius.MaxPages, httpClient),
	}
}

func newBaseTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 16
	t.IdleConnTimeout = 90 * time.Second
	t.ResponseHeaderTimeout = 30 * time.Second
	return t
}
