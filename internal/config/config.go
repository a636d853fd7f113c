package config

import (
	"errors"
	"fmt"
	"sopr-stats-sol/internal/pkg/logger"
	"sopr-stats-sol/internal/pkg/mq"
	"sopr-stats-sol/internal/sopr/analytics"
	"sopr-stats-sol/internal/sopr/provider"
	"sopr-stats-sol/internal/sopr/requestqueue"
	"time"
)

type LogConfig struct {
	Format   string `json:"format" yaml:"format"`     // 日志格式，可选 "console"（开发调试）或 "json"（结构化，推荐生产使用）
	LogDir   string `json:"log_dir" yaml:"log_dir"`   // 日志文件目录，可为相对路径或绝对路径
	Level    string `json:"level" yaml:"level"`       // 日志级别：debug / info / warn / error
	Compress bool   `json:"compress" yaml:"compress"` // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// ServerConfig HTTP/websocket 服务配置
type ServerConfig struct {
	Port         int           `json:"port" yaml:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// RateLimitConfig 外部请求的窗口配额
type RateLimitConfig struct {
	MaxRequests      int           `json:"max_requests" yaml:"max_requests"`           // 每个窗口允许的请求数
	Window           time.Duration `json:"window" yaml:"window"`                       // 窗口长度
	DispatchInterval time.Duration `json:"dispatch_interval" yaml:"dispatch_interval"` // 相邻请求间隔，负数表示不等待
	RequestTimeout   time.Duration `json:"request_timeout" yaml:"request_timeout"`     // 单个请求超时
	DispatchWorkers  int           `json:"dispatch_workers" yaml:"dispatch_workers"`
}

func (c *RateLimitConfig) ToQueueConfig() requestqueue.Config {
	return requestqueue.Config{
		MaxRequests:      c.MaxRequests,
		Window:           c.Window,
		DispatchInterval: c.DispatchInterval,
		RequestTimeout:   c.RequestTimeout,
		DispatchWorkers:  c.DispatchWorkers,
	}
}

type SoprConfig struct {
	HistorySize     int           `json:"history_size" yaml:"history_size"`         // 滚动均值窗口
	TrendWindow     int           `json:"trend_window" yaml:"trend_window"`         // 趋势回归取最近 N 个值
	PriceTolerance  time.Duration `json:"price_tolerance" yaml:"price_tolerance"`   // 历史价格最近点的最大时间差
	HolderLimit     int           `json:"holder_limit" yaml:"holder_limit"`         // 参与计算的持有人数量上限
	HolderWorkers   int           `json:"holder_workers" yaml:"holder_workers"`     // 持有人并发拉取数
	ComputeTimeout  time.Duration `json:"compute_timeout" yaml:"compute_timeout"`   // 单次计算超时
	SessionCapacity int           `json:"session_capacity" yaml:"session_capacity"` // 最多保留的会话历史数
}

func (c *SoprConfig) ToEngineOptions() analytics.Options {
	return analytics.Options{
		HistorySize:    c.HistorySize,
		TrendWindow:    c.TrendWindow,
		PriceTolerance: c.PriceTolerance,
		HolderWorkers:  c.HolderWorkers,
	}
}

type DexScreenerConf struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
}

type GeckoTerminalConf struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Limit   int    `json:"limit" yaml:"limit"` // 小时 K 线条数
}

type RpcConf struct {
	Endpoint string        `json:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

type HeliusConf struct {
	BaseURL  string `json:"base_url" yaml:"base_url"`
	ApiKey   string `json:"api_key" yaml:"api_key"` // 建议通过 ${HELIUS_API_KEY} 注入
	MaxPages int    `json:"max_pages" yaml:"max_pages"`
}

type CacheConf struct {
	TTL time.Duration `json:"ttl" yaml:"ttl"` // 0 表示不缓存
}

type ProvidersConfig struct {
	DexScreener   DexScreenerConf   `json:"dexscreener" yaml:"dexscreener"`
	GeckoTerminal GeckoTerminalConf `json:"geckoterminal" yaml:"geckoterminal"`
	Rpc           RpcConf           `json:"rpc" yaml:"rpc"`
	Helius        HeliusConf        `json:"helius" yaml:"helius"`
	Cache         CacheConf         `json:"cache" yaml:"cache"`
}

type Config struct {
	LogConf             LogConfig             `json:"logger" yaml:"logger"`                 // 日志配置
	Server              ServerConfig          `json:"server" yaml:"server"`                 // HTTP 服务配置
	RateLimit           RateLimitConfig       `json:"rate_limit" yaml:"rate_limit"`         // 请求队列配额
	Sopr                SoprConfig            `json:"sopr" yaml:"sopr"`                     // SOPR 计算参数
	Providers           ProvidersConfig       `json:"providers" yaml:"providers"`           // 外部数据源
	KafkaProducerConfig *mq.KafkaProducerConf `json:"kafka_producer" yaml:"kafka_producer"` // Kafka 结果推送，可选
}

// ApplyDefaults 填充未配置的字段，由 configloader 在校验前调用
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}

	if c.RateLimit.DispatchWorkers <= 0 {
		c.RateLimit.DispatchWorkers = 8
	}

	if c.Sopr.HistorySize <= 0 {
		c.Sopr.HistorySize = analytics.DefaultHistorySize
	}
	if c.Sopr.TrendWindow <= 0 {
		c.Sopr.TrendWindow = analytics.DefaultTrendWindow
	}
	if c.Sopr.PriceTolerance <= 0 {
		c.Sopr.PriceTolerance = analytics.DefaultPriceTolerance
	}
	if c.Sopr.HolderLimit <= 0 {
		c.Sopr.HolderLimit = 20
	}
	if c.Sopr.HolderWorkers <= 0 {
		c.Sopr.HolderWorkers = 16
	}
	if c.Sopr.ComputeTimeout <= 0 {
		c.Sopr.ComputeTimeout = 5 * time.Minute
	}
	// 写超时要覆盖一次完整计算，否则响应会在计算超时之前被截断
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = c.Sopr.ComputeTimeout + 30*time.Second
	}
	if c.Sopr.SessionCapacity <= 0 {
		c.Sopr.SessionCapacity = 1024
	}

	p := &c.Providers
	if p.DexScreener.BaseURL == "" {
		p.DexScreener.BaseURL = provider.DefaultDexScreenerURL
	}
	if p.GeckoTerminal.BaseURL == "" {
		p.GeckoTerminal.BaseURL = provider.DefaultGeckoTerminalURL
	}
	if p.Rpc.Endpoint == "" {
		p.Rpc.Endpoint = provider.DefaultRpcEndpoint
	}
	if p.Rpc.Timeout <= 0 {
		p.Rpc.Timeout = 15 * time.Second
	}
	if p.Helius.BaseURL == "" {
		p.Helius.BaseURL = provider.DefaultHeliusURL
	}
	if p.Helius.MaxPages <= 0 {
		p.Helius.MaxPages = 3
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.WriteTimeout < c.Sopr.ComputeTimeout {
		errs = append(errs, fmt.Errorf("server.write_timeout (%v) is shorter than sopr.compute_timeout (%v)", c.Server.WriteTimeout, c.Sopr.ComputeTimeout))
	}
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.max_requests must be > 0, got %d", c.RateLimit.MaxRequests))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window must be > 0, got %v", c.RateLimit.Window))
	}
	if c.Sopr.TrendWindow < 2 {
		errs = append(errs, fmt.Errorf("sopr.trend_window must be >= 2, got %d", c.Sopr.TrendWindow))
	}
	if c.Sopr.TrendWindow > c.Sopr.HistorySize {
		errs = append(errs, fmt.Errorf("sopr.trend_window (%d) exceeds sopr.history_size (%d)", c.Sopr.TrendWindow, c.Sopr.HistorySize))
	}
	if k := c.KafkaProducerConfig; k != nil {
		if len(k.Brokers) == 0 {
			errs = append(errs, errors.New("kafka_producer.brokers is empty"))
		}
		if len(k.Topics) != 1 {
			errs = append(errs, fmt.Errorf("kafka_producer must have exactly 1 topic, got %d", len(k.Topics)))
		}
	}
	return errors.Join(errs...)
}
