package provider

import (
	"context"
	"sopr-stats-sol/internal/pkg/logger"
	"sopr-stats-sol/internal/sopr/types"
	"time"
)

const defaultPriceCacheSize = 1024

// MarketPriceSource DexScreener 当前价格 + GeckoTerminal 历史价格
type MarketPriceSource struct {
	dex   *DexScreenerClient
	gecko *GeckoTerminalClient
	cache *ttlCache[string, *types.PriceContext]
}

func NewMarketPriceSource(dex *DexScreenerClient, gecko *GeckoTerminalClient, cacheTTL time.Duration) *MarketPriceSource {
	return &MarketPriceSource{
		dex:   dex,
		gecko: gecko,
		cache: newTTLCache[string, *types.PriceContext](defaultPriceCacheSize, cacheTTL),
	}
}

// PriceContext token 不存在时返回 Found=false，不返回错误
func (s *MarketPriceSource) PriceContext(ctx context.Context, token string) (*types.PriceContext, error) {
	if pc, ok := s.cache.Get(token); ok {
		cacheHitsTotal.WithLabelValues("price_context").Inc()
		return pc, nil
	}

	pair, err := s.dex.BestPair(ctx, token)
	if err != nil {
		if IsNotFound(err) {
			logger.Infof("[MarketPriceSource] %v", err)
			return &types.PriceContext{Found: false}, nil
		}
		return nil, err
	}

	current := pair.PriceUsd
	pc := &types.PriceContext{
		Found:       true,
		Current:     &current,
		PairAddress: pair.PairAddress,
		DexID:       pair.DexID,
	}

	if s.gecko != nil && pair.PairAddress != "" {
		history, err := s.gecko.HourlyCloses(ctx, pair.PairAddress)
		switch {
		case err == nil:
			pc.History = history
		case IsNotFound(err):
			// GeckoTerminal 尚未收录该池子，只依赖事件自带价格
			logger.Warnf("[MarketPriceSource] no ohlcv for pool %s (token=%s)", pair.PairAddress, token)
		default:
			return nil, err
		}
	}

	s.cache.Add(token, pc)
	return pc, nil
}
