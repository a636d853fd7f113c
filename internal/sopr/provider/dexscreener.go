package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sopr-stats-sol/internal/pkg/utils"
	"strings"
)

const (
	DefaultDexScreenerURL = "https://api.dexscreener.com"
	solanaChainID         = "solana"
)

type dexTokenResponse struct {
	SchemaVersion string    `json:"schemaVersion"`
	Pairs         []dexPair `json:"pairs"`
}

type dexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"quoteToken"`
	PriceUsd  string `json:"priceUsd"`
	Liquidity *struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

// PairQuote DexScreener 上选中的交易对
type PairQuote struct {
	PairAddress  string
	DexID        string
	Symbol       string
	PriceUsd     float64
	LiquidityUsd float64
}

// DexScreenerClient 当前价格与主交易对
type DexScreenerClient struct {
	baseURL string
	http    *http.Client
}

func NewDexScreenerClient(baseURL string, httpClient *http.Client) *DexScreenerClient {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	return &DexScreenerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// BestPair 返回流动性最高的 Solana 交易对；没有任何交易对时返回 ErrNotFound
func (c *DexScreenerClient) BestPair(ctx context.Context, token string) (*PairQuote, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, url.PathEscape(token))
	resp, err := fetchJSON[dexTokenResponse](ctx, c.http, getRequest(endpoint, nil))
	if err != nil {
		return nil, err
	}

	var best *PairQuote
	for i := range resp.Pairs {
		p := &resp.Pairs[i]
		if p.ChainID != "" && p.ChainID != solanaChainID {
			continue
		}
		price, ok := utils.ParseDecimalFloat(p.PriceUsd)
		if !ok || !utils.IsPositiveFinite(price) {
			continue
		}
		var liquidity float64
		if p.Liquidity != nil {
			liquidity = p.Liquidity.Usd
		}
		if best == nil || liquidity > best.LiquidityUsd {
			best = &PairQuote{
				PairAddress:  p.PairAddress,
				DexID:        p.DexID,
				Symbol:       p.BaseToken.Symbol,
				PriceUsd:     price,
				LiquidityUsd: liquidity,
			}
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: token %s not found on DexScreener", ErrNotFound, token)
	}
	return best, nil
}

// IsNotFound 判断错误是否为上游“不存在”
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
