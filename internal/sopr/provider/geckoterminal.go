package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sopr-stats-sol/internal/pkg/utils"
	"sopr-stats-sol/internal/sopr/types"
	"sort"
	"strings"
)

const (
	DefaultGeckoTerminalURL = "https://api.geckoterminal.com/api/v2"
	defaultOhlcvLimit       = 1000
	maxOhlcvLimit           = 1000
)

type ohlcvResponse struct {
	Data struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			OhlcvList [][]float64 `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

// GeckoTerminalClient 交易对的小时级 OHLCV，收盘价作为历史价格
type GeckoTerminalClient struct {
	baseURL string
	limit   int
	http    *http.Client
}

func NewGeckoTerminalClient(baseURL string, limit int, httpClient *http.Client) *GeckoTerminalClient {
	if baseURL == "" {
		baseURL = DefaultGeckoTerminalURL
	}
	if limit <= 0 || limit > maxOhlcvLimit {
		limit = defaultOhlcvLimit
	}
	return &GeckoTerminalClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		http:    httpClient,
	}
}

// HourlyCloses 返回按时间升序的收盘价
func (c *GeckoTerminalClient) HourlyCloses(ctx context.Context, pool string) ([]types.PricePoint, error) {
	endpoint := fmt.Sprintf("%s/networks/solana/pools/%s/ohlcv/hour?aggregate=1&limit=%d&currency=usd",
		c.baseURL, url.PathEscape(pool), c.limit)

	resp, err := fetchJSON[ohlcvResponse](ctx, c.http, getRequest(endpoint, nil))
	if err != nil {
		return nil, err
	}
	return parseOhlcvCloses(resp.Data.Attributes.OhlcvList), nil
}

// 每行格式 [timestamp, open, high, low, close, volume]
func parseOhlcvCloses(rows [][]float64) []types.PricePoint {
	out := make([]types.PricePoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		price := row[4]
		if !utils.IsPositiveFinite(price) {
			continue
		}
		out = append(out, types.PricePoint{
			Timestamp: utils.UnixToTime(int64(row[0])),
			PriceUsd:  price,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
