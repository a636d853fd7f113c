package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sopr-stats-sol/internal/pkg/utils"
	"sopr-stats-sol/internal/sopr/types"
	"strings"
)

const (
	DefaultHeliusURL  = "https://api.helius.xyz"
	heliusPageLimit   = 100
	defaultHeliusPage = 3
)

var ErrMissingAPIKey = errors.New("helius api key not configured")

// 稳定币按 1 USD 计价，用于直接从 swap 中推出事件价格
var stableMints = map[string]struct{}{
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {}, // USDC
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": {}, // USDT
}

type heliusTokenTransfer struct {
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	TokenAmount     float64 `json:"tokenAmount"`
	Mint            string  `json:"mint"`
}

type heliusTransaction struct {
	Signature      string                `json:"signature"`
	Timestamp      int64                 `json:"timestamp"`
	Type           string                `json:"type"`
	Source         string                `json:"source"`
	TokenTransfers []heliusTokenTransfer `json:"tokenTransfers"`
}

// HeliusHistory 通过 Helius enhanced transactions API 获取持有人的 swap 记录
type HeliusHistory struct {
	baseURL  string
	apiKey   string
	maxPages int
	http     *http.Client
}

func NewHeliusHistory(baseURL, apiKey string, maxPages int, httpClient *http.Client) *HeliusHistory {
	if baseURL == "" {
		baseURL = DefaultHeliusURL
	}
	if maxPages <= 0 {
		maxPages = defaultHeliusPage
	}
	return &HeliusHistory{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		maxPages: maxPages,
		http:     httpClient,
	}
}

// Transactions 返回 holder 针对 token 的买入/卖出事件（可能为空）
func (h *HeliusHistory) Transactions(ctx context.Context, token, holder string) ([]types.HolderTransaction, error) {
	if h.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	var (
		out    []types.HolderTransaction
		before string
	)
	for page := 0; page < h.maxPages; page++ {
		batch, err := h.fetchPage(ctx, holder, before)
		if err != nil {
			if IsNotFound(err) {
				break
			}
			return nil, err
		}

		for i := range batch {
			if tx, ok := toHolderTransaction(&batch[i], token, holder); ok {
				out = append(out, tx)
			}
		}
		if len(batch) < heliusPageLimit {
			break
		}
		before = batch[len(batch)-1].Signature
	}
	return out, nil
}

func (h *HeliusHistory) fetchPage(ctx context.Context, holder, before string) ([]heliusTransaction, error) {
	q := url.Values{}
	q.Set("api-key", h.apiKey)
	q.Set("type", "SWAP")
	q.Set("limit", fmt.Sprint(heliusPageLimit))
	if before != "" {
		q.Set("before", before)
	}
	endpoint := fmt.Sprintf("%s/v0/addresses/%s/transactions?%s", h.baseURL, url.PathEscape(holder), q.Encode())
	return fetchJSON[[]heliusTransaction](ctx, h.http, getRequest(endpoint, nil))
}

// toHolderTransaction token 转入 holder 为买入，转出为卖出
func toHolderTransaction(raw *heliusTransaction, token, holder string) (types.HolderTransaction, bool) {
	var tokenIn, tokenOut, stableIn, stableOut float64
	for _, tt := range raw.TokenTransfers {
		_, stable := stableMints[tt.Mint]
		switch {
		case tt.Mint == token && tt.ToUserAccount == holder && tt.FromUserAccount != holder:
			tokenIn += tt.TokenAmount
		case tt.Mint == token && tt.FromUserAccount == holder && tt.ToUserAccount != holder:
			tokenOut += tt.TokenAmount
		case stable && tt.ToUserAccount == holder:
			stableIn += tt.TokenAmount
		case stable && tt.FromUserAccount == holder:
			stableOut += tt.TokenAmount
		}
	}

	tx := types.HolderTransaction{
		Signature: raw.Signature,
		Timestamp: utils.UnixToTime(raw.Timestamp),
	}
	switch {
	case tokenIn > tokenOut:
		tx.Direction = types.DirectionBuy
		tx.Amount = tokenIn - tokenOut
		tx.PriceUsd = stablePrice(stableOut, tx.Amount)
	case tokenOut > tokenIn:
		tx.Direction = types.DirectionSell
		tx.Amount = tokenOut - tokenIn
		tx.PriceUsd = stablePrice(stableIn, tx.Amount)
	default:
		return tx, false
	}
	return tx, true
}

func stablePrice(stableAmount, tokenAmount float64) *float64 {
	if stableAmount <= 0 || tokenAmount <= 0 {
		return nil
	}
	p := stableAmount / tokenAmount
	if !utils.IsPositiveFinite(p) {
		return nil
	}
	return &p
}
