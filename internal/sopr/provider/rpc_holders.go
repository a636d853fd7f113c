package provider

import (
	"context"
	"encoding/binary"
	"fmt"
	"github.com/blocto/solana-go-sdk/client"
	"net/http"
	"sopr-stats-sol/internal/pkg/logger"
	"sopr-stats-sol/internal/pkg/utils"
	"sopr-stats-sol/internal/sopr/requestqueue"
	"sopr-stats-sol/internal/sopr/types"
	"sort"
	"sync/atomic"
	"time"
)

const (
	DefaultRpcEndpoint     = "https://api.mainnet-beta.solana.com"
	defaultHolderLimit     = 20
	defaultHolderCacheSize = 256

	// SPL Mint: 0-35 mintAuthority, 36-43 supply, 44 decimals
	mintDecimalsOffset = 44
	mintMinLen         = 45
	// SPL Token Account: 0-31 mint, 32-63 owner, 64-71 amount
	tokenAccountOwnerStart = 32
	tokenAccountOwnerEnd   = 64
	tokenAccountAmountEnd  = 72
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcLargestAccountsResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Result  *struct {
		Value []struct {
			Address  string `json:"address"`
			Amount   string `json:"amount"`
			Decimals uint8  `json:"decimals"`
		} `json:"value"`
	} `json:"result"`
	Error *rpcError `json:"error"`
}

type largestAccount struct {
	Address  string
	Amount   string
	Decimals uint8
}

// accountFetcher 批量读取账户原始数据，结果与 keys 一一对应，不存在的账户为 nil
type accountFetcher func(ctx context.Context, keys []string) ([][]byte, error)

// RpcHolderDirectory 通过 Solana RPC 获取 token 的最大持有人
//
// getTokenLargestAccounts 走排队的 http.Client；持有人 owner 与 mint decimals
// 由 blocto client 的 GetMultipleAccounts 读取，通过 requestqueue.Do 排队。
type RpcHolderDirectory struct {
	endpoint string
	http     *http.Client
	fetch    accountFetcher
	limit    int
	timeout  time.Duration
	cache    *ttlCache[string, []types.Holder]
	reqSeq   atomic.Uint64
}

func NewRpcHolderDirectory(
	endpoint string,
	httpClient *http.Client,
	queue *requestqueue.RequestQueue,
	limit int,
	timeout time.Duration,
	cacheTTL time.Duration,
) *RpcHolderDirectory {
	if endpoint == "" {
		endpoint = DefaultRpcEndpoint
	}
	if limit <= 0 {
		limit = defaultHolderLimit
	}
	cli := client.NewClient(endpoint)

	d := &RpcHolderDirectory{
		endpoint: endpoint,
		http:     httpClient,
		limit:    limit,
		timeout:  timeout,
		cache:    newTTLCache[string, []types.Holder](defaultHolderCacheSize, cacheTTL),
	}
	d.fetch = func(ctx context.Context, keys []string) ([][]byte, error) {
		return requestqueue.Do(ctx, queue, func(ctx context.Context) ([][]byte, error) {
			if d.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d.timeout)
				defer cancel()
			}
			infos, err := cli.GetMultipleAccounts(ctx, keys)
			if err != nil {
				return nil, err
			}
			out := make([][]byte, len(infos))
			for i := range infos {
				out[i] = infos[i].Data
			}
			return out, nil
		})
	}
	return d
}

// Holders 返回按余额降序的持有人（同一 owner 的多个 token account 合并）
func (d *RpcHolderDirectory) Holders(ctx context.Context, token string) ([]types.Holder, error) {
	if cached, ok := d.cache.Get(token); ok {
		cacheHitsTotal.WithLabelValues("holders").Inc()
		return cached, nil
	}

	accounts, err := d.largestAccounts(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		d.cache.Add(token, []types.Holder{})
		return []types.Holder{}, nil
	}

	keys := make([]string, 0, len(accounts)+1)
	keys = append(keys, token)
	for _, a := range accounts {
		keys = append(keys, a.Address)
	}

	datas, err := d.fetch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get multiple accounts: %w", err)
	}
	if len(datas) != len(keys) {
		return nil, fmt.Errorf("get multiple accounts returned %d accounts, expected %d", len(datas), len(keys))
	}

	decimals, ok := parseMintDecimals(datas[0])
	if !ok {
		decimals = accounts[0].Decimals
		logger.Warnf("[RpcHolderDirectory] mint account %s unreadable, using decimals=%d from rpc", token, decimals)
	}

	holders := mergeHolders(accounts, datas[1:], decimals, d.limit)
	d.cache.Add(token, holders)
	return holders, nil
}

func (d *RpcHolderDirectory) largestAccounts(ctx context.Context, token string) ([]largestAccount, error) {
	body, err := utils.SafeJsonMarshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      fmt.Sprintf("%d-%d", time.Now().UnixNano(), d.reqSeq.Add(1)),
		Method:  "getTokenLargestAccounts",
		Params:  []any{token, map[string]any{"commitment": "confirmed"}},
	})
	if err != nil {
		return nil, err
	}

	resp, err := fetchJSON[rpcLargestAccountsResponse](ctx, d.http, postJSONRequest(d.endpoint, body))
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("getTokenLargestAccounts rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Result == nil {
		return nil, nil
	}

	out := make([]largestAccount, 0, len(resp.Result.Value))
	for _, v := range resp.Result.Value {
		out = append(out, largestAccount{Address: v.Address, Amount: v.Amount, Decimals: v.Decimals})
	}
	return out, nil
}

func parseMintDecimals(data []byte) (uint8, bool) {
	if len(data) < mintMinLen {
		return 0, false
	}
	return data[mintDecimalsOffset], true
}

// parseTokenAccount 读取 token account 的 owner 与数量
func parseTokenAccount(data []byte) (types.Pubkey, uint64, bool) {
	if len(data) < tokenAccountAmountEnd {
		return types.Pubkey{}, 0, false
	}
	owner, err := types.PubkeyFromBytes(data[tokenAccountOwnerStart:tokenAccountOwnerEnd])
	if err != nil {
		return types.Pubkey{}, 0, false
	}
	amount := binary.LittleEndian.Uint64(data[tokenAccountOwnerEnd:tokenAccountAmountEnd])
	return owner, amount, true
}

// mergeHolders 按 owner 合并余额，去掉零余额，按余额降序截取 limit 个
func mergeHolders(accounts []largestAccount, datas [][]byte, decimals uint8, limit int) []types.Holder {
	balances := make(map[string]float64, len(accounts))
	order := make([]string, 0, len(accounts))

	for i, acc := range accounts {
		owner := acc.Address
		amount := utils.AmountToFloat64(acc.Amount, decimals)

		if i < len(datas) {
			if pk, raw, ok := parseTokenAccount(datas[i]); ok {
				owner = pk.String()
				amount = utils.AmountToFloat64(utils.Uint64ToStr(raw), decimals)
			}
		}
		if amount <= 0 {
			continue
		}
		if _, seen := balances[owner]; !seen {
			order = append(order, owner)
		}
		balances[owner] += amount
	}

	holders := make([]types.Holder, 0, len(order))
	for _, owner := range order {
		holders = append(holders, types.Holder{Address: owner, Balance: balances[owner]})
	}
	sort.SliceStable(holders, func(i, j int) bool {
		return holders[i].Balance > holders[j].Balance
	})
	if len(holders) > limit {
		holders = holders[:limit]
	}
	return holders
}
