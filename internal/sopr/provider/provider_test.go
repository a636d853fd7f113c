package provider

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sopr-stats-sol/internal/sopr/types"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const testMint = "So11111111111111111111111111111111111111112"

func TestFetchJSONRetriesOnRetryAfter(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"value":42}`)
	}))
	defer srv.Close()

	type payload struct {
		Value int `json:"value"`
	}
	got, err := fetchJSON[payload](context.Background(), srv.Client(), getRequest(srv.URL, nil))
	if err != nil {
		t.Fatalf("fetchJSON: %v", err)
	}
	if got.Value != 42 || hits.Load() != 2 {
		t.Fatalf("value=%d hits=%d, want 42 and 2", got.Value, hits.Load())
	}
}

func TestFetchJSONStatusHandling(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			http.Error(w, "boom", http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	_, err := fetchJSON[map[string]any](context.Background(), srv.Client(), getRequest(srv.URL+"/missing?api-key=secret", nil))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("404 error = %v, want ErrNotFound", err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Fatalf("error leaks query string: %v", err)
	}

	_, err = fetchJSON[map[string]any](context.Background(), srv.Client(), getRequest(srv.URL+"/limited", nil))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("429 without Retry-After error = %v", err)
	}

	_, err = fetchJSON[map[string]any](context.Background(), srv.Client(), getRequest(srv.URL+"/broken", nil))
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("502 error = %v", err)
	}
}

func TestRetryAfterDelay(t *testing.T) {
	t.Parallel()

	if d, ok := retryAfterDelay("1.5"); !ok || d != 1500*time.Millisecond {
		t.Fatalf("seconds form = %v %v", d, ok)
	}
	future := time.Now().Add(2 * time.Second).UTC().Format(http.TimeFormat)
	if d, ok := retryAfterDelay(future); !ok || d <= 0 || d > 2*time.Second {
		t.Fatalf("date form = %v %v", d, ok)
	}
	if _, ok := retryAfterDelay("soon"); ok {
		t.Fatalf("invalid value must be rejected")
	}
}

func dexServer(t *testing.T, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if !strings.HasPrefix(r.URL.Path, "/latest/dex/tokens/") {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDexScreenerPicksMostLiquidSolanaPair(t *testing.T) {
	t.Parallel()

	srv := dexServer(t, `{"schemaVersion":"1.0.0","pairs":[
		{"chainId":"solana","dexId":"orca","pairAddress":"small","priceUsd":"1.10","liquidity":{"usd":1000}},
		{"chainId":"ethereum","dexId":"uniswap","pairAddress":"eth","priceUsd":"9.99","liquidity":{"usd":999999}},
		{"chainId":"solana","dexId":"raydium","pairAddress":"big","priceUsd":"1.25","liquidity":{"usd":50000}},
		{"chainId":"solana","dexId":"meteora","pairAddress":"noprice","priceUsd":"","liquidity":{"usd":900000}}
	]}`, nil)

	c := NewDexScreenerClient(srv.URL, srv.Client())
	pair, err := c.BestPair(context.Background(), testMint)
	if err != nil {
		t.Fatalf("BestPair: %v", err)
	}
	if pair.PairAddress != "big" || pair.PriceUsd != 1.25 || pair.DexID != "raydium" {
		t.Fatalf("unexpected pair %+v", pair)
	}
}

func TestDexScreenerNoPairsIsNotFound(t *testing.T) {
	t.Parallel()

	srv := dexServer(t, `{"schemaVersion":"1.0.0","pairs":null}`, nil)
	c := NewDexScreenerClient(srv.URL, srv.Client())
	if _, err := c.BestPair(context.Background(), testMint); !IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestParseOhlcvCloses(t *testing.T) {
	t.Parallel()

	rows := [][]float64{
		{1717203600, 1, 2, 0.5, 1.8, 100},
		{1717200000, 1, 2, 0.5, 1.5, 100},
		{1717207200, 1, 2, 0.5},
		{1717210800, 1, 2, 0.5, 0, 100},
	}
	points := parseOhlcvCloses(rows)
	if len(points) != 2 {
		t.Fatalf("points = %+v, want 2", points)
	}
	if points[0].PriceUsd != 1.5 || points[1].PriceUsd != 1.8 {
		t.Fatalf("points not sorted by time: %+v", points)
	}
	if points[0].Timestamp.Unix() != 1717200000 {
		t.Fatalf("timestamp = %v", points[0].Timestamp)
	}
}

func TestMarketPriceSource(t *testing.T) {
	t.Parallel()

	var dexHits atomic.Int32
	dex := dexServer(t, `{"pairs":[{"chainId":"solana","dexId":"raydium","pairAddress":"POOL1","priceUsd":"2.5","liquidity":{"usd":10}}]}`, &dexHits)

	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/networks/solana/pools/POOL1/ohlcv/hour" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{"data":{"id":"x","type":"ohlcv","attributes":{"ohlcv_list":[[1717200000,1,1,1,2.0,5]]}}}`)
	}))
	defer gecko.Close()

	src := NewMarketPriceSource(
		NewDexScreenerClient(dex.URL, dex.Client()),
		NewGeckoTerminalClient(gecko.URL, 10, gecko.Client()),
		time.Minute,
	)

	pc, err := src.PriceContext(context.Background(), testMint)
	if err != nil {
		t.Fatalf("PriceContext: %v", err)
	}
	if !pc.Found || pc.Current == nil || *pc.Current != 2.5 || pc.PairAddress != "POOL1" {
		t.Fatalf("unexpected context %+v", pc)
	}
	if len(pc.History) != 1 || pc.History[0].PriceUsd != 2.0 {
		t.Fatalf("history = %+v", pc.History)
	}

	if _, err := src.PriceContext(context.Background(), testMint); err != nil {
		t.Fatalf("cached PriceContext: %v", err)
	}
	if dexHits.Load() != 1 {
		t.Fatalf("dex hits = %d, want 1 (second call cached)", dexHits.Load())
	}
}

func TestMarketPriceSourceUnknownToken(t *testing.T) {
	t.Parallel()

	dex := dexServer(t, `{"pairs":[]}`, nil)
	src := NewMarketPriceSource(NewDexScreenerClient(dex.URL, dex.Client()), nil, 0)

	pc, err := src.PriceContext(context.Background(), testMint)
	if err != nil {
		t.Fatalf("unknown token must not be an error: %v", err)
	}
	if pc.Found {
		t.Fatalf("Found = true for unknown token")
	}
}

func tokenAccountData(owner types.Pubkey, amount uint64) []byte {
	data := make([]byte, 165)
	copy(data[tokenAccountOwnerStart:tokenAccountOwnerEnd], owner[:])
	binary.LittleEndian.PutUint64(data[tokenAccountOwnerEnd:tokenAccountAmountEnd], amount)
	return data
}

func mintData(decimals uint8) []byte {
	data := make([]byte, 82)
	data[mintDecimalsOffset] = decimals
	return data
}

func TestRpcHolderDirectoryMergesOwners(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method != "getTokenLargestAccounts" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":"1","result":{"context":{"slot":1},"value":[
			{"address":"acc1","amount":"3000000","decimals":6},
			{"address":"acc2","amount":"2000000","decimals":6},
			{"address":"acc3","amount":"1000000","decimals":6},
			{"address":"acc4","amount":"0","decimals":6}
		]}}`)
	}))
	defer srv.Close()

	var ownerA, ownerB types.Pubkey
	ownerA[0], ownerB[0] = 1, 2

	var fetched []string
	d := &RpcHolderDirectory{
		endpoint: srv.URL,
		http:     srv.Client(),
		limit:    10,
		cache:    newTTLCache[string, []types.Holder](8, time.Minute),
		fetch: func(_ context.Context, keys []string) ([][]byte, error) {
			fetched = keys
			return [][]byte{
				mintData(6),
				tokenAccountData(ownerA, 3_000_000),
				tokenAccountData(ownerB, 2_000_000),
				tokenAccountData(ownerB, 2_500_000),
				tokenAccountData(ownerA, 0),
			}, nil
		},
	}

	holders, err := d.Holders(context.Background(), testMint)
	if err != nil {
		t.Fatalf("Holders: %v", err)
	}
	if len(fetched) != 5 || fetched[0] != testMint {
		t.Fatalf("fetched keys = %v", fetched)
	}
	if len(holders) != 2 {
		t.Fatalf("holders = %+v, want 2 merged owners", holders)
	}
	if holders[0].Address != ownerB.String() || math.Abs(holders[0].Balance-4.5) > 1e-9 {
		t.Fatalf("top holder = %+v, want ownerB with 4.5", holders[0])
	}
	if holders[1].Address != ownerA.String() || math.Abs(holders[1].Balance-3) > 1e-9 {
		t.Fatalf("second holder = %+v, want ownerA with 3", holders[1])
	}

	fetched = nil
	if _, err := d.Holders(context.Background(), testMint); err != nil || fetched != nil {
		t.Fatalf("second call should hit cache: err=%v fetched=%v", err, fetched)
	}
}

func TestRpcHolderDirectoryRpcError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":"1","error":{"code":-32602,"message":"Invalid param: not a Token mint"}}`)
	}))
	defer srv.Close()

	d := &RpcHolderDirectory{endpoint: srv.URL, http: srv.Client(), limit: 10}
	if _, err := d.Holders(context.Background(), testMint); err == nil || !strings.Contains(err.Error(), "not a Token mint") {
		t.Fatalf("error = %v, want rpc error", err)
	}
}

func TestHeliusClassifiesTransfers(t *testing.T) {
	t.Parallel()

	const holder = "HOLDER"
	buy := heliusTransaction{
		Signature: "sig-buy",
		Timestamp: 1717200000,
		TokenTransfers: []heliusTokenTransfer{
			{FromUserAccount: "POOL", ToUserAccount: holder, TokenAmount: 100, Mint: testMint},
			{FromUserAccount: holder, ToUserAccount: "POOL", TokenAmount: 50, Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		},
	}
	tx, ok := toHolderTransaction(&buy, testMint, holder)
	if !ok || tx.Direction != types.DirectionBuy || tx.Amount != 100 {
		t.Fatalf("buy = %+v %v", tx, ok)
	}
	if tx.PriceUsd == nil || *tx.PriceUsd != 0.5 {
		t.Fatalf("buy price = %v, want 0.5", tx.PriceUsd)
	}

	sell := heliusTransaction{
		Signature: "sig-sell",
		Timestamp: 1717203600,
		TokenTransfers: []heliusTokenTransfer{
			{FromUserAccount: holder, ToUserAccount: "POOL", TokenAmount: 40, Mint: testMint},
		},
	}
	tx, ok = toHolderTransaction(&sell, testMint, holder)
	if !ok || tx.Direction != types.DirectionSell || tx.PriceUsd != nil {
		t.Fatalf("sell = %+v %v", tx, ok)
	}

	other := heliusTransaction{TokenTransfers: []heliusTokenTransfer{
		{FromUserAccount: "X", ToUserAccount: "Y", TokenAmount: 1, Mint: testMint},
	}}
	if _, ok := toHolderTransaction(&other, testMint, holder); ok {
		t.Fatalf("unrelated transfer must be ignored")
	}
}

func TestHeliusHistoryPaginates(t *testing.T) {
	t.Parallel()

	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api-key") != "k" || r.URL.Query().Get("type") != "SWAP" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		n := pages.Add(1)
		var txs []heliusTransaction
		if n == 1 {
			for i := 0; i < heliusPageLimit; i++ {
				txs = append(txs, heliusTransaction{Signature: "s", Timestamp: int64(1717200000 + i)})
			}
			txs[0].TokenTransfers = []heliusTokenTransfer{{FromUserAccount: "P", ToUserAccount: "H", TokenAmount: 1, Mint: testMint}}
		} else {
			if r.URL.Query().Get("before") != "s" {
				http.Error(w, "missing before", http.StatusBadRequest)
				return
			}
			txs = []heliusTransaction{{Signature: "last", Timestamp: 1717300000, TokenTransfers: []heliusTokenTransfer{
				{FromUserAccount: "H", ToUserAccount: "P", TokenAmount: 1, Mint: testMint},
			}}}
		}
		_ = json.NewEncoder(w).Encode(txs)
	}))
	defer srv.Close()

	h := NewHeliusHistory(srv.URL, "k", 5, srv.Client())
	txs, err := h.Transactions(context.Background(), testMint, "H")
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if pages.Load() != 2 || len(txs) != 2 {
		t.Fatalf("pages=%d txs=%d, want 2 and 2", pages.Load(), len(txs))
	}

	if _, err := NewHeliusHistory(srv.URL, "", 1, srv.Client()).Transactions(context.Background(), testMint, "H"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("missing key error = %v", err)
	}
}

func TestTTLCacheExpires(t *testing.T) {
	t.Parallel()

	c := newTTLCache[string, int](4, 20*time.Millisecond)
	c.Add("a", 1)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get = %v %v", v, ok)
	}
	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("entry should have expired")
	}

	disabled := newTTLCache[string, int](0, time.Minute)
	disabled.Add("a", 1)
	if _, ok := disabled.Get("a"); ok {
		t.Fatalf("disabled cache must not store")
	}
}
