package analytics

import (
	"context"
	"errors"
	"fmt"
	"github.com/panjf2000/ants/v2"
	"runtime/debug"
	"sopr-stats-sol/internal/pkg/logger"
	"sopr-stats-sol/internal/pkg/utils"
	"sopr-stats-sol/internal/sopr/types"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrUpstreamUnavailable 价格或持有人列表获取失败，整个计算中止
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrTokenNotFound 价格源不认识该 token
	ErrTokenNotFound = errors.New("token not found")
)

const defaultHolderWorkers = 16

// PriceSource 当前价格与历史价格
type PriceSource interface {
	PriceContext(ctx context.Context, token string) (*types.PriceContext, error)
}

// HolderDirectory 持有人列表，空列表是合法结果
type HolderDirectory interface {
	Holders(ctx context.Context, token string) ([]types.Holder, error)
}

// TransactionHistory 单个持有人的买卖事件
type TransactionHistory interface {
	Transactions(ctx context.Context, token, holder string) ([]types.HolderTransaction, error)
}

// ProgressFunc 每处理完一个持有人回调一次，调用是串行的，processed 单调递增
type ProgressFunc func(processed, total int)

type Options struct {
	HistorySize    int
	TrendWindow    int
	PriceTolerance time.Duration
	HolderWorkers  int
}

func (o *Options) applyDefaults() {
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.TrendWindow <= 0 {
		o.TrendWindow = DefaultTrendWindow
	}
	if o.PriceTolerance <= 0 {
		o.PriceTolerance = DefaultPriceTolerance
	}
	if o.HolderWorkers <= 0 {
		o.HolderWorkers = defaultHolderWorkers
	}
}

// Engine SOPR 计算引擎，本身无状态，历史窗口由调用方传入
type Engine struct {
	prices  PriceSource
	holders HolderDirectory
	txs     TransactionHistory
	opts    Options

	// 持有人并发拉取池（阻塞提交），真实请求速率由请求队列决定
	pool *ants.Pool

	lastErrLogTime atomic.Int64
}

func NewEngine(prices PriceSource, holders HolderDirectory, txs TransactionHistory, opts Options) (*Engine, error) {
	opts.applyDefaults()
	pool, err := ants.NewPool(opts.HolderWorkers)
	if err != nil {
		return nil, fmt.Errorf("create holder pool: %w", err)
	}
	return &Engine{
		prices:  prices,
		holders: holders,
		txs:     txs,
		opts:    opts,
		pool:    pool,
	}, nil
}

func (e *Engine) Options() Options {
	return e.opts
}

// NewHistory 按引擎配置创建历史窗口
func (e *Engine) NewHistory() *History {
	return NewHistory(e.opts.HistorySize)
}

// Close 释放持有人拉取池
func (e *Engine) Close() {
	e.pool.Release()
}

// ComputeSopr 计算 token 的 SOPR
//
// 价格或持有人列表失败返回 ErrUpstreamUnavailable；单个持有人失败只记录在 Holders 中。
// ctx 被取消时返回 ctx.Err()，history 不会被修改。
func (e *Engine) ComputeSopr(ctx context.Context, token string, history *History, progress ProgressFunc) (result *types.SoprResult, err error) {
	start := time.Now()
	defer func() {
		observeCompute(start, err)
	}()

	if history == nil {
		history = e.NewHistory()
	}

	// 1. 价格与持有人
	pc, err := e.prices.PriceContext(ctx, token)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: price context for %s: %w", ErrUpstreamUnavailable, token, err)
	}
	if pc == nil || !pc.Found {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, token)
	}

	holders, err := e.holders.Holders(ctx, token)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: holders for %s: %w", ErrUpstreamUnavailable, token, err)
	}

	// 2~3. 逐个持有人计算比值
	priceHistory := sortPriceHistory(pc.History)
	outcomes := e.evaluateHolders(ctx, token, holders, priceHistory, progress)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	// 4. 聚合
	ratios := make([]float64, 0, len(outcomes))
	for i := range outcomes {
		if outcomes[i].Valid() {
			ratios = append(ratios, *outcomes[i].Ratio)
		}
	}

	result = &types.SoprResult{
		Token:           token,
		CurrentPriceUsd: pc.Current,
		PairAddress:     pc.PairAddress,
		HolderCount:     len(holders),
		ValidPairCount:  len(ratios),
		Holders:         outcomes,
		ComputedAt:      time.Now().UTC(),
	}

	// 5. 只有完整计算出的值才写入历史
	var snapshot []float64
	if mean, ok := utils.Mean(ratios); ok {
		result.CurrentSopr = &mean
		snapshot = history.Push(mean)
	} else {
		snapshot = history.Values()
	}
	if avg, ok := utils.Mean(snapshot); ok {
		result.AverageSopr = &avg
	}

	// 6~7. 趋势与分类
	result.Trend = ComputeTrend(snapshot, e.opts.TrendWindow)
	result.Classification = Classify(result.CurrentSopr)
	result.Duration = time.Since(start)

	logger.Infof("[SoprEngine] token=%s holders=%d valid=%d current=%s average=%s trend=%s duration=%v",
		token, result.HolderCount, result.ValidPairCount,
		formatOptional(result.CurrentSopr), formatOptional(result.AverageSopr),
		result.Trend.Direction, result.Duration)
	return result, nil
}

func (e *Engine) evaluateHolders(
	ctx context.Context,
	token string,
	holders []types.Holder,
	priceHistory []types.PricePoint,
	progress ProgressFunc,
) []types.HolderOutcome {
	total := len(holders)
	outcomes := make([]types.HolderOutcome, total)
	if total == 0 {
		return outcomes
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		processed int
	)
	report := func() {
		mu.Lock()
		defer mu.Unlock()
		processed++
		e.reportProgress(progress, processed, total)
	}

	for i := range holders {
		// 取消后不再发起新的持有人请求
		if ctx.Err() != nil {
			for j := i; j < total; j++ {
				outcomes[j] = types.HolderOutcome{Holder: holders[j], Skip: types.SkipCancelled}
			}
			break
		}

		idx := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			outcomes[idx] = e.evaluateHolder(ctx, token, holders[idx], priceHistory)
			report()
		}

		if err := e.pool.Submit(task); err != nil {
			wg.Done()
			outcomes[idx] = types.HolderOutcome{
				Holder: holders[idx],
				Skip:   types.SkipFetchFailed,
				Err:    err,
				Error:  err.Error(),
			}
			logger.Errorf("[SoprEngine] submit holder task failed: %v, token=%s, holder=%s", err, token, holders[idx].Address)
			report()
		}
	}

	wg.Wait()
	return outcomes
}

// evaluateHolder 单个持有人：首次买入、最后一次卖出，比值 = 卖出价 / 买入价
func (e *Engine) evaluateHolder(
	ctx context.Context,
	token string,
	holder types.Holder,
	priceHistory []types.PricePoint,
) (out types.HolderOutcome) {
	out.Holder = holder

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[SoprEngine] panic evaluating holder %s: %v\n%s", holder.Address, r, debug.Stack())
			err := fmt.Errorf("panic: %v", r)
			out = types.HolderOutcome{Holder: holder, Skip: types.SkipFetchFailed, Err: err, Error: err.Error()}
		}
		holderOutcomesTotal.WithLabelValues(outcomeLabel(out.Skip)).Inc()
	}()

	txs, err := e.txs.Transactions(ctx, token, holder.Address)
	if err != nil {
		if ctx.Err() != nil {
			out.Skip = types.SkipCancelled
			return out
		}
		if utils.ThrottleLog(&e.lastErrLogTime, 3*time.Second) {
			logger.Warnf("[SoprEngine] fetch transactions failed, token=%s, holder=%s: %v", token, holder.Address, err)
		}
		out.Skip = types.SkipFetchFailed
		out.Err = err
		out.Error = err.Error()
		return out
	}

	sorted := make([]types.HolderTransaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	buy := firstOf(sorted, types.DirectionBuy)
	if buy == nil {
		out.Skip = types.SkipNoBuy
		return out
	}
	sell := lastOf(sorted, types.DirectionSell)
	if sell == nil {
		out.Skip = types.SkipNoSell
		return out
	}

	buyPrice, ok := eventPrice(buy, priceHistory, e.opts.PriceTolerance)
	if !ok {
		out.Skip = types.SkipNoBuyPrice
		return out
	}
	sellPrice, ok := eventPrice(sell, priceHistory, e.opts.PriceTolerance)
	if !ok {
		out.Skip = types.SkipNoSellPrice
		return out
	}
	out.BuyPriceUsd = &buyPrice
	out.SellPriceUsd = &sellPrice

	ratio := sellPrice / buyPrice
	if !utils.IsPositiveFinite(ratio) {
		out.Skip = types.SkipInvalidPrice
		return out
	}
	out.Ratio = &ratio
	return out
}

func (e *Engine) reportProgress(progress ProgressFunc, processed, total int) {
	if progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[SoprEngine] progress callback panicked: %v\n%s", r, debug.Stack())
		}
	}()
	progress(processed, total)
}

func firstOf(txs []types.HolderTransaction, dir types.Direction) *types.HolderTransaction {
	for i := range txs {
		if txs[i].Direction == dir {
			return &txs[i]
		}
	}
	return nil
}

func lastOf(txs []types.HolderTransaction, dir types.Direction) *types.HolderTransaction {
	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].Direction == dir {
			return &txs[i]
		}
	}
	return nil
}

func formatOptional(v *float64) string {
	if v == nil {
		return "undefined"
	}
	return fmt.Sprintf("%.6f", *v)
}
