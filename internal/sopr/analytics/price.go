package analytics

import (
	"sopr-stats-sol/internal/pkg/utils"
	"sopr-stats-sol/internal/sopr/types"
	"sort"
	"time"
)

const DefaultPriceTolerance = time.Hour

// NearestPrice 在按时间升序的价格序列中找离 ts 最近的点，超出 tolerance 视为没有价格
func NearestPrice(history []types.PricePoint, ts time.Time, tolerance time.Duration) (float64, bool) {
	n := len(history)
	if n == 0 {
		return 0, false
	}

	idx := sort.Search(n, func(i int) bool {
		return !history[i].Timestamp.Before(ts)
	})

	best := -1
	var bestDist time.Duration
	for _, i := range [2]int{idx - 1, idx} {
		if i < 0 || i >= n {
			continue
		}
		d := utils.AbsDuration(history[i].Timestamp.Sub(ts))
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}

	if best < 0 || bestDist > tolerance {
		return 0, false
	}
	p := history[best].PriceUsd
	if !utils.IsPositiveFinite(p) {
		return 0, false
	}
	return p, true
}

// eventPrice 优先使用事件自带价格，否则回落到历史价格
func eventPrice(tx *types.HolderTransaction, history []types.PricePoint, tolerance time.Duration) (float64, bool) {
	if tx.PriceUsd != nil && utils.IsPositiveFinite(*tx.PriceUsd) {
		return *tx.PriceUsd, true
	}
	return NearestPrice(history, tx.Timestamp, tolerance)
}

// sortPriceHistory 保证价格序列按时间升序（价格源一般已排序）
func sortPriceHistory(history []types.PricePoint) []types.PricePoint {
	if sort.SliceIsSorted(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	}) {
		return history
	}
	out := append([]types.PricePoint(nil), history...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
