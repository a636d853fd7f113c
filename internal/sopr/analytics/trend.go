package analytics

import (
	"math"
	"sopr-stats-sol/internal/pkg/utils"
	"sopr-stats-sol/internal/sopr/types"
)

const (
	DefaultTrendWindow = 5
	minTrendSamples    = 2
	slopeEpsilon       = 1e-12
	breakEven          = 1.0
	breakEvenEpsilon   = 1e-9
)

// LinearRegression 最小二乘拟合 y = slope*x + intercept
// 样本少于 2 个或 x 全相同时 ok=false
func LinearRegression(xs, ys []float64) (slope, intercept float64, ok bool) {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return 0, 0, false
	}

	meanX, _ := utils.Mean(xs)
	meanY, _ := utils.Mean(ys)

	var sxy, sxx float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		sxy += dx * (ys[i] - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, 0, false
	}

	slope = sxy / sxx
	intercept = meanY - slope*meanX
	return slope, intercept, true
}

// ComputeTrend 取最后 window 个样本，对下标 0..k-1 做回归
func ComputeTrend(values []float64, window int) types.Trend {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	samples := append([]float64(nil), utils.LastN(values, window)...)
	trend := types.Trend{Direction: types.TrendNoData, Samples: samples}
	if len(samples) < minTrendSamples {
		return trend
	}

	xs := make([]float64, len(samples))
	for i := range xs {
		xs[i] = float64(i)
	}
	slope, _, ok := LinearRegression(xs, samples)
	if !ok {
		return trend
	}

	switch {
	case math.Abs(slope) < slopeEpsilon:
		trend.Direction = types.TrendFlat
		trend.Strength = 0
	case slope > 0:
		trend.Direction = types.TrendUp
		trend.Strength = math.Abs(slope)
	default:
		trend.Direction = types.TrendDown
		trend.Strength = math.Abs(slope)
	}
	return trend
}

// Classify 以 1.0 为盈亏平衡点
func Classify(sopr *float64) types.Classification {
	if sopr == nil {
		return types.ClassNoData
	}
	switch d := *sopr - breakEven; {
	case math.Abs(d) < breakEvenEpsilon:
		return types.ClassBreakEven
	case d > 0:
		return types.ClassInProfit
	default:
		return types.ClassAtLoss
	}
}
