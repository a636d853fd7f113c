package utils

import (
	"github.com/shopspring/decimal"
	"golang.org/x/exp/constraints"
	"math"
	"strconv"
)

// Mean 算术平均，空切片返回 (0, false)
func Mean[T constraints.Integer | constraints.Float](values []T) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values)), true
}

// AmountToFloat64 链上整数数量按 decimals 转换为浮点
func AmountToFloat64(value string, decimals uint8) float64 {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0
	}
	f, _ := d.Shift(-int32(decimals)).Float64()
	return f
}

// ParseDecimalFloat 解析第三方 API 返回的字符串数值（价格、流动性）
func ParseDecimalFloat(value string) (float64, bool) {
	if value == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

func Uint64ToStr(value uint64) string {
	return strconv.FormatUint(value, 10)
}

// IsPositiveFinite 判断价格等数值是否可用
func IsPositiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
