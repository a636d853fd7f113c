package types

import (
	"fmt"
	"time"
)

type TrendDirection uint8

const (
	TrendNoData TrendDirection = iota
	TrendUp
	TrendDown
	TrendFlat
)

func (d TrendDirection) String() string {
	switch d {
	case TrendUp:
		return "up"
	case TrendDown:
		return "down"
	case TrendFlat:
		return "flat"
	default:
		return "no_data"
	}
}

func (d TrendDirection) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *TrendDirection) UnmarshalText(b []byte) error {
	switch string(b) {
	case "up":
		*d = TrendUp
	case "down":
		*d = TrendDown
	case "flat":
		*d = TrendFlat
	case "no_data", "":
		*d = TrendNoData
	default:
		return fmt.Errorf("unknown trend direction %q", string(b))
	}
	return nil
}

// Trend 最近若干个 SOPR 值的线性回归趋势
type Trend struct {
	Direction TrendDirection `json:"direction"`
	Strength  float64        `json:"strength"` // |slope|，非负
	Samples   []float64      `json:"samples"`
}

type Classification string

const (
	ClassInProfit  Classification = "in_profit"
	ClassAtLoss    Classification = "at_loss"
	ClassBreakEven Classification = "break_even"
	ClassNoData    Classification = "no_data"
)

// SkipReason 持有人未计入 SOPR 的原因
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipFetchFailed  SkipReason = "fetch_failed"
	SkipNoBuy        SkipReason = "no_buy"
	SkipNoSell       SkipReason = "no_sell"
	SkipNoBuyPrice   SkipReason = "no_buy_price"
	SkipNoSellPrice  SkipReason = "no_sell_price"
	SkipInvalidPrice SkipReason = "invalid_price"
	SkipCancelled    SkipReason = "cancelled"
)

// HolderOutcome 单个持有人的计算结果：Ratio 与 Skip 二选一
type HolderOutcome struct {
	Holder       Holder     `json:"holder"`
	Ratio        *float64   `json:"ratio,omitempty"`
	BuyPriceUsd  *float64   `json:"buyPriceUsd,omitempty"`
	SellPriceUsd *float64   `json:"sellPriceUsd,omitempty"`
	Skip         SkipReason `json:"skip,omitempty"`
	Err          error      `json:"-"`
	Error        string     `json:"error,omitempty"`
}

func (o *HolderOutcome) Valid() bool {
	return o.Ratio != nil && o.Skip == SkipNone
}

// SoprResult 单次计算的结果
// CurrentSopr 为 nil 表示没有任何有效买卖对，不能当作 0 处理
type SoprResult struct {
	Token           string          `json:"token"`
	Session         string          `json:"session"`
	CurrentSopr     *float64        `json:"currentSopr"`
	AverageSopr     *float64        `json:"averageSopr"`
	Trend           Trend           `json:"trend"`
	Classification  Classification  `json:"classification"`
	CurrentPriceUsd *float64        `json:"currentPriceUsd,omitempty"`
	PairAddress     string          `json:"pairAddress,omitempty"`
	HolderCount     int             `json:"holderCount"`
	ValidPairCount  int             `json:"validPairCount"`
	Holders         []HolderOutcome `json:"holders,omitempty"`
	ComputedAt      time.Time       `json:"computedAt"`
	Duration        time.Duration   `json:"-"`
}

// SkipCounts 按原因统计被排除的持有人数量
func (r *SoprResult) SkipCounts() map[SkipReason]int {
	counts := make(map[SkipReason]int)
	for i := range r.Holders {
		if s := r.Holders[i].Skip; s != SkipNone {
			counts[s]++
		}
	}
	return counts
}
