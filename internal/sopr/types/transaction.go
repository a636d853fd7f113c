package types

import (
	"fmt"
	"time"
)

// Direction 交易方向
type Direction uint8

const (
	DirectionUnknown Direction = iota
	DirectionBuy
	DirectionSell
)

func (d Direction) String() string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	default:
		return "unknown"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "buy":
		*d = DirectionBuy
	case "sell":
		*d = DirectionSell
	case "unknown", "":
		*d = DirectionUnknown
	default:
		return fmt.Errorf("unknown direction %q", string(b))
	}
	return nil
}

// HolderTransaction 持有人的一次买入/卖出事件，构造后不可修改
type HolderTransaction struct {
	Signature string    `json:"signature,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	PriceUsd  *float64  `json:"priceUsd,omitempty"` // 事件自带价格，可能为空
	Amount    float64   `json:"amount"`
}

// Holder 持有人及其当前余额（已按 decimals 换算）
type Holder struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

// PricePoint 历史价格点
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	PriceUsd  float64   `json:"priceUsd"`
}

// PriceContext 价格源返回的当前价格与历史价格（按时间升序）
// Found=false 表示价格源不认识该 token，不是错误
type PriceContext struct {
	Found       bool         `json:"found"`
	Current     *float64     `json:"current,omitempty"`
	PairAddress string       `json:"pairAddress,omitempty"`
	DexID       string       `json:"dexId,omitempty"`
	History     []PricePoint `json:"history,omitempty"`
}
