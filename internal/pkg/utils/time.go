package utils

import "time"

// 时间阈值判断：2025-01-01 10倍秒数，用于区分秒级/毫秒级时间
const unix2025Jan1_10x = 1735689600 * 10

// ToMilliseconds 将输入时间统一转换为毫秒
// 输入可能是秒级或毫秒级时间戳
func ToMilliseconds(t int64) int64 {
	if t >= unix2025Jan1_10x {
		return t
	}
	return t * 1000
}

// UnixToTime 秒级或毫秒级时间戳转 time.Time（UTC）
func UnixToTime(t int64) time.Time {
	return time.UnixMilli(ToMilliseconds(t)).UTC()
}

// AbsDuration 返回 d 的绝对值
func AbsDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
