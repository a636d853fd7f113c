package utils

import (
	"sync/atomic"
	"time"
)

// ThrottleLog 限频打印，interval 内只有一个调用方返回 true
// lastTime: 上次打印时间（纳秒），由调用方持有
func ThrottleLog(lastTime *atomic.Int64, interval time.Duration) bool {
	now := time.Now().UnixNano()
	last := lastTime.Load()
	if now-last < interval.Nanoseconds() {
		return false
	}
	return lastTime.CompareAndSwap(last, now)
}
