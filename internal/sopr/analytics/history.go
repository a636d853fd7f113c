package analytics

import (
	"sopr-stats-sol/internal/pkg/utils"
	"sync"
)

const DefaultHistorySize = 14

// History 调用方持有的 SOPR 滚动窗口（简单移动平均），满了淘汰最旧的值
type History struct {
	mu       sync.Mutex
	capacity int
	values   []float64
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{
		capacity: capacity,
		values:   make([]float64, 0, capacity),
	}
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.values)
}

// Push 追加一个值，返回追加后的快照
func (h *History) Push(v float64) []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.values) == h.capacity {
		copy(h.values, h.values[1:])
		h.values = h.values[:h.capacity-1]
	}
	h.values = append(h.values, v)
	return h.snapshotLocked()
}

// Values 返回按插入顺序排列的副本
func (h *History) Values() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Mean 窗口均值，空窗口返回 false
func (h *History) Mean() (float64, bool) {
	return utils.Mean(h.Values())
}

// Reset 清空窗口
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	utils.ClearSlice(&h.values)
}

func (h *History) snapshotLocked() []float64 {
	out := make([]float64, len(h.values))
	copy(out, h.values)
	return out
}
