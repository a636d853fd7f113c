package utils

// ClearOrResetMap 根据 map 当前长度判断是清空还是重新分配
// - maxLen: 超过这个长度就重新分配，释放旧内存
// - initCap: 重新分配时的初始容量
func ClearOrResetMap[K comparable, V any](m *map[K]V, maxLen, initCap int) {
	n := len(*m)
	if n == 0 {
		return
	}
	if n > maxLen {
		*m = make(map[K]V, initCap)
		return
	}
	clear(*m)
}
