package utils

// ClearSlice 清空 slice 元素引用并复用底层数组
func ClearSlice[T any](s *[]T) {
	if s == nil || len(*s) == 0 {
		return
	}
	clear(*s)
	*s = (*s)[:0]
}

// LastN 返回 s 的最后 n 个元素（共享底层数组）
func LastN[T any](s []T, n int) []T {
	if n <= 0 {
		return nil
	}
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
