package util

import "time"

// Ptr 取任意值的指针，常用于构造部分更新请求
func Ptr[T any](v T) *T {
	return &v
}

// MsDuration 配置中的毫秒数转为 Duration，非正数取默认值
func MsDuration(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

// SecDuration 配置中的秒数转为 Duration，非正数取默认值
func SecDuration(s int, def time.Duration) time.Duration {
	if s <= 0 {
		return def
	}
	return time.Duration(s) * time.Second
}
