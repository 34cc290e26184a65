package service

import "time"

// Clock 流水时间与排行榜周期边界的时间来源
type Clock interface {
	Now() time.Time
}

// SystemClock 统一返回 UTC 时间，入库时间与周期边界都按 UTC 比较
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc 便于测试注入固定时间
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f().UTC()
}
