package system

import "time"

// Clock 현재 시각 제공자
type Clock interface {
	Now() time.Time
}

// SystemClock 실제 벽시계
type SystemClock struct{}

// Now 현재 시각 반환
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
