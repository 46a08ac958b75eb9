package bridge

import (
	"math"
	"time"
)

// maxTimerMillis is the largest delay representable as a time.Duration.
// Longer delays are clamped: a timer may fire early, never late-by-overflow.
const maxTimerMillis = float64(math.MaxInt64 / int64(time.Millisecond))

// StartTimer schedules exactly one timer_fired delivery for id after
// delayMillis. Delays at or below zero (and NaN) skip the runtime timer and
// enqueue directly, since platform timers mis-handle zero delays.
func (b *Bridge) StartTimer(id uint32, delayMillis float64) {
	if b.killed.Load() {
		return
	}

	if math.IsNaN(delayMillis) || delayMillis <= 0 {
		b.queue.push(item{isTimer: true, timerID: id})
		return
	}

	var d time.Duration
	if delayMillis >= maxTimerMillis {
		d = math.MaxInt64
	} else {
		d = time.Duration(delayMillis * float64(time.Millisecond))
	}

	time.AfterFunc(d, func() {
		if b.killed.Load() {
			return
		}
		b.queue.push(item{isTimer: true, timerID: id})
	})
}
