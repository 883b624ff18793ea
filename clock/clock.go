// Package clock converts between milliseconds, the core's portable time
// unit, and an opaque native tick domain, the way a host RTOS exposes a
// tick rate (e.g. FreeRTOS's configTICK_RATE_HZ) coarser than a
// millisecond. Delay conversions round up (a delay must never fire early);
// conversions back to milliseconds round down, so that
// TicksToMs(MsToTicks(d)) >= d for every d, which is exactly testable
// property 5 in spec.md §8.
//
// Grounded on the teacher's (joeycumines/go-eventloop) calculateTimeout
// (loop.go), which performs the identical "ceiling rounding: if 0 < delta <
// 1ms, round up to 1ms" adjustment when converting a time.Duration delay
// into a millisecond poll timeout.
package clock

import "math"

// Ticks is a native tick count, this core's opaque time unit.
type Ticks int64

// Never is the sentinel meaning "no timeout" / "forever", mapping to the
// platform's maximum delay sentinel (spec.md §4.3 edge cases).
const Never Ticks = math.MaxInt64

// NeverMs is the millisecond-domain counterpart of Never.
const NeverMs int64 = -1

// Rate converts between milliseconds and Ticks at a fixed tick frequency,
// the Go stand-in for a host's tick rate configuration constant.
type Rate struct {
	// TicksPerSecond is the native tick frequency. Must be > 0.
	TicksPerSecond int64
}

// DefaultRate is a 1000Hz tick rate — one tick per millisecond — chosen so
// callers that don't care about host tick granularity get exact,
// slack-free conversions.
var DefaultRate = Rate{TicksPerSecond: 1000}

// MsToTicks converts a millisecond delay to native ticks, rounding up to
// the next whole tick and then adding one tick of rounding slack, per
// spec.md §4.3: "Conversion to ticks rounds up for delays and adds one tick
// for rounding slack". ms == NeverMs maps to Never.
func (r Rate) MsToTicks(ms int64) Ticks {
	if ms == NeverMs || ms < 0 {
		return Never
	}
	if r.TicksPerSecond <= 0 {
		r.TicksPerSecond = DefaultRate.TicksPerSecond
	}

	ticks := (ms*r.TicksPerSecond + 999) / 1000 // ceiling division
	ticks++                                     // one tick of rounding slack

	if ticks < 0 || Ticks(ticks) >= Never {
		return Never
	}
	return Ticks(ticks)
}

// TicksToMs converts native ticks back to milliseconds, rounding down.
// Never maps to NeverMs.
func (r Rate) TicksToMs(t Ticks) int64 {
	if t >= Never {
		return NeverMs
	}
	if r.TicksPerSecond <= 0 {
		r.TicksPerSecond = DefaultRate.TicksPerSecond
	}
	return (int64(t) * 1000) / r.TicksPerSecond
}

// MsToTicks converts using DefaultRate.
func MsToTicks(ms int64) Ticks { return DefaultRate.MsToTicks(ms) }

// TicksToMs converts using DefaultRate.
func TicksToMs(t Ticks) int64 { return DefaultRate.TicksToMs(t) }
