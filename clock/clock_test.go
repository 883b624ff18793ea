package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMsToTicksNeverSentinel(t *testing.T) {
	assert.Equal(t, Never, MsToTicks(NeverMs))
	assert.Equal(t, int64(NeverMs), TicksToMs(Never))
}

func TestMsToTicksRoundTripNeverUndershoots(t *testing.T) {
	for _, ms := range []int64{0, 1, 2, 7, 15, 100, 999, 1500} {
		ticks := MsToTicks(ms)
		back := TicksToMs(ticks)
		assert.GreaterOrEqualf(t, back, ms, "round-trip for %dms undershot: got %dms", ms, back)
	}
}

func TestMsToTicksCeilingRoundsUp(t *testing.T) {
	r := Rate{TicksPerSecond: 100} // 10ms per tick
	// 5ms should round up to 1 tick, plus 1 tick of slack == 2 ticks == 20ms.
	ticks := r.MsToTicks(5)
	assert.Equal(t, Ticks(2), ticks)
}

func TestTicksToMsFloorsDown(t *testing.T) {
	r := Rate{TicksPerSecond: 3} // non-integer ms-per-tick
	assert.Equal(t, int64(333), r.TicksToMs(1))
}

func TestZeroDelayStillRoundsToAtLeastOneTick(t *testing.T) {
	ticks := MsToTicks(0)
	assert.GreaterOrEqual(t, int64(ticks), int64(1))
}
