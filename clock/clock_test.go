package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/ptlsim/clock"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
)

func TestClockSteps(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 10, Total: 3, Interval: 1})
	assert.Equal(t, int32(0), c.Tick())
	assert.Equal(t, 10.0, c.T)
	assert.False(t, c.Finished())
	c.Step()
	c.Step()
	assert.Equal(t, int32(2), c.Tick())
	assert.False(t, c.Finished())
	c.Step()
	assert.True(t, c.Finished())
	c.Init()
	assert.Equal(t, int32(10), c.InternalStep)
}

func TestClockString(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 3725, Total: 1, Interval: 1})
	assert.Equal(t, "01:02:05", c.String())
	h, m, s := c.GetHourMinuteSecond()
	assert.Equal(t, 1, h)
	assert.Equal(t, 2, m)
	assert.InDelta(t, 5.0, s, 1e-9)
}
