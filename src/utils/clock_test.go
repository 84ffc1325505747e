package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fired(c <-chan time.Time) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}

func TestFakeTimerFiresOnAdvance(t *testing.T) {
	clk := NewFakeClock(epoch)
	timer := clk.NewTimer(5 * time.Second)

	clk.Advance(4 * time.Second)
	assert.False(t, fired(timer.C()))

	clk.Advance(time.Second)
	assert.True(t, fired(timer.C()))
	assert.Equal(t, 0, clk.Waiters())
	assert.Equal(t, epoch.Add(5*time.Second), clk.Now())
}

func TestFakeTimerStop(t *testing.T) {
	clk := NewFakeClock(epoch)
	timer := clk.NewTimer(time.Second)
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clk.Advance(time.Minute)
	assert.False(t, fired(timer.C()))
}

func TestFakeTickerRearms(t *testing.T) {
	clk := NewFakeClock(epoch)
	ticker := clk.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for i := 0; i < 3; i++ {
		clk.Advance(15 * time.Second)
		assert.True(t, fired(ticker.C()), "tick %d", i)
	}
	assert.Equal(t, 1, clk.Waiters())

	ticker.Stop()
	assert.Equal(t, 0, clk.Waiters())
}

func TestNewIDSortable(t *testing.T) {
	a := NewID(epoch)
	b := NewID(epoch)
	c := NewID(epoch.Add(time.Second))
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}
