package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFake_AdvanceFiresDueTimersInOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var order []string
	c.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })
	c.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })
	c.AfterFunc(time.Second, func() { order = append(order, "late") })

	c.Advance(500 * time.Millisecond)
	require.Equal(t, []string{"a", "b"}, order)
	require.Equal(t, start.Add(500*time.Millisecond), c.Now())
	require.Equal(t, 1, c.Pending())
}

func TestFake_StopPreventsFiring(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())

	c.Advance(2 * time.Second)
	require.False(t, fired)
	require.Zero(t, c.Pending())
}

func TestFake_CallbackCanReschedule(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		c.AfterFunc(10*time.Second, tick)
	}
	c.AfterFunc(10*time.Second, tick)

	c.Advance(35 * time.Second)
	require.Equal(t, 3, ticks)
	require.Equal(t, 1, c.Pending())
}
