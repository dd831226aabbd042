package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_TickInvokesListeners(t *testing.T) {
	fc := NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	calls := 0
	fc.AfterEvery(context.Background(), 30*time.Second, func(ctx context.Context) {
		calls++
	})

	fc.Tick(context.Background(), 30*time.Second)
	fc.Tick(context.Background(), 30*time.Second)

	assert.Equal(t, 2, calls)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), fc.Now())
}

func TestRealClock_AfterEveryTicksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc := NewRealClock()
	ticks := 0
	rc.AfterEvery(ctx, 10*time.Millisecond, func(context.Context) { ticks++ })

	time.Sleep(35 * time.Millisecond)
	cancel()
	time.Sleep(15 * time.Millisecond)

	assert.GreaterOrEqual(t, ticks, 2)
}
