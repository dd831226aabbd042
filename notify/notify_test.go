package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestChannel_DisabledChannelDropsSilently(t *testing.T) {
	c := NewChannel(ChannelSet{SMS: false}, QuietHours{}, fixedClock{time.Now()}, &core.NoOpLogger{})
	require.NoError(t, c.SMS(context.Background(), "+1", "hello"))
}

func TestChannel_QuietHoursDefersNonCritical(t *testing.T) {
	noon := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	c := NewChannel(ChannelSet{SMS: true}, QuietHours{StartHour: 22, EndHour: 7}, fixedClock{noon}, &core.NoOpLogger{})

	require.NoError(t, c.SMS(context.Background(), "+1", "hello"))
	deferred := c.DrainDeferred()
	require.Len(t, deferred, 1)
	require.Equal(t, "+1", deferred[0].to)
}

func TestChannel_VoiceIsAlwaysCriticalAndNotDeferred(t *testing.T) {
	noon := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	c := NewChannel(ChannelSet{Voice: true}, QuietHours{StartHour: 22, EndHour: 7}, fixedClock{noon}, &core.NoOpLogger{})

	require.NoError(t, c.Voice(context.Background(), "+1", "emergency"))
	require.Empty(t, c.DrainDeferred())
}

func TestQuietHours_WrapsPastMidnight(t *testing.T) {
	q := QuietHours{StartHour: 22, EndHour: 7}
	require.True(t, q.inQuietHours(time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)))
	require.True(t, q.inQuietHours(time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)))
	require.False(t, q.inQuietHours(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)))
}

func TestSlackGateway_NoWebhookConfiguredIsNonFatal(t *testing.T) {
	g := NewSlackGateway("", &core.NoOpLogger{})
	require.NoError(t, g.Notify(context.Background(), "L1", map[string]interface{}{"orderId": "o1"}))
}
