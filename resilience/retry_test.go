package resilience

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
)

func TestRetryPolicy_RetriesTransientUntilSuccess(t *testing.T) {
	p := DefaultRetryPolicy()
	p.InitialDelay = 0
	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return core.NewError("op", core.KindTransient, "", assertErr)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicy_DoesNotRetryInvalid(t *testing.T) {
	p := DefaultRetryPolicy()
	p.InitialDelay = 0
	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return core.NewError("op", core.KindInvalid, "", assertErr)
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicy_StopsAtMaxAttempts(t *testing.T) {
	p := DefaultRetryPolicy()
	p.InitialDelay = 0
	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return core.NewError("op", core.KindTransient, "", assertErr)
	})
	require.Error(t, err)
	assert.Equal(t, p.MaxAttempts, attempts)
}

var assertErr = context.DeadlineExceeded
