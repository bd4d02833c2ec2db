package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilSucceedsAfterRetries(t *testing.T) {
	w := NewWaiter(time.Millisecond, time.Second)

	polls := 0
	err := w.Until(context.Background(), func(ctx context.Context) (bool, error) {
		polls++
		return polls >= 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, polls)
}

func TestUntilRetriesTransientErrors(t *testing.T) {
	w := NewWaiter(time.Millisecond, time.Second)

	polls := 0
	err := w.Until(context.Background(), func(ctx context.Context) (bool, error) {
		polls++
		if polls < 3 {
			return false, errors.New("throttled")
		}
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, polls)
}

func TestUntilStopsOnTerminalError(t *testing.T) {
	w := NewWaiter(time.Millisecond, time.Second)

	terminal := errors.New("snapshot entered terminal status")
	polls := 0
	err := w.Until(context.Background(), func(ctx context.Context) (bool, error) {
		polls++
		return false, Terminal(terminal)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, polls, "terminal errors must not be retried")
}

func TestUntilTimesOut(t *testing.T) {
	w := NewWaiter(time.Millisecond, 50*time.Millisecond)

	err := w.Until(context.Background(), func(ctx context.Context) (bool, error) {
		return false, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestNewWaiterDefaults(t *testing.T) {
	w := NewWaiter(0, 0)
	assert.Equal(t, DefaultInterval, w.Interval)
	assert.Equal(t, DefaultTimeout, w.Timeout)
}
