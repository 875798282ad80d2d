// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swarmrelay/swarmrelay/core/faults"
	"github.com/swarmrelay/swarmrelay/core/log"
)

func testCoordinator(t *testing.T) (*Coordinator, *[]time.Duration) {
	backend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)

	c := NewCoordinator(3, 100*time.Millisecond, time.Second, backend)
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

func TestDelay(t *testing.T) {
	require := require.New(t)

	baseDelay := 100 * time.Millisecond
	maxDelay := 1 * time.Second

	t.Run("exponential growth", func(t *testing.T) {
		require.Equal(100*time.Millisecond, Delay(baseDelay, maxDelay, 0, 0))
		require.Equal(200*time.Millisecond, Delay(baseDelay, maxDelay, 0, 1))
		require.Equal(400*time.Millisecond, Delay(baseDelay, maxDelay, 0, 2))
	})

	t.Run("max delay cap", func(t *testing.T) {
		require.Equal(maxDelay, Delay(baseDelay, maxDelay, 0, 10))
	})

	t.Run("jitter range", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			d := Delay(baseDelay, maxDelay, 0.2, 0)
			require.GreaterOrEqual(d, 80*time.Millisecond)
			require.LessOrEqual(d, 120*time.Millisecond)
		}
	})
}

func TestDoRetryBound(t *testing.T) {
	require := require.New(t)
	c, slept := testCoordinator(t)

	calls := 0
	err := c.Do("always-fails", func() error {
		calls++
		return &faults.Network{Target: "n:1", Err: errors.New("i/o timeout")}
	})
	require.Error(err)
	require.Equal(3, calls, "retryable fault is attempted exactly maxAttempts times")
	require.Len(*slept, 2, "backoff between attempts only")
}

func TestDoNonRetryable(t *testing.T) {
	require := require.New(t)
	c, slept := testCoordinator(t)

	calls := 0
	cause := errors.New("ping failed")
	err := c.Do("ping", func() error {
		calls++
		return &faults.NonRetryable{Err: cause}
	})
	require.ErrorIs(err, cause)
	require.Equal(1, calls, "non-retryable is attempted exactly once")
	require.Empty(*slept)
}

func TestDoFatalFault(t *testing.T) {
	require := require.New(t)
	c, _ := testCoordinator(t)

	calls := 0
	err := c.Do("convert", func() error {
		calls++
		return &faults.Conversion{Err: errors.New("unsupported")}
	})
	require.Error(err)
	require.Equal(1, calls)
}

func TestDoEventualSuccess(t *testing.T) {
	require := require.New(t)
	c, slept := testCoordinator(t)

	calls := 0
	err := c.Do("flaky", func() error {
		calls++
		if calls < 3 {
			return &faults.SwarmChanged{Target: "n:1"}
		}
		return nil
	})
	require.NoError(err)
	require.Equal(3, calls)
	require.Len(*slept, 2)
}

func TestDoImmediateSuccess(t *testing.T) {
	require := require.New(t)
	c, slept := testCoordinator(t)

	err := c.Do("fine", func() error { return nil })
	require.NoError(err)
	require.Empty(*slept)
}
