// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package retry re-executes whole transport operations on retryable
// faults, with exponential backoff between attempts.  The entire
// operation is re-invoked rather than individual targets: swarm
// membership may have changed between attempts, so a stale target list
// must never be reused.
package retry

import (
	"math"
	"math/rand"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/swarmrelay/swarmrelay/core/faults"
	"github.com/swarmrelay/swarmrelay/core/log"
)

// Default retry configuration constants.
const (
	// DefaultMaxAttempts is the default total attempt bound.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the default base delay between attempts.
	DefaultBaseDelay = 500 * time.Millisecond

	// DefaultMaxDelay is the default maximum delay between attempts.
	DefaultMaxDelay = 10 * time.Second

	// DefaultJitter is the default jitter factor (0.0 to 1.0).
	DefaultJitter = 0.2
)

// Delay calculates the backoff before re-attempting, for a given
// zero-based attempt number, using exponential growth with jitter.
func Delay(baseDelay, maxDelay time.Duration, jitter float64, attempt int) time.Duration {
	delay := float64(baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	if jitter > 0 {
		jitterFactor := 1 - jitter + rand.Float64()*2*jitter
		delay *= jitterFactor
	}
	return time.Duration(delay)
}

// Coordinator bounds and paces whole-operation retries.
type Coordinator struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      float64
	l           *logging.Logger

	// sleep is a test seam.
	sleep func(time.Duration)
}

// NewCoordinator constructs a Coordinator.  Zero arguments select the
// package defaults.
func NewCoordinator(maxAttempts int, baseDelay, maxDelay time.Duration, logBackend *log.Backend) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &Coordinator{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		jitter:      DefaultJitter,
		l:           logBackend.GetLogger("retry"),
		sleep:       time.Sleep,
	}
}

// Do invokes op up to the attempt bound, re-invoking it only on faults
// the taxonomy marks retryable.  A non-retryable failure propagates
// immediately without consuming further attempts.  After the budget is
// exhausted the last failure is returned.
func (c *Coordinator) Do(name string, op func() error) error {
	var err error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			d := Delay(c.baseDelay, c.maxDelay, c.jitter, attempt-1)
			c.l.Debugf("%s: attempt %d of %d after %v", name, attempt+1, c.maxAttempts, d)
			c.sleep(d)
		}
		if err = op(); err == nil {
			return nil
		}
		if !faults.IsRetryable(err) {
			return err
		}
		c.l.Warningf("%s: attempt %d failed: %v", name, attempt+1, err)
	}
	return err
}
