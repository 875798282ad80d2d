// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

package pow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeNonce(t *testing.T) {
	require := require.New(t)

	c := new(Calculator)
	payload := []byte("destination|ciphertext|1700000000000|86400000")

	nonce, err := c.ComputeNonce(payload, 8)
	require.NoError(err)
	require.True(Verify(payload, nonce, 8))

	// A different payload invalidates the nonce at a difficulty where a
	// chance pass is negligible.
	require.False(Verify([]byte("tampered"), nonce, 200))
}

func TestComputeNonceDeterministic(t *testing.T) {
	require := require.New(t)

	c := new(Calculator)
	payload := []byte("same payload")

	n1, err := c.ComputeNonce(payload, 8)
	require.NoError(err)
	n2, err := c.ComputeNonce(payload, 8)
	require.NoError(err)
	require.Equal(n1, n2)
}

func TestComputeNonceFailures(t *testing.T) {
	require := require.New(t)

	c := new(Calculator)

	t.Run("invalid difficulty", func(t *testing.T) {
		_, err := c.ComputeNonce([]byte("p"), 0)
		require.Error(err)
		_, err = c.ComputeNonce([]byte("p"), 300)
		require.Error(err)
	})

	t.Run("search exhausted", func(t *testing.T) {
		bounded := &Calculator{MaxIterations: 2}
		_, err := bounded.ComputeNonce([]byte("p"), 200)
		require.ErrorIs(err, errExhausted)
	})
}

func TestVerifyRejectsBadDifficulty(t *testing.T) {
	require := require.New(t)
	require.False(Verify([]byte("p"), 0, 0))
	require.False(Verify([]byte("p"), 0, 257))
}
