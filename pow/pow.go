// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package pow implements the default proof of work nonce calculator
// required by storage nodes on message submission.  The nonce is found
// by brute force: hash the candidate nonce and payload until the digest
// carries the required number of leading zero bits.
package pow

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"golang.org/x/crypto/blake2b"
)

// DefaultMaxIterations bounds the nonce search.  At sane difficulties
// the expected iteration count is 2^difficulty, so the bound only trips
// on misconfiguration.
const DefaultMaxIterations = uint64(1) << 28

var errExhausted = errors.New("pow: nonce search space exhausted")

// Calculator computes proof of work nonces.  The zero value is usable.
type Calculator struct {
	// MaxIterations overrides DefaultMaxIterations when non-zero.
	MaxIterations uint64
}

// ComputeNonce finds a nonce such that blake2b-256(nonce || payload) has
// at least difficulty leading zero bits.  The search is a pure function
// of its inputs; a failure is deterministic and will recur on retry.
func (c *Calculator) ComputeNonce(payload []byte, difficulty int) (uint64, error) {
	if difficulty <= 0 || difficulty > 256 {
		return 0, fmt.Errorf("pow: invalid difficulty %d", difficulty)
	}

	maxIter := c.MaxIterations
	if maxIter == 0 {
		maxIter = DefaultMaxIterations
	}

	buf := make([]byte, 8+len(payload))
	copy(buf[8:], payload)
	for nonce := uint64(0); nonce < maxIter; nonce++ {
		binary.BigEndian.PutUint64(buf[:8], nonce)
		digest := blake2b.Sum256(buf)
		if leadingZeroBits(digest[:]) >= difficulty {
			return nonce, nil
		}
	}
	return 0, errExhausted
}

// Verify reports whether the nonce satisfies the difficulty for the
// payload.
func Verify(payload []byte, nonce uint64, difficulty int) bool {
	if difficulty <= 0 || difficulty > 256 {
		return false
	}
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(buf[:8], nonce)
	copy(buf[8:], payload)
	digest := blake2b.Sum256(buf)
	return leadingZeroBits(digest[:]) >= difficulty
}

func leadingZeroBits(digest []byte) int {
	n := 0
	for _, b := range digest {
		if b == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(b)
		break
	}
	return n
}
