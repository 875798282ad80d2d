// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package faults defines the transport fault taxonomy.  Every failure
// that crosses a component boundary is one of the types below, so that
// the retry coordinator can classify it without string matching.
package faults

import (
	"errors"
	"fmt"
)

// Network indicates a generic transport failure talking to one storage
// node: timeout, connection reset, or a response with no usable body.
// Retryable.
type Network struct {
	// Target is the storage node address the call was issued to, in
	// "host:port" form.  Empty when the failure is not tied to one node.
	Target string

	// Err is the underlying transport error, if any.
	Err error
}

func (e *Network) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("faults: network fault on %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("faults: network fault on %s", e.Target)
}

func (e *Network) Unwrap() error { return e.Err }

// SwarmChanged indicates a storage node reported that it is no longer
// authoritative for the queried identifier.  The caller must refresh its
// swarm view before any retry.  Retryable.
type SwarmChanged struct {
	// Target is the node that reported the membership change.
	Target string

	// NewSwarm optionally carries the replacement node set the target
	// handed back, in "host:port" form.
	NewSwarm []string
}

func (e *SwarmChanged) Error() string {
	return fmt.Sprintf("faults: swarm changed, reported by %s", e.Target)
}

// SwarmUnavailable indicates swarm discovery produced no usable storage
// nodes for an identifier.  Retryable.
type SwarmUnavailable struct {
	PubKey string
}

func (e *SwarmUnavailable) Error() string {
	return fmt.Sprintf("faults: no swarm could be determined for %s", e.PubKey)
}

// Conversion indicates an outgoing message could not be represented on
// the wire.  Fatal, never retried.
type Conversion struct {
	Err error
}

func (e *Conversion) Error() string {
	return fmt.Sprintf("faults: message conversion failed: %v", e.Err)
}

func (e *Conversion) Unwrap() error { return e.Err }

// ProofOfWork indicates the proof of work computation failed.  The
// computation is a pure function of the message so a deterministic
// failure will recur; fatal per attempt.
type ProofOfWork struct {
	Err error
}

func (e *ProofOfWork) Error() string {
	return fmt.Sprintf("faults: proof of work failed: %v", e.Err)
}

func (e *ProofOfWork) Unwrap() error { return e.Err }

// NonRetryable wraps an error that must bypass the retry coordinator
// entirely, e.g. a failed reachability ping.
type NonRetryable struct {
	Err error
}

func (e *NonRetryable) Error() string {
	return fmt.Sprintf("faults: non-retryable: %v", e.Err)
}

func (e *NonRetryable) Unwrap() error { return e.Err }

// Parse indicates a single wire record was malformed.  Absorbed at the
// decode boundary with a logged warning; never propagates past it.
type Parse struct {
	Hash string
	Err  error
}

func (e *Parse) Error() string {
	return fmt.Sprintf("faults: malformed record %q: %v", e.Hash, e.Err)
}

func (e *Parse) Unwrap() error { return e.Err }

// IsRetryable returns true iff the error may be handed to the retry
// coordinator for another whole-operation attempt.  A NonRetryable
// wrapper anywhere in the chain wins over a retryable cause.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var nr *NonRetryable
	if errors.As(err, &nr) {
		return false
	}
	var (
		n  *Network
		sc *SwarmChanged
		su *SwarmUnavailable
	)
	return errors.As(err, &n) || errors.As(err, &sc) || errors.As(err, &su)
}
