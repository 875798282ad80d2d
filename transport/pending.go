// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"sync"

	"github.com/swarmrelay/swarmrelay/pipeline"
	"github.com/swarmrelay/swarmrelay/rpc"
)

// Batch is the pending result of one target's retrieval.  Batches
// complete independently; discarding one does not stop the underlying
// call.
type Batch struct {
	// Target is the storage node this batch was pulled from.
	Target rpc.Target

	ch   chan batchOutcome
	once sync.Once

	envelopes []*pipeline.Envelope
	err       error
}

type batchOutcome struct {
	envelopes []*pipeline.Envelope
	err       error
}

func newBatch(target rpc.Target) *Batch {
	return &Batch{Target: target, ch: make(chan batchOutcome, 1)}
}

// Wait blocks until the batch completes and returns its envelopes.
// Wait may be called any number of times.
func (b *Batch) Wait() ([]*pipeline.Envelope, error) {
	b.once.Do(func() {
		o := <-b.ch
		b.envelopes, b.err = o.envelopes, o.err
	})
	return b.envelopes, b.err
}

// SendReceipt is the pending outcome of one target's delivery.
type SendReceipt struct {
	// Target is the storage node (or direct peer) the message was
	// handed to.
	Target rpc.Target

	// Direct is set when the message traveled the peer fast path.
	Direct bool

	ch   chan error
	once sync.Once
	err  error
}

func newSendReceipt(target rpc.Target) *SendReceipt {
	return &SendReceipt{Target: target, ch: make(chan error, 1)}
}

// fulfilledReceipt returns an already-completed receipt.
func fulfilledReceipt(target rpc.Target, direct bool, err error) *SendReceipt {
	r := newSendReceipt(target)
	r.Direct = direct
	r.ch <- err
	return r
}

// Wait blocks until the delivery completes.  Wait may be called any
// number of times.
func (r *SendReceipt) Wait() error {
	r.once.Do(func() {
		r.err = <-r.ch
	})
	return r.err
}
