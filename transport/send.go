// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"time"

	"github.com/swarmrelay/swarmrelay/pipeline"
	"github.com/swarmrelay/swarmrelay/rpc"
)

// SendMessage delivers an outgoing message, stamped with the given
// timestamp.  A known reachable peer is tried first; otherwise the
// message is fanned out to the destination's swarm with proof of work
// attached.  One pending receipt per target is returned; receipts
// complete independently.
//
// Wire conversion failures surface immediately.  The fast path and the
// swarm path are governed by the retry coordinator, except that a
// failed reachability ping is non-retryable and never falls back to the
// swarm.
func (t *Transport) SendMessage(dm *pipeline.DomainMessage, timestamp time.Time) ([]*SendReceipt, error) {
	msg, err := t.pipe.Prepare(dm, timestamp.UnixMilli())
	if err != nil {
		return nil, err
	}

	var receipts []*SendReceipt
	err = t.coord.Do("sendMessage", func() error {
		receipts = nil

		direct, handled, err := t.fastPath.TrySend(msg)
		if err != nil {
			return err
		}
		if handled {
			receipts = []*SendReceipt{fulfilledReceipt(*direct, true, nil)}
			return nil
		}

		var err2 error
		receipts, err2 = t.sendViaSwarm(msg)
		return err2
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// sendViaSwarm computes the proof of work and resolves the destination
// swarm concurrently, then fans the sealed message out to every target.
// Fan-out only starts once both the nonce and the target set are known;
// each target's delivery is independent of the others.
func (t *Transport) sendViaSwarm(msg *pipeline.OutgoingMessage) ([]*SendReceipt, error) {
	powCh := t.pipe.ComputeProofOfWork(msg)

	targets, err := t.resolver.Resolve(msg.Destination)
	if err != nil {
		// The proof of work goroutine finishes into its buffered
		// channel on its own.
		return nil, err
	}

	outcome := <-powCh
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	sealed := outcome.Message

	receipts := make([]*SendReceipt, 0, len(targets))
	for _, target := range targets {
		r := newSendReceipt(target)
		receipts = append(receipts, r)
		t.Go(func() {
			r.ch <- t.storeAt(r.Target, sealed)
		})
	}
	return receipts, nil
}

// storeAt hands the sealed message to one storage node.
func (t *Transport) storeAt(target rpc.Target, msg *pipeline.OutgoingMessage) error {
	_, err := t.caller.Call(rpc.MethodStore, target, msg.StoreParams())
	if err != nil {
		t.noteSwarmFault(msg.Destination, err)
	}
	return err
}
