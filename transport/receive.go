// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"github.com/swarmrelay/swarmrelay/core/faults"
	"github.com/swarmrelay/swarmrelay/pipeline"
	"github.com/swarmrelay/swarmrelay/rpc"
)

// GetMessages pulls new messages from every node of the local user's
// swarm.  It returns one pending Batch per target so the caller can
// consume each target's messages as they complete rather than waiting
// for the slowest node.
//
// Swarm resolution is governed by the retry coordinator; once the
// fan-out is launched, per-target failures surface on the individual
// batches without aborting the others.
func (t *Transport) GetMessages() ([]*Batch, error) {
	var batches []*Batch
	err := t.coord.Do("getMessages", func() error {
		targets, err := t.resolver.Resolve(t.identity)
		if err != nil {
			return err
		}
		batches = make([]*Batch, 0, len(targets))
		for _, target := range targets {
			b := newBatch(target)
			batches = append(batches, b)
			t.Go(func() {
				envelopes, err := t.retrieveFrom(b.Target)
				b.ch <- batchOutcome{envelopes: envelopes, err: err}
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// retrieveFrom performs one target's cursor read, retrieve call, cursor
// advance, dedup and decode.  The sequence is serialized per target so
// the cursor read-modify-write can never race an overlapping pull of
// the same node.
func (t *Transport) retrieveFrom(target rpc.Target) ([]*pipeline.Envelope, error) {
	lock := t.targetLock(target.String())
	lock.Lock()
	defer lock.Unlock()

	lastHash := ""
	cursor, err := t.store.LastHash(target.String())
	if err != nil {
		t.l.Warningf("%s: failed to read cursor, retrieving from horizon: %v", target, err)
	} else if cursor != nil {
		lastHash = cursor.Hash
	}

	body, err := t.caller.Call(rpc.MethodRetrieve, target, map[string]interface{}{
		"pubKey":   t.identity,
		"lastHash": lastHash,
	})
	if err != nil {
		t.noteSwarmFault(t.identity, err)
		return nil, err
	}

	records, err := pipeline.ParseRetrieveResponse(body)
	if err != nil {
		// A response with no structured body is indistinguishable from
		// a broken transport.
		return nil, &faults.Network{Target: target.String(), Err: err}
	}

	t.pipe.AdvanceCursor(target, records)
	survivors, err := t.pipe.Dedup(records)
	if err != nil {
		return nil, err
	}
	return t.pipe.Decode(survivors), nil
}
