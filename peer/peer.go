// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package peer implements the direct-delivery fast path: when a contact
// is known to be reachable at an address, outgoing messages short
// circuit past proof of work and swarm fan-out.
package peer

import (
	"fmt"

	"gopkg.in/op/go-logging.v1"

	"github.com/swarmrelay/swarmrelay/core/faults"
	"github.com/swarmrelay/swarmrelay/core/log"
	"github.com/swarmrelay/swarmrelay/pipeline"
	"github.com/swarmrelay/swarmrelay/rpc"
	"github.com/swarmrelay/swarmrelay/storage"
)

// Directory is the reachability bookkeeping for contacts.  It is a best
// effort cache: races on it only degrade the fast-path heuristic, never
// delivery correctness.
type Directory interface {
	PeerState(contact string) (*storage.PeerState, error)
	MarkPeerOnline(contact string, online bool) error
}

// Caller issues one storage RPC to one target.
type Caller interface {
	Call(method rpc.Method, target rpc.Target, params map[string]interface{}) ([]byte, error)
}

// FastPath attempts direct delivery to a known peer address before the
// swarm path is consulted.
type FastPath struct {
	dir    Directory
	caller Caller
	l      *logging.Logger
}

// NewFastPath constructs a FastPath.
func NewFastPath(dir Directory, caller Caller, logBackend *log.Backend) *FastPath {
	return &FastPath{
		dir:    dir,
		caller: caller,
		l:      logBackend.GetLogger("peer"),
	}
}

// TrySend attempts direct delivery of msg.  It returns handled=true when
// the fast path consumed the send, successfully or not, along with the
// direct target it used; handled=false means the caller must use the
// swarm path.
//
// A failed ping is handled with a non-retryable error: pings exist to
// probe reachability, so the failure is itself the signal and must not
// be masked by retries or a swarm fallback.  A failed non-ping send
// falls back to the swarm.
func (f *FastPath) TrySend(msg *pipeline.OutgoingMessage) (*rpc.Target, bool, error) {
	st, err := f.dir.PeerState(msg.Destination)
	if err != nil {
		f.l.Warningf("peer lookup for %s failed: %v", msg.Destination, err)
		return nil, false, nil
	}
	if st == nil || st.Address == "" {
		return nil, false, nil
	}
	if !msg.Ping && !st.Online {
		return nil, false, nil
	}

	target := rpc.Target{Address: st.Address, Port: st.Port}
	_, err = f.caller.Call(rpc.MethodStore, target, msg.DirectParams())
	if err == nil {
		f.markOnline(msg.Destination, true)
		return &target, true, nil
	}

	f.markOnline(msg.Destination, false)
	if msg.Ping {
		return &target, true, &faults.NonRetryable{
			Err: fmt.Errorf("peer: ping to %s failed: %w", target, err),
		}
	}
	f.l.Debugf("direct delivery to %s failed, falling back to swarm: %v", target, err)
	return nil, false, nil
}

func (f *FastPath) markOnline(contact string, online bool) {
	if err := f.dir.MarkPeerOnline(contact, online); err != nil {
		f.l.Warningf("failed to mark %s online=%v: %v", contact, online, err)
	}
}
