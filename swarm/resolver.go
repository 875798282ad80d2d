// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package swarm maps a user identifier to its current set of storage
// node targets.
package swarm

import (
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/swarmrelay/swarmrelay/core/faults"
	"github.com/swarmrelay/swarmrelay/core/log"
	"github.com/swarmrelay/swarmrelay/rpc"
)

// Caller issues one storage RPC to one target.
type Caller interface {
	Call(method rpc.Method, target rpc.Target, params map[string]interface{}) ([]byte, error)
}

type cacheEntry struct {
	targets   []rpc.Target
	fetchedAt time.Time
}

// Resolver discovers the swarm responsible for a user identifier,
// caching resolutions for a freshness window.  Callers must treat the
// returned set as unordered and each member as independently reachable.
type Resolver struct {
	caller Caller
	seeds  []rpc.Target
	ttl    time.Duration
	l      *logging.Logger
	now    func() time.Time

	sync.Mutex
	cache map[string]*cacheEntry
}

// NewResolver constructs a Resolver.  The seeds are the bootstrap nodes
// queried for swarm discovery; ttl is how long a resolution stays fresh.
func NewResolver(caller Caller, seeds []rpc.Target, ttl time.Duration, logBackend *log.Backend) *Resolver {
	return &Resolver{
		caller: caller,
		seeds:  seeds,
		ttl:    ttl,
		l:      logBackend.GetLogger("swarm"),
		now:    time.Now,
		cache:  make(map[string]*cacheEntry),
	}
}

// Resolve returns the current swarm for pubKey.  A fresh cached
// resolution is returned as-is; otherwise the seed nodes are queried in
// order until one produces a non-empty node list.  When no seed can
// determine a swarm the call fails with *faults.SwarmUnavailable, which
// is retryable by the caller.
func (r *Resolver) Resolve(pubKey string) ([]rpc.Target, error) {
	r.Lock()
	if e, ok := r.cache[pubKey]; ok && r.now().Sub(e.fetchedAt) < r.ttl {
		targets := append([]rpc.Target(nil), e.targets...)
		r.Unlock()
		return targets, nil
	}
	r.Unlock()

	for _, seed := range r.seeds {
		body, err := r.caller.Call(rpc.MethodGetSwarm, seed, map[string]interface{}{
			"pubKey": pubKey,
		})
		if err != nil {
			r.l.Debugf("seed %s failed swarm query for %s: %v", seed, pubKey, err)
			continue
		}
		targets, err := rpc.ParseSnodeList(body)
		if err != nil {
			r.l.Warningf("seed %s returned malformed swarm for %s: %v", seed, pubKey, err)
			continue
		}
		if len(targets) == 0 {
			r.l.Debugf("seed %s knows no swarm for %s", seed, pubKey)
			continue
		}
		r.store(pubKey, targets)
		return append([]rpc.Target(nil), targets...), nil
	}
	return nil, &faults.SwarmUnavailable{PubKey: pubKey}
}

// Invalidate drops any cached resolution for pubKey, forcing the next
// Resolve to query the network.
func (r *Resolver) Invalidate(pubKey string) {
	r.Lock()
	defer r.Unlock()
	delete(r.cache, pubKey)
}

// Seed replaces the cached swarm for pubKey, typically with the
// replacement list a node handed back alongside a membership-change
// fault, saving one discovery round trip.
func (r *Resolver) Seed(pubKey string, targets []rpc.Target) {
	if len(targets) == 0 {
		return
	}
	r.store(pubKey, targets)
}

func (r *Resolver) store(pubKey string, targets []rpc.Target) {
	r.Lock()
	defer r.Unlock()
	r.cache[pubKey] = &cacheEntry{
		targets:   append([]rpc.Target(nil), targets...),
		fetchedAt: r.now(),
	}
}
