// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package transport composes swarm resolution, the storage RPC invoker,
// the message pipeline, the peer fast path and the retry coordinator
// into the two public operations: GetMessages and SendMessage.
package transport

import (
	"errors"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/swarmrelay/swarmrelay/config"
	"github.com/swarmrelay/swarmrelay/core/faults"
	"github.com/swarmrelay/swarmrelay/core/log"
	"github.com/swarmrelay/swarmrelay/core/worker"
	"github.com/swarmrelay/swarmrelay/peer"
	"github.com/swarmrelay/swarmrelay/pipeline"
	"github.com/swarmrelay/swarmrelay/retry"
	"github.com/swarmrelay/swarmrelay/rpc"
	"github.com/swarmrelay/swarmrelay/storage"
	"github.com/swarmrelay/swarmrelay/swarm"
)

const pruneInterval = 1 * time.Hour

// Resolver is the swarm resolution surface the orchestrator consumes.
type Resolver interface {
	Resolve(pubKey string) ([]rpc.Target, error)
	Invalidate(pubKey string)
	Seed(pubKey string, targets []rpc.Target)
}

// Caller issues one storage RPC to one target.
type Caller interface {
	Call(method rpc.Method, target rpc.Target, params map[string]interface{}) ([]byte, error)
}

// FastPath is the direct peer delivery surface.
type FastPath interface {
	TrySend(msg *pipeline.OutgoingMessage) (*rpc.Target, bool, error)
}

// Transport is the message transport core.  It is constructed once at
// process start with its dependencies injected, and halted at shutdown;
// it holds no ambient global state.
type Transport struct {
	worker.Worker

	l        *logging.Logger
	store    *storage.Store
	resolver Resolver
	caller   Caller
	pipe     *pipeline.Pipeline
	fastPath FastPath
	coord    *retry.Coordinator

	// identity is the local user's public identifier, whose inbox the
	// swarm holds.
	identity string

	// targetLocks serializes the cursor read-call-advance sequence per
	// target, so one target's batch can never be redelivered by an
	// overlapping pull.
	targetLocks sync.Map // string -> *sync.Mutex

	haltOnce sync.Once
}

// New constructs a Transport.  The store, executor, codec and prover are
// injected; everything else is assembled from the configuration.
func New(cfg *config.Config, logBackend *log.Backend, store *storage.Store, exec rpc.RequestExecutor, c pipeline.Codec, prover pipeline.Prover, identity string) (*Transport, error) {
	if identity == "" {
		return nil, errors.New("transport: no identity provided")
	}

	seeds := make([]rpc.Target, 0, len(cfg.Swarm.SeedNodes))
	for _, s := range cfg.Swarm.SeedNodes {
		target, err := rpc.ParseTarget(s)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, target)
	}

	invoker := rpc.NewInvoker(exec, logBackend)
	t := &Transport{
		l:        logBackend.GetLogger("transport"),
		store:    store,
		resolver: swarm.NewResolver(invoker, seeds, cfg.Swarm.CacheTTL(), logBackend),
		caller:   invoker,
		pipe: pipeline.New(store, c, prover, cfg.Messages.PoWDifficulty,
			cfg.Messages.DefaultTTLMilliseconds, logBackend),
		fastPath: peer.NewFastPath(store, invoker, logBackend),
		coord: retry.NewCoordinator(cfg.Transport.MaxAttempts, cfg.Transport.BaseDelay(),
			cfg.Transport.MaxDelay(), logBackend),
		identity: identity,
	}

	t.Go(t.pruneWorker)
	return t, nil
}

// Shutdown halts the background workers and waits for in-flight fan-out
// goroutines to drain.  Remote calls already on the wire are not
// cancelled; their pending results simply complete unobserved.
func (t *Transport) Shutdown() {
	t.haltOnce.Do(t.Halt)
}

// pruneWorker periodically drops expired entries from the received-hash
// set.  The storage nodes expire those messages too, so the entries can
// never be redelivered.
func (t *Transport) pruneWorker() {
	for {
		select {
		case <-t.HaltCh():
			return
		case <-time.After(pruneInterval):
		}
		n, err := t.store.PruneReceived(time.Now())
		if err != nil {
			t.l.Warningf("failed to prune received hashes: %v", err)
			continue
		}
		if n > 0 {
			t.l.Debugf("pruned %d expired received hashes", n)
		}
	}
}

// targetLock returns the mutex serializing retrievals for one target.
func (t *Transport) targetLock(target string) *sync.Mutex {
	m, _ := t.targetLocks.LoadOrStore(target, new(sync.Mutex))
	return m.(*sync.Mutex)
}

// noteSwarmFault reacts to a swarm membership fault: the cached swarm is
// invalidated and, when the node handed back a replacement list, the
// cache is reseeded with it so the next attempt skips discovery.
func (t *Transport) noteSwarmFault(pubKey string, err error) {
	var changed *faults.SwarmChanged
	if !errors.As(err, &changed) {
		return
	}
	t.resolver.Invalidate(pubKey)
	if len(changed.NewSwarm) == 0 {
		return
	}
	targets := make([]rpc.Target, 0, len(changed.NewSwarm))
	for _, s := range changed.NewSwarm {
		target, err := rpc.ParseTarget(s)
		if err != nil {
			t.l.Warningf("ignoring malformed replacement node '%v': %v", s, err)
			continue
		}
		targets = append(targets, target)
	}
	t.resolver.Seed(pubKey, targets)
}
