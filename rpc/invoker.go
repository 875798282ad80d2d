// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package rpc issues single storage RPC calls to individual storage
// nodes and classifies their outcomes.  Retry policy lives one layer up;
// an Invoker never retries internally.
package rpc

import (
	"fmt"
	"net/http"

	"github.com/ugorji/go/codec"
	"gopkg.in/op/go-logging.v1"

	"github.com/swarmrelay/swarmrelay/core/faults"
	"github.com/swarmrelay/swarmrelay/core/log"
)

// Method is a storage RPC method name.
type Method string

const (
	// MethodGetSwarm queries the swarm membership for a public key.
	MethodGetSwarm Method = "get_snodes_for_pubkey"

	// MethodRetrieve fetches messages newer than a given hash.
	MethodRetrieve Method = "retrieve"

	// MethodStore stores an outgoing message.
	MethodStore Method = "store"
)

// RawResponse is the outcome of one executed request.
type RawResponse struct {
	Status int
	Body   []byte
}

// RequestExecutor issues one HTTP-style request and returns the raw
// response or a transport failure.  Timeouts are the executor's
// responsibility.
type RequestExecutor interface {
	Execute(url string, body []byte) (*RawResponse, error)
}

type request struct {
	Method Method                 `json:"method"`
	Params map[string]interface{} `json:"params"`
}

// Invoker builds storage RPC requests, executes them through a
// RequestExecutor and maps the outcome onto the fault taxonomy.
type Invoker struct {
	exec       RequestExecutor
	log        *logging.Logger
	jsonHandle codec.JsonHandle
}

// NewInvoker constructs an Invoker around the given executor.
func NewInvoker(exec RequestExecutor, logBackend *log.Backend) *Invoker {
	return &Invoker{
		exec: exec,
		log:  logBackend.GetLogger("rpc"),
	}
}

// Call executes a single storage RPC against one target and returns the
// raw response body on success.  Failures are classified: a node that
// disowns the queried swarm yields *faults.SwarmChanged, everything else
// that goes wrong on the wire yields *faults.Network.
func (i *Invoker) Call(method Method, target Target, params map[string]interface{}) ([]byte, error) {
	var body []byte
	enc := codec.NewEncoderBytes(&body, &i.jsonHandle)
	if err := enc.Encode(&request{Method: method, Params: params}); err != nil {
		// Parameter maps are built by this module; failing to encode one
		// is a programming error, not a network condition.
		return nil, fmt.Errorf("rpc: failed to encode %s request: %v", method, err)
	}

	i.log.Debugf("POST %s %s", target, method)
	resp, err := i.exec.Execute(target.URL(), body)
	if err != nil {
		return nil, &faults.Network{Target: target.String(), Err: err}
	}

	switch {
	case resp.Status == http.StatusOK:
		return resp.Body, nil
	case resp.Status == http.StatusMisdirectedRequest:
		return nil, i.swarmChanged(target, resp.Body)
	default:
		return nil, &faults.Network{
			Target: target.String(),
			Err:    fmt.Errorf("unexpected status %d", resp.Status),
		}
	}
}

// swarmChanged builds the SwarmChanged fault, salvaging the replacement
// node list if the response body carries one.
func (i *Invoker) swarmChanged(target Target, body []byte) error {
	fault := &faults.SwarmChanged{Target: target.String()}
	replacements, err := ParseSnodeList(body)
	if err != nil {
		i.log.Debugf("%s: swarm changed response with unparsable body: %v", target, err)
		return fault
	}
	for _, t := range replacements {
		fault.NewSwarm = append(fault.NewSwarm, t.String())
	}
	return fault
}
