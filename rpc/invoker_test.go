// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

package rpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swarmrelay/swarmrelay/core/faults"
	"github.com/swarmrelay/swarmrelay/core/log"
)

type fakeExecutor struct {
	lastURL  string
	lastBody []byte

	resp *RawResponse
	err  error
}

func (f *fakeExecutor) Execute(url string, body []byte) (*RawResponse, error) {
	f.lastURL = url
	f.lastBody = body
	return f.resp, f.err
}

func testLogBackend(t *testing.T) *log.Backend {
	b, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	return b
}

func TestParseTarget(t *testing.T) {
	require := require.New(t)

	target, err := ParseTarget("203.0.113.7:22023")
	require.NoError(err)
	require.Equal("203.0.113.7", target.Address)
	require.Equal(uint16(22023), target.Port)
	require.Equal("203.0.113.7:22023", target.String())
	require.Equal("https://203.0.113.7:22023/v1/storage_rpc", target.URL())

	_, err = ParseTarget("no-port")
	require.Error(err)

	_, err = ParseTarget("host:99999")
	require.Error(err)
}

func TestCallSuccess(t *testing.T) {
	require := require.New(t)

	exec := &fakeExecutor{resp: &RawResponse{Status: 200, Body: []byte(`{"messages":[]}`)}}
	inv := NewInvoker(exec, testLogBackend(t))

	target := Target{Address: "203.0.113.7", Port: 22023}
	body, err := inv.Call(MethodRetrieve, target, map[string]interface{}{
		"pubKey":   "05cafe",
		"lastHash": "",
	})
	require.NoError(err)
	require.Equal([]byte(`{"messages":[]}`), body)
	require.Equal(target.URL(), exec.lastURL)
	require.Contains(string(exec.lastBody), `"retrieve"`)
	require.Contains(string(exec.lastBody), `"pubKey"`)
}

func TestCallNetworkFault(t *testing.T) {
	require := require.New(t)
	target := Target{Address: "203.0.113.7", Port: 22023}

	t.Run("transport error", func(t *testing.T) {
		exec := &fakeExecutor{err: errors.New("connection refused")}
		inv := NewInvoker(exec, testLogBackend(t))

		_, err := inv.Call(MethodStore, target, nil)
		var network *faults.Network
		require.ErrorAs(err, &network)
		require.Equal(target.String(), network.Target)
		require.True(faults.IsRetryable(err))
	})

	t.Run("server error status", func(t *testing.T) {
		exec := &fakeExecutor{resp: &RawResponse{Status: 503}}
		inv := NewInvoker(exec, testLogBackend(t))

		_, err := inv.Call(MethodRetrieve, target, nil)
		var network *faults.Network
		require.ErrorAs(err, &network)
	})
}

func TestCallSwarmChanged(t *testing.T) {
	require := require.New(t)
	target := Target{Address: "203.0.113.7", Port: 22023}

	t.Run("with replacement list", func(t *testing.T) {
		body := `{"snodes":[{"ip":"203.0.113.8","port":"22023"},{"ip":"203.0.113.9","port":22025}]}`
		exec := &fakeExecutor{resp: &RawResponse{Status: 421, Body: []byte(body)}}
		inv := NewInvoker(exec, testLogBackend(t))

		_, err := inv.Call(MethodRetrieve, target, nil)
		var changed *faults.SwarmChanged
		require.ErrorAs(err, &changed)
		require.Equal(target.String(), changed.Target)
		require.Equal([]string{"203.0.113.8:22023", "203.0.113.9:22025"}, changed.NewSwarm)
		require.True(faults.IsRetryable(err))
	})

	t.Run("with garbage body", func(t *testing.T) {
		exec := &fakeExecutor{resp: &RawResponse{Status: 421, Body: []byte("not json")}}
		inv := NewInvoker(exec, testLogBackend(t))

		_, err := inv.Call(MethodRetrieve, target, nil)
		var changed *faults.SwarmChanged
		require.ErrorAs(err, &changed)
		require.Empty(changed.NewSwarm)
	})
}
