// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

package rpc

import (
	"fmt"
	"net"
	"strconv"
)

// Target identifies one storage node.  Targets are ephemeral values,
// recreated on every swarm resolution; equality is by address and port.
type Target struct {
	Address string
	Port    uint16
}

// String returns the target in "host:port" form.
func (t Target) String() string {
	return net.JoinHostPort(t.Address, strconv.Itoa(int(t.Port)))
}

// URL returns the storage RPC endpoint of the target.
func (t Target) URL() string {
	return fmt.Sprintf("https://%s/v1/storage_rpc", t.String())
}

// ParseTarget parses a "host:port" string into a Target.
func ParseTarget(s string) (Target, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Target{}, fmt.Errorf("rpc: malformed target '%v': %v", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Target{}, fmt.Errorf("rpc: malformed target port '%v': %v", s, err)
	}
	return Target{Address: host, Port: uint16(port)}, nil
}
