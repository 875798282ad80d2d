// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

package rpc

import (
	"fmt"
	"strconv"

	"github.com/ugorji/go/codec"
)

type snodeDesc struct {
	IP   string      `json:"ip"`
	Port interface{} `json:"port"`
}

type snodeListBody struct {
	Snodes []snodeDesc `json:"snodes"`
}

// ParseSnodeList parses a storage node list response body, as returned
// by swarm discovery and by nodes reporting a membership change.
// Entries with a missing address or an unusable port are skipped.
func ParseSnodeList(body []byte) ([]Target, error) {
	var jsonHandle codec.JsonHandle
	var parsed snodeListBody
	dec := codec.NewDecoderBytes(body, &jsonHandle)
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("rpc: malformed snode list: %v", err)
	}

	targets := make([]Target, 0, len(parsed.Snodes))
	for _, sn := range parsed.Snodes {
		port, ok := parsePort(sn.Port)
		if !ok || sn.IP == "" {
			continue
		}
		targets = append(targets, Target{Address: sn.IP, Port: port})
	}
	return targets, nil
}

// parsePort normalizes the port field, which some node versions send as
// a string and others as a number.
func parsePort(v interface{}) (uint16, bool) {
	switch p := v.(type) {
	case string:
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return 0, false
		}
		return uint16(n), true
	case float64:
		if p < 0 || p > 65535 {
			return 0, false
		}
		return uint16(p), true
	case int64:
		if p < 0 || p > 65535 {
			return 0, false
		}
		return uint16(p), true
	case uint64:
		if p > 65535 {
			return 0, false
		}
		return uint16(p), true
	default:
		return 0, false
	}
}
