// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

package pipeline

import (
	"encoding/base64"
	"strconv"
)

// DomainMessage is an application-level outgoing message, before wire
// conversion.
type DomainMessage struct {
	// Recipient is the destination user identifier.
	Recipient string

	// Body is the content handed to the Codec for wire encoding.
	Body []byte

	// TTL is the requested time to live in milliseconds; 0 selects the
	// configured default.
	TTL int64

	// Ping marks a reachability probe.  Pings only ever travel the
	// direct peer path and never require proof of work.
	Ping bool
}

// OutgoingMessage is a wire-ready message.  Once a proof of work nonce
// is attached the message is immutable; WithNonce returns a copy.
type OutgoingMessage struct {
	Destination string
	Data        []byte
	Timestamp   int64 // milliseconds since the epoch
	TTL         int64 // milliseconds
	Ping        bool

	Nonce    uint64
	HasNonce bool
}

// WithNonce returns a copy of the message with the proof of work nonce
// attached.
func (m *OutgoingMessage) WithNonce(nonce uint64) *OutgoingMessage {
	c := *m
	c.Nonce = nonce
	c.HasNonce = true
	return &c
}

// PoWPayload is the canonical byte string the proof of work nonce is
// computed over.
func (m *OutgoingMessage) PoWPayload() []byte {
	s := m.Destination +
		strconv.FormatInt(m.Timestamp, 10) +
		strconv.FormatInt(m.TTL, 10) +
		base64.StdEncoding.EncodeToString(m.Data)
	return []byte(s)
}

// StoreParams builds the `store` RPC parameter map for swarm delivery.
// The proof of work nonce is mandatory on this path.
func (m *OutgoingMessage) StoreParams() map[string]interface{} {
	return map[string]interface{}{
		"pubKey":    m.Destination,
		"data":      base64.StdEncoding.EncodeToString(m.Data),
		"timestamp": m.Timestamp,
		"ttl":       m.TTL,
		"nonce":     m.Nonce,
	}
}

// DirectParams builds the `store` RPC parameter map for direct peer
// delivery, which never carries proof of work.
func (m *OutgoingMessage) DirectParams() map[string]interface{} {
	return map[string]interface{}{
		"pubKey":    m.Destination,
		"data":      base64.StdEncoding.EncodeToString(m.Data),
		"timestamp": m.Timestamp,
		"ttl":       m.TTL,
	}
}

// Envelope is a parsed incoming message ready for application delivery.
type Envelope struct {
	// Hash is the storage network's identifier for the message.
	Hash string

	// Source is the sender identifier, when the Codec can establish it.
	Source string

	// Payload is the unwrapped message content.
	Payload []byte

	// Timestamp is the sender timestamp in milliseconds, when known.
	Timestamp int64
}
