// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package pipeline converts outgoing domain messages into wire form and
// parses, deduplicates and decodes incoming wire records into domain
// envelopes.
package pipeline

import (
	"encoding/base64"
	"fmt"

	"github.com/ugorji/go/codec"
	"gopkg.in/op/go-logging.v1"

	"github.com/swarmrelay/swarmrelay/core/faults"
	"github.com/swarmrelay/swarmrelay/core/log"
	"github.com/swarmrelay/swarmrelay/rpc"
	"github.com/swarmrelay/swarmrelay/storage"
)

// Codec is the cryptographic boundary: it serializes outgoing domain
// messages into ciphertext and unwraps incoming ciphertext into
// envelopes.  Key management and the encryption scheme live behind it.
type Codec interface {
	// EncodeMessage converts a domain message into its wire payload.
	EncodeMessage(msg *DomainMessage) ([]byte, error)

	// DecodeEnvelope unwraps one wire payload into an envelope.
	DecodeEnvelope(data []byte) (*Envelope, error)
}

// Prover computes the anti-spam proof of work nonce for a payload.
type Prover interface {
	ComputeNonce(payload []byte, difficulty int) (uint64, error)
}

// StateStore is the slice of the state store the pipeline needs.
type StateStore interface {
	LastHash(target string) (*storage.LastHash, error)
	SetLastHash(target string, rec *storage.LastHash) error
	AdmitHashes(hashes []storage.ReceivedHash) ([]string, error)
}

// WireRecord is one raw message record as handed back by a storage
// node's retrieve response.
type WireRecord struct {
	Hash       string `json:"hash"`
	Expiration int64  `json:"expiration"`
	Data       string `json:"data"`
}

type retrieveBody struct {
	Messages []WireRecord `json:"messages"`
}

// PoWOutcome is the result of an asynchronous proof of work
// computation.
type PoWOutcome struct {
	// Message is the input message with the nonce attached.
	Message *OutgoingMessage

	// Err is a *faults.ProofOfWork when the computation failed.
	Err error
}

// Pipeline implements the outgoing and incoming message conversions.
type Pipeline struct {
	store      StateStore
	codec      Codec
	prover     Prover
	difficulty int
	defaultTTL int64
	l          *logging.Logger
}

// New constructs a Pipeline.
func New(store StateStore, c Codec, prover Prover, difficulty int, defaultTTL int64, logBackend *log.Backend) *Pipeline {
	return &Pipeline{
		store:      store,
		codec:      c,
		prover:     prover,
		difficulty: difficulty,
		defaultTTL: defaultTTL,
		l:          logBackend.GetLogger("pipeline"),
	}
}

// Prepare converts a domain message into an outgoing wire message
// stamped with the given timestamp.  Fails with *faults.Conversion when
// the message cannot be represented on the wire.
func (p *Pipeline) Prepare(dm *DomainMessage, timestamp int64) (*OutgoingMessage, error) {
	data, err := p.codec.EncodeMessage(dm)
	if err != nil {
		return nil, &faults.Conversion{Err: err}
	}
	ttl := dm.TTL
	if ttl == 0 {
		ttl = p.defaultTTL
	}
	return &OutgoingMessage{
		Destination: dm.Recipient,
		Data:        data,
		Timestamp:   timestamp,
		TTL:         ttl,
		Ping:        dm.Ping,
	}, nil
}

// ComputeProofOfWork starts the CPU-bound nonce computation and returns
// a channel that yields the outcome.  The caller's scheduler is never
// blocked; the channel is buffered so an abandoned computation does not
// leak its goroutine.
func (p *Pipeline) ComputeProofOfWork(msg *OutgoingMessage) <-chan PoWOutcome {
	ch := make(chan PoWOutcome, 1)
	go func() {
		nonce, err := p.prover.ComputeNonce(msg.PoWPayload(), p.difficulty)
		if err != nil {
			ch <- PoWOutcome{Err: &faults.ProofOfWork{Err: err}}
			return
		}
		ch <- PoWOutcome{Message: msg.WithNonce(nonce)}
	}()
	return ch
}

// ParseRetrieveResponse parses a retrieve response body into its raw
// wire records.
func ParseRetrieveResponse(body []byte) ([]WireRecord, error) {
	var jsonHandle codec.JsonHandle
	var parsed retrieveBody
	dec := codec.NewDecoderBytes(body, &jsonHandle)
	if err := dec.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("pipeline: malformed retrieve response: %v", err)
	}
	return parsed.Messages, nil
}

// AdvanceCursor persists the hash and expiry of the batch's last record
// as the target's new retrieval cursor.  An empty batch, a last record
// without a hash, or a store failure leaves the cursor unchanged; none
// of these ever fail the caller.
func (p *Pipeline) AdvanceCursor(target rpc.Target, records []WireRecord) {
	if len(records) == 0 {
		return
	}
	last := records[len(records)-1]
	if last.Hash == "" {
		p.l.Warningf("%s: not advancing cursor, last record carries no hash", target)
		return
	}
	rec := &storage.LastHash{Hash: last.Hash, ExpiresAt: last.Expiration}
	if err := p.store.SetLastHash(target.String(), rec); err != nil {
		p.l.Warningf("%s: failed to persist cursor: %v", target, err)
	}
}

// Dedup drops records without a hash and records whose hash has already
// been delivered, admitting the survivors' hashes into the received set.
// The admission is atomic across the whole batch.
func (p *Pipeline) Dedup(records []WireRecord) ([]WireRecord, error) {
	hashes := make([]storage.ReceivedHash, 0, len(records))
	for _, r := range records {
		if r.Hash == "" {
			p.l.Debug("dropping record without a hash")
			continue
		}
		hashes = append(hashes, storage.ReceivedHash{Hash: r.Hash, ExpiresAt: r.Expiration})
	}

	admitted, err := p.store.AdmitHashes(hashes)
	if err != nil {
		return nil, fmt.Errorf("pipeline: dedup failed: %w", err)
	}
	admittedSet := make(map[string]struct{}, len(admitted))
	for _, h := range admitted {
		admittedSet[h] = struct{}{}
	}

	survivors := records[:0:0]
	for _, r := range records {
		if _, ok := admittedSet[r.Hash]; !ok {
			continue
		}
		// A hash admitted once must survive only once, even if the node
		// handed it back twice in one batch.
		delete(admittedSet, r.Hash)
		survivors = append(survivors, r)
	}
	return survivors, nil
}

// Decode base64-decodes and unwraps the records into envelopes.
// Decoding is best effort: a record that fails to decode or unwrap is
// dropped with a logged warning and never fails the batch.
func (p *Pipeline) Decode(records []WireRecord) []*Envelope {
	envelopes := make([]*Envelope, 0, len(records))
	for _, r := range records {
		raw, err := base64.StdEncoding.DecodeString(r.Data)
		if err != nil {
			p.warnDrop(&faults.Parse{Hash: r.Hash, Err: err})
			continue
		}
		env, err := p.codec.DecodeEnvelope(raw)
		if err != nil {
			p.warnDrop(&faults.Parse{Hash: r.Hash, Err: err})
			continue
		}
		env.Hash = r.Hash
		envelopes = append(envelopes, env)
	}
	return envelopes
}

func (p *Pipeline) warnDrop(err *faults.Parse) {
	p.l.Warningf("dropping record: %v", err)
}
