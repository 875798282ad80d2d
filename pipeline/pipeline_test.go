// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

package pipeline

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swarmrelay/swarmrelay/core/faults"
	"github.com/swarmrelay/swarmrelay/core/log"
	"github.com/swarmrelay/swarmrelay/rpc"
	"github.com/swarmrelay/swarmrelay/storage"
)

type fakeStore struct {
	cursors  map[string]*storage.LastHash
	received map[string]struct{}

	setCursorErr error
	admitErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cursors:  make(map[string]*storage.LastHash),
		received: make(map[string]struct{}),
	}
}

func (f *fakeStore) LastHash(target string) (*storage.LastHash, error) {
	return f.cursors[target], nil
}

func (f *fakeStore) SetLastHash(target string, rec *storage.LastHash) error {
	if f.setCursorErr != nil {
		return f.setCursorErr
	}
	f.cursors[target] = rec
	return nil
}

func (f *fakeStore) AdmitHashes(hashes []storage.ReceivedHash) ([]string, error) {
	if f.admitErr != nil {
		return nil, f.admitErr
	}
	var admitted []string
	for _, h := range hashes {
		if h.Hash == "" {
			continue
		}
		if _, seen := f.received[h.Hash]; seen {
			continue
		}
		f.received[h.Hash] = struct{}{}
		admitted = append(admitted, h.Hash)
	}
	return admitted, nil
}

type fakeCodec struct {
	encodeErr error
	decodeErr error
}

func (f *fakeCodec) EncodeMessage(msg *DomainMessage) ([]byte, error) {
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	return append([]byte("enc:"), msg.Body...), nil
}

func (f *fakeCodec) DecodeEnvelope(data []byte) (*Envelope, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return &Envelope{Payload: data}, nil
}

type fakeProver struct {
	err error
}

func (f *fakeProver) ComputeNonce(payload []byte, difficulty int) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 42, nil
}

func testPipeline(t *testing.T, store StateStore, c Codec, prover Prover) *Pipeline {
	backend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)
	return New(store, c, prover, 10, 86400000, backend)
}

func TestPrepare(t *testing.T) {
	require := require.New(t)

	p := testPipeline(t, newFakeStore(), &fakeCodec{}, &fakeProver{})

	t.Run("success", func(t *testing.T) {
		msg, err := p.Prepare(&DomainMessage{Recipient: "05cafe", Body: []byte("hi")}, 1700000000000)
		require.NoError(err)
		require.Equal("05cafe", msg.Destination)
		require.Equal([]byte("enc:hi"), msg.Data)
		require.Equal(int64(1700000000000), msg.Timestamp)
		require.Equal(int64(86400000), msg.TTL, "default TTL applied")
		require.False(msg.HasNonce)
	})

	t.Run("explicit TTL", func(t *testing.T) {
		msg, err := p.Prepare(&DomainMessage{Recipient: "05cafe", TTL: 60000}, 1700000000000)
		require.NoError(err)
		require.Equal(int64(60000), msg.TTL)
	})

	t.Run("conversion failure", func(t *testing.T) {
		bad := testPipeline(t, newFakeStore(), &fakeCodec{encodeErr: errors.New("unsupported content")}, &fakeProver{})
		_, err := bad.Prepare(&DomainMessage{Recipient: "05cafe"}, 1700000000000)
		var conv *faults.Conversion
		require.ErrorAs(err, &conv)
		require.False(faults.IsRetryable(err))
	})
}

func TestComputeProofOfWork(t *testing.T) {
	require := require.New(t)

	t.Run("success", func(t *testing.T) {
		p := testPipeline(t, newFakeStore(), &fakeCodec{}, &fakeProver{})
		msg := &OutgoingMessage{Destination: "05cafe", Data: []byte("x"), Timestamp: 1, TTL: 2}

		outcome := <-p.ComputeProofOfWork(msg)
		require.NoError(outcome.Err)
		require.True(outcome.Message.HasNonce)
		require.Equal(uint64(42), outcome.Message.Nonce)

		// The input message is untouched.
		require.False(msg.HasNonce)
	})

	t.Run("failure", func(t *testing.T) {
		p := testPipeline(t, newFakeStore(), &fakeCodec{}, &fakeProver{err: errors.New("exhausted")})
		outcome := <-p.ComputeProofOfWork(&OutgoingMessage{})
		var pf *faults.ProofOfWork
		require.ErrorAs(outcome.Err, &pf)
		require.False(faults.IsRetryable(outcome.Err))
	})
}

func TestParseRetrieveResponse(t *testing.T) {
	require := require.New(t)

	records, err := ParseRetrieveResponse([]byte(`{"messages":[{"hash":"h1","expiration":123,"data":"aGk="}]}`))
	require.NoError(err)
	require.Len(records, 1)
	require.Equal("h1", records[0].Hash)
	require.Equal(int64(123), records[0].Expiration)
	require.Equal("aGk=", records[0].Data)

	records, err = ParseRetrieveResponse([]byte(`{"messages":[]}`))
	require.NoError(err)
	require.Empty(records)

	_, err = ParseRetrieveResponse([]byte(`nope`))
	require.Error(err)
}

func TestAdvanceCursor(t *testing.T) {
	require := require.New(t)
	target := rpc.Target{Address: "203.0.113.5", Port: 22023}

	t.Run("advances to last record", func(t *testing.T) {
		store := newFakeStore()
		p := testPipeline(t, store, &fakeCodec{}, &fakeProver{})

		p.AdvanceCursor(target, []WireRecord{
			{Hash: "h1", Expiration: 100},
			{Hash: "h2", Expiration: 200},
		})
		require.Equal(&storage.LastHash{Hash: "h2", ExpiresAt: 200}, store.cursors[target.String()])

		p.AdvanceCursor(target, []WireRecord{{Hash: "h3", Expiration: 300}})
		require.Equal("h3", store.cursors[target.String()].Hash)
	})

	t.Run("empty batch leaves cursor", func(t *testing.T) {
		store := newFakeStore()
		store.cursors[target.String()] = &storage.LastHash{Hash: "old"}
		p := testPipeline(t, store, &fakeCodec{}, &fakeProver{})

		p.AdvanceCursor(target, nil)
		require.Equal("old", store.cursors[target.String()].Hash)
	})

	t.Run("hashless last record leaves cursor", func(t *testing.T) {
		store := newFakeStore()
		store.cursors[target.String()] = &storage.LastHash{Hash: "old"}
		p := testPipeline(t, store, &fakeCodec{}, &fakeProver{})

		p.AdvanceCursor(target, []WireRecord{{Hash: "h1"}, {Hash: ""}})
		require.Equal("old", store.cursors[target.String()].Hash)
	})

	t.Run("store failure is absorbed", func(t *testing.T) {
		store := newFakeStore()
		store.setCursorErr = errors.New("disk full")
		p := testPipeline(t, store, &fakeCodec{}, &fakeProver{})

		p.AdvanceCursor(target, []WireRecord{{Hash: "h1", Expiration: 1}})
	})
}

func TestDedup(t *testing.T) {
	require := require.New(t)

	store := newFakeStore()
	p := testPipeline(t, store, &fakeCodec{}, &fakeProver{})

	batch := []WireRecord{
		{Hash: "h1", Data: "a"},
		{Hash: ""},
		{Hash: "h2", Data: "b"},
		{Hash: "h1", Data: "a-again"},
	}
	survivors, err := p.Dedup(batch)
	require.NoError(err)
	require.Len(survivors, 2)
	require.Equal("h1", survivors[0].Hash)
	require.Equal("h2", survivors[1].Hash)

	t.Run("idempotent", func(t *testing.T) {
		again, err := p.Dedup(batch)
		require.NoError(err)
		require.Empty(again)
	})

	t.Run("overlap from another target", func(t *testing.T) {
		survivors, err := p.Dedup([]WireRecord{
			{Hash: "h2", Data: "b"},
			{Hash: "h3", Data: "c"},
		})
		require.NoError(err)
		require.Len(survivors, 1)
		require.Equal("h3", survivors[0].Hash)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		bad := newFakeStore()
		bad.admitErr = errors.New("tx failed")
		p := testPipeline(t, bad, &fakeCodec{}, &fakeProver{})
		_, err := p.Dedup([]WireRecord{{Hash: "h9"}})
		require.Error(err)
	})
}

func TestDecode(t *testing.T) {
	require := require.New(t)

	t.Run("mixed batch", func(t *testing.T) {
		p := testPipeline(t, newFakeStore(), &fakeCodec{}, &fakeProver{})

		envelopes := p.Decode([]WireRecord{
			{Hash: "good", Data: base64.StdEncoding.EncodeToString([]byte("hello"))},
			{Hash: "bad", Data: "!!! not base64 !!!"},
		})
		require.Len(envelopes, 1)
		require.Equal("good", envelopes[0].Hash)
		require.Equal([]byte("hello"), envelopes[0].Payload)
	})

	t.Run("unwrap failure dropped", func(t *testing.T) {
		p := testPipeline(t, newFakeStore(), &fakeCodec{decodeErr: errors.New("bad mac")}, &fakeProver{})
		envelopes := p.Decode([]WireRecord{
			{Hash: "h", Data: base64.StdEncoding.EncodeToString([]byte("x"))},
		})
		require.Empty(envelopes)
	})
}
