// SPDX-FileCopyrightText: Copyright (C) 2025 swarmrelay authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package storage persists the transport core's durable state: the
// per-node retrieval cursors, the global received-hash set and the peer
// reachability cache.
package storage

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/yawning/bloom"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/op/go-logging.v1"

	"github.com/swarmrelay/swarmrelay/core/log"
)

const (
	metadataBucket = "metadata"
	versionKey     = "version"

	cursorsBucket  = "cursors"
	receivedBucket = "received"
	peersBucket    = "peers"

	// StorageVersion is the database schema version.
	StorageVersion = 0
)

// LastHash is the retrieval cursor for one storage node: the hash of the
// most recent message already fetched from it, with the message expiry.
type LastHash struct {
	Hash      string `cbor:"hash"`
	ExpiresAt int64  `cbor:"expiresAt"` // milliseconds since the epoch, 0 for none
}

// ReceivedHash is one entry admitted into the received-hash set.
type ReceivedHash struct {
	Hash      string
	ExpiresAt int64
}

// PeerState is the cached reachability state for one contact.
type PeerState struct {
	Address string `cbor:"address"`
	Port    uint16 `cbor:"port"`
	Online  bool   `cbor:"online"`
}

// Store is the bolt backed state store.  All mutation goes through
// transactional accessors; the received-hash set is additionally fronted
// by an in-memory bloom filter so the common "never seen" case skips the
// bucket lookup.
type Store struct {
	db  *bolt.DB
	l   *logging.Logger
	now func() time.Time

	filterLock      sync.Mutex
	filter          *bloom.Filter
	filterSaturated bool
}

var dbOptions = &bolt.Options{Timeout: 5 * time.Second}

// New opens or creates the state database at path f.
func New(f string, logBackend *log.Backend) (*Store, error) {
	s := &Store{
		l:   logBackend.GetLogger("storage"),
		now: time.Now,
	}

	var err error
	// 2^23 bit filter, enough for a few hundred thousand hashes at a
	// 0.1% false positive rate.
	s.filter, err = bloom.New(rand.Reader, 23, 0.001)
	if err != nil {
		return nil, err
	}

	s.db, err = bolt.Open(f, 0600, dbOptions)
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if b := meta.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != StorageVersion {
				return fmt.Errorf("storage: incompatible version: %d", uint(b[0]))
			}
		} else if err = meta.Put([]byte(versionKey), []byte{StorageVersion}); err != nil {
			return err
		}
		for _, name := range []string{cursorsBucket, receivedBucket, peersBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}

		// Warm the bloom filter from the persisted received set.
		recv := tx.Bucket([]byte(receivedBucket))
		return recv.ForEach(func(k, _ []byte) error {
			s.filterAdd(k)
			return nil
		})
	})
	if err != nil {
		s.db.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes and closes the database.
func (s *Store) Close() {
	s.db.Close()
}

// LastHash returns the retrieval cursor for the given target address, or
// nil if no cursor exists or the recorded message has expired.  An
// expired cursor would point at a message the node no longer holds, so
// retrieval restarts from the node's horizon instead.
func (s *Store) LastHash(target string) (*LastHash, error) {
	var rec *LastHash
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(cursorsBucket)).Get([]byte(target))
		if raw == nil {
			return nil
		}
		rec = new(LastHash)
		return cbor.Unmarshal(raw, rec)
	})
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.ExpiresAt != 0 && rec.ExpiresAt <= s.now().UnixMilli() {
		return nil, nil
	}
	return rec, nil
}

// SetLastHash overwrites the retrieval cursor for the given target
// address.
func (s *Store) SetLastHash(target string, rec *LastHash) error {
	raw, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(cursorsBucket)).Put([]byte(target), raw)
	})
}

// AdmitHashes tests the given hashes against the received set and admits
// the ones not seen before, returning the admitted hashes in input
// order.  The whole batch is one read-modify-write critical section, so
// two concurrent retrievals handing in the same hash can never both see
// it admitted.
func (s *Store) AdmitHashes(hashes []ReceivedHash) ([]string, error) {
	s.filterLock.Lock()
	defer s.filterLock.Unlock()

	var admitted []string
	err := s.db.Update(func(tx *bolt.Tx) error {
		admitted = admitted[:0]
		batchSeen := make(map[string]struct{}, len(hashes))
		recv := tx.Bucket([]byte(receivedBucket))
		for _, h := range hashes {
			if h.Hash == "" {
				continue
			}
			if _, dup := batchSeen[h.Hash]; dup {
				continue
			}
			batchSeen[h.Hash] = struct{}{}
			key := []byte(h.Hash)
			if s.filterMightContain(key) && recv.Get(key) != nil {
				continue
			}
			val, err := cbor.Marshal(h.ExpiresAt)
			if err != nil {
				return err
			}
			if err := recv.Put(key, val); err != nil {
				return err
			}
			admitted = append(admitted, h.Hash)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, h := range admitted {
		s.filterAdd([]byte(h))
	}
	return admitted, nil
}

// PruneReceived drops received-set entries that expired before now and
// returns how many were removed.  The bloom filter keeps the pruned
// entries until restart; that only costs a bucket lookup, never
// correctness.
func (s *Store) PruneReceived(now time.Time) (int, error) {
	cutoff := now.UnixMilli()
	pruned := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		recv := tx.Bucket([]byte(receivedBucket))
		c := recv.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var expiresAt int64
			if err := cbor.Unmarshal(v, &expiresAt); err != nil {
				continue
			}
			if expiresAt != 0 && expiresAt <= cutoff {
				if err := c.Delete(); err != nil {
					return err
				}
				pruned++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return pruned, nil
}

// PeerState returns the cached reachability state for a contact, or nil
// if the contact is unknown.
func (s *Store) PeerState(contact string) (*PeerState, error) {
	var st *PeerState
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(peersBucket)).Get([]byte(contact))
		if raw == nil {
			return nil
		}
		st = new(PeerState)
		return cbor.Unmarshal(raw, st)
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// SetPeerState overwrites the cached state for a contact.
func (s *Store) SetPeerState(contact string, st *PeerState) error {
	raw, err := cbor.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(peersBucket)).Put([]byte(contact), raw)
	})
}

// MarkPeerOnline flips the online flag for a known contact.  Unknown
// contacts are ignored; there is no address to mark.
func (s *Store) MarkPeerOnline(contact string, online bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		peers := tx.Bucket([]byte(peersBucket))
		raw := peers.Get([]byte(contact))
		if raw == nil {
			return nil
		}
		st := new(PeerState)
		if err := cbor.Unmarshal(raw, st); err != nil {
			return err
		}
		st.Online = online
		raw, err := cbor.Marshal(st)
		if err != nil {
			return err
		}
		return peers.Put([]byte(contact), raw)
	})
}

// filterMightContain reports whether the hash may already be persisted.
// A false return is authoritative; a true return must be confirmed
// against the bucket.  Callers hold filterLock.
func (s *Store) filterMightContain(k []byte) bool {
	if s.filterSaturated {
		return true
	}
	return s.filter.Test(k)
}

func (s *Store) filterAdd(k []byte) {
	if s.filterSaturated {
		return
	}
	if s.filter.Entries() >= s.filter.MaxEntries() {
		s.filterSaturated = true
		s.l.Warning("received-hash bloom filter saturated, falling back to bucket lookups")
		return
	}
	s.filter.TestAndSet(k)
}
