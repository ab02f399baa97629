// Package storage persists the chain, node identity, and chain metadata in
// a single BoltDB file (spec §4.6): buckets for blocks, keys, metadata,
// checkpoints, and headers, written through atomic transactions. Grounded
// on services/identity-gateway's bbolt-backed Store (bucket-per-concern,
// mutate-under-Update, JSON-encoded values) generalised to the chain's
// RLP-encoded block records.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"srishti/block"
)

var (
	bucketBlocks      = []byte("blocks")
	bucketKeys        = []byte("keys")
	bucketMetadata    = []byte("metadata")
	bucketCheckpoints = []byte("checkpoints")
	bucketHeaders     = []byte("headers")

	metadataStorageVersionKey = []byte("storage_version")
	metadataTipKey            = []byte("tip")
)

var allBuckets = [][]byte{bucketBlocks, bucketKeys, bucketMetadata, bucketCheckpoints, bucketHeaders}

// Store is the BoltDB-backed persistence layer for a single node.
type Store struct {
	db *bolt.DB
}

// IdentityRecord is the per-node local identity file (spec §6).
type IdentityRecord struct {
	NodeID             string `json:"nodeId"`
	Name               string `json:"name"`
	PublicKey          string `json:"publicKey"`
	PrivateKey         []byte `json:"privateKey"`
	RecoveryPhraseHash string `json:"recoveryPhraseHash"`
}

// Checkpoint is a lightweight periodic snapshot marker used to bound replay
// time on restart (index + hash pair, not a full state snapshot).
type Checkpoint struct {
	Index     uint64 `json:"index"`
	Hash      string `json:"hash"`
	Timestamp int64  `json:"timestamp"`
}

// Open opens (creating if necessary) the BoltDB file at path, ensures every
// bucket exists, and reconciles storage_version against chainEpoch: a
// lower or missing version triggers a total local wipe and fresh start
// (spec §4.6).
func Open(path string, chainEpoch uint64) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	s := &Store{db: db}
	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	wiped, err := s.reconcileEpoch(chainEpoch)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if wiped {
		if err := s.ensureBuckets(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// reconcileEpoch compares the stored storage_version to chainEpoch. If the
// stored version is missing or lower, every bucket is wiped (blocks, keys,
// and identity included) and the new version is recorded.
func (s *Store) reconcileEpoch(chainEpoch uint64) (wiped bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMetadata)
		raw := meta.Get(metadataStorageVersionKey)
		stored := uint64(0)
		if raw != nil {
			stored = binary.BigEndian.Uint64(raw)
		}
		if raw != nil && stored >= chainEpoch {
			return nil
		}
		for _, b := range allBuckets {
			if err := tx.DeleteBucket(b); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		wiped = true
		versionBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(versionBytes, chainEpoch)
		return tx.Bucket(bucketMetadata).Put(metadataStorageVersionKey, versionBytes)
	})
	return wiped, err
}

// Close releases the underlying BoltDB file handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func blockKey(index uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, index)
	return key
}

// SaveBlocks writes every block keyed by index, plus its header into the
// headers bucket, and advances the tip pointer — all in one transaction so
// a caller-visible write is all-or-nothing (spec §4.6: "replaceChain
// followed by saveBlocks must be atomic").
func (s *Store) SaveBlocks(blocks []block.Block) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		blocksBucket := tx.Bucket(bucketBlocks)
		headersBucket := tx.Bucket(bucketHeaders)
		var tip uint64
		for _, b := range blocks {
			encoded, err := encodeBlock(b)
			if err != nil {
				return fmt.Errorf("storage: encode block %d: %w", b.Index, err)
			}
			if err := blocksBucket.Put(blockKey(b.Index), encoded); err != nil {
				return err
			}
			headerJSON, err := json.Marshal(b.Header)
			if err != nil {
				return err
			}
			if err := headersBucket.Put(blockKey(b.Index), headerJSON); err != nil {
				return err
			}
			if b.Index >= tip {
				tip = b.Index
			}
		}
		tipBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(tipBytes, tip)
		return tx.Bucket(bucketMetadata).Put(metadataTipKey, tipBytes)
	})
}

// ReplaceBlocks clears the blocks and headers buckets and writes newBlocks
// in a single transaction, so a reader never observes a partially-replaced
// chain.
func (s *Store) ReplaceBlocks(newBlocks []block.Block) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBlocks, bucketHeaders} {
			if err := tx.DeleteBucket(name); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		blocksBucket := tx.Bucket(bucketBlocks)
		headersBucket := tx.Bucket(bucketHeaders)
		var tip uint64
		for _, b := range newBlocks {
			encoded, err := encodeBlock(b)
			if err != nil {
				return err
			}
			if err := blocksBucket.Put(blockKey(b.Index), encoded); err != nil {
				return err
			}
			headerJSON, err := json.Marshal(b.Header)
			if err != nil {
				return err
			}
			if err := headersBucket.Put(blockKey(b.Index), headerJSON); err != nil {
				return err
			}
			if b.Index >= tip {
				tip = b.Index
			}
		}
		tipBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(tipBytes, tip)
		return tx.Bucket(bucketMetadata).Put(metadataTipKey, tipBytes)
	})
}

// LoadChain reads every block, sorted by index (spec §4.6: "reading the
// chain at startup returns blocks sorted by index").
func (s *Store) LoadChain() ([]block.Block, error) {
	var blocks []block.Block
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBlocks)
		return bucket.ForEach(func(k, v []byte) error {
			b, err := decodeBlock(v)
			if err != nil {
				return err
			}
			blocks = append(blocks, b)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// BoltDB iterates keys in byte order; since blockKey is a fixed-width
	// big-endian index, this is already ascending by index.
	return blocks, nil
}

// SaveIdentity persists this node's local keypair and recovery metadata.
func (s *Store) SaveIdentity(rec IdentityRecord) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKeys).Put([]byte(rec.NodeID), encoded)
	})
}

// LoadIdentity reads back the single identity record stored for this node,
// if any (a node stores exactly one local identity).
func (s *Store) LoadIdentity() (IdentityRecord, bool, error) {
	var rec IdentityRecord
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKeys).ForEach(func(k, v []byte) error {
			if found {
				return nil
			}
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	return rec, found, err
}

// SaveCheckpoint records a lightweight replay-bound marker.
func (s *Store) SaveCheckpoint(cp Checkpoint) error {
	encoded, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCheckpoints).Put(blockKey(cp.Index), encoded)
	})
}

// LatestCheckpoint returns the highest-index checkpoint recorded, if any.
func (s *Store) LatestCheckpoint() (Checkpoint, bool, error) {
	var latest Checkpoint
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCheckpoints).ForEach(func(k, v []byte) error {
			var cp Checkpoint
			if err := json.Unmarshal(v, &cp); err != nil {
				return err
			}
			if !found || cp.Index > latest.Index {
				latest = cp
				found = true
			}
			return nil
		})
	})
	return latest, found, err
}
