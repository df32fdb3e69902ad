// Package txstatus persists the on-chain classification of transactions.
//
// Applied and Failed transactions get one record each, keyed by transaction
// id, carrying the status, the block height and the failure reason when there
// is one. Invalid transactions never reach a block and are deliberately not
// recorded. The store backs the "why did my transaction fail" query without
// replaying history.
package txstatus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/applier"
)

var (
	// ErrNotFound is returned when no record exists for a transaction id.
	ErrNotFound = errors.New("transaction status not found")

	// ErrBadRecord is returned when a stored record is malformed.
	ErrBadRecord = errors.New("malformed status record")
)

var bucketStatuses = []byte("statuses")

// Record is the stored classification of one transaction.
type Record struct {
	Status applier.Status
	Height uint64
	Reason string
}

// Config parameterizes a Store.
type Config struct {
	Path string

	// OpenTimeout bounds the wait for the file lock.
	OpenTimeout time.Duration
}

// DefaultConfig returns the production configuration for a database path.
func DefaultConfig(path string) Config {
	return Config{Path: path, OpenTimeout: 5 * time.Second}
}

// Store is a bbolt-backed status store. Safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the status database.
func Open(cfg Config) (*Store, error) {
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: cfg.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("open status db: %w", err)
	}
	err = db.Update(func(btx *bolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(bucketStatuses)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init status db: %w", err)
	}
	return &Store{db: db}, nil
}

// Record stores the classification of one transaction. Re-recording the same
// id overwrites, which keeps replays idempotent.
func (s *Store) Record(id types.Digest, status applier.Status, reason string, height uint64) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return btx.Bucket(bucketStatuses).Put(id.Bytes(), encodeRecord(status, height, reason))
	})
}

// Get returns the stored record for a transaction id.
func (s *Store) Get(id types.Digest) (Record, error) {
	var rec Record
	err := s.db.View(func(btx *bolt.Tx) error {
		raw := btx.Bucket(bucketStatuses).Get(id.Bytes())
		if raw == nil {
			return fmt.Errorf("%s: %w", id.String(), ErrNotFound)
		}
		var err error
		rec, err = decodeRecord(raw)
		return err
	})
	return rec, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record layout: status (1) + height (8, little endian) + reason (rest).
func encodeRecord(status applier.Status, height uint64, reason string) []byte {
	buf := make([]byte, 9+len(reason))
	buf[0] = byte(status)
	binary.LittleEndian.PutUint64(buf[1:9], height)
	copy(buf[9:], reason)
	return buf
}

func decodeRecord(raw []byte) (Record, error) {
	if len(raw) < 9 {
		return Record{}, ErrBadRecord
	}
	return Record{
		Status: applier.Status(raw[0]),
		Height: binary.LittleEndian.Uint64(raw[1:9]),
		Reason: string(raw[9:]),
	}, nil
}
