package state

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
)

// Snapshot file format: a zstd-compressed stream of
//
//	magic (4) + format version (1)
//	+ repeated records: key length (uvarint) + key + value length (uvarint) + value
//
// Metadata records (height, version, state hash) travel as ordinary records
// under their meta keys, so an import restores them with everything else.
var snapshotFileMagic = []byte("WSNP")

const snapshotFileVersion = byte(1)

var (
	// ErrBadSnapshotFile is returned when a snapshot file is malformed.
	ErrBadSnapshotFile = errors.New("malformed snapshot file")
)

// ExportSnapshot writes the full committed state to a compressed file.
func (l *BadgerLedger) ExportSnapshot(path string) error {
	if l.closed.Load() {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	w := bufio.NewWriter(zw)

	if _, err := w.Write(snapshotFileMagic); err != nil {
		return err
	}
	if err := w.WriteByte(snapshotFileVersion); err != nil {
		return err
	}

	err = l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := writeRecord(w, item.Key(), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}

	if err := w.Flush(); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// ImportSnapshot loads state from a compressed snapshot file into the ledger.
// Intended for bootstrapping an empty ledger.
func (l *BadgerLedger) ImportSnapshot(path string) error {
	if l.closed.Load() {
		return ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()
	r := bufio.NewReader(zr)

	magic := make([]byte, len(snapshotFileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return ErrBadSnapshotFile
	}
	if string(magic) != string(snapshotFileMagic) {
		return ErrBadSnapshotFile
	}
	version, err := r.ReadByte()
	if err != nil || version != snapshotFileVersion {
		return ErrBadSnapshotFile
	}

	batch := l.db.NewWriteBatch()
	defer batch.Cancel()
	for {
		key, val, err := readRecord(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := batch.Set(key, val); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return l.loadMeta()
}

func writeRecord(w *bufio.Writer, key, val []byte) error {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(key)))
	if _, err := w.Write(tmp[:n]); err != nil {
		return err
	}
	if _, err := w.Write(key); err != nil {
		return err
	}
	n = binary.PutUvarint(tmp[:], uint64(len(val)))
	if _, err := w.Write(tmp[:n]); err != nil {
		return err
	}
	_, err := w.Write(val)
	return err
}

func readRecord(r *bufio.Reader) ([]byte, []byte, error) {
	keyLen, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, nil, err
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, nil, ErrBadSnapshotFile
	}
	valLen, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, nil, ErrBadSnapshotFile
	}
	val := make([]byte, valLen)
	if _, err := io.ReadFull(r, val); err != nil {
		return nil, nil, ErrBadSnapshotFile
	}
	return key, val, nil
}
