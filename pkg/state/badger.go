package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/ride"
)

// Key prefixes for Badger storage.
// Using prefixes allows efficient iteration over specific record types.
var (
	// prefixAccount: prefix + address (26 bytes) -> account record.
	prefixAccount = []byte{0x01}

	// prefixAssetBalance: prefix + address + asset id -> 8-byte balance.
	prefixAssetBalance = []byte{0x02}

	// prefixData: prefix + address + key bytes -> data entry record.
	prefixData = []byte{0x03}

	// prefixAccountScript: prefix + address -> encoded script.
	prefixAccountScript = []byte{0x04}

	// prefixAsset: prefix + asset id -> asset record.
	prefixAsset = []byte{0x05}

	// prefixAssetScript: prefix + asset id -> encoded script.
	prefixAssetScript = []byte{0x06}

	// prefixMeta is the prefix for ledger metadata.
	prefixMeta = []byte{0x07}

	metaHeight    = append(prefixMeta, []byte("height")...)
	metaVersion   = append(prefixMeta, []byte("version")...)
	metaStateHash = append(prefixMeta, []byte("statehash")...)
)

// BadgerConfig contains configuration for the Badger-backed ledger.
type BadgerConfig struct {
	// Path is the directory path for the database.
	Path string

	// InMemory runs the database in memory (for testing).
	InMemory bool

	// SyncWrites ensures writes are synced to disk.
	SyncWrites bool

	// NumCompactors is the number of compaction workers.
	NumCompactors int

	// NumMemtables is the number of memtables.
	NumMemtables int

	// ValueLogFileSize is the size of each value log file.
	ValueLogFileSize int64

	// ScriptCacheSize is the number of decoded scripts kept in memory.
	ScriptCacheSize int

	// Logger is an optional logger. Set to nil to disable logging.
	Logger badger.Logger
}

// DefaultBadgerConfig returns default configuration.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:             path,
		InMemory:         false,
		SyncWrites:       false,
		NumCompactors:    4,
		NumMemtables:     5,
		ValueLogFileSize: 256 << 20, // 256MB
		ScriptCacheSize:  1024,
		Logger:           nil,
	}
}

// BadgerLedger is a Badger-backed Ledger.
//
// Accounts, asset balances, data entries and scripts are stored under typed
// key prefixes in compact binary records. Scripts are decoded through a
// content-addressed LRU cache, so repeated validations against the same
// script skip the decode.
type BadgerLedger struct {
	db *badger.DB

	// height and version are cached in memory for fast access.
	height  atomic.Uint64
	version atomic.Uint64

	// stateHash is guarded by mu.
	stateHash types.Digest

	// scripts caches decoded scripts keyed by content digest.
	scripts *lru.Cache

	// mu serializes commits.
	mu sync.Mutex

	closed atomic.Bool
}

// NewBadgerLedger opens a Badger-backed ledger.
func NewBadgerLedger(cfg BadgerConfig) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumCompactors(cfg.NumCompactors).
		WithNumMemtables(cfg.NumMemtables).
		WithValueLogFileSize(cfg.ValueLogFileSize).
		WithLogger(cfg.Logger)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	cacheSize := cfg.ScriptCacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("script cache: %w", err)
	}

	l := &BadgerLedger{db: db, scripts: cache}
	if err := l.loadMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *BadgerLedger) loadMeta() error {
	return l.db.View(func(txn *badger.Txn) error {
		if v, err := readUint64(txn, metaHeight); err == nil {
			l.height.Store(v)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if v, err := readUint64(txn, metaVersion); err == nil {
			l.version.Store(v)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		item, err := txn.Get(metaStateHash)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			copy(l.stateHash[:], val)
			return nil
		})
	})
}

// Snapshot returns a read-only view backed by a Badger read transaction,
// immutable for the snapshot's lifetime. Callers must Close it.
func (l *BadgerLedger) Snapshot() (Snapshot, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	return &badgerSnapshot{
		ledger:  l,
		txn:     l.db.NewTransaction(false),
		version: l.version.Load(),
		height:  l.height.Load(),
	}, nil
}

// SetHeight records the block height being assembled.
func (l *BadgerLedger) SetHeight(h uint64) error {
	if l.closed.Load() {
		return ErrClosed
	}
	err := l.db.Update(func(txn *badger.Txn) error {
		return writeUint64(txn, metaHeight, h)
	})
	if err != nil {
		return fmt.Errorf("set height: %w", err)
	}
	l.height.Store(h)
	return nil
}

// StateHash returns the hash committing to the current state.
func (l *BadgerLedger) StateHash() types.Digest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateHash
}

// CommitDiff atomically applies a diff validated against base.
func (l *BadgerLedger) CommitDiff(d *Diff, base Snapshot) (CommitResult, error) {
	if l.closed.Load() {
		return CommitResult{}, ErrClosed
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if base.Version() != l.version.Load() {
		return CommitResult{}, ErrConflictingState
	}

	newVersion := l.version.Load() + 1
	newHash := HashDiff(l.stateHash, d)

	err := l.db.Update(func(txn *badger.Txn) error {
		if err := l.applyBalances(txn, d.Balances); err != nil {
			return err
		}
		if err := l.applyData(txn, d.Data); err != nil {
			return err
		}
		if err := l.applyAssets(txn, d); err != nil {
			return err
		}
		if err := l.applyScripts(txn, d); err != nil {
			return err
		}
		if err := writeUint64(txn, metaVersion, newVersion); err != nil {
			return err
		}
		return txn.Set(metaStateHash, newHash.Bytes())
	})
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit diff %s: %w", d.TxID.String(), err)
	}

	l.version.Store(newVersion)
	l.stateHash = newHash
	return CommitResult{Version: newVersion, StateHash: newHash}, nil
}

// Close closes the ledger.
func (l *BadgerLedger) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.db.Close()
}

func (l *BadgerLedger) applyBalances(txn *badger.Txn, changes []BalanceChange) error {
	// Fold deltas per key first so each balance is read and written once.
	type folded struct {
		key   []byte
		total int64
	}
	order := make([]string, 0, len(changes))
	totals := make(map[string]*folded, len(changes))
	for _, bc := range changes {
		var key []byte
		if bc.Asset.IsZero() {
			key = accountKey(bc.Addr)
		} else {
			key = assetBalanceKey(bc.Addr, bc.Asset)
		}
		ks := string(key)
		f, ok := totals[ks]
		if !ok {
			f = &folded{key: key}
			totals[ks] = f
			order = append(order, ks)
		}
		f.total += bc.Amount
	}

	for _, ks := range order {
		f := totals[ks]
		if bytes.HasPrefix(f.key, prefixAccount) {
			balance, pk, err := readAccountRecord(txn, f.key)
			if err != nil {
				return err
			}
			balance += f.total
			if balance < 0 {
				return ErrNegativeBalance
			}
			if err := txn.Set(f.key, encodeAccountRecord(balance, pk)); err != nil {
				return err
			}
			continue
		}
		balance, err := readBalance(txn, f.key)
		if err != nil {
			return err
		}
		balance += f.total
		if balance < 0 {
			return ErrNegativeBalance
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(balance))
		if err := txn.Set(f.key, buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func (l *BadgerLedger) applyData(txn *badger.Txn, changes []DataChange) error {
	for _, dc := range changes {
		key := dataEntryKey(dc.Addr, dc.Entry.Key)
		if dc.Delete {
			if err := txn.Delete(key); err != nil {
				return err
			}
			continue
		}
		if err := txn.Set(key, encodeDataEntry(dc.Entry)); err != nil {
			return err
		}
	}
	return nil
}

func (l *BadgerLedger) applyAssets(txn *badger.Txn, d *Diff) error {
	for _, a := range d.Issues {
		if err := txn.Set(assetKey(a.ID), encodeAssetRecord(a)); err != nil {
			return err
		}
		if a.Script != nil {
			if err := txn.Set(assetScriptKey(a.ID), ride.EncodeScript(a.Script)); err != nil {
				return err
			}
		}
	}
	for _, sc := range d.Supply {
		asset, err := readAsset(txn, sc.Asset)
		if err != nil {
			return err
		}
		if sc.Delta > 0 && !asset.Reissuable {
			return ErrNotReissuable
		}
		asset.Quantity += sc.Delta
		if asset.Quantity < 0 {
			return ErrNegativeBalance
		}
		if sc.DisableReissue {
			asset.Reissuable = false
		}
		if err := txn.Set(assetKey(sc.Asset), encodeAssetRecord(asset)); err != nil {
			return err
		}
	}
	for _, sp := range d.Sponsorships {
		asset, err := readAsset(txn, sp.Asset)
		if err != nil {
			return err
		}
		asset.SponsorMinFee = sp.MinFee
		if err := txn.Set(assetKey(sp.Asset), encodeAssetRecord(asset)); err != nil {
			return err
		}
	}
	return nil
}

func (l *BadgerLedger) applyScripts(txn *badger.Txn, d *Diff) error {
	for _, sc := range d.AccountScripts {
		key := accountScriptKey(sc.Addr)
		if sc.Script == nil {
			if err := txn.Delete(key); err != nil {
				return err
			}
			continue
		}
		if err := txn.Set(key, ride.EncodeScript(sc.Script)); err != nil {
			return err
		}
	}
	for _, sc := range d.AssetScripts {
		key := assetScriptKey(sc.Asset)
		if sc.Script == nil {
			if err := txn.Delete(key); err != nil {
				return err
			}
			continue
		}
		if err := txn.Set(key, ride.EncodeScript(sc.Script)); err != nil {
			return err
		}
	}
	return nil
}

// decodeScriptCached decodes script bytes through the content-addressed cache.
func (l *BadgerLedger) decodeScriptCached(data []byte) (*ride.Script, error) {
	digest := types.Blake2b(data)
	if cached, ok := l.scripts.Get(digest); ok {
		return cached.(*ride.Script), nil
	}
	script, err := ride.DecodeScript(data)
	if err != nil {
		return nil, err
	}
	l.scripts.Add(digest, script)
	return script, nil
}

// badgerSnapshot reads through one Badger read transaction.
type badgerSnapshot struct {
	ledger  *BadgerLedger
	txn     *badger.Txn
	version uint64
	height  uint64
}

func (s *badgerSnapshot) Account(addr types.Address) (*Account, error) {
	key := accountKey(addr)
	item, err := s.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	balance, pk, err := decodeAccountRecord(data)
	if err != nil {
		return nil, err
	}
	acc := &Account{Address: addr, PublicKey: pk, Balance: balance}

	// Asset balances.
	prefix := append(append([]byte(nil), prefixAssetBalance...), addr.Bytes()...)
	it := s.txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		k := it.Item().Key()
		id, err := types.DigestFromBytes(k[len(prefix):])
		if err != nil {
			return nil, err
		}
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		if len(val) != 8 {
			return nil, ErrInvalidData
		}
		if acc.Assets == nil {
			acc.Assets = make(map[types.AssetID]int64)
		}
		acc.Assets[id] = int64(binary.LittleEndian.Uint64(val))
	}

	// Data entries.
	dataPrefix := append(append([]byte(nil), prefixData...), addr.Bytes()...)
	dit := s.txn.NewIterator(badger.IteratorOptions{Prefix: dataPrefix})
	defer dit.Close()
	for dit.Rewind(); dit.Valid(); dit.Next() {
		k := dit.Item().Key()
		entryKey := string(k[len(dataPrefix):])
		val, err := dit.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		entry, err := decodeDataEntry(entryKey, val)
		if err != nil {
			return nil, err
		}
		if acc.Data == nil {
			acc.Data = make(map[string]types.DataEntry)
		}
		acc.Data[entryKey] = entry
	}

	acc.Script, err = s.AccountScript(addr)
	if err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *badgerSnapshot) Asset(id types.AssetID) (*Asset, error) {
	asset, err := readAsset(s.txn, id)
	if err != nil {
		return nil, err
	}
	item, err := s.txn.Get(assetScriptKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return asset, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	asset.Script, err = s.ledger.decodeScriptCached(data)
	if err != nil {
		return nil, err
	}
	return asset, nil
}

func (s *badgerSnapshot) NativeBalance(addr types.Address) (int64, error) {
	balance, _, err := readAccountRecord(s.txn, accountKey(addr))
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *badgerSnapshot) AssetBalance(addr types.Address, asset types.AssetID) (int64, error) {
	return readBalance(s.txn, assetBalanceKey(addr, asset))
}

func (s *badgerSnapshot) AccountData(addr types.Address, key string) (*types.DataEntry, error) {
	item, err := s.txn.Get(dataEntryKey(addr, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	entry, err := decodeDataEntry(key, data)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *badgerSnapshot) AccountScript(addr types.Address) (*ride.Script, error) {
	item, err := s.txn.Get(accountScriptKey(addr))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return s.ledger.decodeScriptCached(data)
}

func (s *badgerSnapshot) Height() uint64 { return s.height }

func (s *badgerSnapshot) Version() uint64 { return s.version }

func (s *badgerSnapshot) Close() error {
	s.txn.Discard()
	return nil
}

// Key construction helpers.

func accountKey(addr types.Address) []byte {
	return append(append([]byte(nil), prefixAccount...), addr.Bytes()...)
}

func assetBalanceKey(addr types.Address, asset types.AssetID) []byte {
	key := append(append([]byte(nil), prefixAssetBalance...), addr.Bytes()...)
	return append(key, asset.Bytes()...)
}

func dataEntryKey(addr types.Address, key string) []byte {
	k := append(append([]byte(nil), prefixData...), addr.Bytes()...)
	return append(k, []byte(key)...)
}

func accountScriptKey(addr types.Address) []byte {
	return append(append([]byte(nil), prefixAccountScript...), addr.Bytes()...)
}

func assetKey(id types.AssetID) []byte {
	return append(append([]byte(nil), prefixAsset...), id.Bytes()...)
}

func assetScriptKey(id types.AssetID) []byte {
	return append(append([]byte(nil), prefixAssetScript...), id.Bytes()...)
}

// Read helpers over a Badger transaction.

func readAccountRecord(txn *badger.Txn, key []byte) (int64, types.PublicKey, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, types.PublicKey{}, nil
	}
	if err != nil {
		return 0, types.PublicKey{}, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return 0, types.PublicKey{}, err
	}
	return decodeAccountRecord(data)
}

func readBalance(txn *badger.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, ErrInvalidData
	}
	return int64(binary.LittleEndian.Uint64(data)), nil
}

func readAsset(txn *badger.Txn, id types.AssetID) (*Asset, error) {
	item, err := txn.Get(assetKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	return decodeAssetRecord(id, data)
}

func readUint64(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if err != nil {
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return ErrInvalidData
		}
		v = binary.LittleEndian.Uint64(val)
		return nil
	})
	return v, err
}

func writeUint64(txn *badger.Txn, key []byte, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return txn.Set(key, buf[:])
}
