package state

import (
	"fmt"
	"sync"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/ride"
)

// MemoryLedger is an in-memory Ledger for tests and block simulation.
type MemoryLedger struct {
	mu       sync.RWMutex
	accounts map[types.Address]*Account
	assets   map[types.AssetID]*Asset

	height    uint64
	version   uint64
	stateHash types.Digest
	closed    bool
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		accounts: make(map[types.Address]*Account),
		assets:   make(map[types.AssetID]*Asset),
	}
}

// SeedAccount installs an account directly, bypassing diff application.
// Intended for genesis state and tests.
func (l *MemoryLedger) SeedAccount(acc *Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[acc.Address] = acc.Clone()
}

// SeedAsset installs an asset directly, bypassing diff application.
func (l *MemoryLedger) SeedAsset(a *Asset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assets[a.ID] = a.Clone()
}

// Snapshot returns a read-only view at the current version.
func (l *MemoryLedger) Snapshot() (Snapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}
	return &memSnapshot{ledger: l, version: l.version, height: l.height}, nil
}

// SetHeight records the block height being assembled.
func (l *MemoryLedger) SetHeight(h uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.height = h
	return nil
}

// StateHash returns the hash committing to the current state.
func (l *MemoryLedger) StateHash() types.Digest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stateHash
}

// CommitDiff atomically applies a diff validated against base.
func (l *MemoryLedger) CommitDiff(d *Diff, base Snapshot) (CommitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return CommitResult{}, ErrClosed
	}
	if base.Version() != l.version {
		return CommitResult{}, ErrConflictingState
	}
	if err := l.checkDiff(d); err != nil {
		return CommitResult{}, err
	}
	l.applyDiff(d)
	l.version++
	l.stateHash = HashDiff(l.stateHash, d)
	return CommitResult{Version: l.version, StateHash: l.stateHash}, nil
}

// Close releases the ledger.
func (l *MemoryLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.accounts = nil
	l.assets = nil
	return nil
}

// checkDiff verifies the diff can be absorbed without violating invariants.
// Nothing is mutated; the subsequent applyDiff cannot fail.
func (l *MemoryLedger) checkDiff(d *Diff) error {
	staged := make(map[string]int64)
	balKey := func(addr types.Address, asset types.AssetID) string {
		return string(addr.Bytes()) + string(asset.Bytes())
	}
	for _, bc := range d.Balances {
		k := balKey(bc.Addr, bc.Asset)
		cur, ok := staged[k]
		if !ok {
			if acc, found := l.accounts[bc.Addr]; found {
				if bc.Asset.IsZero() {
					cur = acc.Balance
				} else {
					cur = acc.Assets[bc.Asset]
				}
			}
		}
		cur += bc.Amount
		if cur < 0 {
			return fmt.Errorf("%s asset %s: %w", bc.Addr.String(), bc.Asset.String(), ErrNegativeBalance)
		}
		staged[k] = cur
	}

	issued := make(map[types.AssetID]bool, len(d.Issues))
	for _, a := range d.Issues {
		issued[a.ID] = true
	}
	for _, sc := range d.Supply {
		if issued[sc.Asset] {
			continue
		}
		asset, ok := l.assets[sc.Asset]
		if !ok {
			return fmt.Errorf("supply change for %s: %w", sc.Asset.String(), ErrAssetNotFound)
		}
		if sc.Delta > 0 && !asset.Reissuable {
			return fmt.Errorf("%s: %w", sc.Asset.String(), ErrNotReissuable)
		}
		if asset.Quantity+sc.Delta < 0 {
			return fmt.Errorf("supply of %s: %w", sc.Asset.String(), ErrNegativeBalance)
		}
	}
	return nil
}

func (l *MemoryLedger) applyDiff(d *Diff) {
	account := func(addr types.Address) *Account {
		acc, ok := l.accounts[addr]
		if !ok {
			acc = &Account{Address: addr}
			l.accounts[addr] = acc
		}
		return acc
	}

	for _, bc := range d.Balances {
		acc := account(bc.Addr)
		if bc.Asset.IsZero() {
			acc.Balance += bc.Amount
		} else {
			if acc.Assets == nil {
				acc.Assets = make(map[types.AssetID]int64)
			}
			acc.Assets[bc.Asset] += bc.Amount
		}
	}
	for _, dc := range d.Data {
		acc := account(dc.Addr)
		if dc.Delete {
			delete(acc.Data, dc.Entry.Key)
			continue
		}
		if acc.Data == nil {
			acc.Data = make(map[string]types.DataEntry)
		}
		acc.Data[dc.Entry.Key] = dc.Entry
	}
	for _, a := range d.Issues {
		l.assets[a.ID] = a.Clone()
	}
	for _, sc := range d.Supply {
		asset := l.assets[sc.Asset]
		asset.Quantity += sc.Delta
		if sc.DisableReissue {
			asset.Reissuable = false
		}
	}
	for _, sp := range d.Sponsorships {
		if asset, ok := l.assets[sp.Asset]; ok {
			asset.SponsorMinFee = sp.MinFee
		}
	}
	for _, sc := range d.AccountScripts {
		account(sc.Addr).Script = sc.Script
	}
	for _, sc := range d.AssetScripts {
		if asset, ok := l.assets[sc.Asset]; ok {
			asset.Script = sc.Script
		}
	}
}

// memSnapshot reads committed state at a recorded version. The single-writer
// commit discipline keeps it stable while a validation holds it; a commit in
// between bumps the version so CommitDiff rejects the stale snapshot.
type memSnapshot struct {
	ledger  *MemoryLedger
	version uint64
	height  uint64
}

func (s *memSnapshot) Account(addr types.Address) (*Account, error) {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()
	acc, ok := s.ledger.accounts[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *memSnapshot) Asset(id types.AssetID) (*Asset, error) {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()
	a, ok := s.ledger.assets[id]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return a.Clone(), nil
}

func (s *memSnapshot) NativeBalance(addr types.Address) (int64, error) {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()
	if acc, ok := s.ledger.accounts[addr]; ok {
		return acc.Balance, nil
	}
	return 0, nil
}

func (s *memSnapshot) AssetBalance(addr types.Address, asset types.AssetID) (int64, error) {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()
	if acc, ok := s.ledger.accounts[addr]; ok {
		return acc.Assets[asset], nil
	}
	return 0, nil
}

func (s *memSnapshot) AccountData(addr types.Address, key string) (*types.DataEntry, error) {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()
	if acc, ok := s.ledger.accounts[addr]; ok {
		if e, found := acc.Data[key]; found {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

func (s *memSnapshot) AccountScript(addr types.Address) (*ride.Script, error) {
	s.ledger.mu.RLock()
	defer s.ledger.mu.RUnlock()
	if acc, ok := s.ledger.accounts[addr]; ok {
		return acc.Script, nil
	}
	return nil, nil
}

func (s *memSnapshot) Height() uint64 { return s.height }

func (s *memSnapshot) Version() uint64 { return s.version }

func (s *memSnapshot) Close() error { return nil }
