package state

import (
	"errors"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/ride"
)

type balanceKey struct {
	addr  types.Address
	asset types.AssetID
}

type dataKey struct {
	addr types.Address
	key  string
}

// Overlay layers uncommitted diffs on top of a base snapshot. The assembler
// folds each accepted transaction's diff into the overlay so the next
// transaction in the same block validates against the cumulative state.
// Overlay satisfies Snapshot and therefore ride.StateReader.
type Overlay struct {
	base Snapshot

	balances     map[balanceKey]int64 // deltas relative to base
	data         map[dataKey]*types.DataEntry
	assets       map[types.AssetID]*Asset // issued or modified copies
	accScripts   map[types.Address]*ride.Script
	accScriptSet map[types.Address]bool
}

// NewOverlay creates an overlay over a base snapshot.
func NewOverlay(base Snapshot) *Overlay {
	return &Overlay{
		base:         base,
		balances:     make(map[balanceKey]int64),
		data:         make(map[dataKey]*types.DataEntry),
		assets:       make(map[types.AssetID]*Asset),
		accScripts:   make(map[types.Address]*ride.Script),
		accScriptSet: make(map[types.Address]bool),
	}
}

// ApplyDiff folds one diff into the overlay. It assumes the diff has already
// been validated; no balance checks are repeated here.
func (o *Overlay) ApplyDiff(d *Diff) error {
	for _, bc := range d.Balances {
		o.balances[balanceKey{bc.Addr, bc.Asset}] += bc.Amount
	}
	for _, dc := range d.Data {
		k := dataKey{dc.Addr, dc.Entry.Key}
		if dc.Delete {
			o.data[k] = nil
			continue
		}
		entry := dc.Entry
		o.data[k] = &entry
	}
	for _, a := range d.Issues {
		o.assets[a.ID] = a.Clone()
	}
	for _, sc := range d.Supply {
		asset, err := o.stagedAsset(sc.Asset)
		if err != nil {
			return err
		}
		asset.Quantity += sc.Delta
		if sc.DisableReissue {
			asset.Reissuable = false
		}
	}
	for _, sp := range d.Sponsorships {
		asset, err := o.stagedAsset(sp.Asset)
		if err != nil {
			return err
		}
		asset.SponsorMinFee = sp.MinFee
	}
	for _, sc := range d.AccountScripts {
		o.accScripts[sc.Addr] = sc.Script
		o.accScriptSet[sc.Addr] = true
	}
	for _, sc := range d.AssetScripts {
		asset, err := o.stagedAsset(sc.Asset)
		if err != nil {
			return err
		}
		asset.Script = sc.Script
	}
	return nil
}

// stagedAsset returns the overlay's mutable copy of an asset, pulling it up
// from the base snapshot on first touch.
func (o *Overlay) stagedAsset(id types.AssetID) (*Asset, error) {
	if a, ok := o.assets[id]; ok {
		return a, nil
	}
	a, err := o.base.Asset(id)
	if err != nil {
		return nil, err
	}
	o.assets[id] = a
	return a, nil
}

// Account merges the base account with overlay deltas.
func (o *Overlay) Account(addr types.Address) (*Account, error) {
	acc, err := o.base.Account(addr)
	if errors.Is(err, ErrAccountNotFound) {
		acc = &Account{Address: addr}
	} else if err != nil {
		return nil, err
	}
	for k, delta := range o.balances {
		if k.addr != addr {
			continue
		}
		if k.asset.IsZero() {
			acc.Balance += delta
		} else {
			if acc.Assets == nil {
				acc.Assets = make(map[types.AssetID]int64)
			}
			acc.Assets[k.asset] += delta
		}
	}
	for k, entry := range o.data {
		if k.addr != addr {
			continue
		}
		if entry == nil {
			delete(acc.Data, k.key)
			continue
		}
		if acc.Data == nil {
			acc.Data = make(map[string]types.DataEntry)
		}
		acc.Data[k.key] = *entry
	}
	if o.accScriptSet[addr] {
		acc.Script = o.accScripts[addr]
	}
	return acc, nil
}

// Asset returns the staged asset if touched, otherwise the base asset.
func (o *Overlay) Asset(id types.AssetID) (*Asset, error) {
	if a, ok := o.assets[id]; ok {
		return a.Clone(), nil
	}
	return o.base.Asset(id)
}

// NativeBalance returns the overlaid native balance.
func (o *Overlay) NativeBalance(addr types.Address) (int64, error) {
	base, err := o.base.NativeBalance(addr)
	if err != nil {
		return 0, err
	}
	return base + o.balances[balanceKey{addr, types.AssetID{}}], nil
}

// AssetBalance returns the overlaid asset balance.
func (o *Overlay) AssetBalance(addr types.Address, asset types.AssetID) (int64, error) {
	base, err := o.base.AssetBalance(addr, asset)
	if err != nil {
		return 0, err
	}
	return base + o.balances[balanceKey{addr, asset}], nil
}

// AccountData returns the overlaid data entry, or nil if absent or deleted.
func (o *Overlay) AccountData(addr types.Address, key string) (*types.DataEntry, error) {
	if entry, ok := o.data[dataKey{addr, key}]; ok {
		if entry == nil {
			return nil, nil
		}
		e := *entry
		return &e, nil
	}
	return o.base.AccountData(addr, key)
}

// AccountScript returns the overlaid account script.
func (o *Overlay) AccountScript(addr types.Address) (*ride.Script, error) {
	if o.accScriptSet[addr] {
		return o.accScripts[addr], nil
	}
	return o.base.AccountScript(addr)
}

// Height is the base snapshot's height.
func (o *Overlay) Height() uint64 { return o.base.Height() }

// Version is the base snapshot's version; commits built on the overlay are
// validated against the same ledger head the base was taken from.
func (o *Overlay) Version() uint64 { return o.base.Version() }

// Close is a no-op; the overlay does not own the base snapshot.
func (o *Overlay) Close() error { return nil }
