// Package state implements the ledger state the transaction-application core
// validates against: accounts, issued assets, typed data storage, scripts and
// sponsorship records.
//
// Committed state is owned by a Ledger (in-memory or Badger-backed). All
// mutation goes through CommitDiff, which applies one transaction's Diff
// atomically and rejects commits built on a stale snapshot. Validation reads
// go through the Snapshot interface, which is immutable for the duration of
// one validation call; Overlay layers uncommitted diffs of the block under
// assembly on top of a base snapshot so each transaction sees the cumulative
// effect of its predecessors.
package state

import (
	"errors"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/ride"
)

var (
	// ErrAccountNotFound is returned when an account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAssetNotFound is returned when an asset doesn't exist.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrConflictingState is returned by CommitDiff when the snapshot the
	// diff was validated against is stale relative to the ledger's head.
	// The caller must re-snapshot and re-classify.
	ErrConflictingState = errors.New("conflicting state: snapshot is stale")

	// ErrNegativeBalance is returned when applying a diff would drive a
	// balance below zero.
	ErrNegativeBalance = errors.New("negative balance")

	// ErrNotReissuable is returned when reissuing a finalized asset.
	ErrNotReissuable = errors.New("asset not reissuable")

	// ErrClosed is returned when operating on a closed ledger.
	ErrClosed = errors.New("ledger closed")

	// ErrInvalidData is returned when a stored record is malformed.
	ErrInvalidData = errors.New("invalid stored record")
)

// Account is the full state of one address.
type Account struct {
	Address   types.Address
	PublicKey types.PublicKey

	// Balance is the native balance.
	Balance int64

	// Assets maps asset id to asset balance.
	Assets map[types.AssetID]int64

	// Script is the optional account verifier or dApp script.
	Script *ride.Script

	// Data maps entry key to typed data entry.
	Data map[string]types.DataEntry
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := &Account{
		Address:   a.Address,
		PublicKey: a.PublicKey,
		Balance:   a.Balance,
		Script:    a.Script,
	}
	if a.Assets != nil {
		c.Assets = make(map[types.AssetID]int64, len(a.Assets))
		for k, v := range a.Assets {
			c.Assets[k] = v
		}
	}
	if a.Data != nil {
		c.Data = make(map[string]types.DataEntry, len(a.Data))
		for k, v := range a.Data {
			c.Data[k] = v
		}
	}
	return c
}

// Asset is the state of one issued asset.
type Asset struct {
	ID          types.AssetID
	Issuer      types.Address
	Name        string
	Description string

	// Quantity is the total supply.
	Quantity int64

	Decimals   byte
	Reissuable bool

	// Script is the optional governing (asset verifier) script.
	Script *ride.Script

	// SponsorMinFee is the sponsored-fee exchange rate: the amount of this
	// asset equivalent to one fee unit of the native asset. Zero means the
	// asset is not sponsored.
	SponsorMinFee int64
}

// Clone creates a copy of the asset.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// Sponsored reports whether the asset has an active sponsorship record.
func (a *Asset) Sponsored() bool {
	return a.SponsorMinFee > 0
}

// Snapshot is a read-only view of ledger state as of a fixed version.
// It must stay immutable for the duration of one validation call.
// Snapshot satisfies ride.StateReader, so scripts read through it directly.
type Snapshot interface {
	// Account returns the full account state, or ErrAccountNotFound.
	Account(addr types.Address) (*Account, error)

	// Asset returns the asset state, or ErrAssetNotFound.
	Asset(id types.AssetID) (*Asset, error)

	// NativeBalance returns the native balance of an address (0 if absent).
	NativeBalance(addr types.Address) (int64, error)

	// AssetBalance returns an address's balance in an asset (0 if absent).
	AssetBalance(addr types.Address, asset types.AssetID) (int64, error)

	// AccountData returns the data entry under key, or nil if absent.
	AccountData(addr types.Address, key string) (*types.DataEntry, error)

	// AccountScript returns the account's script, or nil if none.
	AccountScript(addr types.Address) (*ride.Script, error)

	// Height is the block height the snapshot was taken at.
	Height() uint64

	// Version is the commit version the snapshot was taken at. CommitDiff
	// compares it against the ledger head to detect staleness.
	Version() uint64

	// Close releases snapshot resources.
	Close() error
}

// CommitResult describes one committed diff.
type CommitResult struct {
	// Version is the ledger version after the commit.
	Version uint64

	// StateHash commits to the ledger state after the diff was absorbed.
	StateHash types.Digest
}

// Ledger owns committed state. Implementations must serialize commits;
// CommitDiff holds exclusive access for the duration of the apply.
type Ledger interface {
	// Snapshot returns a read-only view of the current committed state.
	Snapshot() (Snapshot, error)

	// CommitDiff atomically applies a diff validated against base.
	// Fails with ErrConflictingState if base is stale.
	CommitDiff(d *Diff, base Snapshot) (CommitResult, error)

	// SetHeight records the block height being assembled.
	SetHeight(h uint64) error

	// Close releases the ledger.
	Close() error
}
