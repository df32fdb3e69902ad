package state

import (
	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/ride"
)

// BalanceChange is one signed balance delta.
type BalanceChange struct {
	Addr   types.Address
	Asset  types.AssetID // zero AssetID means native
	Amount int64
}

// DataChange is one data-entry write or tombstone.
type DataChange struct {
	Addr   types.Address
	Entry  types.DataEntry
	Delete bool
}

// SupplyChange adjusts the total supply of an existing asset.
type SupplyChange struct {
	Asset types.AssetID
	Delta int64

	// DisableReissue finalizes the supply (set by a non-reissuable reissue).
	DisableReissue bool
}

// SponsorshipChange sets or cancels an asset's sponsorship record.
// MinFee zero cancels it.
type SponsorshipChange struct {
	Asset  types.AssetID
	MinFee int64
}

// AccountScriptChange installs or clears (nil) an account script.
type AccountScriptChange struct {
	Addr   types.Address
	Script *ride.Script
}

// AssetScriptChange replaces an asset's governing script.
type AssetScriptChange struct {
	Asset  types.AssetID
	Script *ride.Script
}

// Diff is the ordered, atomic set of deltas produced by one transaction's
// validation. Either the ledger absorbs every delta or none. Changes within
// one slice apply in order, so a later data write to the same key wins.
type Diff struct {
	TxID types.Digest

	Balances       []BalanceChange
	Data           []DataChange
	Issues         []*Asset
	Supply         []SupplyChange
	Sponsorships   []SponsorshipChange
	AccountScripts []AccountScriptChange
	AssetScripts   []AssetScriptChange

	// Fee is the native fee routed to the block's fee pool by this diff.
	// It is informational for the assembler; the debits funding it are
	// already part of Balances.
	Fee int64
}

// NewDiff creates an empty diff for a transaction.
func NewDiff(txID types.Digest) *Diff {
	return &Diff{TxID: txID}
}

// AddBalance appends a signed balance delta.
func (d *Diff) AddBalance(addr types.Address, asset types.AssetID, amount int64) {
	d.Balances = append(d.Balances, BalanceChange{Addr: addr, Asset: asset, Amount: amount})
}

// AddData appends a data-entry write.
func (d *Diff) AddData(addr types.Address, entry types.DataEntry) {
	d.Data = append(d.Data, DataChange{Addr: addr, Entry: entry})
}

// AddDelete appends a data-entry tombstone.
func (d *Diff) AddDelete(addr types.Address, key string) {
	d.Data = append(d.Data, DataChange{Addr: addr, Entry: types.DataEntry{Key: key}, Delete: true})
}

// Merge appends all deltas of other onto d, preserving order.
func (d *Diff) Merge(other *Diff) {
	d.Balances = append(d.Balances, other.Balances...)
	d.Data = append(d.Data, other.Data...)
	d.Issues = append(d.Issues, other.Issues...)
	d.Supply = append(d.Supply, other.Supply...)
	d.Sponsorships = append(d.Sponsorships, other.Sponsorships...)
	d.AccountScripts = append(d.AccountScripts, other.AccountScripts...)
	d.AssetScripts = append(d.AssetScripts, other.AssetScripts...)
	d.Fee += other.Fee
}

// Clone creates a copy sharing no slices with d.
func (d *Diff) Clone() *Diff {
	c := &Diff{TxID: d.TxID, Fee: d.Fee}
	c.Balances = append([]BalanceChange(nil), d.Balances...)
	c.Data = append([]DataChange(nil), d.Data...)
	c.Issues = append([]*Asset(nil), d.Issues...)
	c.Supply = append([]SupplyChange(nil), d.Supply...)
	c.Sponsorships = append([]SponsorshipChange(nil), d.Sponsorships...)
	c.AccountScripts = append([]AccountScriptChange(nil), d.AccountScripts...)
	c.AssetScripts = append([]AssetScriptChange(nil), d.AssetScripts...)
	return c
}
