package state

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/G1zm0nl/Waves/internal/types"
)

// Section tags for the diff hash preimage.
const (
	hashTagBalance     = byte(0x01)
	hashTagData        = byte(0x02)
	hashTagIssue       = byte(0x03)
	hashTagSupply      = byte(0x04)
	hashTagSponsorship = byte(0x05)
	hashTagAccScript   = byte(0x06)
	hashTagAssetScript = byte(0x07)
)

// HashDiff chains the ledger state hash over one committed diff:
//
//	stateHash' = BLAKE3(stateHash || txID || deltas...)
//
// Deltas are folded in diff order with section tags, so two ledgers that
// absorbed the same diffs in the same order carry the same hash.
func HashDiff(prev types.Digest, d *Diff) types.Digest {
	h := blake3.New()
	h.Write(prev[:])
	h.Write(d.TxID[:])

	var u64 [8]byte
	writeInt := func(v int64) {
		binary.LittleEndian.PutUint64(u64[:], uint64(v))
		h.Write(u64[:])
	}

	for _, bc := range d.Balances {
		h.Write([]byte{hashTagBalance})
		h.Write(bc.Addr[:])
		h.Write(bc.Asset[:])
		writeInt(bc.Amount)
	}
	for _, dc := range d.Data {
		h.Write([]byte{hashTagData})
		h.Write(dc.Addr[:])
		h.Write([]byte(dc.Entry.Key))
		if dc.Delete {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{byte(dc.Entry.Type)})
		switch dc.Entry.Type {
		case types.DataInteger:
			writeInt(dc.Entry.Int)
		case types.DataBoolean:
			if dc.Entry.Bool {
				h.Write([]byte{1})
			} else {
				h.Write([]byte{0})
			}
		case types.DataBinary:
			h.Write(dc.Entry.Bin)
		case types.DataString:
			h.Write([]byte(dc.Entry.Str))
		}
	}
	for _, a := range d.Issues {
		h.Write([]byte{hashTagIssue})
		h.Write(a.ID[:])
		h.Write(a.Issuer[:])
		writeInt(a.Quantity)
		h.Write([]byte{a.Decimals})
	}
	for _, sc := range d.Supply {
		h.Write([]byte{hashTagSupply})
		h.Write(sc.Asset[:])
		writeInt(sc.Delta)
	}
	for _, sp := range d.Sponsorships {
		h.Write([]byte{hashTagSponsorship})
		h.Write(sp.Asset[:])
		writeInt(sp.MinFee)
	}
	for _, sc := range d.AccountScripts {
		h.Write([]byte{hashTagAccScript})
		h.Write(sc.Addr[:])
	}
	for _, sc := range d.AssetScripts {
		h.Write([]byte{hashTagAssetScript})
		h.Write(sc.Asset[:])
	}

	var out types.Digest
	sum := h.Sum(nil)
	copy(out[:], sum)
	return out
}
