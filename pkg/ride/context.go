package ride

import (
	"github.com/G1zm0nl/Waves/internal/types"
)

// StateReader is the read-only view of ledger state a script may consult
// during evaluation. Implementations must be immutable for the duration of
// one evaluation; the ledger's snapshot types satisfy this interface.
type StateReader interface {
	// NativeBalance returns the native balance of an address.
	NativeBalance(addr types.Address) (int64, error)

	// AssetBalance returns the balance of an address in a specific asset.
	AssetBalance(addr types.Address, asset types.AssetID) (int64, error)

	// AccountData returns the data entry stored under key, or nil if absent.
	AccountData(addr types.Address, key string) (*types.DataEntry, error)
}

// Payment is one asset payment attached to a contract invocation.
type Payment struct {
	Asset  types.AssetID // zero AssetID means native
	Amount int64
}

// Context binds a script evaluation to one transaction and one snapshot.
// It is the only source of ambient information available to a script.
type Context struct {
	State StateReader

	// TxID is the id of the transaction under validation.
	TxID types.Digest

	// Sender is the transaction sender's address.
	Sender types.Address

	// Caller is the address invoking the script. For account verifiers and
	// top-level invocations it equals Sender.
	Caller types.Address

	// This is the address owning the evaluated script. For asset verifiers
	// it is the asset issuer's address.
	This types.Address

	// Fee and FeeAsset are the transaction's declared fee.
	Fee      int64
	FeeAsset types.AssetID

	// Height and Timestamp describe the block being assembled.
	Height    uint64
	Timestamp int64

	// Args are the positional arguments of a callable invocation.
	Args []Value

	// Payments are the asset payments attached to an invocation.
	Payments []Payment
}
