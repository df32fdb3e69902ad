package ride

import (
	"github.com/G1zm0nl/Waves/internal/types"
)

// Action is one effect requested by a contract invocation. Actions are
// produced in the order the callable emitted them; order is significant.
type Action interface {
	actionType() string
}

// TransferAction moves funds from the dApp account to a recipient.
type TransferAction struct {
	Recipient types.Address
	Asset     types.AssetID // zero AssetID means the native asset
	Amount    int64
}

func (TransferAction) actionType() string { return "transfer" }

// DataAction writes one typed entry to the dApp account's data storage.
type DataAction struct {
	Entry types.DataEntry
}

func (DataAction) actionType() string { return "data" }

// DeleteAction removes a key from the dApp account's data storage.
type DeleteAction struct {
	Key string
}

func (DeleteAction) actionType() string { return "delete" }

// IssueAction mints a new asset. The asset id is assigned by the interpreter,
// deterministically from the invocation's transaction id and a sequence counter.
type IssueAction struct {
	Name        string
	Description string
	Quantity    int64
	Decimals    byte
	Reissuable  bool
}

func (IssueAction) actionType() string { return "issue" }

// ReissueAction increases the supply of an existing asset.
type ReissueAction struct {
	Asset      types.AssetID
	Quantity   int64
	Reissuable bool
}

func (ReissueAction) actionType() string { return "reissue" }

// BurnAction decreases the supply of an existing asset.
type BurnAction struct {
	Asset    types.AssetID
	Quantity int64
}

func (BurnAction) actionType() string { return "burn" }

// SponsorFeeAction sets or cancels the sponsorship record of an asset.
// A zero MinFee cancels sponsorship.
type SponsorFeeAction struct {
	Asset  types.AssetID
	MinFee int64
}

func (SponsorFeeAction) actionType() string { return "sponsor" }
