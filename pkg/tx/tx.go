// Package tx defines the transaction model: a closed tagged union of
// transaction kinds sharing common envelope fields. Transactions are
// immutable once built; the id is the BLAKE2b-256 digest of the body bytes
// and is computed at construction.
package tx

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/ride"
)

// Kind discriminates the payload of a transaction.
type Kind uint8

// Transaction kinds.
const (
	KindTransfer Kind = iota + 1
	KindInvoke
	KindExchange
	KindDataWrite
	KindIssue
	KindReissue
	KindBurn
	KindSetScript
	KindSetAssetScript
	KindSponsorFee
)

var (
	// ErrNoPayload is returned when a transaction carries no payload for
	// its declared kind.
	ErrNoPayload = errors.New("transaction has no payload for its kind")
)

// Transaction is one candidate transaction. Exactly one payload pointer,
// matching Kind, is non-nil.
type Transaction struct {
	// ID is the content hash of the transaction body.
	ID types.Digest

	// SenderPK identifies and authenticates the sender; the sender address
	// is derived from it.
	SenderPK types.PublicKey
	Sender   types.Address

	// Fee is the declared fee amount in FeeAsset units.
	// A zero FeeAsset means the native asset.
	Fee      int64
	FeeAsset types.AssetID

	Timestamp int64

	// Signature authorizes the transaction when the sender has no account
	// script; scripted accounts are authorized by their verifier instead.
	Signature types.Signature

	Kind Kind

	Transfer       *TransferPayload
	Invoke         *InvokePayload
	Exchange       *ExchangePayload
	Data           *DataPayload
	Issue          *IssuePayload
	Reissue        *ReissuePayload
	Burn           *BurnPayload
	SetScript      *SetScriptPayload
	SetAssetScript *SetAssetScriptPayload
	SponsorFee     *SponsorFeePayload
}

// TransferPayload moves an amount of one asset to a recipient.
type TransferPayload struct {
	Recipient  types.Address
	Asset      types.AssetID // zero means native
	Amount     int64
	Attachment []byte
}

// InvokePayload calls a callable function of a deployed dApp.
type InvokePayload struct {
	DApp     types.Address
	Function string
	Args     []ride.Value
	Payments []ride.Payment
}

// OrderSide distinguishes buy and sell orders.
type OrderSide uint8

// Order sides.
const (
	Buy OrderSide = iota + 1
	Sell
)

// Order is one side of an exchange: a signed commitment to trade
// AmountAsset against PriceAsset at a limit price.
type Order struct {
	SenderPK    types.PublicKey
	Sender      types.Address
	Side        OrderSide
	AmountAsset types.AssetID
	PriceAsset  types.AssetID
	Price       int64
	Amount      int64

	MatcherFee      int64
	MatcherFeeAsset types.AssetID

	Signature types.Signature
}

// BodyBytes returns the order's signable bytes.
func (o *Order) BodyBytes() []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(o.Side))
	buf.Write(o.SenderPK.Bytes())
	buf.Write(o.AmountAsset.Bytes())
	buf.Write(o.PriceAsset.Bytes())
	writeInt64(&buf, o.Price)
	writeInt64(&buf, o.Amount)
	writeInt64(&buf, o.MatcherFee)
	buf.Write(o.MatcherFeeAsset.Bytes())
	return buf.Bytes()
}

// Sign signs the order body with the sender's private key.
func (o *Order) Sign(priv ed25519.PrivateKey) {
	copy(o.Signature[:], ed25519.Sign(priv, o.BodyBytes()))
}

// ExchangePayload matches a buy and a sell order. The transaction sender is
// the matcher; it charges each side its matcher fee.
type ExchangePayload struct {
	BuyOrder  Order
	SellOrder Order

	// Price and Amount are the executed trade terms.
	Price  int64
	Amount int64

	BuyMatcherFee  int64
	SellMatcherFee int64
}

// DataPayload writes typed entries to the sender's data storage.
// An entry with zero Type is a tombstone removing the key.
type DataPayload struct {
	Entries []types.DataEntry
}

// IssuePayload mints a new asset; the asset id is the transaction id.
type IssuePayload struct {
	Name        string
	Description string
	Quantity    int64
	Decimals    byte
	Reissuable  bool
	Script      *ride.Script
}

// ReissuePayload increases the supply of an asset owned by the sender.
type ReissuePayload struct {
	Asset      types.AssetID
	Quantity   int64
	Reissuable bool
}

// BurnPayload decreases the sender's holding and the supply of an asset.
type BurnPayload struct {
	Asset    types.AssetID
	Quantity int64
}

// SetScriptPayload installs (or clears, when nil) the sender's account script.
type SetScriptPayload struct {
	Script *ride.Script
}

// SetAssetScriptPayload replaces the governing script of an asset the sender issued.
type SetAssetScriptPayload struct {
	Asset  types.AssetID
	Script *ride.Script
}

// SponsorFeePayload sets (or cancels, when MinFee is 0) sponsorship of an
// asset the sender issued.
type SponsorFeePayload struct {
	Asset  types.AssetID
	MinFee int64
}

// New finalizes a transaction: derives the sender address and computes the id.
// The caller fills envelope fields and exactly one payload beforehand.
func New(scheme byte, t *Transaction) (*Transaction, error) {
	body, err := t.BodyBytes()
	if err != nil {
		return nil, err
	}
	t.Sender = types.AddressFromPublicKey(scheme, t.SenderPK)
	t.ID = types.Blake2b(body)
	return t, nil
}

// Sign signs the transaction body with the sender's private key.
func (t *Transaction) Sign(priv ed25519.PrivateKey) error {
	body, err := t.BodyBytes()
	if err != nil {
		return err
	}
	copy(t.Signature[:], ed25519.Sign(priv, body))
	return nil
}

// VerifySignature checks the envelope signature against the sender key.
func (t *Transaction) VerifySignature() bool {
	body, err := t.BodyBytes()
	if err != nil {
		return false
	}
	return t.SenderPK.Verify(body, t.Signature)
}

// FeeIsNative reports whether the fee is declared in the native asset.
func (t *Transaction) FeeIsNative() bool {
	return t.FeeAsset.IsZero()
}

// BodyBytes returns the deterministic byte serialization the id and
// signature cover. Variable-length fields carry a length prefix and lists a
// count prefix, so no two distinct payloads share body bytes.
func (t *Transaction) BodyBytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(t.Kind))
	buf.Write(t.SenderPK.Bytes())
	writeInt64(&buf, t.Fee)
	buf.Write(t.FeeAsset.Bytes())
	writeInt64(&buf, t.Timestamp)

	switch t.Kind {
	case KindTransfer:
		if t.Transfer == nil {
			return nil, ErrNoPayload
		}
		buf.Write(t.Transfer.Recipient.Bytes())
		buf.Write(t.Transfer.Asset.Bytes())
		writeInt64(&buf, t.Transfer.Amount)
		writeBytes(&buf, t.Transfer.Attachment)

	case KindInvoke:
		if t.Invoke == nil {
			return nil, ErrNoPayload
		}
		buf.Write(t.Invoke.DApp.Bytes())
		writeString(&buf, t.Invoke.Function)
		writeUint32(&buf, uint32(len(t.Invoke.Args)))
		for _, arg := range t.Invoke.Args {
			writeBytes(&buf, ride.EncodeValue(arg))
		}
		writeUint32(&buf, uint32(len(t.Invoke.Payments)))
		for _, p := range t.Invoke.Payments {
			buf.Write(p.Asset.Bytes())
			writeInt64(&buf, p.Amount)
		}

	case KindExchange:
		if t.Exchange == nil {
			return nil, ErrNoPayload
		}
		buf.Write(t.Exchange.BuyOrder.BodyBytes())
		buf.Write(t.Exchange.SellOrder.BodyBytes())
		writeInt64(&buf, t.Exchange.Price)
		writeInt64(&buf, t.Exchange.Amount)
		writeInt64(&buf, t.Exchange.BuyMatcherFee)
		writeInt64(&buf, t.Exchange.SellMatcherFee)

	case KindDataWrite:
		if t.Data == nil {
			return nil, ErrNoPayload
		}
		writeUint32(&buf, uint32(len(t.Data.Entries)))
		for _, e := range t.Data.Entries {
			writeString(&buf, e.Key)
			buf.WriteByte(byte(e.Type))
			switch e.Type {
			case types.DataInteger:
				writeInt64(&buf, e.Int)
			case types.DataBoolean:
				if e.Bool {
					buf.WriteByte(1)
				} else {
					buf.WriteByte(0)
				}
			case types.DataBinary:
				writeBytes(&buf, e.Bin)
			case types.DataString:
				writeString(&buf, e.Str)
			}
		}

	case KindIssue:
		if t.Issue == nil {
			return nil, ErrNoPayload
		}
		writeString(&buf, t.Issue.Name)
		writeString(&buf, t.Issue.Description)
		writeInt64(&buf, t.Issue.Quantity)
		buf.WriteByte(t.Issue.Decimals)
		if t.Issue.Reissuable {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		writeScript(&buf, t.Issue.Script)

	case KindReissue:
		if t.Reissue == nil {
			return nil, ErrNoPayload
		}
		buf.Write(t.Reissue.Asset.Bytes())
		writeInt64(&buf, t.Reissue.Quantity)
		if t.Reissue.Reissuable {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

	case KindBurn:
		if t.Burn == nil {
			return nil, ErrNoPayload
		}
		buf.Write(t.Burn.Asset.Bytes())
		writeInt64(&buf, t.Burn.Quantity)

	case KindSetScript:
		if t.SetScript == nil {
			return nil, ErrNoPayload
		}
		writeScript(&buf, t.SetScript.Script)

	case KindSetAssetScript:
		if t.SetAssetScript == nil {
			return nil, ErrNoPayload
		}
		buf.Write(t.SetAssetScript.Asset.Bytes())
		writeScript(&buf, t.SetAssetScript.Script)

	case KindSponsorFee:
		if t.SponsorFee == nil {
			return nil, ErrNoPayload
		}
		buf.Write(t.SponsorFee.Asset.Bytes())
		writeInt64(&buf, t.SponsorFee.MinFee)

	default:
		return nil, ErrNoPayload
	}
	return buf.Bytes(), nil
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	buf.Write(tmp[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

// writeScript encodes an optional script as a presence byte plus the
// length-prefixed script bytes.
func writeScript(buf *bytes.Buffer, s *ride.Script) {
	if s == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeBytes(buf, ride.EncodeScript(s))
}
