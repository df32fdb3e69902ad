// Package fee computes the ledger-native fee owed by a transaction,
// including conversion from sponsored assets.
package fee

import (
	"errors"
	"fmt"
	"math"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/state"
	"github.com/G1zm0nl/Waves/pkg/tx"
)

// FeeUnit is the native amount one sponsorship unit converts to:
// a sponsored fee of exactly the asset's SponsorMinFee buys one FeeUnit.
const FeeUnit = int64(100_000)

// ScriptSurcharge is added to the minimum fee for every script guarding the
// transaction (the sender's account script and each scripted asset the
// payload touches directly).
const ScriptSurcharge = int64(400_000)

// Minimum native fees by transaction kind.
const (
	MinFeeTransfer       = int64(100_000)
	MinFeeInvoke         = int64(500_000)
	MinFeeExchange       = int64(300_000)
	MinFeeDataWrite      = int64(100_000)
	MinFeeIssue          = int64(100_000_000)
	MinFeeReissue        = int64(100_000)
	MinFeeBurn           = int64(100_000)
	MinFeeSetScript      = int64(1_000_000)
	MinFeeSetAssetScript = int64(100_000_000)
	MinFeeSponsorFee     = int64(100_000)
)

var (
	// ErrInsufficientFee is returned when the declared fee is below the
	// transaction-type minimum.
	ErrInsufficientFee = errors.New("insufficient fee")

	// ErrAssetNotSponsored is returned when the declared fee asset has no
	// active sponsorship record.
	ErrAssetNotSponsored = errors.New("fee asset is not sponsored")

	// ErrSponsorInsufficientBalance is returned when the sponsor's native
	// balance cannot cover the converted fee.
	ErrSponsorInsufficientBalance = errors.New("sponsor has insufficient native balance")

	// ErrUnknownKind is returned for a transaction kind without a fee rule.
	ErrUnknownKind = errors.New("unknown transaction kind")
)

// Resolution is the resolved fee of one transaction.
type Resolution struct {
	// NativeFee is the fee in native units that flows to the fee pool.
	NativeFee int64

	// FeeAssetAmount is the amount debited from the sender in the declared
	// fee asset. Equals NativeFee for native-fee transactions.
	FeeAssetAmount int64

	// Sponsored reports a sponsored-asset fee; Sponsor is the asset issuer
	// whose native balance funds the conversion.
	Sponsored bool
	Sponsor   types.Address
}

// Resolve computes the native fee owed by a transaction against a snapshot.
//
// For a native fee the declared amount is taken verbatim and checked against
// the kind minimum plus script surcharges. For a sponsored-asset fee the
// declared amount converts at nativeFee = amount * FeeUnit / SponsorMinFee,
// truncating; the sponsor must be able to cover the converted amount before
// any script runs.
func Resolve(t *tx.Transaction, snap state.Snapshot) (Resolution, error) {
	min, err := minimumFee(t, snap)
	if err != nil {
		return Resolution{}, err
	}

	if t.FeeIsNative() {
		if t.Fee < min {
			return Resolution{}, fmt.Errorf("declared %d, minimum %d: %w", t.Fee, min, ErrInsufficientFee)
		}
		return Resolution{NativeFee: t.Fee, FeeAssetAmount: t.Fee}, nil
	}

	asset, err := snap.Asset(t.FeeAsset)
	if errors.Is(err, state.ErrAssetNotFound) {
		return Resolution{}, fmt.Errorf("%s: %w", t.FeeAsset.String(), ErrAssetNotSponsored)
	}
	if err != nil {
		return Resolution{}, err
	}
	if !asset.Sponsored() {
		return Resolution{}, fmt.Errorf("%s: %w", t.FeeAsset.String(), ErrAssetNotSponsored)
	}

	// A declared amount whose conversion overflows int64 exceeds any
	// possible sponsor balance; reject it before the multiplication wraps.
	if t.Fee > math.MaxInt64/FeeUnit {
		return Resolution{}, fmt.Errorf("declared %d overflows conversion: %w", t.Fee, ErrSponsorInsufficientBalance)
	}
	native := t.Fee * FeeUnit / asset.SponsorMinFee
	if native < min {
		return Resolution{}, fmt.Errorf("converted %d, minimum %d: %w", native, min, ErrInsufficientFee)
	}

	sponsorBalance, err := snap.NativeBalance(asset.Issuer)
	if err != nil {
		return Resolution{}, err
	}
	if sponsorBalance < native {
		return Resolution{}, fmt.Errorf("sponsor %s holds %d, needs %d: %w",
			asset.Issuer.String(), sponsorBalance, native, ErrSponsorInsufficientBalance)
	}

	return Resolution{
		NativeFee:      native,
		FeeAssetAmount: t.Fee,
		Sponsored:      true,
		Sponsor:        asset.Issuer,
	}, nil
}

// minimumFee is the kind minimum plus one surcharge per guarding script.
func minimumFee(t *tx.Transaction, snap state.Snapshot) (int64, error) {
	var base int64
	switch t.Kind {
	case tx.KindTransfer:
		base = MinFeeTransfer
	case tx.KindInvoke:
		base = MinFeeInvoke
	case tx.KindExchange:
		base = MinFeeExchange
	case tx.KindDataWrite:
		base = MinFeeDataWrite
	case tx.KindIssue:
		base = MinFeeIssue
	case tx.KindReissue:
		base = MinFeeReissue
	case tx.KindBurn:
		base = MinFeeBurn
	case tx.KindSetScript:
		base = MinFeeSetScript
	case tx.KindSetAssetScript:
		base = MinFeeSetAssetScript
	case tx.KindSponsorFee:
		base = MinFeeSponsorFee
	default:
		return 0, fmt.Errorf("kind %d: %w", t.Kind, ErrUnknownKind)
	}

	scripts, err := guardingScripts(t, snap)
	if err != nil {
		return 0, err
	}
	return base + int64(scripts)*ScriptSurcharge, nil
}

// guardingScripts counts the scripts that gate this transaction: the
// sender's account script and every scripted asset the payload moves.
func guardingScripts(t *tx.Transaction, snap state.Snapshot) (int, error) {
	count := 0

	senderScript, err := snap.AccountScript(t.Sender)
	if err != nil {
		return 0, err
	}
	if senderScript != nil {
		count++
	}

	assets := make([]types.AssetID, 0, 4)
	switch t.Kind {
	case tx.KindTransfer:
		assets = append(assets, t.Transfer.Asset)
	case tx.KindReissue:
		assets = append(assets, t.Reissue.Asset)
	case tx.KindBurn:
		assets = append(assets, t.Burn.Asset)
	case tx.KindExchange:
		e := t.Exchange
		assets = append(assets,
			e.BuyOrder.AmountAsset, e.BuyOrder.PriceAsset,
			e.BuyOrder.MatcherFeeAsset, e.SellOrder.MatcherFeeAsset)
	}

	seen := make(map[types.AssetID]bool, len(assets))
	for _, id := range assets {
		if id.IsZero() || seen[id] {
			continue
		}
		seen[id] = true
		asset, err := snap.Asset(id)
		if errors.Is(err, state.ErrAssetNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if asset.Script != nil {
			count++
		}
	}
	return count, nil
}
