package applier

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/fee"
	"github.com/G1zm0nl/Waves/pkg/ride"
	"github.com/G1zm0nl/Waves/pkg/state"
	"github.com/G1zm0nl/Waves/pkg/tx"
)

// runActions interprets the ordered action list a callable produced, acting
// as the contract address. Actions validate and apply one at a time against
// the overlay, so each action observes the effects of its predecessors.
// The whole list is all or nothing: the first rejected action discards every
// accumulated effect and the returned reason fails the transaction.
//
// The first return is the accumulated effect diff, the second the Failed
// reason, the third an infrastructure fault.
func (a *Applier) runActions(t *tx.Transaction, contract types.Address, actions []ride.Action, run *state.Overlay, meter *ride.Meter, height uint64, nativeFee int64) (*state.Diff, error, error) {
	if len(actions) > maxActions {
		return nil, fmt.Errorf("%d actions: %w", len(actions), ErrTooManyActions), nil
	}

	out := state.NewDiff(t.ID)
	issued := 0

	for _, act := range actions {
		step := state.NewDiff(t.ID)

		switch ac := act.(type) {
		case ride.TransferAction:
			if ac.Amount <= 0 {
				return nil, fmt.Errorf("transfer of %d: %w", ac.Amount, ErrScriptError), nil
			}
			if !ac.Recipient.Valid() {
				return nil, fmt.Errorf("transfer to invalid address: %w", ErrScriptError), nil
			}
			if !ac.Asset.IsZero() {
				asset, err := run.Asset(ac.Asset)
				if errors.Is(err, state.ErrAssetNotFound) {
					return nil, fmt.Errorf("%s: %w", ac.Asset.String(), state.ErrAssetNotFound), nil
				}
				if err != nil {
					return nil, nil, err
				}
				if reason := a.evalAssetScript(asset, t, run, meter, height); reason != nil {
					return nil, reason, nil
				}
			}
			have, err := balanceOf(run, contract, ac.Asset)
			if err != nil {
				return nil, nil, err
			}
			if have < ac.Amount {
				return nil, fmt.Errorf("contract holds %d, moving %d: %w", have, ac.Amount, ErrInsufficientFunds), nil
			}
			step.AddBalance(contract, ac.Asset, -ac.Amount)
			step.AddBalance(ac.Recipient, ac.Asset, ac.Amount)

		case ride.DataAction:
			e := ac.Entry
			if e.Key == "" || len(e.Key) > maxDataKeyLen {
				return nil, fmt.Errorf("bad entry key %q: %w", e.Key, ErrScriptError), nil
			}
			step.AddData(contract, e)

		case ride.DeleteAction:
			if ac.Key == "" {
				return nil, fmt.Errorf("empty delete key: %w", ErrScriptError), nil
			}
			step.AddDelete(contract, ac.Key)

		case ride.IssueAction:
			if ac.Quantity <= 0 || ac.Decimals > maxAssetDecimals {
				return nil, fmt.Errorf("issue of %d with %d decimals: %w", ac.Quantity, ac.Decimals, ErrScriptError), nil
			}
			id := issuedAssetID(t.ID, issued)
			issued++
			step.Issues = append(step.Issues, &state.Asset{
				ID:          id,
				Issuer:      contract,
				Name:        ac.Name,
				Description: ac.Description,
				Quantity:    ac.Quantity,
				Decimals:    ac.Decimals,
				Reissuable:  ac.Reissuable,
			})
			step.AddBalance(contract, id, ac.Quantity)

		case ride.ReissueAction:
			if ac.Quantity <= 0 {
				return nil, fmt.Errorf("reissue of %d: %w", ac.Quantity, ErrScriptError), nil
			}
			asset, err := run.Asset(ac.Asset)
			if errors.Is(err, state.ErrAssetNotFound) {
				return nil, fmt.Errorf("%s: %w", ac.Asset.String(), state.ErrAssetNotFound), nil
			}
			if err != nil {
				return nil, nil, err
			}
			if asset.Issuer != contract {
				return nil, fmt.Errorf("%s: %w", ac.Asset.String(), ErrNotIssuer), nil
			}
			if !asset.Reissuable {
				return nil, fmt.Errorf("%s: %w", ac.Asset.String(), state.ErrNotReissuable), nil
			}
			step.Supply = append(step.Supply, state.SupplyChange{
				Asset:          ac.Asset,
				Delta:          ac.Quantity,
				DisableReissue: !ac.Reissuable,
			})
			step.AddBalance(contract, ac.Asset, ac.Quantity)

		case ride.BurnAction:
			if ac.Quantity <= 0 {
				return nil, fmt.Errorf("burn of %d: %w", ac.Quantity, ErrScriptError), nil
			}
			asset, err := run.Asset(ac.Asset)
			if errors.Is(err, state.ErrAssetNotFound) {
				return nil, fmt.Errorf("%s: %w", ac.Asset.String(), state.ErrAssetNotFound), nil
			}
			if err != nil {
				return nil, nil, err
			}
			if reason := a.evalAssetScript(asset, t, run, meter, height); reason != nil {
				return nil, reason, nil
			}
			have, err := run.AssetBalance(contract, ac.Asset)
			if err != nil {
				return nil, nil, err
			}
			if have < ac.Quantity {
				return nil, fmt.Errorf("contract holds %d, burning %d: %w", have, ac.Quantity, ErrInsufficientFunds), nil
			}
			step.AddBalance(contract, ac.Asset, -ac.Quantity)
			step.Supply = append(step.Supply, state.SupplyChange{Asset: ac.Asset, Delta: -ac.Quantity})

		case ride.SponsorFeeAction:
			if ac.MinFee < 0 {
				return nil, fmt.Errorf("negative sponsorship rate: %w", ErrScriptError), nil
			}
			asset, err := run.Asset(ac.Asset)
			if errors.Is(err, state.ErrAssetNotFound) {
				return nil, fmt.Errorf("%s: %w", ac.Asset.String(), state.ErrAssetNotFound), nil
			}
			if err != nil {
				return nil, nil, err
			}
			if asset.Issuer != contract {
				return nil, fmt.Errorf("%s: %w", ac.Asset.String(), ErrNotIssuer), nil
			}
			step.Sponsorships = append(step.Sponsorships, state.SponsorshipChange{Asset: ac.Asset, MinFee: ac.MinFee})

		default:
			return nil, fmt.Errorf("unknown action %T: %w", act, ErrScriptError), nil
		}

		if err := run.ApplyDiff(step); err != nil {
			return nil, nil, err
		}
		out.Merge(step)
	}

	// Issuing an asset from a contract costs the same as an issue
	// transaction. The fee was resolved before the script ran, so a
	// shortfall discovered here fails the transaction instead of
	// invalidating it.
	if issued > 0 {
		required := fee.MinFeeInvoke + int64(issued)*fee.MinFeeIssue
		if nativeFee < required {
			return nil, fmt.Errorf("issued %d assets, fee %d of %d: %w",
				issued, nativeFee, required, fee.ErrInsufficientFee), nil
		}
	}

	return out, nil, nil
}

// issuedAssetID derives the id of the n-th asset a transaction issues through
// contract actions. The id depends only on the transaction id and the issue
// position, so replaying the transaction yields identical ids.
func issuedAssetID(txID types.Digest, n int) types.AssetID {
	buf := make([]byte, 0, types.DigestSize+binary.MaxVarintLen64)
	buf = append(buf, txID.Bytes()...)
	buf = binary.AppendUvarint(buf, uint64(n))
	return types.Blake2b(buf)
}
