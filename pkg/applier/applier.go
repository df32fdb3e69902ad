// Package applier classifies candidate transactions against a state snapshot.
//
// Every transaction resolves to exactly one of three outcomes. Applied means
// the full effect diff, fee included, is handed to the assembler. Failed means
// the sender authorized the transaction and can pay, but its effects were
// rejected; only the fee is charged and the failure is recorded. Invalid means
// the transaction never makes it into a block and touches no state at all.
//
// The boundary between Failed and Invalid is authorization plus fee. Anything
// that breaks before the sender is authenticated and the fee is resolved
// (bad signature, verifier denial, unsponsored fee asset, unpayable fee,
// malformed payload) is Invalid. Anything that breaks after that point
// (contract error, asset script denial, insufficient balance for an action,
// complexity exhaustion inside the body) is Failed, because a sender who
// authorized an execution attempt pays for it either way.
package applier

import (
	"errors"
	"fmt"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/fee"
	"github.com/G1zm0nl/Waves/pkg/ride"
	"github.com/G1zm0nl/Waves/pkg/state"
	"github.com/G1zm0nl/Waves/pkg/tx"
)

// Payload size and shape limits.
const (
	maxDataKeyLen    = 100
	maxDataValueLen  = 32 * 1024
	maxDataEntries   = 100
	minAssetNameLen  = 4
	maxAssetNameLen  = 16
	maxAssetDescLen  = 1000
	maxAssetDecimals = 8
	maxActions       = 100
)

// Config parameterizes an Applier.
type Config struct {
	// Scheme is the chain id byte mixed into derived addresses.
	Scheme byte

	// ComplexityLimit caps cumulative script complexity per transaction.
	ComplexityLimit uint64
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		Scheme:          'W',
		ComplexityLimit: ride.DefaultComplexityLimit,
	}
}

// Applier classifies transactions. It is stateless and safe for concurrent
// use; all mutable state lives in the snapshot passed per call.
type Applier struct {
	cfg Config
}

// New creates an Applier.
func New(cfg Config) *Applier {
	if cfg.ComplexityLimit == 0 {
		cfg.ComplexityLimit = ride.DefaultComplexityLimit
	}
	return &Applier{cfg: cfg}
}

// bodyResult is the verdict of one payload application attempt.
// At most one of failed and invalid is set; effects is non-nil only when
// both are nil. feeExtra carries charges that settle even on a Failed
// outcome, such as the matcher fees of a failed exchange.
type bodyResult struct {
	effects  *state.Diff
	failed   error
	invalid  error
	feeExtra *state.Diff
}

// Classify runs one transaction through the full validation pipeline against
// a snapshot. The returned error is reserved for infrastructure faults
// (storage failures); every protocol-level rejection is expressed through the
// Outcome instead.
func (a *Applier) Classify(t *tx.Transaction, snap state.Snapshot) (Outcome, error) {
	if err := validatePayload(t); err != nil {
		return invalid(err), nil
	}

	res, err := fee.Resolve(t, snap)
	if err != nil {
		if isFeeRejection(err) {
			return invalid(err), nil
		}
		return Outcome{}, err
	}

	have, err := balanceOf(snap, t.Sender, t.FeeAsset)
	if err != nil {
		return Outcome{}, err
	}
	if have < res.FeeAssetAmount {
		return invalid(fmt.Errorf("holds %d, fee is %d: %w", have, res.FeeAssetAmount, ErrCannotPayFee)), nil
	}

	// One meter spans the account verifier, the body and every asset
	// verifier the body triggers.
	meter := ride.NewMeter(a.cfg.ComplexityLimit)
	height := snap.Height() + 1

	if reason := a.verifySender(t, snap, meter, height); reason != nil {
		return invalid(reason), nil
	}

	feeDiff := buildFeeDiff(t, res)

	// The body validates against the post-fee view, so an action spending
	// the sender's last native units fails when the fee already took them.
	run := state.NewOverlay(snap)
	if err := run.ApplyDiff(feeDiff); err != nil {
		return Outcome{}, err
	}

	br, err := a.applyBody(t, run, meter, height, res.NativeFee)
	if err != nil {
		return Outcome{}, err
	}
	if br.invalid != nil {
		return invalid(br.invalid), nil
	}
	if br.failed != nil {
		if br.feeExtra != nil {
			feeDiff.Merge(br.feeExtra)
		}
		return failed(feeDiff, br.failed), nil
	}

	full := feeDiff
	full.Merge(br.effects)
	return applied(full), nil
}

// verifySender authenticates the transaction sender: through the account
// verifier when one is installed, through the envelope signature otherwise.
// A non-nil return is the Invalid reason.
func (a *Applier) verifySender(t *tx.Transaction, snap state.Snapshot, meter *ride.Meter, height uint64) error {
	script, err := snap.AccountScript(t.Sender)
	if err != nil {
		return fmt.Errorf("account script read: %w", ErrAuthorizationFailed)
	}
	if script == nil {
		if !t.VerifySignature() {
			return fmt.Errorf("bad envelope signature: %w", ErrAuthorizationFailed)
		}
		return nil
	}
	ctx := &ride.Context{
		State:     snap,
		TxID:      t.ID,
		Sender:    t.Sender,
		Caller:    t.Sender,
		This:      t.Sender,
		Fee:       t.Fee,
		FeeAsset:  t.FeeAsset,
		Height:    height,
		Timestamp: t.Timestamp,
	}
	ok, err := ride.EvaluateVerifier(script, ctx, meter)
	if err != nil {
		return fmt.Errorf("account verifier: %v: %w", err, ErrAuthorizationFailed)
	}
	if !ok {
		return fmt.Errorf("account verifier denied: %w", ErrAuthorizationFailed)
	}
	return nil
}

// applyBody dispatches on the transaction kind. The overlay already carries
// the fee debit.
func (a *Applier) applyBody(t *tx.Transaction, run *state.Overlay, meter *ride.Meter, height uint64, nativeFee int64) (bodyResult, error) {
	switch t.Kind {
	case tx.KindTransfer:
		return a.applyTransfer(t, run, meter, height)
	case tx.KindInvoke:
		return a.applyInvoke(t, run, meter, height, nativeFee)
	case tx.KindExchange:
		return a.applyExchange(t, run, meter, height)
	case tx.KindDataWrite:
		return applyDataWrite(t), nil
	case tx.KindIssue:
		return applyIssue(t), nil
	case tx.KindReissue:
		return a.applyReissue(t, run, meter, height)
	case tx.KindBurn:
		return a.applyBurn(t, run, meter, height)
	case tx.KindSetScript:
		return applySetScript(t), nil
	case tx.KindSetAssetScript:
		return a.applySetAssetScript(t, run, meter, height)
	case tx.KindSponsorFee:
		return a.applySponsorFee(t, run)
	}
	return bodyResult{invalid: fmt.Errorf("kind %d: %w", t.Kind, ErrMalformedPayload)}, nil
}

func (a *Applier) applyTransfer(t *tx.Transaction, run *state.Overlay, meter *ride.Meter, height uint64) (bodyResult, error) {
	p := t.Transfer

	if !p.Asset.IsZero() {
		asset, err := run.Asset(p.Asset)
		if errors.Is(err, state.ErrAssetNotFound) {
			return bodyResult{failed: fmt.Errorf("%s: %w", p.Asset.String(), state.ErrAssetNotFound)}, nil
		}
		if err != nil {
			return bodyResult{}, err
		}
		if reason := a.evalAssetScript(asset, t, run, meter, height); reason != nil {
			return bodyResult{failed: reason}, nil
		}
	}

	have, err := balanceOf(run, t.Sender, p.Asset)
	if err != nil {
		return bodyResult{}, err
	}
	if have < p.Amount {
		return bodyResult{failed: fmt.Errorf("holds %d, moving %d: %w", have, p.Amount, ErrInsufficientFunds)}, nil
	}

	d := state.NewDiff(t.ID)
	d.AddBalance(t.Sender, p.Asset, -p.Amount)
	d.AddBalance(p.Recipient, p.Asset, p.Amount)
	return bodyResult{effects: d}, nil
}

func (a *Applier) applyInvoke(t *tx.Transaction, run *state.Overlay, meter *ride.Meter, height uint64, nativeFee int64) (bodyResult, error) {
	p := t.Invoke

	script, err := run.AccountScript(p.DApp)
	if err != nil {
		return bodyResult{}, err
	}
	if script == nil || script.Kind != ride.KindDApp {
		return bodyResult{failed: fmt.Errorf("%s: %w", p.DApp.String(), ErrNoSuchContract)}, nil
	}

	// Payments move before the callable runs, so the contract observes them
	// in its own balance.
	payments := state.NewDiff(t.ID)
	for _, pay := range p.Payments {
		if !pay.Asset.IsZero() {
			asset, err := run.Asset(pay.Asset)
			if errors.Is(err, state.ErrAssetNotFound) {
				return bodyResult{failed: fmt.Errorf("payment %s: %w", pay.Asset.String(), state.ErrAssetNotFound)}, nil
			}
			if err != nil {
				return bodyResult{}, err
			}
			if reason := a.evalAssetScript(asset, t, run, meter, height); reason != nil {
				return bodyResult{failed: reason}, nil
			}
		}
		have, err := balanceOf(run, t.Sender, pay.Asset)
		if err != nil {
			return bodyResult{}, err
		}
		if have < pay.Amount {
			return bodyResult{failed: fmt.Errorf("payment of %d, holds %d: %w", pay.Amount, have, ErrInsufficientFunds)}, nil
		}
		payments.AddBalance(t.Sender, pay.Asset, -pay.Amount)
		payments.AddBalance(p.DApp, pay.Asset, pay.Amount)
	}
	if err := run.ApplyDiff(payments); err != nil {
		return bodyResult{}, err
	}

	ctx := &ride.Context{
		State:     run,
		TxID:      t.ID,
		Sender:    t.Sender,
		Caller:    t.Sender,
		This:      p.DApp,
		Fee:       t.Fee,
		FeeAsset:  t.FeeAsset,
		Height:    height,
		Timestamp: t.Timestamp,
		Args:      p.Args,
		Payments:  p.Payments,
	}
	actions, err := ride.EvaluateCallable(script, p.Function, ctx, meter)
	if err != nil {
		if errors.Is(err, ride.ErrComplexityExceeded) {
			return bodyResult{failed: err}, nil
		}
		return bodyResult{failed: fmt.Errorf("%v: %w", err, ErrScriptError)}, nil
	}

	actionDiff, reason, err := a.runActions(t, p.DApp, actions, run, meter, height, nativeFee)
	if err != nil {
		return bodyResult{}, err
	}
	if reason != nil {
		return bodyResult{failed: reason}, nil
	}

	payments.Merge(actionDiff)
	return bodyResult{effects: payments}, nil
}

func applyDataWrite(t *tx.Transaction) bodyResult {
	d := state.NewDiff(t.ID)
	for _, e := range t.Data.Entries {
		if e.Type == 0 {
			d.AddDelete(t.Sender, e.Key)
			continue
		}
		d.AddData(t.Sender, e)
	}
	return bodyResult{effects: d}
}

func applyIssue(t *tx.Transaction) bodyResult {
	p := t.Issue
	d := state.NewDiff(t.ID)
	d.Issues = append(d.Issues, &state.Asset{
		ID:          t.ID,
		Issuer:      t.Sender,
		Name:        p.Name,
		Description: p.Description,
		Quantity:    p.Quantity,
		Decimals:    p.Decimals,
		Reissuable:  p.Reissuable,
		Script:      p.Script,
	})
	d.AddBalance(t.Sender, t.ID, p.Quantity)
	return bodyResult{effects: d}
}

func (a *Applier) applyReissue(t *tx.Transaction, run *state.Overlay, meter *ride.Meter, height uint64) (bodyResult, error) {
	p := t.Reissue

	asset, err := run.Asset(p.Asset)
	if errors.Is(err, state.ErrAssetNotFound) {
		return bodyResult{failed: fmt.Errorf("%s: %w", p.Asset.String(), state.ErrAssetNotFound)}, nil
	}
	if err != nil {
		return bodyResult{}, err
	}
	if asset.Issuer != t.Sender {
		return bodyResult{failed: fmt.Errorf("%s: %w", p.Asset.String(), ErrNotIssuer)}, nil
	}
	if !asset.Reissuable {
		return bodyResult{failed: fmt.Errorf("%s: %w", p.Asset.String(), state.ErrNotReissuable)}, nil
	}
	if reason := a.evalAssetScript(asset, t, run, meter, height); reason != nil {
		return bodyResult{failed: reason}, nil
	}

	d := state.NewDiff(t.ID)
	d.Supply = append(d.Supply, state.SupplyChange{
		Asset:          p.Asset,
		Delta:          p.Quantity,
		DisableReissue: !p.Reissuable,
	})
	d.AddBalance(t.Sender, p.Asset, p.Quantity)
	return bodyResult{effects: d}, nil
}

func (a *Applier) applyBurn(t *tx.Transaction, run *state.Overlay, meter *ride.Meter, height uint64) (bodyResult, error) {
	p := t.Burn

	asset, err := run.Asset(p.Asset)
	if errors.Is(err, state.ErrAssetNotFound) {
		return bodyResult{failed: fmt.Errorf("%s: %w", p.Asset.String(), state.ErrAssetNotFound)}, nil
	}
	if err != nil {
		return bodyResult{}, err
	}
	if reason := a.evalAssetScript(asset, t, run, meter, height); reason != nil {
		return bodyResult{failed: reason}, nil
	}

	have, err := run.AssetBalance(t.Sender, p.Asset)
	if err != nil {
		return bodyResult{}, err
	}
	if have < p.Quantity {
		return bodyResult{failed: fmt.Errorf("holds %d, burning %d: %w", have, p.Quantity, ErrInsufficientFunds)}, nil
	}

	d := state.NewDiff(t.ID)
	d.AddBalance(t.Sender, p.Asset, -p.Quantity)
	d.Supply = append(d.Supply, state.SupplyChange{Asset: p.Asset, Delta: -p.Quantity})
	return bodyResult{effects: d}, nil
}

func applySetScript(t *tx.Transaction) bodyResult {
	d := state.NewDiff(t.ID)
	d.AccountScripts = append(d.AccountScripts, state.AccountScriptChange{
		Addr:   t.Sender,
		Script: t.SetScript.Script,
	})
	return bodyResult{effects: d}
}

func (a *Applier) applySetAssetScript(t *tx.Transaction, run *state.Overlay, meter *ride.Meter, height uint64) (bodyResult, error) {
	p := t.SetAssetScript

	asset, err := run.Asset(p.Asset)
	if errors.Is(err, state.ErrAssetNotFound) {
		return bodyResult{failed: fmt.Errorf("%s: %w", p.Asset.String(), state.ErrAssetNotFound)}, nil
	}
	if err != nil {
		return bodyResult{}, err
	}
	if asset.Issuer != t.Sender {
		return bodyResult{failed: fmt.Errorf("%s: %w", p.Asset.String(), ErrNotIssuer)}, nil
	}
	// A script can only replace a script; an asset issued plain stays plain.
	if asset.Script == nil {
		return bodyResult{failed: fmt.Errorf("%s: %w", p.Asset.String(), ErrAssetNotScripted)}, nil
	}
	// The outgoing script gets the final word on its own replacement.
	if reason := a.evalAssetScript(asset, t, run, meter, height); reason != nil {
		return bodyResult{failed: reason}, nil
	}

	d := state.NewDiff(t.ID)
	d.AssetScripts = append(d.AssetScripts, state.AssetScriptChange{Asset: p.Asset, Script: p.Script})
	return bodyResult{effects: d}, nil
}

func (a *Applier) applySponsorFee(t *tx.Transaction, run *state.Overlay) (bodyResult, error) {
	p := t.SponsorFee

	asset, err := run.Asset(p.Asset)
	if errors.Is(err, state.ErrAssetNotFound) {
		return bodyResult{failed: fmt.Errorf("%s: %w", p.Asset.String(), state.ErrAssetNotFound)}, nil
	}
	if err != nil {
		return bodyResult{}, err
	}
	if asset.Issuer != t.Sender {
		return bodyResult{failed: fmt.Errorf("%s: %w", p.Asset.String(), ErrNotIssuer)}, nil
	}

	d := state.NewDiff(t.ID)
	d.Sponsorships = append(d.Sponsorships, state.SponsorshipChange{Asset: p.Asset, MinFee: p.MinFee})
	return bodyResult{effects: d}, nil
}

// evalAssetScript runs an asset's governing script. Nil means allowed; a
// non-nil return is the Failed reason (denial, script error or complexity
// exhaustion alike).
func (a *Applier) evalAssetScript(asset *state.Asset, t *tx.Transaction, view ride.StateReader, meter *ride.Meter, height uint64) error {
	if asset == nil || asset.Script == nil {
		return nil
	}
	ctx := &ride.Context{
		State:     view,
		TxID:      t.ID,
		Sender:    t.Sender,
		Caller:    t.Sender,
		This:      asset.Issuer,
		Fee:       t.Fee,
		FeeAsset:  t.FeeAsset,
		Height:    height,
		Timestamp: t.Timestamp,
	}
	ok, err := ride.EvaluateVerifier(asset.Script, ctx, meter)
	if err != nil {
		return fmt.Errorf("asset %s script: %w", asset.ID.String(), err)
	}
	if !ok {
		return denied(asset.ID)
	}
	return nil
}

// buildFeeDiff produces the diff charging the resolved fee. For a sponsored
// fee the sender pays in the fee asset, the sponsor absorbs it and funds the
// native amount out of its own balance.
func buildFeeDiff(t *tx.Transaction, res fee.Resolution) *state.Diff {
	d := state.NewDiff(t.ID)
	if res.Sponsored {
		d.AddBalance(t.Sender, t.FeeAsset, -res.FeeAssetAmount)
		d.AddBalance(res.Sponsor, t.FeeAsset, res.FeeAssetAmount)
		d.AddBalance(res.Sponsor, types.AssetID{}, -res.NativeFee)
	} else {
		d.AddBalance(t.Sender, types.AssetID{}, -res.NativeFee)
	}
	d.Fee = res.NativeFee
	return d
}

// balanceOf reads an address's balance in an asset, native when the id is zero.
func balanceOf(view ride.StateReader, addr types.Address, asset types.AssetID) (int64, error) {
	if asset.IsZero() {
		return view.NativeBalance(addr)
	}
	return view.AssetBalance(addr, asset)
}

// isFeeRejection reports whether a fee resolution error is a protocol-level
// rejection rather than an infrastructure fault.
func isFeeRejection(err error) bool {
	return errors.Is(err, fee.ErrInsufficientFee) ||
		errors.Is(err, fee.ErrAssetNotSponsored) ||
		errors.Is(err, fee.ErrSponsorInsufficientBalance) ||
		errors.Is(err, fee.ErrUnknownKind)
}

// validatePayload checks payload structure before any state is consulted.
// A non-nil return is the Invalid reason.
func validatePayload(t *tx.Transaction) error {
	if _, err := t.BodyBytes(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrMalformedPayload)
	}
	if t.Fee <= 0 {
		return fmt.Errorf("non-positive fee: %w", ErrMalformedPayload)
	}

	switch t.Kind {
	case tx.KindTransfer:
		p := t.Transfer
		if p.Amount <= 0 {
			return fmt.Errorf("non-positive amount: %w", ErrMalformedPayload)
		}
		if !p.Recipient.Valid() {
			return fmt.Errorf("bad recipient address: %w", ErrMalformedPayload)
		}

	case tx.KindInvoke:
		p := t.Invoke
		if p.Function == "" {
			return fmt.Errorf("empty function name: %w", ErrMalformedPayload)
		}
		for _, pay := range p.Payments {
			if pay.Amount <= 0 {
				return fmt.Errorf("non-positive payment: %w", ErrMalformedPayload)
			}
		}

	case tx.KindExchange:
		return validateExchange(t.Exchange)

	case tx.KindDataWrite:
		p := t.Data
		if len(p.Entries) > maxDataEntries {
			return fmt.Errorf("%d entries: %w", len(p.Entries), ErrMalformedPayload)
		}
		for _, e := range p.Entries {
			if e.Key == "" || len(e.Key) > maxDataKeyLen {
				return fmt.Errorf("bad entry key: %w", ErrMalformedPayload)
			}
			if len(e.Bin) > maxDataValueLen || len(e.Str) > maxDataValueLen {
				return fmt.Errorf("entry %q too large: %w", e.Key, ErrMalformedPayload)
			}
		}

	case tx.KindIssue:
		p := t.Issue
		if p.Quantity <= 0 {
			return fmt.Errorf("non-positive quantity: %w", ErrMalformedPayload)
		}
		if p.Decimals > maxAssetDecimals {
			return fmt.Errorf("%d decimals: %w", p.Decimals, ErrMalformedPayload)
		}
		if len(p.Name) < minAssetNameLen || len(p.Name) > maxAssetNameLen {
			return fmt.Errorf("asset name length %d: %w", len(p.Name), ErrMalformedPayload)
		}
		if len(p.Description) > maxAssetDescLen {
			return fmt.Errorf("asset description too long: %w", ErrMalformedPayload)
		}

	case tx.KindReissue:
		if t.Reissue.Quantity <= 0 {
			return fmt.Errorf("non-positive quantity: %w", ErrMalformedPayload)
		}

	case tx.KindBurn:
		if t.Burn.Quantity <= 0 {
			return fmt.Errorf("non-positive quantity: %w", ErrMalformedPayload)
		}

	case tx.KindSetAssetScript:
		if t.SetAssetScript.Script == nil {
			return fmt.Errorf("nil asset script: %w", ErrMalformedPayload)
		}

	case tx.KindSponsorFee:
		if t.SponsorFee.MinFee < 0 {
			return fmt.Errorf("negative sponsorship rate: %w", ErrMalformedPayload)
		}
	}
	return nil
}
