package applier

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/fee"
	"github.com/G1zm0nl/Waves/pkg/ride"
	"github.com/G1zm0nl/Waves/pkg/state"
	"github.com/G1zm0nl/Waves/pkg/tx"
)

const testScheme = byte('T')

type actor struct {
	pk   types.PublicKey
	priv ed25519.PrivateKey
	addr types.Address
}

func newActor(seed byte) actor {
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	var pk types.PublicKey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return actor{pk: pk, priv: priv, addr: types.AddressFromPublicKey(testScheme, pk)}
}

func testApplier() *Applier {
	cfg := DefaultConfig()
	cfg.Scheme = testScheme
	return New(cfg)
}

func finalize(t *testing.T, a actor, txn *tx.Transaction) *tx.Transaction {
	t.Helper()
	txn.SenderPK = a.pk
	if txn.Timestamp == 0 {
		txn.Timestamp = 1_700_000_000_000
	}
	txn, err := tx.New(testScheme, txn)
	if err != nil {
		t.Fatalf("build tx: %v", err)
	}
	if err := txn.Sign(a.priv); err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return txn
}

func snapshotOf(t *testing.T, l *state.MemoryLedger) state.Snapshot {
	t.Helper()
	snap, err := l.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

func classify(t *testing.T, a *Applier, txn *tx.Transaction, snap state.Snapshot) Outcome {
	t.Helper()
	out, err := a.Classify(txn, snap)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	return out
}

func commit(t *testing.T, l *state.MemoryLedger, snap state.Snapshot, d *state.Diff) {
	t.Helper()
	if _, err := l.CommitDiff(d, snap); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func nativeBalance(t *testing.T, l *state.MemoryLedger, addr types.Address) int64 {
	t.Helper()
	snap := snapshotOf(t, l)
	defer snap.Close()
	bal, err := snap.NativeBalance(addr)
	if err != nil {
		t.Fatalf("native balance: %v", err)
	}
	return bal
}

func assetBalance(t *testing.T, l *state.MemoryLedger, addr types.Address, asset types.AssetID) int64 {
	t.Helper()
	snap := snapshotOf(t, l)
	defer snap.Close()
	bal, err := snap.AssetBalance(addr, asset)
	if err != nil {
		t.Fatalf("asset balance: %v", err)
	}
	return bal
}

// denyAll is a verifier script that always evaluates to false.
func denyAll() *ride.Script {
	return &ride.Script{Kind: ride.KindVerifier, Verifier: ride.Const{V: ride.Boolean(false)}}
}

// allowAll is a verifier script that always evaluates to true.
func allowAll() *ride.Script {
	return &ride.Script{Kind: ride.KindVerifier, Verifier: ride.Const{V: ride.Boolean(true)}}
}

func TestTransferApplied(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 1_000_000_000})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:      fee.MinFeeTransfer,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: 500},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusApplied {
		t.Fatalf("status = %v (%v), want applied", out.Status, out.Reason)
	}
	if out.Diff.Fee != fee.MinFeeTransfer {
		t.Errorf("diff fee = %d, want %d", out.Diff.Fee, fee.MinFeeTransfer)
	}

	commit(t, ledger, snap, out.Diff)
	if got := nativeBalance(t, ledger, sender.addr); got != 1_000_000_000-fee.MinFeeTransfer-500 {
		t.Errorf("sender balance = %d", got)
	}
	if got := nativeBalance(t, ledger, recipient.addr); got != 500 {
		t.Errorf("recipient balance = %d, want 500", got)
	}
}

func TestBadSignatureInvalid(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 1_000_000_000})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:      fee.MinFeeTransfer,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: 500},
	})
	txn.Signature[0] ^= 0xFF

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusInvalid {
		t.Fatalf("status = %v, want invalid", out.Status)
	}
	if out.Diff != nil {
		t.Errorf("invalid outcome carries a diff: %+v", out.Diff)
	}
	if !errors.Is(out.Reason, ErrAuthorizationFailed) {
		t.Errorf("reason = %v, want authorization failure", out.Reason)
	}
}

func TestInsufficientFeeInvalid(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 1_000_000_000})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:      fee.MinFeeTransfer - 1,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: 500},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusInvalid {
		t.Fatalf("status = %v, want invalid", out.Status)
	}
	if !errors.Is(out.Reason, fee.ErrInsufficientFee) {
		t.Errorf("reason = %v, want insufficient fee", out.Reason)
	}
}

func TestCannotPayFeeInvalid(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 10})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:      fee.MinFeeTransfer,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: 1},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusInvalid {
		t.Fatalf("status = %v, want invalid", out.Status)
	}
	if !errors.Is(out.Reason, ErrCannotPayFee) {
		t.Errorf("reason = %v, want cannot pay fee", out.Reason)
	}
}

func TestTransferInsufficientFundsFailsFeeOnly(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: fee.MinFeeTransfer + 100})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:      fee.MinFeeTransfer,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: 1_000_000},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusFailed {
		t.Fatalf("status = %v (%v), want failed", out.Status, out.Reason)
	}
	if !errors.Is(out.Reason, ErrInsufficientFunds) {
		t.Errorf("reason = %v, want insufficient funds", out.Reason)
	}
	if len(out.Diff.Balances) != 1 {
		t.Fatalf("failed diff has %d balance changes, want the fee debit only", len(out.Diff.Balances))
	}

	commit(t, ledger, snap, out.Diff)
	if got := nativeBalance(t, ledger, sender.addr); got != 100 {
		t.Errorf("sender balance = %d, want 100 (fee charged, nothing else)", got)
	}
	if got := nativeBalance(t, ledger, recipient.addr); got != 0 {
		t.Errorf("recipient balance = %d, want 0", got)
	}
}

func TestAssetScriptDenialFails(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	issuer := newActor(3)
	assetID := types.Blake2b([]byte("guarded"))

	ledger := state.NewMemoryLedger()
	ledger.SeedAsset(&state.Asset{
		ID: assetID, Issuer: issuer.addr, Name: "GRD", Quantity: 1_000, Script: denyAll(),
	})
	ledger.SeedAccount(&state.Account{
		Address: sender.addr,
		Balance: 10_000_000,
		Assets:  map[types.AssetID]int64{assetID: 1_000},
	})

	// One scripted asset guards the transfer, so one surcharge applies.
	txn := finalize(t, sender, &tx.Transaction{
		Fee:      fee.MinFeeTransfer + fee.ScriptSurcharge,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Asset: assetID, Amount: 10},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusFailed {
		t.Fatalf("status = %v (%v), want failed", out.Status, out.Reason)
	}
	if !errors.Is(out.Reason, ErrAssetScriptDenied) {
		t.Errorf("reason = %v, want asset script denial", out.Reason)
	}

	commit(t, ledger, snap, out.Diff)
	if got := assetBalance(t, ledger, sender.addr, assetID); got != 1_000 {
		t.Errorf("sender asset balance = %d, want untouched 1000", got)
	}
}

func TestAccountVerifierDenialInvalid(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{
		Address: sender.addr,
		Balance: 10_000_000,
		Script:  denyAll(),
	})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:      fee.MinFeeTransfer + fee.ScriptSurcharge,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: 10},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusInvalid {
		t.Fatalf("status = %v, want invalid", out.Status)
	}
	if !errors.Is(out.Reason, ErrAuthorizationFailed) {
		t.Errorf("reason = %v, want authorization failure", out.Reason)
	}
}

func TestComplexityExceededInVerifierInvalid(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	ledger := state.NewMemoryLedger()
	// A Not over a Const needs two complexity units; the budget grants one.
	ledger.SeedAccount(&state.Account{
		Address: sender.addr,
		Balance: 10_000_000,
		Script: &ride.Script{Kind: ride.KindVerifier, Verifier: ride.Not{
			E: ride.Const{V: ride.Boolean(false)},
		}},
	})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:      fee.MinFeeTransfer + fee.ScriptSurcharge,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: 10},
	})

	ap := New(Config{Scheme: testScheme, ComplexityLimit: 1})
	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, ap, txn, snap)
	if out.Status != StatusInvalid {
		t.Fatalf("status = %v, want invalid", out.Status)
	}
	if !errors.Is(out.Reason, ErrAuthorizationFailed) {
		t.Errorf("reason = %v, want authorization failure", out.Reason)
	}
}

func TestComplexityExceededInBodyFails(t *testing.T) {
	sender := newActor(1)
	contract := newActor(2)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 10_000_000})
	ledger.SeedAccount(&state.Account{
		Address: contract.addr,
		Script: &ride.Script{
			Kind: ride.KindDApp,
			Callables: map[string]*ride.Callable{
				"run": {Name: "run", Body: ride.ActionList{}},
			},
		},
	})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:    fee.MinFeeInvoke,
		Kind:   tx.KindInvoke,
		Invoke: &tx.InvokePayload{DApp: contract.addr, Function: "run"},
	})

	// The callable invocation alone costs more than the whole budget, and
	// the envelope signature path consumes nothing before it.
	ap := New(Config{Scheme: testScheme, ComplexityLimit: ride.CostCall - 1})
	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, ap, txn, snap)
	if out.Status != StatusFailed {
		t.Fatalf("status = %v (%v), want failed", out.Status, out.Reason)
	}
	if !errors.Is(out.Reason, ride.ErrComplexityExceeded) {
		t.Errorf("reason = %v, want complexity exceeded", out.Reason)
	}
}

func TestSponsoredFeeChargedOnFailure(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	sponsor := newActor(3)
	assetID := types.Blake2b([]byte("sponsored"))

	const rate = int64(150_000)
	const declared = int64(305_000)
	// Truncating conversion: 305000 * 100000 / 150000 = 203333.
	const converted = declared * fee.FeeUnit / rate

	ledger := state.NewMemoryLedger()
	ledger.SeedAsset(&state.Asset{
		ID: assetID, Issuer: sponsor.addr, Name: "SPNS", Quantity: 10_000_000, SponsorMinFee: rate,
	})
	ledger.SeedAccount(&state.Account{Address: sponsor.addr, Balance: 1_000_000})
	ledger.SeedAccount(&state.Account{
		Address: sender.addr,
		Assets:  map[types.AssetID]int64{assetID: declared},
	})

	// No native balance at all, so the transfer fails while the sponsored
	// fee is still charged.
	txn := finalize(t, sender, &tx.Transaction{
		Fee:      declared,
		FeeAsset: assetID,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: 500},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusFailed {
		t.Fatalf("status = %v (%v), want failed", out.Status, out.Reason)
	}
	if out.Diff.Fee != converted {
		t.Errorf("diff fee = %d, want truncated %d", out.Diff.Fee, converted)
	}

	commit(t, ledger, snap, out.Diff)
	if got := assetBalance(t, ledger, sender.addr, assetID); got != 0 {
		t.Errorf("sender fee-asset balance = %d, want 0", got)
	}
	if got := assetBalance(t, ledger, sponsor.addr, assetID); got != declared {
		t.Errorf("sponsor fee-asset balance = %d, want %d", got, declared)
	}
	if got := nativeBalance(t, ledger, sponsor.addr); got != 1_000_000-converted {
		t.Errorf("sponsor native balance = %d, want %d", got, 1_000_000-converted)
	}
}

func TestSponsorShortfallInvalid(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	sponsor := newActor(3)
	assetID := types.Blake2b([]byte("broke-sponsor"))

	ledger := state.NewMemoryLedger()
	ledger.SeedAsset(&state.Asset{
		ID: assetID, Issuer: sponsor.addr, Name: "BRKE", Quantity: 10_000_000, SponsorMinFee: 150_000,
	})
	ledger.SeedAccount(&state.Account{Address: sponsor.addr, Balance: 10})
	ledger.SeedAccount(&state.Account{
		Address: sender.addr,
		Balance: 1_000_000,
		Assets:  map[types.AssetID]int64{assetID: 1_000_000},
	})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:      300_000,
		FeeAsset: assetID,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: 500},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusInvalid {
		t.Fatalf("status = %v, want invalid", out.Status)
	}
	if !errors.Is(out.Reason, fee.ErrSponsorInsufficientBalance) {
		t.Errorf("reason = %v, want sponsor shortfall", out.Reason)
	}
}

func TestUnsponsoredFeeAssetInvalid(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	issuer := newActor(3)
	assetID := types.Blake2b([]byte("plain-asset"))

	ledger := state.NewMemoryLedger()
	ledger.SeedAsset(&state.Asset{ID: assetID, Issuer: issuer.addr, Name: "PLN", Quantity: 1_000_000})
	ledger.SeedAccount(&state.Account{
		Address: sender.addr,
		Balance: 1_000_000,
		Assets:  map[types.AssetID]int64{assetID: 1_000_000},
	})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:      300_000,
		FeeAsset: assetID,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: 500},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusInvalid {
		t.Fatalf("status = %v, want invalid", out.Status)
	}
	if !errors.Is(out.Reason, fee.ErrAssetNotSponsored) {
		t.Errorf("reason = %v, want not sponsored", out.Reason)
	}
}

func TestInvokeAppliedWithActions(t *testing.T) {
	sender := newActor(1)
	contract := newActor(2)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 10_000_000})
	ledger.SeedAccount(&state.Account{
		Address: contract.addr,
		Script: &ride.Script{
			Kind: ride.KindDApp,
			Callables: map[string]*ride.Callable{
				"deposit": {Name: "deposit", Body: ride.ActionList{Items: []ride.Expr{
					ride.DataItem{
						Key:   ride.Const{V: ride.String("count")},
						Value: ride.Const{V: ride.Long(1)},
					},
					ride.TransferItem{
						To:     ride.Property{Name: "caller"},
						Amount: ride.Const{V: ride.Long(10)},
					},
				}}},
			},
		},
	})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:  fee.MinFeeInvoke,
		Kind: tx.KindInvoke,
		Invoke: &tx.InvokePayload{
			DApp:     contract.addr,
			Function: "deposit",
			Payments: []ride.Payment{{Amount: 100}},
		},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusApplied {
		t.Fatalf("status = %v (%v), want applied", out.Status, out.Reason)
	}

	commit(t, ledger, snap, out.Diff)
	if got := nativeBalance(t, ledger, contract.addr); got != 90 {
		t.Errorf("contract balance = %d, want 90 (100 payment minus 10 back)", got)
	}

	after := snapshotOf(t, ledger)
	defer after.Close()
	entry, err := after.AccountData(contract.addr, "count")
	if err != nil {
		t.Fatalf("account data: %v", err)
	}
	if entry == nil || entry.Int != 1 {
		t.Errorf("data entry = %+v, want integer 1", entry)
	}
}

func TestInvokeThrowFailsFeeOnly(t *testing.T) {
	sender := newActor(1)
	contract := newActor(2)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 10_000_000})
	ledger.SeedAccount(&state.Account{
		Address: contract.addr,
		Script: &ride.Script{
			Kind: ride.KindDApp,
			Callables: map[string]*ride.Callable{
				"boom": {Name: "boom", Body: ride.Throw{Msg: ride.Const{V: ride.String("nope")}}},
			},
		},
	})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:    fee.MinFeeInvoke,
		Kind:   tx.KindInvoke,
		Invoke: &tx.InvokePayload{DApp: contract.addr, Function: "boom"},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusFailed {
		t.Fatalf("status = %v (%v), want failed", out.Status, out.Reason)
	}
	if !errors.Is(out.Reason, ErrScriptError) {
		t.Errorf("reason = %v, want script error", out.Reason)
	}

	commit(t, ledger, snap, out.Diff)
	if got := nativeBalance(t, ledger, sender.addr); got != 10_000_000-fee.MinFeeInvoke {
		t.Errorf("sender balance = %d, want fee-only debit", got)
	}
}

func TestInvokeIssueActionFeeShortfallFails(t *testing.T) {
	sender := newActor(1)
	contract := newActor(2)
	issueBody := ride.ActionList{Items: []ride.Expr{
		ride.IssueItem{
			Name:        ride.Const{V: ride.String("MINT")},
			Description: ride.Const{V: ride.String("minted by contract")},
			Quantity:    ride.Const{V: ride.Long(1_000)},
			Decimals:    ride.Const{V: ride.Long(2)},
			Reissuable:  ride.Const{V: ride.Boolean(true)},
		},
	}}

	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 10_000_000_000})
	ledger.SeedAccount(&state.Account{
		Address: contract.addr,
		Script: &ride.Script{
			Kind: ride.KindDApp,
			Callables: map[string]*ride.Callable{
				"mint": {Name: "mint", Body: issueBody},
			},
		},
	})

	// The declared fee satisfies the invoke minimum but not the per-issue
	// surcharge discovered once the script runs.
	txn := finalize(t, sender, &tx.Transaction{
		Fee:    fee.MinFeeInvoke,
		Kind:   tx.KindInvoke,
		Invoke: &tx.InvokePayload{DApp: contract.addr, Function: "mint"},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusFailed {
		t.Fatalf("status = %v (%v), want failed", out.Status, out.Reason)
	}
	if !errors.Is(out.Reason, fee.ErrInsufficientFee) {
		t.Errorf("reason = %v, want insufficient fee", out.Reason)
	}

	// With the issue surcharge covered the same invocation applies and the
	// new asset id is a pure function of the transaction id.
	txn2 := finalize(t, sender, &tx.Transaction{
		Fee:       fee.MinFeeInvoke + fee.MinFeeIssue,
		Kind:      tx.KindInvoke,
		Timestamp: 1_700_000_000_001,
		Invoke:    &tx.InvokePayload{DApp: contract.addr, Function: "mint"},
	})
	out2 := classify(t, testApplier(), txn2, snap)
	if out2.Status != StatusApplied {
		t.Fatalf("status = %v (%v), want applied", out2.Status, out2.Reason)
	}
	wantID := issuedAssetID(txn2.ID, 0)
	if len(out2.Diff.Issues) != 1 || out2.Diff.Issues[0].ID != wantID {
		t.Fatalf("issued assets = %+v, want one with id %s", out2.Diff.Issues, wantID.String())
	}

	commit(t, ledger, snap, out2.Diff)
	if got := assetBalance(t, ledger, contract.addr, wantID); got != 1_000 {
		t.Errorf("contract minted balance = %d, want 1000", got)
	}
}

func TestIssueTransactionApplied(t *testing.T) {
	sender := newActor(1)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 10_000_000_000})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:  fee.MinFeeIssue,
		Kind: tx.KindIssue,
		Issue: &tx.IssuePayload{
			Name: "COIN", Description: "a coin", Quantity: 5_000, Decimals: 4, Reissuable: true,
		},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusApplied {
		t.Fatalf("status = %v (%v), want applied", out.Status, out.Reason)
	}

	commit(t, ledger, snap, out.Diff)
	after := snapshotOf(t, ledger)
	defer after.Close()
	asset, err := after.Asset(txn.ID)
	if err != nil {
		t.Fatalf("asset lookup by tx id: %v", err)
	}
	if asset.Quantity != 5_000 || asset.Issuer != sender.addr {
		t.Errorf("asset = %+v", asset)
	}
	if got := assetBalance(t, ledger, sender.addr, txn.ID); got != 5_000 {
		t.Errorf("issuer balance = %d, want 5000", got)
	}
}

func TestReissueByNonIssuerFails(t *testing.T) {
	sender := newActor(1)
	issuer := newActor(2)
	assetID := types.Blake2b([]byte("owned"))

	ledger := state.NewMemoryLedger()
	ledger.SeedAsset(&state.Asset{ID: assetID, Issuer: issuer.addr, Name: "OWND", Quantity: 100, Reissuable: true})
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 10_000_000})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:     fee.MinFeeReissue,
		Kind:    tx.KindReissue,
		Reissue: &tx.ReissuePayload{Asset: assetID, Quantity: 50, Reissuable: true},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusFailed {
		t.Fatalf("status = %v (%v), want failed", out.Status, out.Reason)
	}
	if !errors.Is(out.Reason, ErrNotIssuer) {
		t.Errorf("reason = %v, want not issuer", out.Reason)
	}
}

func TestDataWriteAndTombstone(t *testing.T) {
	sender := newActor(1)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{
		Address: sender.addr,
		Balance: 10_000_000,
		Data: map[string]types.DataEntry{
			"old": types.IntegerEntry("old", 7),
		},
	})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:  fee.MinFeeDataWrite,
		Kind: tx.KindDataWrite,
		Data: &tx.DataPayload{Entries: []types.DataEntry{
			types.StringEntry("greeting", "hello"),
			{Key: "old"}, // zero type tombstone
		}},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusApplied {
		t.Fatalf("status = %v (%v), want applied", out.Status, out.Reason)
	}

	commit(t, ledger, snap, out.Diff)
	after := snapshotOf(t, ledger)
	defer after.Close()
	if e, _ := after.AccountData(sender.addr, "greeting"); e == nil || e.Str != "hello" {
		t.Errorf("greeting entry = %+v", e)
	}
	if e, _ := after.AccountData(sender.addr, "old"); e != nil {
		t.Errorf("tombstoned entry still present: %+v", e)
	}
}

func TestSetScriptClassifiedUnderOldScript(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 100_000_000})

	// Installing a deny-all verifier is itself authorized by the envelope
	// signature, because the account had no script when it was classified.
	install := finalize(t, sender, &tx.Transaction{
		Fee:       fee.MinFeeSetScript,
		Kind:      tx.KindSetScript,
		SetScript: &tx.SetScriptPayload{Script: denyAll()},
	})

	snap := snapshotOf(t, ledger)
	out := classify(t, testApplier(), install, snap)
	if out.Status != StatusApplied {
		t.Fatalf("install status = %v (%v), want applied", out.Status, out.Reason)
	}
	commit(t, ledger, snap, out.Diff)
	snap.Close()

	// The very next transaction is judged by the new verifier.
	after := snapshotOf(t, ledger)
	defer after.Close()
	transfer := finalize(t, sender, &tx.Transaction{
		Fee:      fee.MinFeeTransfer + fee.ScriptSurcharge,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: 1},
	})
	out2 := classify(t, testApplier(), transfer, after)
	if out2.Status != StatusInvalid {
		t.Fatalf("post-install status = %v, want invalid", out2.Status)
	}
}

func TestMalformedPayloadInvalid(t *testing.T) {
	sender := newActor(1)
	recipient := newActor(2)
	ledger := state.NewMemoryLedger()
	ledger.SeedAccount(&state.Account{Address: sender.addr, Balance: 10_000_000})

	txn := finalize(t, sender, &tx.Transaction{
		Fee:      fee.MinFeeTransfer,
		Kind:     tx.KindTransfer,
		Transfer: &tx.TransferPayload{Recipient: recipient.addr, Amount: -5},
	})

	snap := snapshotOf(t, ledger)
	defer snap.Close()
	out := classify(t, testApplier(), txn, snap)
	if out.Status != StatusInvalid {
		t.Fatalf("status = %v, want invalid", out.Status)
	}
	if !errors.Is(out.Reason, ErrMalformedPayload) {
		t.Errorf("reason = %v, want malformed payload", out.Reason)
	}
}
