package state

import (
	"errors"
	"testing"

	"github.com/G1zm0nl/Waves/internal/types"
)

func TestOverlayLayersDiffs(t *testing.T) {
	alice := testAddr(1)
	bob := testAddr(2)
	l := NewMemoryLedger()
	defer l.Close()
	l.SeedAccount(&Account{Address: alice, Balance: 1_000})

	snap, _ := l.Snapshot()
	defer snap.Close()
	o := NewOverlay(snap)

	d1 := NewDiff(testDigest("tx1"))
	d1.AddBalance(alice, types.AssetID{}, -400)
	d1.AddBalance(bob, types.AssetID{}, 400)
	if err := o.ApplyDiff(d1); err != nil {
		t.Fatalf("apply: %v", err)
	}

	d2 := NewDiff(testDigest("tx2"))
	d2.AddBalance(bob, types.AssetID{}, -100)
	d2.AddData(bob, types.StringEntry("memo", "hi"))
	if err := o.ApplyDiff(d2); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if bal, _ := o.NativeBalance(alice); bal != 600 {
		t.Errorf("alice overlaid = %d, want 600", bal)
	}
	if bal, _ := o.NativeBalance(bob); bal != 300 {
		t.Errorf("bob overlaid = %d, want 300", bal)
	}
	if e, _ := o.AccountData(bob, "memo"); e == nil || e.Str != "hi" {
		t.Errorf("overlaid entry = %+v", e)
	}

	// The base snapshot is untouched.
	if bal, _ := snap.NativeBalance(alice); bal != 1_000 {
		t.Errorf("base alice = %d, want 1000", bal)
	}
}

func TestOverlayDataTombstone(t *testing.T) {
	alice := testAddr(1)
	l := NewMemoryLedger()
	defer l.Close()
	l.SeedAccount(&Account{
		Address: alice,
		Data:    map[string]types.DataEntry{"k": types.IntegerEntry("k", 1)},
	})

	snap, _ := l.Snapshot()
	defer snap.Close()
	o := NewOverlay(snap)

	d := NewDiff(testDigest("tx"))
	d.AddDelete(alice, "k")
	if err := o.ApplyDiff(d); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if e, _ := o.AccountData(alice, "k"); e != nil {
		t.Errorf("tombstoned entry still visible: %+v", e)
	}
	if e, _ := snap.AccountData(alice, "k"); e == nil {
		t.Error("base entry disappeared")
	}
}

func TestOverlayStagedAsset(t *testing.T) {
	issuer := testAddr(1)
	l := NewMemoryLedger()
	defer l.Close()

	snap, _ := l.Snapshot()
	defer snap.Close()
	o := NewOverlay(snap)

	id := testDigest("fresh")
	d := NewDiff(testDigest("issue-tx"))
	d.Issues = append(d.Issues, &Asset{ID: id, Issuer: issuer, Name: "FRSH", Quantity: 100, Reissuable: true})
	d.AddBalance(issuer, id, 100)
	if err := o.ApplyDiff(d); err != nil {
		t.Fatalf("apply issue: %v", err)
	}

	a, err := o.Asset(id)
	if err != nil {
		t.Fatalf("overlaid asset: %v", err)
	}
	if a.Quantity != 100 {
		t.Errorf("quantity = %d", a.Quantity)
	}

	// Supply and sponsorship changes land on the staged copy.
	d2 := NewDiff(testDigest("tx2"))
	d2.Supply = append(d2.Supply, SupplyChange{Asset: id, Delta: 50})
	d2.Sponsorships = append(d2.Sponsorships, SponsorshipChange{Asset: id, MinFee: 777})
	if err := o.ApplyDiff(d2); err != nil {
		t.Fatalf("apply supply: %v", err)
	}
	a2, _ := o.Asset(id)
	if a2.Quantity != 150 || a2.SponsorMinFee != 777 {
		t.Errorf("staged asset = %+v", a2)
	}

	// The base never saw the issue at all.
	if _, err := snap.Asset(id); !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("base asset lookup: %v, want not found", err)
	}
}

func TestOverlayAccountScript(t *testing.T) {
	alice := testAddr(1)
	l := NewMemoryLedger()
	defer l.Close()
	l.SeedAccount(&Account{Address: alice, Balance: 10})

	snap, _ := l.Snapshot()
	defer snap.Close()
	o := NewOverlay(snap)

	d := NewDiff(testDigest("tx"))
	d.AccountScripts = append(d.AccountScripts, AccountScriptChange{Addr: alice, Script: nil})
	if err := o.ApplyDiff(d); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// An explicit nil installation reads back as nil even though the map
	// entry exists.
	s, err := o.AccountScript(alice)
	if err != nil {
		t.Fatalf("account script: %v", err)
	}
	if s != nil {
		t.Errorf("script = %v, want nil", s)
	}
}
