package state

import (
	"errors"
	"testing"

	"github.com/G1zm0nl/Waves/internal/types"
)

func testAddr(seed byte) types.Address {
	var pk types.PublicKey
	pk[0] = seed
	return types.AddressFromPublicKey('T', pk)
}

func testDigest(s string) types.Digest {
	return types.Blake2b([]byte(s))
}

func TestCommitDiff(t *testing.T) {
	alice := testAddr(1)
	bob := testAddr(2)
	l := NewMemoryLedger()
	defer l.Close()
	l.SeedAccount(&Account{Address: alice, Balance: 1_000})

	snap, err := l.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	defer snap.Close()

	d := NewDiff(testDigest("tx1"))
	d.AddBalance(alice, types.AssetID{}, -300)
	d.AddBalance(bob, types.AssetID{}, 300)
	d.AddData(alice, types.IntegerEntry("n", 7))

	res, err := l.CommitDiff(d, snap)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if res.Version != snap.Version()+1 {
		t.Errorf("version = %d, want %d", res.Version, snap.Version()+1)
	}
	if res.StateHash.IsZero() {
		t.Error("state hash is zero after commit")
	}

	after, err := l.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	defer after.Close()
	if bal, _ := after.NativeBalance(alice); bal != 700 {
		t.Errorf("alice = %d, want 700", bal)
	}
	if bal, _ := after.NativeBalance(bob); bal != 300 {
		t.Errorf("bob = %d, want 300", bal)
	}
	if e, _ := after.AccountData(alice, "n"); e == nil || e.Int != 7 {
		t.Errorf("data entry = %+v", e)
	}

	// The old snapshot still reads pre-commit state.
	if bal, _ := snap.NativeBalance(alice); bal != 1_000 {
		t.Errorf("stale snapshot sees %d, want 1000", bal)
	}
}

func TestCommitDiffStaleSnapshot(t *testing.T) {
	alice := testAddr(1)
	l := NewMemoryLedger()
	defer l.Close()
	l.SeedAccount(&Account{Address: alice, Balance: 1_000})

	snap, err := l.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	defer snap.Close()

	d := NewDiff(testDigest("tx1"))
	d.AddBalance(alice, types.AssetID{}, -1)
	if _, err := l.CommitDiff(d, snap); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	// The second commit validates against a snapshot the first one already
	// obsoleted.
	d2 := NewDiff(testDigest("tx2"))
	d2.AddBalance(alice, types.AssetID{}, -1)
	if _, err := l.CommitDiff(d2, snap); !errors.Is(err, ErrConflictingState) {
		t.Errorf("stale commit: %v, want conflicting state", err)
	}
}

func TestCommitDiffRejectsNegativeBalance(t *testing.T) {
	alice := testAddr(1)
	bob := testAddr(2)
	l := NewMemoryLedger()
	defer l.Close()
	l.SeedAccount(&Account{Address: alice, Balance: 100})

	snap, err := l.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	defer snap.Close()

	d := NewDiff(testDigest("overdraft"))
	d.AddBalance(alice, types.AssetID{}, -200)
	d.AddBalance(bob, types.AssetID{}, 200)
	if _, err := l.CommitDiff(d, snap); !errors.Is(err, ErrNegativeBalance) {
		t.Fatalf("overdraft commit: %v, want negative balance", err)
	}

	// The rejection left nothing behind.
	after, _ := l.Snapshot()
	defer after.Close()
	if bal, _ := after.NativeBalance(alice); bal != 100 {
		t.Errorf("alice = %d after rejected commit, want 100", bal)
	}
	if after.Version() != snap.Version() {
		t.Errorf("version moved on a rejected commit")
	}
}

func TestCommitDiffReissueRules(t *testing.T) {
	issuer := testAddr(1)
	id := testDigest("final")
	l := NewMemoryLedger()
	defer l.Close()
	l.SeedAsset(&Asset{ID: id, Issuer: issuer, Name: "FINL", Quantity: 100, Reissuable: true})

	snap, _ := l.Snapshot()
	d := NewDiff(testDigest("tx1"))
	d.Supply = append(d.Supply, SupplyChange{Asset: id, Delta: 50, DisableReissue: true})
	d.AddBalance(issuer, id, 50)
	if _, err := l.CommitDiff(d, snap); err != nil {
		t.Fatalf("finalizing reissue: %v", err)
	}
	snap.Close()

	snap2, _ := l.Snapshot()
	defer snap2.Close()
	d2 := NewDiff(testDigest("tx2"))
	d2.Supply = append(d2.Supply, SupplyChange{Asset: id, Delta: 10})
	d2.AddBalance(issuer, id, 10)
	if _, err := l.CommitDiff(d2, snap2); !errors.Is(err, ErrNotReissuable) {
		t.Errorf("reissue after finalize: %v, want not reissuable", err)
	}
}

func TestStateHashChains(t *testing.T) {
	alice := testAddr(1)
	l := NewMemoryLedger()
	defer l.Close()
	l.SeedAccount(&Account{Address: alice, Balance: 1_000})

	var hashes []types.Digest
	for i := 0; i < 3; i++ {
		snap, _ := l.Snapshot()
		d := NewDiff(testDigest(string(rune('a' + i))))
		d.AddBalance(alice, types.AssetID{}, -1)
		res, err := l.CommitDiff(d, snap)
		snap.Close()
		if err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		hashes = append(hashes, res.StateHash)
	}

	seen := make(map[types.Digest]bool)
	for _, h := range hashes {
		if seen[h] {
			t.Fatalf("state hash repeated: %s", h.String())
		}
		seen[h] = true
	}
}
