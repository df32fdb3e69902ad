package tx

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/G1zm0nl/Waves/internal/types"
)

func testKey(seed byte) (types.PublicKey, ed25519.PrivateKey) {
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	var pk types.PublicKey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return pk, priv
}

func TestNewDerivesIDAndSender(t *testing.T) {
	pk, priv := testKey(1)
	var recipient types.Address

	txn, err := New('T', &Transaction{
		SenderPK:  pk,
		Fee:       100_000,
		Timestamp: 1,
		Kind:      KindTransfer,
		Transfer:  &TransferPayload{Recipient: recipient, Amount: 10},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if txn.ID.IsZero() {
		t.Error("id is zero")
	}
	if txn.Sender != types.AddressFromPublicKey('T', pk) {
		t.Error("sender address not derived from key")
	}

	if err := txn.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !txn.VerifySignature() {
		t.Error("own signature fails verification")
	}

	// The id commits to the body: changing a payload field changes it.
	txn2, err := New('T', &Transaction{
		SenderPK:  pk,
		Fee:       100_000,
		Timestamp: 1,
		Kind:      KindTransfer,
		Transfer:  &TransferPayload{Recipient: recipient, Amount: 11},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if txn2.ID == txn.ID {
		t.Error("distinct payloads share an id")
	}
}

func TestBodyBytesDeterministic(t *testing.T) {
	pk, _ := testKey(1)
	txn := &Transaction{
		SenderPK:  pk,
		Fee:       100_000,
		Timestamp: 1,
		Kind:      KindDataWrite,
		Data: &DataPayload{Entries: []types.DataEntry{
			types.IntegerEntry("n", 5),
			types.BinaryEntry("b", []byte{9, 9}),
		}},
	}
	a, err := txn.BodyBytes()
	if err != nil {
		t.Fatalf("body bytes: %v", err)
	}
	b, err := txn.BodyBytes()
	if err != nil {
		t.Fatalf("body bytes: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("body bytes differ between calls")
	}
}

// Shifting bytes across a field boundary must change the body, so no
// signature made for one payload can authorize another.
func TestBodyBytesFieldBoundaries(t *testing.T) {
	pk, priv := testKey(1)

	issue := func(name, desc string) *Transaction {
		txn, err := New('T', &Transaction{
			SenderPK:  pk,
			Fee:       100_000,
			Timestamp: 1,
			Kind:      KindIssue,
			Issue:     &IssuePayload{Name: name, Description: desc, Quantity: 10},
		})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		return txn
	}

	a := issue("abcd", "ef")
	b := issue("abcde", "f")
	if a.ID == b.ID {
		t.Fatal("issue payloads with shifted name boundary share an id")
	}
	if err := a.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	b.Signature = a.Signature
	if b.VerifySignature() {
		t.Error("signature for one payload authorizes another")
	}

	dataWrite := func(key, val string) *Transaction {
		txn, err := New('T', &Transaction{
			SenderPK:  pk,
			Fee:       100_000,
			Timestamp: 1,
			Kind:      KindDataWrite,
			Data:      &DataPayload{Entries: []types.DataEntry{types.StringEntry(key, val)}},
		})
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		return txn
	}
	if dataWrite("ab", "cd").ID == dataWrite("abc", "d").ID {
		t.Error("data entries with shifted key boundary share an id")
	}
}

func TestBodyBytesMissingPayload(t *testing.T) {
	pk, _ := testKey(1)
	txn := &Transaction{SenderPK: pk, Fee: 1, Kind: KindTransfer}
	if _, err := txn.BodyBytes(); !errors.Is(err, ErrNoPayload) {
		t.Errorf("missing payload: %v, want ErrNoPayload", err)
	}
}

func TestFeeIsNative(t *testing.T) {
	txn := &Transaction{}
	if !txn.FeeIsNative() {
		t.Error("zero fee asset should be native")
	}
	txn.FeeAsset = types.Blake2b([]byte("asset"))
	if txn.FeeIsNative() {
		t.Error("non-zero fee asset reported native")
	}
}

func TestOrderSignature(t *testing.T) {
	pk, priv := testKey(2)
	o := Order{
		SenderPK:    pk,
		Sender:      types.AddressFromPublicKey('T', pk),
		Side:        Buy,
		AmountAsset: types.Blake2b([]byte("amount")),
		Price:       100,
		Amount:      10,
		MatcherFee:  1,
	}
	o.Sign(priv)
	if !pk.Verify(o.BodyBytes(), o.Signature) {
		t.Error("order signature fails verification")
	}

	o.Price = 101
	if pk.Verify(o.BodyBytes(), o.Signature) {
		t.Error("signature survives a price change")
	}
}
