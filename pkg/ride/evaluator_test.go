package ride

import (
	"errors"
	"testing"

	"github.com/G1zm0nl/Waves/internal/types"
)

// stubState is an in-memory StateReader for evaluator tests.
type stubState struct {
	native map[types.Address]int64
	assets map[types.Address]map[types.AssetID]int64
	data   map[types.Address]map[string]types.DataEntry
}

func (s *stubState) NativeBalance(addr types.Address) (int64, error) {
	return s.native[addr], nil
}

func (s *stubState) AssetBalance(addr types.Address, asset types.AssetID) (int64, error) {
	return s.assets[addr][asset], nil
}

func (s *stubState) AccountData(addr types.Address, key string) (*types.DataEntry, error) {
	e, ok := s.data[addr][key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func testAddr(seed byte) types.Address {
	var pk types.PublicKey
	pk[0] = seed
	return types.AddressFromPublicKey('T', pk)
}

func verifier(e Expr) *Script {
	return &Script{Kind: KindVerifier, Verifier: e}
}

func evalVerifier(t *testing.T, e Expr, ctx *Context) bool {
	t.Helper()
	ok, err := EvaluateVerifier(verifier(e), ctx, NewMeter(DefaultComplexityLimit))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	return ok
}

func TestArithmeticAndComparison(t *testing.T) {
	ctx := &Context{State: &stubState{}}

	// (2 + 3) * 4 > 19
	expr := Cmp{
		Op: OpGT,
		L: Arith{Op: OpMul,
			L: Arith{Op: OpAdd, L: Const{V: Long(2)}, R: Const{V: Long(3)}},
			R: Const{V: Long(4)},
		},
		R: Const{V: Long(19)},
	}
	if !evalVerifier(t, expr, ctx) {
		t.Error("(2+3)*4 > 19 evaluated to false")
	}

	if !evalVerifier(t, Eq{L: Const{V: String("a")}, R: Const{V: String("a")}}, ctx) {
		t.Error("string equality failed")
	}
	if evalVerifier(t, Eq{L: Const{V: Long(1)}, R: Const{V: String("1")}}, ctx) {
		t.Error("cross-type equality succeeded")
	}
}

func TestDivisionByZero(t *testing.T) {
	ctx := &Context{State: &stubState{}}
	expr := Arith{Op: OpDiv, L: Const{V: Long(1)}, R: Const{V: Long(0)}}
	_, err := EvaluateVerifier(verifier(Eq{L: expr, R: Const{V: Long(0)}}), ctx, NewMeter(100))
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("err = %v, want division by zero", err)
	}
}

func TestShortCircuit(t *testing.T) {
	ctx := &Context{State: &stubState{}}

	// The right side would divide by zero; short-circuiting must skip it.
	boom := Eq{
		L: Arith{Op: OpDiv, L: Const{V: Long(1)}, R: Const{V: Long(0)}},
		R: Const{V: Long(0)},
	}
	if evalVerifier(t, And{L: Const{V: Boolean(false)}, R: boom}, ctx) {
		t.Error("false && _ evaluated to true")
	}
	if !evalVerifier(t, Or{L: Const{V: Boolean(true)}, R: boom}, ctx) {
		t.Error("true || _ evaluated to false")
	}
}

func TestThrow(t *testing.T) {
	ctx := &Context{State: &stubState{}}
	_, err := EvaluateVerifier(verifier(Throw{Msg: Const{V: String("denied by policy")}}), ctx, NewMeter(100))
	var te *ThrowError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want ThrowError", err)
	}
	if te.Message != "denied by policy" {
		t.Errorf("message = %q", te.Message)
	}
}

func TestStateReads(t *testing.T) {
	owner := testAddr(1)
	st := &stubState{
		native: map[types.Address]int64{owner: 750},
		data: map[types.Address]map[string]types.DataEntry{
			owner: {"limit": types.IntegerEntry("limit", 1000)},
		},
	}
	ctx := &Context{State: st, This: owner}

	// balance(this) < getEntry(this, "limit")
	expr := Cmp{
		Op: OpLT,
		L:  Balance{Addr: Property{Name: "this"}},
		R:  GetEntry{Addr: Property{Name: "this"}, Key: Const{V: String("limit")}},
	}
	if !evalVerifier(t, expr, ctx) {
		t.Error("750 < 1000 via state reads evaluated to false")
	}

	// Absent keys read as Unit.
	absent := Eq{
		L: GetEntry{Addr: Property{Name: "this"}, Key: Const{V: String("missing")}},
		R: Const{V: Unit{}},
	}
	if !evalVerifier(t, absent, ctx) {
		t.Error("missing entry did not compare equal to Unit")
	}
}

func TestMeterExhaustion(t *testing.T) {
	ctx := &Context{State: &stubState{}}
	expr := Not{E: Not{E: Const{V: Boolean(true)}}}

	// Two Not nodes and a Const need three units.
	if _, err := EvaluateVerifier(verifier(expr), ctx, NewMeter(2)); !errors.Is(err, ErrComplexityExceeded) {
		t.Errorf("err = %v, want complexity exceeded", err)
	}
	if ok, err := EvaluateVerifier(verifier(expr), ctx, NewMeter(3)); err != nil || !ok {
		t.Errorf("ok = %v err = %v with exact budget", ok, err)
	}
}

func TestMeterSharedAcrossEvaluations(t *testing.T) {
	ctx := &Context{State: &stubState{}}
	meter := NewMeter(5)

	script := verifier(Const{V: Boolean(true)})
	for i := 0; i < 5; i++ {
		if _, err := EvaluateVerifier(script, ctx, meter); err != nil {
			t.Fatalf("evaluation %d: %v", i, err)
		}
	}
	if _, err := EvaluateVerifier(script, ctx, meter); !errors.Is(err, ErrComplexityExceeded) {
		t.Errorf("sixth evaluation: %v, want complexity exceeded", err)
	}
	if meter.Consumed() != 5 {
		t.Errorf("consumed = %d, want 5", meter.Consumed())
	}
}

func TestEvaluateCallable(t *testing.T) {
	recipient := testAddr(2)
	script := &Script{
		Kind: KindDApp,
		Callables: map[string]*Callable{
			"pay": {Name: "pay", Body: ActionList{Items: []Expr{
				TransferItem{
					To:     Const{V: Bytes(recipient.Bytes())},
					Amount: Arg{Index: 0},
				},
				DataItem{Key: Const{V: String("paid")}, Value: Const{V: Boolean(true)}},
			}}},
		},
	}
	ctx := &Context{State: &stubState{}, Args: []Value{Long(42)}}

	actions, err := EvaluateCallable(script, "pay", ctx, NewMeter(DefaultComplexityLimit))
	if err != nil {
		t.Fatalf("evaluate callable: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("actions = %d, want 2", len(actions))
	}
	tr, ok := actions[0].(TransferAction)
	if !ok || tr.Recipient != recipient || tr.Amount != 42 {
		t.Errorf("first action = %+v", actions[0])
	}
	da, ok := actions[1].(DataAction)
	if !ok || da.Entry.Key != "paid" || !da.Entry.Bool {
		t.Errorf("second action = %+v", actions[1])
	}

	if _, err := EvaluateCallable(script, "absent", ctx, NewMeter(100)); !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("unknown callable: %v", err)
	}
	if _, err := EvaluateCallable(verifier(Const{V: Boolean(true)}), "pay", ctx, NewMeter(100)); !errors.Is(err, ErrNotDApp) {
		t.Errorf("callable on verifier: %v", err)
	}
}

func TestVerifierTypeMismatch(t *testing.T) {
	ctx := &Context{State: &stubState{}}
	_, err := EvaluateVerifier(verifier(Const{V: Long(1)}), ctx, NewMeter(100))
	if !errors.Is(err, ErrWrongType) {
		t.Errorf("err = %v, want wrong type", err)
	}
}

// A script whose static complexity estimate no longer fits the budget is
// rejected before any node is walked; an unestimated script is metered node
// by node only.
func TestStaticEstimatePrecheck(t *testing.T) {
	ctx := &Context{State: &stubState{}}
	script := &Script{Kind: KindVerifier, Verifier: Const{V: Boolean(true)}, Complexity: 10}

	m := NewMeter(5)
	if _, err := EvaluateVerifier(script, ctx, m); !errors.Is(err, ErrComplexityExceeded) {
		t.Errorf("oversized estimate: %v, want complexity exceeded", err)
	}
	if m.Consumed() != 0 {
		t.Errorf("consumed = %d before rejection, want 0", m.Consumed())
	}

	ok, err := EvaluateVerifier(script, ctx, NewMeter(10))
	if err != nil || !ok {
		t.Errorf("estimate within budget: ok = %v err = %v", ok, err)
	}

	dapp := &Script{
		Kind: KindDApp,
		Callables: map[string]*Callable{
			"run": {Name: "run", Body: ActionList{}},
		},
		Complexity: 10,
	}
	if _, err := EvaluateCallable(dapp, "run", ctx, NewMeter(5)); !errors.Is(err, ErrComplexityExceeded) {
		t.Errorf("callable with oversized estimate: %v, want complexity exceeded", err)
	}
}
