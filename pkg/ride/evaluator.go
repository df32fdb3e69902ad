package ride

import (
	"errors"
	"fmt"

	"github.com/G1zm0nl/Waves/internal/types"
)

var (
	// ErrWrongType is returned when an expression yields an unexpected type.
	ErrWrongType = errors.New("wrong result type")

	// ErrDivisionByZero is returned for integer division or modulo by zero.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrUnknownProperty is returned for an unrecognized context property.
	ErrUnknownProperty = errors.New("unknown context property")

	// ErrUnknownFunction is returned when a dApp has no such callable.
	ErrUnknownFunction = errors.New("unknown callable function")

	// ErrNotDApp is returned when a callable is invoked on a verifier script.
	ErrNotDApp = errors.New("script is not a dApp")

	// ErrNoVerifier is returned when a verifier evaluation is requested on a
	// script without a verifier expression.
	ErrNoVerifier = errors.New("script has no verifier")
)

// ThrowError is the error produced by an executed Throw node. The message is
// script-controlled and surfaces in the transaction's failure reason.
type ThrowError struct {
	Message string
}

func (e *ThrowError) Error() string {
	return fmt.Sprintf("script threw: %s", e.Message)
}

// EvaluateVerifier evaluates a verifier script (account or asset) to its
// boolean result. Complexity is drawn from meter; exceeding the budget or any
// evaluation error is returned as-is for the caller to classify.
func EvaluateVerifier(script *Script, ctx *Context, meter *Meter) (bool, error) {
	if script.Verifier == nil {
		return false, ErrNoVerifier
	}
	if err := checkEstimate(script, meter); err != nil {
		return false, err
	}
	v, err := eval(script.Verifier, ctx, meter)
	if err != nil {
		return false, err
	}
	b, ok := v.(Boolean)
	if !ok {
		return false, fmt.Errorf("verifier yielded %s: %w", v.typeName(), ErrWrongType)
	}
	return bool(b), nil
}

// EvaluateCallable evaluates a dApp callable to its ordered action list.
func EvaluateCallable(script *Script, fn string, ctx *Context, meter *Meter) ([]Action, error) {
	if script.Kind != KindDApp {
		return nil, ErrNotDApp
	}
	callable, ok := script.Callables[fn]
	if !ok {
		return nil, fmt.Errorf("%q: %w", fn, ErrUnknownFunction)
	}
	if err := checkEstimate(script, meter); err != nil {
		return nil, err
	}
	if err := meter.Consume(CostCall); err != nil {
		return nil, err
	}
	v, err := eval(callable.Body, ctx, meter)
	if err != nil {
		return nil, err
	}
	list, ok := v.(actionsValue)
	if !ok {
		return nil, fmt.Errorf("callable yielded %s: %w", v.typeName(), ErrWrongType)
	}
	return list.actions, nil
}

// checkEstimate rejects a script whose static complexity estimate exceeds
// what is left of the budget, before any node is walked. A zero estimate
// means the script was never estimated and is metered node by node only.
func checkEstimate(script *Script, meter *Meter) error {
	if script.Complexity > 0 && script.Complexity > meter.Remaining() {
		return fmt.Errorf("estimated %d, remaining %d: %w",
			script.Complexity, meter.Remaining(), ErrComplexityExceeded)
	}
	return nil
}

// actionsValue is the value form of an evaluated ActionList.
type actionsValue struct {
	actions []Action
}

func (actionsValue) typeName() string { return "List[Action]" }

// eval walks the expression tree. Each case charges the meter before doing
// any work, so an exhausted budget aborts evaluation at the next node.
func eval(e Expr, ctx *Context, meter *Meter) (Value, error) {
	switch n := e.(type) {
	case Const:
		if err := meter.Consume(CostConst); err != nil {
			return nil, err
		}
		return n.V, nil

	case If:
		if err := meter.Consume(CostBranch); err != nil {
			return nil, err
		}
		cond, err := evalBool(n.Cond, ctx, meter)
		if err != nil {
			return nil, err
		}
		if cond {
			return eval(n.Then, ctx, meter)
		}
		return eval(n.Else, ctx, meter)

	case And:
		if err := meter.Consume(CostBoolOp); err != nil {
			return nil, err
		}
		l, err := evalBool(n.L, ctx, meter)
		if err != nil {
			return nil, err
		}
		if !l {
			return Boolean(false), nil
		}
		r, err := evalBool(n.R, ctx, meter)
		if err != nil {
			return nil, err
		}
		return Boolean(r), nil

	case Or:
		if err := meter.Consume(CostBoolOp); err != nil {
			return nil, err
		}
		l, err := evalBool(n.L, ctx, meter)
		if err != nil {
			return nil, err
		}
		if l {
			return Boolean(true), nil
		}
		r, err := evalBool(n.R, ctx, meter)
		if err != nil {
			return nil, err
		}
		return Boolean(r), nil

	case Not:
		if err := meter.Consume(CostBoolOp); err != nil {
			return nil, err
		}
		v, err := evalBool(n.E, ctx, meter)
		if err != nil {
			return nil, err
		}
		return Boolean(!v), nil

	case Eq:
		if err := meter.Consume(CostCompare); err != nil {
			return nil, err
		}
		l, err := eval(n.L, ctx, meter)
		if err != nil {
			return nil, err
		}
		r, err := eval(n.R, ctx, meter)
		if err != nil {
			return nil, err
		}
		return Boolean(valuesEqual(l, r)), nil

	case Cmp:
		if err := meter.Consume(CostCompare); err != nil {
			return nil, err
		}
		l, err := evalLong(n.L, ctx, meter)
		if err != nil {
			return nil, err
		}
		r, err := evalLong(n.R, ctx, meter)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case OpGT:
			return Boolean(l > r), nil
		case OpGE:
			return Boolean(l >= r), nil
		case OpLT:
			return Boolean(l < r), nil
		case OpLE:
			return Boolean(l <= r), nil
		}
		return nil, fmt.Errorf("comparison operator %d: %w", n.Op, ErrWrongType)

	case Arith:
		cost := CostArith
		if n.Op == OpDiv || n.Op == OpMod {
			cost = CostDiv
		}
		if err := meter.Consume(cost); err != nil {
			return nil, err
		}
		l, err := evalLong(n.L, ctx, meter)
		if err != nil {
			return nil, err
		}
		r, err := evalLong(n.R, ctx, meter)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case OpAdd:
			return Long(l + r), nil
		case OpSub:
			return Long(l - r), nil
		case OpMul:
			return Long(l * r), nil
		case OpDiv:
			if r == 0 {
				return nil, ErrDivisionByZero
			}
			return Long(l / r), nil
		case OpMod:
			if r == 0 {
				return nil, ErrDivisionByZero
			}
			return Long(l % r), nil
		}
		return nil, fmt.Errorf("arithmetic operator %d: %w", n.Op, ErrWrongType)

	case Throw:
		if err := meter.Consume(CostThrow); err != nil {
			return nil, err
		}
		msg, err := eval(n.Msg, ctx, meter)
		if err != nil {
			return nil, err
		}
		s, ok := msg.(String)
		if !ok {
			s = String("explicit script termination")
		}
		return nil, &ThrowError{Message: string(s)}

	case Property:
		if err := meter.Consume(CostProperty); err != nil {
			return nil, err
		}
		return evalProperty(n.Name, ctx)

	case Arg:
		if err := meter.Consume(CostConst); err != nil {
			return nil, err
		}
		if n.Index < 0 || n.Index >= len(ctx.Args) {
			return nil, fmt.Errorf("argument %d out of range: %w", n.Index, ErrWrongType)
		}
		return ctx.Args[n.Index], nil

	case Balance:
		if err := meter.Consume(CostStateRead); err != nil {
			return nil, err
		}
		addr, err := evalAddress(n.Addr, ctx, meter)
		if err != nil {
			return nil, err
		}
		asset, native, err := evalAsset(n.Asset, ctx, meter)
		if err != nil {
			return nil, err
		}
		var bal int64
		if native {
			bal, err = ctx.State.NativeBalance(addr)
		} else {
			bal, err = ctx.State.AssetBalance(addr, asset)
		}
		if err != nil {
			return nil, fmt.Errorf("balance read: %w", err)
		}
		return Long(bal), nil

	case GetEntry:
		if err := meter.Consume(CostStateRead); err != nil {
			return nil, err
		}
		addr, err := evalAddress(n.Addr, ctx, meter)
		if err != nil {
			return nil, err
		}
		key, err := evalString(n.Key, ctx, meter)
		if err != nil {
			return nil, err
		}
		entry, err := ctx.State.AccountData(addr, key)
		if err != nil {
			return nil, fmt.Errorf("data read: %w", err)
		}
		if entry == nil {
			return Unit{}, nil
		}
		switch entry.Type {
		case types.DataInteger:
			return Long(entry.Int), nil
		case types.DataBoolean:
			return Boolean(entry.Bool), nil
		case types.DataBinary:
			return Bytes(entry.Bin), nil
		case types.DataString:
			return String(entry.Str), nil
		}
		return nil, fmt.Errorf("data entry type %d: %w", entry.Type, ErrWrongType)

	case ActionList:
		actions := make([]Action, 0, len(n.Items))
		for _, item := range n.Items {
			v, err := eval(item, ctx, meter)
			if err != nil {
				return nil, err
			}
			av, ok := v.(actionValue)
			if !ok {
				return nil, fmt.Errorf("action list item yielded %s: %w", v.typeName(), ErrWrongType)
			}
			actions = append(actions, av.a)
		}
		return actionsValue{actions: actions}, nil

	case TransferItem:
		if err := meter.Consume(CostAction); err != nil {
			return nil, err
		}
		to, err := evalAddress(n.To, ctx, meter)
		if err != nil {
			return nil, err
		}
		asset, _, err := evalAsset(n.Asset, ctx, meter)
		if err != nil {
			return nil, err
		}
		amount, err := evalLong(n.Amount, ctx, meter)
		if err != nil {
			return nil, err
		}
		return actionValue{a: TransferAction{Recipient: to, Asset: asset, Amount: amount}}, nil

	case DataItem:
		if err := meter.Consume(CostAction); err != nil {
			return nil, err
		}
		key, err := evalString(n.Key, ctx, meter)
		if err != nil {
			return nil, err
		}
		v, err := eval(n.Value, ctx, meter)
		if err != nil {
			return nil, err
		}
		switch val := v.(type) {
		case Unit:
			return actionValue{a: DeleteAction{Key: key}}, nil
		case Long:
			return actionValue{a: DataAction{Entry: types.IntegerEntry(key, int64(val))}}, nil
		case Boolean:
			return actionValue{a: DataAction{Entry: types.BooleanEntry(key, bool(val))}}, nil
		case Bytes:
			return actionValue{a: DataAction{Entry: types.BinaryEntry(key, []byte(val))}}, nil
		case String:
			return actionValue{a: DataAction{Entry: types.StringEntry(key, string(val))}}, nil
		}
		return nil, fmt.Errorf("data item value %s: %w", v.typeName(), ErrWrongType)

	case IssueItem:
		if err := meter.Consume(CostAction); err != nil {
			return nil, err
		}
		name, err := evalString(n.Name, ctx, meter)
		if err != nil {
			return nil, err
		}
		desc, err := evalString(n.Description, ctx, meter)
		if err != nil {
			return nil, err
		}
		qty, err := evalLong(n.Quantity, ctx, meter)
		if err != nil {
			return nil, err
		}
		dec, err := evalLong(n.Decimals, ctx, meter)
		if err != nil {
			return nil, err
		}
		reissuable, err := evalBool(n.Reissuable, ctx, meter)
		if err != nil {
			return nil, err
		}
		return actionValue{a: IssueAction{
			Name:        name,
			Description: desc,
			Quantity:    qty,
			Decimals:    byte(dec),
			Reissuable:  reissuable,
		}}, nil

	case ReissueItem:
		if err := meter.Consume(CostAction); err != nil {
			return nil, err
		}
		asset, _, err := evalAsset(n.Asset, ctx, meter)
		if err != nil {
			return nil, err
		}
		qty, err := evalLong(n.Quantity, ctx, meter)
		if err != nil {
			return nil, err
		}
		reissuable, err := evalBool(n.Reissuable, ctx, meter)
		if err != nil {
			return nil, err
		}
		return actionValue{a: ReissueAction{Asset: asset, Quantity: qty, Reissuable: reissuable}}, nil

	case BurnItem:
		if err := meter.Consume(CostAction); err != nil {
			return nil, err
		}
		asset, _, err := evalAsset(n.Asset, ctx, meter)
		if err != nil {
			return nil, err
		}
		qty, err := evalLong(n.Quantity, ctx, meter)
		if err != nil {
			return nil, err
		}
		return actionValue{a: BurnAction{Asset: asset, Quantity: qty}}, nil

	case SponsorItem:
		if err := meter.Consume(CostAction); err != nil {
			return nil, err
		}
		asset, _, err := evalAsset(n.Asset, ctx, meter)
		if err != nil {
			return nil, err
		}
		minFee, err := evalLong(n.MinFee, ctx, meter)
		if err != nil {
			return nil, err
		}
		return actionValue{a: SponsorFeeAction{Asset: asset, MinFee: minFee}}, nil
	}

	return nil, fmt.Errorf("unhandled expression %T: %w", e, ErrWrongType)
}

// evalProperty resolves a named context property.
func evalProperty(name string, ctx *Context) (Value, error) {
	switch name {
	case "txId":
		return Bytes(ctx.TxID.Bytes()), nil
	case "sender":
		return Bytes(ctx.Sender.Bytes()), nil
	case "caller":
		return Bytes(ctx.Caller.Bytes()), nil
	case "this":
		return Bytes(ctx.This.Bytes()), nil
	case "fee":
		return Long(ctx.Fee), nil
	case "feeAssetId":
		if ctx.FeeAsset.IsZero() {
			return Unit{}, nil
		}
		return Bytes(ctx.FeeAsset.Bytes()), nil
	case "height":
		return Long(ctx.Height), nil
	case "timestamp":
		return Long(ctx.Timestamp), nil
	case "paymentAmount":
		if len(ctx.Payments) == 0 {
			return Unit{}, nil
		}
		return Long(ctx.Payments[0].Amount), nil
	case "paymentAssetId":
		if len(ctx.Payments) == 0 || ctx.Payments[0].Asset.IsZero() {
			return Unit{}, nil
		}
		return Bytes(ctx.Payments[0].Asset.Bytes()), nil
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownProperty)
}

func evalBool(e Expr, ctx *Context, meter *Meter) (bool, error) {
	v, err := eval(e, ctx, meter)
	if err != nil {
		return false, err
	}
	b, ok := v.(Boolean)
	if !ok {
		return false, fmt.Errorf("expected Boolean, got %s: %w", v.typeName(), ErrWrongType)
	}
	return bool(b), nil
}

func evalLong(e Expr, ctx *Context, meter *Meter) (int64, error) {
	v, err := eval(e, ctx, meter)
	if err != nil {
		return 0, err
	}
	l, ok := v.(Long)
	if !ok {
		return 0, fmt.Errorf("expected Int, got %s: %w", v.typeName(), ErrWrongType)
	}
	return int64(l), nil
}

func evalString(e Expr, ctx *Context, meter *Meter) (string, error) {
	v, err := eval(e, ctx, meter)
	if err != nil {
		return "", err
	}
	s, ok := v.(String)
	if !ok {
		return "", fmt.Errorf("expected String, got %s: %w", v.typeName(), ErrWrongType)
	}
	return string(s), nil
}

func evalAddress(e Expr, ctx *Context, meter *Meter) (types.Address, error) {
	v, err := eval(e, ctx, meter)
	if err != nil {
		return types.Address{}, err
	}
	b, ok := v.(Bytes)
	if !ok || len(b) != types.AddressSize {
		return types.Address{}, fmt.Errorf("expected Address bytes, got %s: %w", v.typeName(), ErrWrongType)
	}
	var a types.Address
	copy(a[:], b)
	return a, nil
}

// evalAsset resolves an asset reference. Unit (or an all-zero digest) means
// the native asset; the second return reports nativeness.
func evalAsset(e Expr, ctx *Context, meter *Meter) (types.AssetID, bool, error) {
	if e == nil {
		return types.AssetID{}, true, nil
	}
	v, err := eval(e, ctx, meter)
	if err != nil {
		return types.AssetID{}, false, err
	}
	switch av := v.(type) {
	case Unit:
		return types.AssetID{}, true, nil
	case Bytes:
		id, err := types.DigestFromBytes(av)
		if err != nil {
			return types.AssetID{}, false, fmt.Errorf("asset id: %w", err)
		}
		return id, id.IsZero(), nil
	}
	return types.AssetID{}, false, fmt.Errorf("expected asset id, got %s: %w", v.typeName(), ErrWrongType)
}

// valuesEqual compares two runtime values of the same type.
func valuesEqual(l, r Value) bool {
	switch lv := l.(type) {
	case Long:
		rv, ok := r.(Long)
		return ok && lv == rv
	case Boolean:
		rv, ok := r.(Boolean)
		return ok && lv == rv
	case String:
		rv, ok := r.(String)
		return ok && lv == rv
	case Unit:
		_, ok := r.(Unit)
		return ok
	case Bytes:
		rv, ok := r.(Bytes)
		if !ok || len(lv) != len(rv) {
			return false
		}
		for i := range lv {
			if lv[i] != rv[i] {
				return false
			}
		}
		return true
	}
	return false
}
