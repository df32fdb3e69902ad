// Package ride implements the deterministic script sandbox.
//
// A script arrives here already compiled into an executable expression tree
// with a static complexity estimate; compilation itself is an external
// concern. Evaluation is a pure function of the tree, a read-only ledger
// snapshot and a bound transaction context. There is no I/O and no clock
// access beyond the block timestamp carried in the context, so evaluating the
// same tree against the same snapshot always yields the same result.
//
// Three script shapes exist:
//   - account verifiers, yielding a boolean that authorizes the transaction;
//   - asset verifiers, yielding a boolean gating one asset movement;
//   - dApp scripts, whose callables yield an ordered list of actions.
//
// Every node visit consumes complexity units from a Meter shared across the
// whole transaction, which bounds evaluation and guarantees termination.
package ride

// ScriptKind distinguishes verifier scripts from dApp scripts.
type ScriptKind uint8

// Script kinds.
const (
	KindVerifier ScriptKind = iota + 1
	KindDApp
)

// Script is a compiled script: an expression tree plus the compiler's static
// complexity estimate. Verifier scripts carry a single expression; dApp
// scripts carry named callables.
type Script struct {
	Kind       ScriptKind
	Verifier   Expr
	Callables  map[string]*Callable
	Complexity uint64
}

// Callable is one invocable function of a dApp script.
type Callable struct {
	Name string
	Body Expr
}

// Expr is a node of the compiled expression tree.
type Expr interface {
	exprNode()
}

// Value is a runtime value produced by evaluation.
type Value interface {
	typeName() string
}

// Long is a 64-bit signed integer value.
type Long int64

func (Long) typeName() string { return "Int" }

// Boolean is a boolean value.
type Boolean bool

func (Boolean) typeName() string { return "Boolean" }

// Bytes is a byte-vector value.
type Bytes []byte

func (Bytes) typeName() string { return "ByteVector" }

// String is a string value.
type String string

func (String) typeName() string { return "String" }

// Unit is the absent value.
type Unit struct{}

func (Unit) typeName() string { return "Unit" }

// actionValue wraps a constructed Action during callable evaluation.
type actionValue struct {
	a Action
}

func (actionValue) typeName() string { return "Action" }

// Comparison operators for Cmp nodes.
type CmpOp uint8

const (
	OpGT CmpOp = iota + 1
	OpGE
	OpLT
	OpLE
)

// Arithmetic operators for Arith nodes.
type ArithOp uint8

const (
	OpAdd ArithOp = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMod
)

// Const yields a literal value.
type Const struct {
	V Value
}

// If evaluates Cond and then exactly one branch.
type If struct {
	Cond, Then, Else Expr
}

// And is short-circuit conjunction.
type And struct {
	L, R Expr
}

// Or is short-circuit disjunction.
type Or struct {
	L, R Expr
}

// Not negates a boolean.
type Not struct {
	E Expr
}

// Eq compares two values of the same type for equality.
type Eq struct {
	L, R Expr
}

// Cmp compares two integers.
type Cmp struct {
	Op   CmpOp
	L, R Expr
}

// Arith combines two integers.
type Arith struct {
	Op   ArithOp
	L, R Expr
}

// Throw aborts evaluation with a script-thrown error message.
type Throw struct {
	Msg Expr
}

// Property reads a field of the bound context. See evaluator.go for the
// recognized names.
type Property struct {
	Name string
}

// Arg reads a positional invocation argument.
type Arg struct {
	Index int
}

// Balance reads an account balance from the snapshot. Asset evaluating to
// Unit or to an all-zero byte vector means the native asset.
type Balance struct {
	Addr  Expr
	Asset Expr
}

// GetEntry reads a typed data entry from an account's storage, yielding Unit
// when the key is absent.
type GetEntry struct {
	Addr Expr
	Key  Expr
}

// ActionList is the terminal node of a callable body: it evaluates each item
// to an action and yields the ordered action list.
type ActionList struct {
	Items []Expr
}

// TransferItem constructs a TransferAction.
type TransferItem struct {
	To     Expr
	Asset  Expr // Unit means native
	Amount Expr
}

// DataItem constructs a DataAction. A Unit value constructs a DeleteAction
// tombstone instead.
type DataItem struct {
	Key   Expr
	Value Expr
}

// IssueItem constructs an IssueAction.
type IssueItem struct {
	Name        Expr
	Description Expr
	Quantity    Expr
	Decimals    Expr
	Reissuable  Expr
}

// ReissueItem constructs a ReissueAction.
type ReissueItem struct {
	Asset      Expr
	Quantity   Expr
	Reissuable Expr
}

// BurnItem constructs a BurnAction.
type BurnItem struct {
	Asset    Expr
	Quantity Expr
}

// SponsorItem constructs a SponsorFeeAction.
type SponsorItem struct {
	Asset  Expr
	MinFee Expr
}

func (Const) exprNode()        {}
func (If) exprNode()           {}
func (And) exprNode()          {}
func (Or) exprNode()           {}
func (Not) exprNode()          {}
func (Eq) exprNode()           {}
func (Cmp) exprNode()          {}
func (Arith) exprNode()        {}
func (Throw) exprNode()        {}
func (Property) exprNode()     {}
func (Arg) exprNode()          {}
func (Balance) exprNode()      {}
func (GetEntry) exprNode()     {}
func (ActionList) exprNode()   {}
func (TransferItem) exprNode() {}
func (DataItem) exprNode()     {}
func (IssueItem) exprNode()    {}
func (ReissueItem) exprNode()  {}
func (BurnItem) exprNode()     {}
func (SponsorItem) exprNode()  {}
