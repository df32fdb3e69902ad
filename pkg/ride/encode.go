package ride

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
)

// Binary script format:
//
//	magic (1) + version (1) + kind (1) + complexity (8, little-endian)
//	+ verifier flag (1) [+ verifier expr]
//	+ callable count (uvarint) + callables (name + body expr)
//
// Expressions are tag-prefixed and encoded recursively.
const (
	scriptMagic   = byte(0x52)
	scriptVersion = byte(1)
)

// Expression tags.
const (
	tagConst = byte(iota + 1)
	tagIf
	tagAnd
	tagOr
	tagNot
	tagEq
	tagCmp
	tagArith
	tagThrow
	tagProperty
	tagArg
	tagBalance
	tagGetEntry
	tagActionList
	tagTransferItem
	tagDataItem
	tagIssueItem
	tagReissueItem
	tagBurnItem
	tagSponsorItem
)

// Value tags.
const (
	valLong = byte(iota + 1)
	valBoolean
	valBytes
	valString
	valUnit
)

var (
	// ErrBadScriptBytes is returned when stored script bytes are malformed.
	ErrBadScriptBytes = errors.New("malformed script bytes")
)

// EncodeScript serializes a script to its storage form.
func EncodeScript(s *Script) []byte {
	var buf bytes.Buffer
	buf.WriteByte(scriptMagic)
	buf.WriteByte(scriptVersion)
	buf.WriteByte(byte(s.Kind))

	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], s.Complexity)
	buf.Write(u64[:])

	if s.Verifier != nil {
		buf.WriteByte(1)
		encodeExpr(&buf, s.Verifier)
	} else {
		buf.WriteByte(0)
	}

	writeUvarint(&buf, uint64(len(s.Callables)))
	for _, name := range sortedCallableNames(s.Callables) {
		writeString(&buf, name)
		encodeExpr(&buf, s.Callables[name].Body)
	}
	return buf.Bytes()
}

// DecodeScript parses a script from its storage form.
func DecodeScript(data []byte) (*Script, error) {
	d := &decoder{buf: data}
	magic, err := d.byte()
	if err != nil || magic != scriptMagic {
		return nil, ErrBadScriptBytes
	}
	version, err := d.byte()
	if err != nil || version != scriptVersion {
		return nil, fmt.Errorf("script version %d: %w", version, ErrBadScriptBytes)
	}
	kind, err := d.byte()
	if err != nil {
		return nil, ErrBadScriptBytes
	}
	complexity, err := d.uint64()
	if err != nil {
		return nil, ErrBadScriptBytes
	}

	s := &Script{Kind: ScriptKind(kind), Complexity: complexity}

	hasVerifier, err := d.byte()
	if err != nil {
		return nil, ErrBadScriptBytes
	}
	if hasVerifier == 1 {
		s.Verifier, err = decodeExpr(d)
		if err != nil {
			return nil, err
		}
	}

	n, err := d.uvarint()
	if err != nil {
		return nil, ErrBadScriptBytes
	}
	if n > 0 {
		s.Callables = make(map[string]*Callable, n)
	}
	for i := uint64(0); i < n; i++ {
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		body, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		s.Callables[name] = &Callable{Name: name, Body: body}
	}
	return s, nil
}

func encodeExpr(buf *bytes.Buffer, e Expr) {
	switch n := e.(type) {
	case Const:
		buf.WriteByte(tagConst)
		encodeValue(buf, n.V)
	case If:
		buf.WriteByte(tagIf)
		encodeExpr(buf, n.Cond)
		encodeExpr(buf, n.Then)
		encodeExpr(buf, n.Else)
	case And:
		buf.WriteByte(tagAnd)
		encodeExpr(buf, n.L)
		encodeExpr(buf, n.R)
	case Or:
		buf.WriteByte(tagOr)
		encodeExpr(buf, n.L)
		encodeExpr(buf, n.R)
	case Not:
		buf.WriteByte(tagNot)
		encodeExpr(buf, n.E)
	case Eq:
		buf.WriteByte(tagEq)
		encodeExpr(buf, n.L)
		encodeExpr(buf, n.R)
	case Cmp:
		buf.WriteByte(tagCmp)
		buf.WriteByte(byte(n.Op))
		encodeExpr(buf, n.L)
		encodeExpr(buf, n.R)
	case Arith:
		buf.WriteByte(tagArith)
		buf.WriteByte(byte(n.Op))
		encodeExpr(buf, n.L)
		encodeExpr(buf, n.R)
	case Throw:
		buf.WriteByte(tagThrow)
		encodeExpr(buf, n.Msg)
	case Property:
		buf.WriteByte(tagProperty)
		writeString(buf, n.Name)
	case Arg:
		buf.WriteByte(tagArg)
		writeUvarint(buf, uint64(n.Index))
	case Balance:
		buf.WriteByte(tagBalance)
		encodeExpr(buf, n.Addr)
		encodeOptExpr(buf, n.Asset)
	case GetEntry:
		buf.WriteByte(tagGetEntry)
		encodeExpr(buf, n.Addr)
		encodeExpr(buf, n.Key)
	case ActionList:
		buf.WriteByte(tagActionList)
		writeUvarint(buf, uint64(len(n.Items)))
		for _, item := range n.Items {
			encodeExpr(buf, item)
		}
	case TransferItem:
		buf.WriteByte(tagTransferItem)
		encodeExpr(buf, n.To)
		encodeOptExpr(buf, n.Asset)
		encodeExpr(buf, n.Amount)
	case DataItem:
		buf.WriteByte(tagDataItem)
		encodeExpr(buf, n.Key)
		encodeExpr(buf, n.Value)
	case IssueItem:
		buf.WriteByte(tagIssueItem)
		encodeExpr(buf, n.Name)
		encodeExpr(buf, n.Description)
		encodeExpr(buf, n.Quantity)
		encodeExpr(buf, n.Decimals)
		encodeExpr(buf, n.Reissuable)
	case ReissueItem:
		buf.WriteByte(tagReissueItem)
		encodeExpr(buf, n.Asset)
		encodeExpr(buf, n.Quantity)
		encodeExpr(buf, n.Reissuable)
	case BurnItem:
		buf.WriteByte(tagBurnItem)
		encodeExpr(buf, n.Asset)
		encodeExpr(buf, n.Quantity)
	case SponsorItem:
		buf.WriteByte(tagSponsorItem)
		encodeExpr(buf, n.Asset)
		encodeExpr(buf, n.MinFee)
	}
}

func decodeExpr(d *decoder) (Expr, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, ErrBadScriptBytes
	}
	switch tag {
	case tagConst:
		v, err := decodeValue(d)
		if err != nil {
			return nil, err
		}
		return Const{V: v}, nil
	case tagIf:
		cond, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		then, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		els, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return If{Cond: cond, Then: then, Else: els}, nil
	case tagAnd, tagOr, tagEq:
		l, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagAnd:
			return And{L: l, R: r}, nil
		case tagOr:
			return Or{L: l, R: r}, nil
		default:
			return Eq{L: l, R: r}, nil
		}
	case tagNot:
		e, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return Not{E: e}, nil
	case tagCmp:
		op, err := d.byte()
		if err != nil {
			return nil, ErrBadScriptBytes
		}
		l, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return Cmp{Op: CmpOp(op), L: l, R: r}, nil
	case tagArith:
		op, err := d.byte()
		if err != nil {
			return nil, ErrBadScriptBytes
		}
		l, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		r, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return Arith{Op: ArithOp(op), L: l, R: r}, nil
	case tagThrow:
		msg, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return Throw{Msg: msg}, nil
	case tagProperty:
		name, err := d.string()
		if err != nil {
			return nil, err
		}
		return Property{Name: name}, nil
	case tagArg:
		idx, err := d.uvarint()
		if err != nil {
			return nil, ErrBadScriptBytes
		}
		return Arg{Index: int(idx)}, nil
	case tagBalance:
		addr, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		asset, err := decodeOptExpr(d)
		if err != nil {
			return nil, err
		}
		return Balance{Addr: addr, Asset: asset}, nil
	case tagGetEntry:
		addr, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		key, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return GetEntry{Addr: addr, Key: key}, nil
	case tagActionList:
		n, err := d.uvarint()
		if err != nil {
			return nil, ErrBadScriptBytes
		}
		items := make([]Expr, 0, n)
		for i := uint64(0); i < n; i++ {
			item, err := decodeExpr(d)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return ActionList{Items: items}, nil
	case tagTransferItem:
		to, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		asset, err := decodeOptExpr(d)
		if err != nil {
			return nil, err
		}
		amount, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return TransferItem{To: to, Asset: asset, Amount: amount}, nil
	case tagDataItem:
		key, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		value, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return DataItem{Key: key, Value: value}, nil
	case tagIssueItem:
		name, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		desc, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		qty, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		dec, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		reissuable, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return IssueItem{Name: name, Description: desc, Quantity: qty, Decimals: dec, Reissuable: reissuable}, nil
	case tagReissueItem:
		asset, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		qty, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		reissuable, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return ReissueItem{Asset: asset, Quantity: qty, Reissuable: reissuable}, nil
	case tagBurnItem:
		asset, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		qty, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return BurnItem{Asset: asset, Quantity: qty}, nil
	case tagSponsorItem:
		asset, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		minFee, err := decodeExpr(d)
		if err != nil {
			return nil, err
		}
		return SponsorItem{Asset: asset, MinFee: minFee}, nil
	}
	return nil, fmt.Errorf("expression tag %d: %w", tag, ErrBadScriptBytes)
}

// EncodeValue serializes a runtime value. Transaction ids cover invocation
// arguments through this encoding.
func EncodeValue(v Value) []byte {
	var buf bytes.Buffer
	encodeValue(&buf, v)
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v Value) {
	switch val := v.(type) {
	case Long:
		buf.WriteByte(valLong)
		var u64 [8]byte
		binary.LittleEndian.PutUint64(u64[:], uint64(val))
		buf.Write(u64[:])
	case Boolean:
		buf.WriteByte(valBoolean)
		if val {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case Bytes:
		buf.WriteByte(valBytes)
		writeUvarint(buf, uint64(len(val)))
		buf.Write(val)
	case String:
		buf.WriteByte(valString)
		writeString(buf, string(val))
	case Unit:
		buf.WriteByte(valUnit)
	}
}

func decodeValue(d *decoder) (Value, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, ErrBadScriptBytes
	}
	switch tag {
	case valLong:
		v, err := d.uint64()
		if err != nil {
			return nil, ErrBadScriptBytes
		}
		return Long(v), nil
	case valBoolean:
		b, err := d.byte()
		if err != nil {
			return nil, ErrBadScriptBytes
		}
		return Boolean(b == 1), nil
	case valBytes:
		n, err := d.uvarint()
		if err != nil {
			return nil, ErrBadScriptBytes
		}
		b, err := d.bytes(int(n))
		if err != nil {
			return nil, ErrBadScriptBytes
		}
		return Bytes(b), nil
	case valString:
		s, err := d.string()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case valUnit:
		return Unit{}, nil
	}
	return nil, fmt.Errorf("value tag %d: %w", tag, ErrBadScriptBytes)
}

func encodeOptExpr(buf *bytes.Buffer, e Expr) {
	if e == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	encodeExpr(buf, e)
}

func decodeOptExpr(d *decoder) (Expr, error) {
	present, err := d.byte()
	if err != nil {
		return nil, ErrBadScriptBytes
	}
	if present == 0 {
		return nil, nil
	}
	return decodeExpr(d)
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func sortedCallableNames(callables map[string]*Callable) []string {
	names := make([]string, 0, len(callables))
	for name := range callables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// decoder reads the binary script format sequentially.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) byte() (byte, error) {
	if d.off >= len(d.buf) {
		return 0, ErrBadScriptBytes
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if n < 0 || d.off+n > len(d.buf) {
		return nil, ErrBadScriptBytes
	}
	b := make([]byte, n)
	copy(b, d.buf[d.off:d.off+n])
	d.off += n
	return b, nil
}

func (d *decoder) uint64() (uint64, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 {
		return 0, ErrBadScriptBytes
	}
	d.off += n
	return v, nil
}

func (d *decoder) string() (string, error) {
	n, err := d.uvarint()
	if err != nil {
		return "", err
	}
	b, err := d.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
