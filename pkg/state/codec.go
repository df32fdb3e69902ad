package state

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/G1zm0nl/Waves/internal/types"
)

// Storage record formats, little-endian throughout.
//
//	account record: balance (8) + public key (32)
//	asset record:   issuer (26) + quantity (8) + decimals (1) + reissuable (1)
//	                + sponsor min fee (8) + name + description (uvarint strings)
//	data entry:     type (1) + value
//
// Scripts are stored separately in their own binary form (ride.EncodeScript).

const accountRecordSize = 8 + types.PublicKeySize

func encodeAccountRecord(balance int64, pk types.PublicKey) []byte {
	buf := make([]byte, accountRecordSize)
	binary.LittleEndian.PutUint64(buf, uint64(balance))
	copy(buf[8:], pk[:])
	return buf
}

func decodeAccountRecord(data []byte) (int64, types.PublicKey, error) {
	var pk types.PublicKey
	if len(data) != accountRecordSize {
		return 0, pk, fmt.Errorf("account record length %d: %w", len(data), ErrInvalidData)
	}
	balance := int64(binary.LittleEndian.Uint64(data))
	copy(pk[:], data[8:])
	return balance, pk, nil
}

func encodeAssetRecord(a *Asset) []byte {
	var buf bytes.Buffer
	buf.Write(a.Issuer[:])
	var u64 [8]byte
	binary.LittleEndian.PutUint64(u64[:], uint64(a.Quantity))
	buf.Write(u64[:])
	buf.WriteByte(a.Decimals)
	if a.Reissuable {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	binary.LittleEndian.PutUint64(u64[:], uint64(a.SponsorMinFee))
	buf.Write(u64[:])
	writeLenPrefixed(&buf, []byte(a.Name))
	writeLenPrefixed(&buf, []byte(a.Description))
	return buf.Bytes()
}

func decodeAssetRecord(id types.AssetID, data []byte) (*Asset, error) {
	const fixed = types.AddressSize + 8 + 1 + 1 + 8
	if len(data) < fixed {
		return nil, fmt.Errorf("asset record length %d: %w", len(data), ErrInvalidData)
	}
	a := &Asset{ID: id}
	offset := 0
	copy(a.Issuer[:], data[offset:offset+types.AddressSize])
	offset += types.AddressSize
	a.Quantity = int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8
	a.Decimals = data[offset]
	offset++
	a.Reissuable = data[offset] == 1
	offset++
	a.SponsorMinFee = int64(binary.LittleEndian.Uint64(data[offset:]))
	offset += 8

	name, n, err := readLenPrefixed(data[offset:])
	if err != nil {
		return nil, err
	}
	offset += n
	desc, _, err := readLenPrefixed(data[offset:])
	if err != nil {
		return nil, err
	}
	a.Name = string(name)
	a.Description = string(desc)
	return a, nil
}

func encodeDataEntry(e types.DataEntry) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(e.Type))
	var u64 [8]byte
	switch e.Type {
	case types.DataInteger:
		binary.LittleEndian.PutUint64(u64[:], uint64(e.Int))
		buf.Write(u64[:])
	case types.DataBoolean:
		if e.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case types.DataBinary:
		buf.Write(e.Bin)
	case types.DataString:
		buf.WriteString(e.Str)
	}
	return buf.Bytes()
}

func decodeDataEntry(key string, data []byte) (types.DataEntry, error) {
	if len(data) < 1 {
		return types.DataEntry{}, fmt.Errorf("empty data entry: %w", ErrInvalidData)
	}
	e := types.DataEntry{Key: key, Type: types.DataType(data[0])}
	payload := data[1:]
	switch e.Type {
	case types.DataInteger:
		if len(payload) != 8 {
			return types.DataEntry{}, fmt.Errorf("integer entry length %d: %w", len(payload), ErrInvalidData)
		}
		e.Int = int64(binary.LittleEndian.Uint64(payload))
	case types.DataBoolean:
		if len(payload) != 1 {
			return types.DataEntry{}, fmt.Errorf("boolean entry length %d: %w", len(payload), ErrInvalidData)
		}
		e.Bool = payload[0] == 1
	case types.DataBinary:
		e.Bin = append([]byte(nil), payload...)
	case types.DataString:
		e.Str = string(payload)
	default:
		return types.DataEntry{}, fmt.Errorf("data entry type %d: %w", e.Type, ErrInvalidData)
	}
	return e, nil
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(b)))
	buf.Write(tmp[:n])
	buf.Write(b)
}

func readLenPrefixed(data []byte) ([]byte, int, error) {
	l, n := binary.Uvarint(data)
	if n <= 0 || uint64(len(data)-n) < l {
		return nil, 0, ErrInvalidData
	}
	return data[n : n+int(l)], n + int(l), nil
}
