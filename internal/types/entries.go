// Package types: typed account data entries.
package types

// DataType enumerates the value types a data entry can hold.
type DataType uint8

// Data entry value types.
const (
	DataInteger DataType = iota + 1
	DataBoolean
	DataBinary
	DataString
)

// DataEntry is one typed key/value pair in an account's data storage.
type DataEntry struct {
	Key  string
	Type DataType

	Int  int64
	Bool bool
	Bin  []byte
	Str  string
}

// IntegerEntry builds an integer data entry.
func IntegerEntry(key string, v int64) DataEntry {
	return DataEntry{Key: key, Type: DataInteger, Int: v}
}

// BooleanEntry builds a boolean data entry.
func BooleanEntry(key string, v bool) DataEntry {
	return DataEntry{Key: key, Type: DataBoolean, Bool: v}
}

// BinaryEntry builds a binary data entry.
func BinaryEntry(key string, v []byte) DataEntry {
	return DataEntry{Key: key, Type: DataBinary, Bin: v}
}

// StringEntry builds a string data entry.
func StringEntry(key string, v string) DataEntry {
	return DataEntry{Key: key, Type: DataString, Str: v}
}

// Equal reports whether two entries hold the same key, type and value.
func (e DataEntry) Equal(other DataEntry) bool {
	if e.Key != other.Key || e.Type != other.Type {
		return false
	}
	switch e.Type {
	case DataInteger:
		return e.Int == other.Int
	case DataBoolean:
		return e.Bool == other.Bool
	case DataBinary:
		if len(e.Bin) != len(other.Bin) {
			return false
		}
		for i := range e.Bin {
			if e.Bin[i] != other.Bin[i] {
				return false
			}
		}
		return true
	case DataString:
		return e.Str == other.Str
	}
	return false
}
