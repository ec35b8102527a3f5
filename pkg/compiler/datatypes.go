package compiler

import (
	"fmt"
	"math"
)

// DataType is the scalar or array type of a value.
type DataType int

const (
	DTUndefined DataType = iota
	DTUbyte
	DTByte
	DTUword
	DTWord
	DTFloat
	DTStr
	DTArrayUbyte
	DTArrayByte
	DTArrayUword
	DTArrayWord
	DTArrayFloat
	DTStruct // heterogeneous record, flattened before codegen
)

var dataTypeNames = map[DataType]string{
	DTUndefined:  "<undefined>",
	DTUbyte:      "ubyte",
	DTByte:       "byte",
	DTUword:      "uword",
	DTWord:       "word",
	DTFloat:      "float",
	DTStr:        "str",
	DTArrayUbyte: "ubyte[]",
	DTArrayByte:  "byte[]",
	DTArrayUword: "uword[]",
	DTArrayWord:  "word[]",
	DTArrayFloat: "float[]",
	DTStruct:     "struct",
}

func (dt DataType) String() string {
	if s, ok := dataTypeNames[dt]; ok {
		return s
	}
	return fmt.Sprintf("DataType(%d)", int(dt))
}

// Type predicates, mirroring the ByteDatatypes/WordDatatypes/... sets.

func (dt DataType) IsByte() bool    { return dt == DTUbyte || dt == DTByte }
func (dt DataType) IsWord() bool    { return dt == DTUword || dt == DTWord }
func (dt DataType) IsInteger() bool { return dt.IsByte() || dt.IsWord() }
func (dt DataType) IsNumeric() bool { return dt.IsInteger() || dt == DTFloat }
func (dt DataType) IsArray() bool {
	switch dt {
	case DTArrayUbyte, DTArrayByte, DTArrayUword, DTArrayWord, DTArrayFloat:
		return true
	}
	return false
}
func (dt DataType) IsIterable() bool { return dt.IsArray() || dt == DTStr }

func (dt DataType) IsSigned() bool {
	switch dt {
	case DTByte, DTWord, DTFloat, DTArrayByte, DTArrayWord, DTArrayFloat:
		return true
	}
	return false
}

// ElementType returns the element type of an array (or str) type.
func (dt DataType) ElementType() DataType {
	switch dt {
	case DTArrayUbyte, DTStr:
		return DTUbyte
	case DTArrayByte:
		return DTByte
	case DTArrayUword:
		return DTUword
	case DTArrayWord:
		return DTWord
	case DTArrayFloat:
		return DTFloat
	}
	return DTUndefined
}

// ArrayOf returns the array type with this scalar element type.
func (dt DataType) ArrayOf() DataType {
	switch dt {
	case DTUbyte:
		return DTArrayUbyte
	case DTByte:
		return DTArrayByte
	case DTUword:
		return DTArrayUword
	case DTWord:
		return DTArrayWord
	case DTFloat:
		return DTArrayFloat
	}
	return DTUndefined
}

// ByteSize returns the storage size of one value of this type.
// MFLPT5 floats occupy 5 bytes.
func (dt DataType) ByteSize() int {
	switch dt {
	case DTUbyte, DTByte:
		return 1
	case DTUword, DTWord:
		return 2
	case DTFloat:
		return 5
	}
	return 0
}

// LargerOf returns the wider of two numeric types following the
// promotion lattice ubyte < byte < uword < word < float.
func LargerOf(a, b DataType) DataType {
	rank := func(dt DataType) int {
		switch dt {
		case DTUbyte:
			return 1
		case DTByte:
			return 2
		case DTUword:
			return 3
		case DTWord:
			return 4
		case DTFloat:
			return 5
		}
		return 0
	}
	if rank(a) >= rank(b) {
		return a
	}
	return b
}

// MinValue and MaxValue bound the representable range of a numeric type.
func (dt DataType) MinValue() float64 {
	switch dt {
	case DTUbyte, DTUword:
		return 0
	case DTByte:
		return -128
	case DTWord:
		return -32768
	case DTFloat:
		return -floatMax5Byte
	}
	return 0
}

func (dt DataType) MaxValue() float64 {
	switch dt {
	case DTUbyte:
		return 255
	case DTByte:
		return 127
	case DTUword:
		return 65535
	case DTWord:
		return 32767
	case DTFloat:
		return floatMax5Byte
	}
	return 0
}

// ValueFits reports whether v is representable in dt without loss
// (for the integer types, v must also be integral).
func (dt DataType) ValueFits(v float64) bool {
	if dt == DTFloat {
		return math.Abs(v) <= floatMax5Byte
	}
	if v != math.Trunc(v) {
		return false
	}
	return v >= dt.MinValue() && v <= dt.MaxValue()
}

// SmallestIntType returns the smallest integer type that holds v,
// preferring unsigned types for non-negative values.
func SmallestIntType(v float64) DataType {
	switch {
	case v >= 0 && v <= 255:
		return DTUbyte
	case v >= -128 && v <= 127:
		return DTByte
	case v >= 0 && v <= 65535:
		return DTUword
	case v >= -32768 && v <= 32767:
		return DTWord
	}
	return DTFloat
}

// floatMax5Byte is the largest magnitude representable in the 5-byte
// MFLPT floating point format used by the target ROMs.
const floatMax5Byte = 1.7014118345e+38

// Mflpt5 encodes a float into the 5-byte MFLPT format
// (exponent byte, 4 mantissa bytes, sign in mantissa bit 7).
func Mflpt5(value float64) ([5]byte, error) {
	var out [5]byte
	if value == 0 {
		return out, nil
	}
	if math.Abs(value) > floatMax5Byte {
		return out, fmt.Errorf("float overflow for 5-byte format: %g", value)
	}
	sign := byte(0)
	if value < 0 {
		sign = 0x80
		value = -value
	}
	exponent := 128
	for value >= 1 {
		value /= 2
		exponent++
	}
	for value < 0.5 {
		value *= 2
		exponent--
	}
	if exponent < 1 {
		// underflows to zero
		return [5]byte{}, nil
	}
	if exponent > 255 {
		return out, fmt.Errorf("float overflow for 5-byte format")
	}
	mantissa := uint32(math.Round(value * 0x100000000))
	// rounding may push the mantissa to 2^32
	if mantissa == 0 {
		exponent++
		mantissa = 0x80000000
	}
	out[0] = byte(exponent)
	out[1] = byte(mantissa>>24)&0x7f | sign
	out[2] = byte(mantissa >> 16)
	out[3] = byte(mantissa >> 8)
	out[4] = byte(mantissa)
	return out, nil
}

// wrapToType wraps an evaluated numeric result into the value range of
// the given integer type, matching the target machine's modular
// arithmetic. Floats pass through unchanged.
func wrapToType(v float64, dt DataType) float64 {
	switch dt {
	case DTUbyte:
		return float64(uint8(int64(v)))
	case DTByte:
		return float64(int8(int64(v)))
	case DTUword:
		return float64(uint16(int64(v)))
	case DTWord:
		return float64(int16(int64(v)))
	}
	return v
}
