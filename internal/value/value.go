package value

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnsupported is returned when a native value has no wire representation.
var ErrUnsupported = errors.New("unsupported value")

// DataType is the element type of a homogeneous buffer.
type DataType uint8

const (
	TypeBool DataType = iota
	TypeI64
	TypeF64
	TypeString

	numDataTypes
)

// dataTypeNames is indexed by DataType. Its length is fixed by numDataTypes,
// so adding a type without a name fails TestDataTypeTableComplete.
var dataTypeNames = [numDataTypes]string{
	TypeBool:   "bool",
	TypeI64:    "i64",
	TypeF64:    "f64",
	TypeString: "string",
}

func (t DataType) String() string {
	if t >= numDataTypes {
		return fmt.Sprintf("DataType(%d)", uint8(t))
	}
	return dataTypeNames[t]
}

// ParseDataType returns the DataType named s.
func ParseDataType(s string) (DataType, error) {
	for t, name := range dataTypeNames {
		if name == s {
			return DataType(t), nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t DataType) MarshalText() ([]byte, error) {
	if t >= numDataTypes {
		return nil, fmt.Errorf("invalid data type %d", uint8(t))
	}
	return []byte(dataTypeNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Vector is a sealed interface over flat homogeneous buffers.
// Only Bools, Ints, Floats and Strings implement it.
type Vector interface {
	DataType() DataType
	Len() int
	vector()
}

// Bools is a boolean buffer.
type Bools []bool

// Ints is a 64-bit integer buffer.
type Ints []int64

// Floats is a 64-bit float buffer.
type Floats []float64

// Strings is a string buffer.
type Strings []string

func (Bools) vector()   {}
func (Ints) vector()    {}
func (Floats) vector()  {}
func (Strings) vector() {}

func (Bools) DataType() DataType   { return TypeBool }
func (Ints) DataType() DataType    { return TypeI64 }
func (Floats) DataType() DataType  { return TypeF64 }
func (Strings) DataType() DataType { return TypeString }

func (v Bools) Len() int   { return len(v) }
func (v Ints) Len() int    { return len(v) }
func (v Floats) Len() int  { return len(v) }
func (v Strings) Len() int { return len(v) }

// Value is a sealed interface over the three wire shapes.
// Only Array, Jagged and Hashmap implement it.
type Value interface {
	value()
}

// Array is a rectangular n-dimensional array stored row-major.
// An empty Shape denotes a scalar holding exactly one element.
type Array struct {
	Shape []int64
	Data  Vector
}

// Jagged is a set of variable-length columns sharing one element type.
// A nil entry in Columns is a null column.
type Jagged struct {
	Type    DataType
	Columns []Vector
}

// HashKey constrains the key types a Hashmap may use.
type HashKey interface {
	string | bool | int64
}

// Hashmap maps string, bool or integer keys to nested values.
type Hashmap[K HashKey] map[K]Value

func (Array) value()      {}
func (Jagged) value()     {}
func (Hashmap[K]) value() {}

// NewArray validates that shape matches the buffer length.
func NewArray(shape []int64, data Vector) (Array, error) {
	if data == nil {
		return Array{}, fmt.Errorf("%w: array without data", ErrUnsupported)
	}
	if shape == nil {
		shape = []int64{}
	}
	if err := checkShape(shape, data.Len()); err != nil {
		return Array{}, err
	}
	return Array{Shape: shape, Data: data}, nil
}

// NewJagged validates that every non-null column has type t.
func NewJagged(t DataType, columns ...Vector) (Jagged, error) {
	for i, col := range columns {
		if col != nil && col.DataType() != t {
			return Jagged{}, fmt.Errorf("%w: column %d is %s, want %s", ErrUnsupported, i, col.DataType(), t)
		}
	}
	if columns == nil {
		columns = []Vector{}
	}
	return Jagged{Type: t, Columns: columns}, nil
}

// elementCount multiplies the dimensions of shape. It fails on a negative
// dimension or a product that overflows int64.
func elementCount(shape []int64) (int64, error) {
	n := int64(1)
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in shape %v", ErrUnsupported, shape)
		}
		if d != 0 && n > math.MaxInt64/d {
			return 0, fmt.Errorf("%w: shape %v overflows", ErrUnsupported, shape)
		}
		n *= d
	}
	return n, nil
}

func checkShape(shape []int64, length int) error {
	n, err := elementCount(shape)
	if err != nil {
		return err
	}
	if n != int64(length) {
		return fmt.Errorf("%w: shape %v holds %d elements, buffer has %d", ErrUnsupported, shape, n, length)
	}
	return nil
}

// Format names the wire shape of a value, or asks Of to infer it.
type Format uint8

const (
	FormatAuto Format = iota
	FormatArray
	FormatJagged
	FormatHashmap
)

var formatNames = [...]string{
	FormatAuto:    "auto",
	FormatArray:   "array",
	FormatJagged:  "jagged",
	FormatHashmap: "hashmap",
}

func (f Format) String() string {
	if int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
	return formatNames[f]
}

// ParseFormat returns the Format named s. The empty string is FormatAuto.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatAuto, nil
	}
	for f, name := range formatNames {
		if name == s {
			return Format(f), nil
		}
	}
	return 0, fmt.Errorf("unknown value format %q: must be array, jagged or hashmap", s)
}

// FormatOf reports the wire shape of v.
func FormatOf(v Value) Format {
	switch v.(type) {
	case Array:
		return FormatArray
	case Jagged:
		return FormatJagged
	case Hashmap[string], Hashmap[bool], Hashmap[int64]:
		return FormatHashmap
	default:
		return FormatAuto
	}
}
