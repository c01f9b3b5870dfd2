package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Wire adapts a Value to encoding/json using the tagged wire form:
//
//	{"array":{"shape":[2],"data":{"i64":[1,2]}}}
//	{"jagged":{"data_type":"f64","columns":[{"f64":[0.5]},null]}}
//	{"hashmap":{"key_type":"string","entries":{"a":{...}}}}
type Wire struct {
	Value Value
}

// MarshalJSON implements json.Marshaler.
func (w Wire) MarshalJSON() ([]byte, error) {
	return Encode(w.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *Wire) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	w.Value = v
	return nil
}

type wireValue struct {
	Array   *wireArray   `json:"array,omitempty"`
	Jagged  *wireJagged  `json:"jagged,omitempty"`
	Hashmap *wireHashmap `json:"hashmap,omitempty"`
}

type wireArray struct {
	Shape []int64     `json:"shape"`
	Data  *wireVector `json:"data"`
}

type wireJagged struct {
	DataType DataType      `json:"data_type"`
	Columns  []*wireVector `json:"columns"`
}

type wireHashmap struct {
	KeyType DataType                   `json:"key_type"`
	Entries map[string]json.RawMessage `json:"entries"`
}

// wireVector holds exactly one non-nil buffer.
type wireVector struct {
	Bool   *[]bool    `json:"bool,omitempty"`
	I64    *[]int64   `json:"i64,omitempty"`
	F64    *[]float64 `json:"f64,omitempty"`
	String *[]string  `json:"string,omitempty"`
}

// Encode serializes v to its wire form.
func Encode(v Value) ([]byte, error) {
	w, err := toWire(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// Decode parses the wire form produced by Encode.
func Decode(data []byte) (Value, error) {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return fromWire(&w)
}

func toWire(v Value) (*wireValue, error) {
	switch t := v.(type) {
	case Array:
		if t.Data == nil {
			return nil, fmt.Errorf("%w: array without data", ErrUnsupported)
		}
		shape := t.Shape
		if shape == nil {
			shape = []int64{}
		}
		if err := checkShape(shape, t.Data.Len()); err != nil {
			return nil, err
		}
		data, err := vectorToWire(t.Data)
		if err != nil {
			return nil, err
		}
		return &wireValue{Array: &wireArray{Shape: shape, Data: data}}, nil

	case Jagged:
		columns := make([]*wireVector, len(t.Columns))
		for i, col := range t.Columns {
			if col == nil {
				continue
			}
			if col.DataType() != t.Type {
				return nil, fmt.Errorf("%w: column %d is %s, want %s", ErrUnsupported, i, col.DataType(), t.Type)
			}
			wv, err := vectorToWire(col)
			if err != nil {
				return nil, fmt.Errorf("column %d: %w", i, err)
			}
			columns[i] = wv
		}
		return &wireValue{Jagged: &wireJagged{DataType: t.Type, Columns: columns}}, nil

	case Hashmap[string]:
		return hashmapToWire(t, TypeString, func(k string) string { return k })
	case Hashmap[bool]:
		return hashmapToWire(t, TypeBool, strconv.FormatBool)
	case Hashmap[int64]:
		return hashmapToWire(t, TypeI64, func(k int64) string { return strconv.FormatInt(k, 10) })

	default:
		return nil, fmt.Errorf("%w: value type %T", ErrUnsupported, v)
	}
}

func hashmapToWire[K HashKey](m Hashmap[K], keyType DataType, key func(K) string) (*wireValue, error) {
	entries := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		encoded, err := Encode(v)
		if err != nil {
			return nil, fmt.Errorf("hashmap[%v]: %w", k, err)
		}
		entries[key(k)] = encoded
	}
	return &wireValue{Hashmap: &wireHashmap{KeyType: keyType, Entries: entries}}, nil
}

func vectorToWire(v Vector) (*wireVector, error) {
	switch d := v.(type) {
	case Bools:
		s := []bool(d)
		if s == nil {
			s = []bool{}
		}
		return &wireVector{Bool: &s}, nil
	case Ints:
		s := []int64(d)
		if s == nil {
			s = []int64{}
		}
		return &wireVector{I64: &s}, nil
	case Floats:
		s := []float64(d)
		for i, f := range s {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("%w: non-finite float at %d", ErrUnsupported, i)
			}
		}
		if s == nil {
			s = []float64{}
		}
		return &wireVector{F64: &s}, nil
	case Strings:
		s := []string(d)
		if s == nil {
			s = []string{}
		}
		return &wireVector{String: &s}, nil
	default:
		return nil, fmt.Errorf("%w: vector type %T", ErrUnsupported, v)
	}
}

func fromWire(w *wireValue) (Value, error) {
	set := 0
	for _, present := range []bool{w.Array != nil, w.Jagged != nil, w.Hashmap != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("decode value: expected exactly one of array, jagged, hashmap (got %d)", set)
	}

	switch {
	case w.Array != nil:
		if w.Array.Data == nil {
			return nil, fmt.Errorf("decode value: array without data")
		}
		data, err := vectorFromWire(w.Array.Data)
		if err != nil {
			return nil, err
		}
		return NewArray(w.Array.Shape, data)

	case w.Jagged != nil:
		columns := make([]Vector, len(w.Jagged.Columns))
		for i, col := range w.Jagged.Columns {
			if col == nil {
				continue
			}
			v, err := vectorFromWire(col)
			if err != nil {
				return nil, fmt.Errorf("column %d: %w", i, err)
			}
			columns[i] = v
		}
		return NewJagged(w.Jagged.DataType, columns...)

	default:
		switch w.Hashmap.KeyType {
		case TypeString:
			return hashmapFromWire(w.Hashmap, func(s string) (string, error) { return s, nil })
		case TypeBool:
			return hashmapFromWire(w.Hashmap, strconv.ParseBool)
		case TypeI64:
			return hashmapFromWire(w.Hashmap, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
		default:
			return nil, fmt.Errorf("decode value: hashmap key type %s", w.Hashmap.KeyType)
		}
	}
}

func hashmapFromWire[K HashKey](w *wireHashmap, parse func(string) (K, error)) (Value, error) {
	out := make(Hashmap[K], len(w.Entries))
	for raw, encoded := range w.Entries {
		k, err := parse(raw)
		if err != nil {
			return nil, fmt.Errorf("decode value: hashmap key %q: %w", raw, err)
		}
		v, err := Decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("hashmap[%q]: %w", raw, err)
		}
		out[k] = v
	}
	return out, nil
}

func vectorFromWire(w *wireVector) (Vector, error) {
	var out Vector
	set := 0
	if w.Bool != nil {
		out, set = Bools(*w.Bool), set+1
	}
	if w.I64 != nil {
		out, set = Ints(*w.I64), set+1
	}
	if w.F64 != nil {
		out, set = Floats(*w.F64), set+1
	}
	if w.String != nil {
		out, set = Strings(*w.String), set+1
	}
	if set != 1 {
		return nil, fmt.Errorf("decode value: expected exactly one buffer type (got %d)", set)
	}
	return out, nil
}
