package value

import (
	"fmt"
	"math"
	"reflect"
	"slices"
)

// kindTypes is the closed conversion table from Go kinds to buffer types.
var kindTypes = map[reflect.Kind]DataType{
	reflect.Bool:    TypeBool,
	reflect.Int:     TypeI64,
	reflect.Int8:    TypeI64,
	reflect.Int16:   TypeI64,
	reflect.Int32:   TypeI64,
	reflect.Int64:   TypeI64,
	reflect.Uint:    TypeI64,
	reflect.Uint8:   TypeI64,
	reflect.Uint16:  TypeI64,
	reflect.Uint32:  TypeI64,
	reflect.Uint64:  TypeI64,
	reflect.Float32: TypeF64,
	reflect.Float64: TypeF64,
	reflect.String:  TypeString,
}

// Of converts a native Go value into a Value.
//
// FormatAuto picks Hashmap for maps and Array for everything else.
// Arrays accept scalars and rectangular nested slices; integer and float
// elements mixed in one array are promoted to float. Jagged accepts a slice of
// columns (nil entries are null columns) or a flat slice, which becomes one
// column. A Value passed in is returned unchanged.
func Of(native any, f Format) (Value, error) {
	if v, ok := native.(Value); ok {
		return v, nil
	}
	rv := indirect(reflect.ValueOf(native))
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: nil", ErrUnsupported)
	}

	switch f {
	case FormatAuto:
		if rv.Kind() == reflect.Map {
			return hashmapOf(rv)
		}
		return arrayOf(rv)
	case FormatArray:
		return arrayOf(rv)
	case FormatJagged:
		return jaggedOf(rv)
	case FormatHashmap:
		return hashmapOf(rv)
	default:
		return nil, fmt.Errorf("%w: format %s", ErrUnsupported, f)
	}
}

// MustOf is Of for values known to be representable, such as test fixtures.
func MustOf(native any, f Format) Value {
	v, err := Of(native, f)
	if err != nil {
		panic(err)
	}
	return v
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.IsValid() && (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer) {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

func isList(rv reflect.Value) bool {
	return rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array)
}

func arrayOf(rv reflect.Value) (Value, error) {
	// The shape is read along the first element of every level, then every
	// element is checked against it while flattening.
	shape := []int64{}
	for cur := rv; isList(cur); {
		shape = append(shape, int64(cur.Len()))
		if cur.Len() == 0 {
			break
		}
		cur = indirect(cur.Index(0))
	}

	var leaves []reflect.Value
	if err := flatten(rv, shape, &leaves); err != nil {
		return nil, err
	}
	data, err := vectorOf(leaves)
	if err != nil {
		return nil, err
	}
	return Array{Shape: shape, Data: data}, nil
}

func flatten(rv reflect.Value, shape []int64, leaves *[]reflect.Value) error {
	rv = indirect(rv)
	if len(shape) == 0 {
		if !rv.IsValid() {
			return fmt.Errorf("%w: null array element", ErrUnsupported)
		}
		if isList(rv) {
			return fmt.Errorf("%w: ragged array", ErrUnsupported)
		}
		*leaves = append(*leaves, rv)
		return nil
	}
	if !isList(rv) || int64(rv.Len()) != shape[0] {
		return fmt.Errorf("%w: ragged array", ErrUnsupported)
	}
	for i := range rv.Len() {
		if err := flatten(rv.Index(i), shape[1:], leaves); err != nil {
			return err
		}
	}
	return nil
}

// vectorOf builds a buffer from scalar leaves. An empty leaf set becomes an
// empty float buffer.
func vectorOf(leaves []reflect.Value) (Vector, error) {
	if len(leaves) == 0 {
		return Floats{}, nil
	}

	seen := make(map[DataType]bool)
	for _, leaf := range leaves {
		t, ok := kindTypes[leaf.Kind()]
		if !ok {
			return nil, fmt.Errorf("%w: element kind %s", ErrUnsupported, leaf.Kind())
		}
		seen[t] = true
	}

	var t DataType
	switch {
	case len(seen) == 1:
		for only := range seen {
			t = only
		}
	case len(seen) == 2 && seen[TypeI64] && seen[TypeF64]:
		t = TypeF64
	default:
		return nil, fmt.Errorf("%w: mixed element types", ErrUnsupported)
	}

	switch t {
	case TypeBool:
		out := make(Bools, len(leaves))
		for i, leaf := range leaves {
			out[i] = leaf.Bool()
		}
		return out, nil
	case TypeI64:
		out := make(Ints, len(leaves))
		for i, leaf := range leaves {
			n, err := intOf(leaf)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case TypeF64:
		out := make(Floats, len(leaves))
		for i, leaf := range leaves {
			if leaf.CanFloat() {
				out[i] = leaf.Float()
				continue
			}
			n, err := intOf(leaf)
			if err != nil {
				return nil, err
			}
			out[i] = float64(n)
		}
		return out, nil
	default:
		out := make(Strings, len(leaves))
		for i, leaf := range leaves {
			out[i] = leaf.String()
		}
		return out, nil
	}
}

func intOf(rv reflect.Value) (int64, error) {
	if rv.CanInt() {
		return rv.Int(), nil
	}
	u := rv.Uint()
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d overflows int64", ErrUnsupported, u)
	}
	return int64(u), nil
}

func jaggedOf(rv reflect.Value) (Value, error) {
	if !isList(rv) {
		return nil, fmt.Errorf("%w: jagged value must be a slice", ErrUnsupported)
	}

	nested := false
	for i := range rv.Len() {
		if e := indirect(rv.Index(i)); isList(e) {
			nested = true
			break
		}
	}

	var columns []Vector
	if !nested {
		col, err := columnOf(rv)
		if err != nil {
			return nil, err
		}
		columns = []Vector{col}
	} else {
		columns = make([]Vector, rv.Len())
		for i := range rv.Len() {
			e := indirect(rv.Index(i))
			switch {
			case !e.IsValid(), e.Kind() == reflect.Slice && e.IsNil():
				columns[i] = nil
			case isList(e):
				col, err := columnOf(e)
				if err != nil {
					return nil, fmt.Errorf("column %d: %w", i, err)
				}
				columns[i] = col
			default:
				col, err := vectorOf([]reflect.Value{e})
				if err != nil {
					return nil, fmt.Errorf("column %d: %w", i, err)
				}
				columns[i] = col
			}
		}
	}

	t := TypeF64
	for _, col := range columns {
		if col != nil && col.Len() > 0 {
			t = col.DataType()
			break
		}
	}
	for i, col := range columns {
		if col != nil && col.Len() == 0 && col.DataType() != t {
			columns[i] = emptyVector(t)
		}
	}
	return NewJagged(t, columns...)
}

func columnOf(rv reflect.Value) (Vector, error) {
	leaves := make([]reflect.Value, 0, rv.Len())
	for i := range rv.Len() {
		e := indirect(rv.Index(i))
		if !e.IsValid() || isList(e) {
			return nil, fmt.Errorf("%w: jagged column elements must be scalars", ErrUnsupported)
		}
		leaves = append(leaves, e)
	}
	return vectorOf(leaves)
}

func emptyVector(t DataType) Vector {
	switch t {
	case TypeBool:
		return Bools{}
	case TypeI64:
		return Ints{}
	case TypeString:
		return Strings{}
	default:
		return Floats{}
	}
}

func hashmapOf(rv reflect.Value) (Value, error) {
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("%w: hashmap value must be a map", ErrUnsupported)
	}
	if rv.Len() == 0 {
		return Hashmap[string]{}, nil
	}

	var keyType DataType
	first := true
	iter := rv.MapRange()
	for iter.Next() {
		k := indirect(iter.Key())
		t, ok := kindTypes[k.Kind()]
		if !ok || t == TypeF64 {
			return nil, fmt.Errorf("%w: hashmap key kind %s", ErrUnsupported, k.Kind())
		}
		if !first && t != keyType {
			return nil, fmt.Errorf("%w: mixed hashmap key types", ErrUnsupported)
		}
		keyType, first = t, false
	}

	switch keyType {
	case TypeString:
		return fillHashmap(rv, func(k reflect.Value) (string, error) { return k.String(), nil })
	case TypeBool:
		return fillHashmap(rv, func(k reflect.Value) (bool, error) { return k.Bool(), nil })
	default:
		return fillHashmap(rv, intOf)
	}
}

func fillHashmap[K HashKey](rv reflect.Value, key func(reflect.Value) (K, error)) (Hashmap[K], error) {
	out := make(Hashmap[K], rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := key(indirect(iter.Key()))
		if err != nil {
			return nil, err
		}
		v, err := Of(iter.Value().Interface(), FormatAuto)
		if err != nil {
			return nil, fmt.Errorf("hashmap[%v]: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Native converts a Value back into plain Go values: a scalar or typed slices
// for arrays ([]T, [][]T, nested []any above two dimensions), []any of typed
// columns for jagged values (nil for null columns) and map[K]any for hashmaps.
func Native(v Value) any {
	switch t := v.(type) {
	case Array:
		return arrayNative(t)
	case Jagged:
		out := make([]any, len(t.Columns))
		for i, col := range t.Columns {
			if col != nil {
				out[i] = vectorNative(col)
			}
		}
		return out
	case Hashmap[string]:
		return hashmapNative(t)
	case Hashmap[bool]:
		return hashmapNative(t)
	case Hashmap[int64]:
		return hashmapNative(t)
	default:
		return nil
	}
}

func vectorNative(v Vector) any {
	switch d := v.(type) {
	case Bools:
		return slices.Clone([]bool(d))
	case Ints:
		return slices.Clone([]int64(d))
	case Floats:
		return slices.Clone([]float64(d))
	case Strings:
		return slices.Clone([]string(d))
	default:
		return nil
	}
}

func arrayNative(a Array) any {
	switch d := a.Data.(type) {
	case Bools:
		return shaped([]bool(d), a.Shape)
	case Ints:
		return shaped([]int64(d), a.Shape)
	case Floats:
		return shaped([]float64(d), a.Shape)
	case Strings:
		return shaped([]string(d), a.Shape)
	default:
		return nil
	}
}

func shaped[T any](data []T, shape []int64) any {
	switch len(shape) {
	case 0:
		if len(data) == 0 {
			return nil
		}
		return data[0]
	case 1:
		return slices.Clone(data)
	case 2:
		rows := make([][]T, shape[0])
		width := int(shape[1])
		for i := range rows {
			rows[i] = slices.Clone(data[i*width : (i+1)*width])
		}
		return rows
	default:
		out := make([]any, shape[0])
		if shape[0] == 0 {
			return out
		}
		stride := len(data) / int(shape[0])
		for i := range out {
			out[i] = shaped(data[i*stride:(i+1)*stride], shape[1:])
		}
		return out
	}
}

func hashmapNative[K HashKey](m Hashmap[K]) map[K]any {
	out := make(map[K]any, len(m))
	for k, v := range m {
		out[k] = Native(v)
	}
	return out
}
