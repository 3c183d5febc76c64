package models

import (
	"fmt"
	"sort"
)

// DType identifies the element type held by a Variable.
type DType int

const (
	Float64 DType = iota
	Int64
	Bool
	String
)

// String returns the lower-case type name.
func (d DType) String() string {
	switch d {
	case Float64:
		return "float64"
	case Int64:
		return "int64"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Variable is a labeled N-dimensional array.
type Variable struct {
	// Dims names each axis, outermost first.
	Dims []string

	// Shape holds the length of each axis in Dims.
	Shape []int

	// Data is one of []float64, []int64, []bool or []string stored in
	// row-major order.
	Data interface{}

	// Attrs carries free-form metadata such as units or mask_type.
	Attrs map[string]interface{}
}

// NewFloatVariable creates a float64 variable. The data slice is not copied.
func NewFloatVariable(dims []string, shape []int, data []float64) *Variable {
	return &Variable{Dims: dims, Shape: shape, Data: data, Attrs: map[string]interface{}{}}
}

// NewIntVariable creates an int64 variable. The data slice is not copied.
func NewIntVariable(dims []string, shape []int, data []int64) *Variable {
	return &Variable{Dims: dims, Shape: shape, Data: data, Attrs: map[string]interface{}{}}
}

// NewBoolVariable creates a boolean variable. The data slice is not copied.
func NewBoolVariable(dims []string, shape []int, data []bool) *Variable {
	return &Variable{Dims: dims, Shape: shape, Data: data, Attrs: map[string]interface{}{}}
}

// NewStringVariable creates a string variable. The data slice is not copied.
func NewStringVariable(dims []string, shape []int, data []string) *Variable {
	return &Variable{Dims: dims, Shape: shape, Data: data, Attrs: map[string]interface{}{}}
}

// DType reports the element type of the variable's data.
func (v *Variable) DType() DType {
	switch v.Data.(type) {
	case []int64:
		return Int64
	case []bool:
		return Bool
	case []string:
		return String
	default:
		return Float64
	}
}

// Len returns the number of stored elements.
func (v *Variable) Len() int {
	switch d := v.Data.(type) {
	case []float64:
		return len(d)
	case []int64:
		return len(d)
	case []bool:
		return len(d)
	case []string:
		return len(d)
	default:
		return 0
	}
}

// Size returns the number of elements implied by Shape.
func (v *Variable) Size() int {
	n := 1
	for _, s := range v.Shape {
		n *= s
	}
	return n
}

// Floats returns the float64 data, if the variable holds floats.
func (v *Variable) Floats() ([]float64, bool) {
	d, ok := v.Data.([]float64)
	return d, ok
}

// Ints returns the int64 data, if the variable holds integers.
func (v *Variable) Ints() ([]int64, bool) {
	d, ok := v.Data.([]int64)
	return d, ok
}

// Bools returns the boolean data, if the variable holds booleans.
func (v *Variable) Bools() ([]bool, bool) {
	d, ok := v.Data.([]bool)
	return d, ok
}

// Strings returns the string data, if the variable holds strings.
func (v *Variable) Strings() ([]string, bool) {
	d, ok := v.Data.([]string)
	return d, ok
}

// AsFloats returns the data converted to float64. Bools map to 0/1.
// String variables return false.
func (v *Variable) AsFloats() ([]float64, bool) {
	switch d := v.Data.(type) {
	case []float64:
		return d, true
	case []int64:
		out := make([]float64, len(d))
		for i, x := range d {
			out[i] = float64(x)
		}
		return out, true
	case []bool:
		out := make([]float64, len(d))
		for i, x := range d {
			if x {
				out[i] = 1
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// Axis returns the position of dim in Dims, or -1.
func (v *Variable) Axis(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// HasDim reports whether the variable is indexed by dim.
func (v *Variable) HasDim(dim string) bool {
	return v.Axis(dim) >= 0
}

// Strides returns the row-major element stride of each axis.
func (v *Variable) Strides() []int {
	return Strides(v.Shape)
}

// Strides returns the row-major element stride of each axis of shape.
func Strides(shape []int) []int {
	strides := make([]int, len(shape))
	step := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = step
		step *= shape[i]
	}
	return strides
}

// Validate checks that dims, shape and data length agree.
func (v *Variable) Validate() error {
	if len(v.Dims) != len(v.Shape) {
		return fmt.Errorf("%d dims but %d shape entries", len(v.Dims), len(v.Shape))
	}
	seen := make(map[string]bool, len(v.Dims))
	for i, d := range v.Dims {
		if d == "" {
			return fmt.Errorf("axis %d has an empty name", i)
		}
		if seen[d] {
			return fmt.Errorf("dimension %q repeated", d)
		}
		seen[d] = true
		if v.Shape[i] < 0 {
			return fmt.Errorf("dimension %q has negative length %d", d, v.Shape[i])
		}
	}
	switch v.Data.(type) {
	case []float64, []int64, []bool, []string:
	default:
		return fmt.Errorf("unsupported data type %T", v.Data)
	}
	if v.Len() != v.Size() {
		return fmt.Errorf("data length %d does not match shape %v", v.Len(), v.Shape)
	}
	return nil
}

// Clone returns a deep copy of the variable.
func (v *Variable) Clone() *Variable {
	out := &Variable{
		Dims:  append([]string(nil), v.Dims...),
		Shape: append([]int(nil), v.Shape...),
		Attrs: CloneAttrs(v.Attrs),
	}
	switch d := v.Data.(type) {
	case []float64:
		out.Data = append([]float64(nil), d...)
	case []int64:
		out.Data = append([]int64(nil), d...)
	case []bool:
		out.Data = append([]bool(nil), d...)
	case []string:
		out.Data = append([]string(nil), d...)
	default:
		out.Data = d
	}
	return out
}

// CloneAttrs copies an attribute map. Slice values are copied, other values
// are assumed immutable.
func CloneAttrs(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for k, val := range attrs {
		switch a := val.(type) {
		case []float64:
			out[k] = append([]float64(nil), a...)
		case []int64:
			out[k] = append([]int64(nil), a...)
		case []string:
			out[k] = append([]string(nil), a...)
		default:
			out[k] = val
		}
	}
	return out
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys(m map[string]*Variable) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
