// Package mask locates the boolean masks that upstream producers attach to a
// dataset and applies them to a target variable as NaN sentinels.
//
// A mask is any data variable whose name starts with Prefix. Masks carry a
// mask_type attribute naming their producer (impulse, transient, seabed...).
// Masks may cover a subset of the target's dimensions, in any order; they are
// broadcast over the missing ones.
package mask

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"svinterp/internal/models"
)

const (
	// Prefix marks a data variable as a mask.
	Prefix = "mask_"

	// TypeAttr is the attribute naming the producer of a mask.
	TypeAttr = "mask_type"
)

// Find returns the names of the masks attached to ds, sorted. When types is
// non-empty only masks whose mask_type is listed are returned.
func Find(ds *models.Dataset, types ...string) []string {
	var names []string
	for _, name := range ds.DataVarNames() {
		if !strings.HasPrefix(name, Prefix) {
			continue
		}
		if len(types) > 0 && !typeIn(ds.DataVars[name], types) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func typeIn(v *models.Variable, types []string) bool {
	t, _ := v.Attrs[TypeAttr].(string)
	for _, want := range types {
		if t == want {
			return true
		}
	}
	return false
}

// Combine folds the named masks with logical OR onto the layout of target.
// The result has one entry per element of target; true marks an invalid sample.
// An empty name list yields an all-false mask.
func Combine(ds *models.Dataset, target *models.Variable, names []string) ([]bool, error) {
	combined := make([]bool, target.Size())
	for _, name := range names {
		v, ok := ds.DataVars[name]
		if !ok {
			return nil, fmt.Errorf("mask %q not found", name)
		}
		flags, err := truthValues(v)
		if err != nil {
			return nil, fmt.Errorf("mask %q: %w", name, err)
		}
		index, err := broadcastIndex(v, target)
		if err != nil {
			return nil, fmt.Errorf("mask %q: %w", name, err)
		}
		for i := range combined {
			if flags[index(i)] {
				combined[i] = true
			}
		}
	}
	return combined, nil
}

// truthValues reads a mask as booleans. Numeric masks are true where non-zero
// and not NaN.
func truthValues(v *models.Variable) ([]bool, error) {
	switch d := v.Data.(type) {
	case []bool:
		return d, nil
	case []int64:
		out := make([]bool, len(d))
		for i, x := range d {
			out[i] = x != 0
		}
		return out, nil
	case []float64:
		out := make([]bool, len(d))
		for i, x := range d {
			out[i] = x != 0 && !math.IsNaN(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported mask type %s", v.DType())
	}
}

// broadcastIndex maps a flat index of target to the flat index of the
// corresponding element of m.
func broadcastIndex(m, target *models.Variable) (func(int) int, error) {
	tStrides := target.Strides()
	mStrides := m.Strides()
	axes := make([]int, len(m.Dims))
	for i, d := range m.Dims {
		a := target.Axis(d)
		if a < 0 {
			return nil, fmt.Errorf("dimension %q is not a dimension of the target", d)
		}
		if m.Shape[i] != target.Shape[a] {
			return nil, fmt.Errorf("dimension %q has length %d, target has %d", d, m.Shape[i], target.Shape[a])
		}
		axes[i] = a
	}
	return func(flat int) int {
		idx := 0
		for i, a := range axes {
			coord := (flat / tStrides[a]) % target.Shape[a]
			idx += coord * mStrides[i]
		}
		return idx
	}, nil
}

// Apply returns a copy of the target variable's values with NaN written
// wherever any selected mask is set, and the number of samples that were
// newly invalidated. ds is not modified.
func Apply(ds *models.Dataset, target string, types ...string) ([]float64, int, error) {
	v, ok := ds.DataVars[target]
	if !ok {
		return nil, 0, fmt.Errorf("%w: variable %q", models.ErrMissingField, target)
	}
	values, ok := v.AsFloats()
	if !ok {
		return nil, 0, fmt.Errorf("variable %q is not numeric", target)
	}
	out := append([]float64(nil), values...)

	names := Find(ds, types...)
	if len(names) == 0 {
		return out, 0, nil
	}
	combined, err := Combine(ds, v, names)
	if err != nil {
		return nil, 0, err
	}
	masked := 0
	for i, bad := range combined {
		if bad && !math.IsNaN(out[i]) {
			out[i] = math.NaN()
			masked++
		}
	}
	return out, masked, nil
}

// WithMetadata returns a copy of m with metadata merged into its attributes.
func WithMetadata(m *models.Variable, metadata map[string]interface{}) *models.Variable {
	out := m.Clone()
	for k, v := range metadata {
		out.Attrs[k] = v
	}
	return out
}

// Attach returns a copy of ds with m added as a mask. The name gains Prefix
// when it does not already have it; without an explicit name the mask_type
// attribute is used. ds is not modified.
func Attach(ds *models.Dataset, m *models.Variable, name string) (*models.Dataset, error) {
	if name == "" {
		t, _ := m.Attrs[TypeAttr].(string)
		if t == "" {
			return nil, fmt.Errorf("mask has no name and no %s attribute", TypeAttr)
		}
		name = t
	}
	if !strings.HasPrefix(name, Prefix) {
		name = Prefix + name
	}
	if m.DType() == models.String {
		return nil, fmt.Errorf("mask %q: string masks are not supported", name)
	}
	out := ds.Copy()
	out.DataVars[name] = m.Clone()
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("attaching mask %q: %w", name, err)
	}
	return out, nil
}

// Types lists the distinct mask_type values of the attached masks, sorted.
func Types(ds *models.Dataset) []string {
	seen := make(map[string]bool)
	for _, name := range Find(ds) {
		if t, ok := ds.DataVars[name].Attrs[TypeAttr].(string); ok && t != "" {
			seen[t] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
