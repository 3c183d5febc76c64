// Package models holds the labeled-array dataset shared by every processing
// stage: named variables over named dimensions plus dataset attributes.
package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrMissingField is returned when a dataset lacks a variable or dimension
// an operation depends on.
var ErrMissingField = errors.New("missing required field")

// Conventional names used across the echosounder processing chain.
const (
	SvVar              = "Sv"
	ChannelDim         = "channel"
	PingTimeDim        = "ping_time"
	RangeSampleDim     = "range_sample"
	EchoRangeVar       = "echo_range"
	InterpolatedSuffix = "_interpolated"
)

// Dataset is an in-memory labeled dataset: coordinate variables, data
// variables and dataset-level attributes.
type Dataset struct {
	// Coords holds coordinate variables keyed by name. A coordinate named
	// after a dimension labels that dimension.
	Coords map[string]*Variable

	// DataVars holds data variables keyed by name.
	DataVars map[string]*Variable

	// Attrs holds dataset-level attributes.
	Attrs map[string]interface{}
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Coords:   make(map[string]*Variable),
		DataVars: make(map[string]*Variable),
		Attrs:    make(map[string]interface{}),
	}
}

// Open returns the dataset itself so an in-memory dataset can be passed
// wherever a loadable source is accepted.
func (ds *Dataset) Open() (*Dataset, error) {
	return ds, nil
}

// Var looks a variable up among data variables first, then coordinates.
func (ds *Dataset) Var(name string) (*Variable, bool) {
	if v, ok := ds.DataVars[name]; ok {
		return v, true
	}
	v, ok := ds.Coords[name]
	return v, ok
}

// Dims returns the length of every dimension used by any variable.
func (ds *Dataset) Dims() map[string]int {
	dims := make(map[string]int)
	for _, group := range []map[string]*Variable{ds.Coords, ds.DataVars} {
		for _, v := range group {
			for i, d := range v.Dims {
				if _, ok := dims[d]; !ok {
					dims[d] = v.Shape[i]
				}
			}
		}
	}
	return dims
}

// HasDim reports whether any variable is indexed by dim.
func (ds *Dataset) HasDim(dim string) bool {
	_, ok := ds.Dims()[dim]
	return ok
}

// DimNames returns the dimension names in lexical order.
func (ds *Dataset) DimNames() []string {
	dims := ds.Dims()
	names := make([]string, 0, len(dims))
	for d := range dims {
		names = append(names, d)
	}
	sort.Strings(names)
	return names
}

// CoordNames returns coordinate names in lexical order.
func (ds *Dataset) CoordNames() []string { return sortedKeys(ds.Coords) }

// DataVarNames returns data variable names in lexical order.
func (ds *Dataset) DataVarNames() []string { return sortedKeys(ds.DataVars) }

// VariableNames returns every coordinate and data variable name, sorted.
func (ds *Dataset) VariableNames() []string {
	names := append(ds.CoordNames(), ds.DataVarNames()...)
	sort.Strings(names)
	return names
}

// CoordFloats returns the numeric 1-D coordinate labelling dim.
func (ds *Dataset) CoordFloats(dim string) ([]float64, bool) {
	c, ok := ds.Coords[dim]
	if !ok || len(c.Dims) != 1 || c.Dims[0] != dim {
		return nil, false
	}
	return c.AsFloats()
}

// Validate checks every variable and that dimension lengths agree across
// variables.
func (ds *Dataset) Validate() error {
	dims := make(map[string]int)
	owner := make(map[string]string)
	for _, name := range ds.VariableNames() {
		v, _ := ds.Var(name)
		if err := v.Validate(); err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
		for i, d := range v.Dims {
			if n, ok := dims[d]; ok && n != v.Shape[i] {
				return fmt.Errorf("dimension %q has length %d in %q but %d in %q",
					d, v.Shape[i], name, n, owner[d])
			}
			dims[d] = v.Shape[i]
			owner[d] = name
		}
	}
	return nil
}

// Copy returns a deep copy of the dataset.
func (ds *Dataset) Copy() *Dataset {
	out := &Dataset{
		Coords:   make(map[string]*Variable, len(ds.Coords)),
		DataVars: make(map[string]*Variable, len(ds.DataVars)),
		Attrs:    CloneAttrs(ds.Attrs),
	}
	for k, v := range ds.Coords {
		out.Coords[k] = v.Clone()
	}
	for k, v := range ds.DataVars {
		out.DataVars[k] = v.Clone()
	}
	return out
}

// CountNaN returns the number of NaN entries in a float slice.
func CountNaN(data []float64) int {
	n := 0
	for _, x := range data {
		if math.IsNaN(x) {
			n++
		}
	}
	return n
}
