package store

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/robert-malhotra/go-hdf5/hdf5"

	"svinterp/internal/models"
)

// Attributes used to carry labeled-array structure through HDF5, which
// stores every variable here as a flat dataset.
const (
	arrayDimsAttr = "_ARRAY_DIMENSIONS"
	shapeAttr     = "_svinterp_shape"
	dtypeAttr     = "_svinterp_dtype"
	labelsAttr    = "_svinterp_labels"
	roleAttr      = "_svinterp_role"
	globalAttrs   = "_svinterp_global"
)

// netCDF4 bookkeeping attributes that are not user metadata.
var hdf5InternalAttrs = map[string]bool{
	"CLASS":                true,
	"NAME":                 true,
	"REFERENCE_LIST":       true,
	"DIMENSION_LIST":       true,
	"_Netcdf4Dimid":        true,
	"_Netcdf4Coordinates":  true,
	"_NCProperties":        true,
	"_nc3_strict":          true,
	"_Netcdf4CoordinateID": true,
}

func isReservedAttr(name string) bool {
	return name == arrayDimsAttr || strings.HasPrefix(name, "_svinterp_") || hdf5InternalAttrs[name]
}

// hdf5Var is a dataset read from the root group before dimension names
// are resolved.
type hdf5Var struct {
	name  string
	shape []int
	dims  []string
	attrs map[string]interface{}
	data  interface{}
	coord bool
}

// LoadHDF5 reads every dataset in the root group of an HDF5 file.
//
// Dimension names come from the _ARRAY_DIMENSIONS attribute when present.
// Otherwise a 1-D dataset is its own dimension and the axes of larger
// datasets are matched by length against those dimensions.
func LoadHDF5(path string) (*models.Dataset, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrNotFound, path, err)
	}
	defer f.Close()

	root := f.Root()
	members, err := root.Members()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	sort.Strings(members)

	ds := models.NewDataset()
	for _, name := range root.Attrs() {
		if isReservedAttr(name) {
			continue
		}
		if v, err := root.Attr(name).Value(); err == nil {
			ds.Attrs[name] = v
		}
	}

	var vars []*hdf5Var
	for _, name := range members {
		d, err := root.OpenDataset(name)
		if err != nil {
			// subgroups are not part of the flat dataset model
			continue
		}
		attrs := readHDF5Attrs(d)
		if name == globalAttrs {
			for k, v := range attrs {
				if !isReservedAttr(k) {
					ds.Attrs[k] = v
				}
			}
			continue
		}
		v, err := readHDF5Var(d, name, attrs)
		if err != nil {
			return nil, fmt.Errorf("read %q from %s: %w", name, path, err)
		}
		if v != nil {
			vars = append(vars, v)
		}
	}

	resolveHDF5Dims(vars)
	for _, v := range vars {
		mv := &models.Variable{Dims: v.dims, Shape: v.shape, Data: v.data, Attrs: map[string]interface{}{}}
		for k, a := range v.attrs {
			if !isReservedAttr(k) {
				mv.Attrs[k] = a
			}
		}
		if err := mv.Validate(); err != nil {
			return nil, fmt.Errorf("variable %q in %s: %w", v.name, path, err)
		}
		if v.coord || (len(v.dims) == 1 && v.dims[0] == v.name) {
			ds.Coords[v.name] = mv
		} else {
			ds.DataVars[v.name] = mv
		}
	}
	return ds, nil
}

func readHDF5Attrs(d *hdf5.Dataset) map[string]interface{} {
	attrs := make(map[string]interface{})
	for _, name := range d.Attrs() {
		a := d.Attr(name)
		if a == nil {
			continue
		}
		if v, err := a.Value(); err == nil {
			attrs[name] = v
		}
	}
	return attrs
}

// readHDF5Var decodes one dataset. Datasets of a type the dataset model
// cannot hold, such as compounds, yield nil.
func readHDF5Var(d *hdf5.Dataset, name string, attrs map[string]interface{}) (*hdf5Var, error) {
	v := &hdf5Var{name: name, attrs: attrs}
	if s, ok := attrs[shapeAttr].([]int64); ok {
		for _, n := range s {
			v.shape = append(v.shape, int(n))
		}
	} else if n, ok := attrs[shapeAttr].(int64); ok {
		v.shape = []int{int(n)}
	} else {
		for _, n := range d.Shape() {
			v.shape = append(v.shape, int(n))
		}
	}
	v.dims = stringList(attrs[arrayDimsAttr])
	v.coord = attrs[roleAttr] == "coord"

	goType, err := d.GoType()
	if err != nil {
		return nil, nil
	}
	switch goType.Kind() {
	case reflect.Float32, reflect.Float64:
		data, err := d.ReadFloat64()
		if err != nil {
			return nil, err
		}
		if fill, ok := attrs["_FillValue"].(float64); ok && !math.IsNaN(fill) {
			for i, x := range data {
				if x == fill {
					data[i] = math.NaN()
				}
			}
		}
		v.data = data
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		data, err := d.ReadInt64()
		if err != nil {
			return nil, err
		}
		switch attrs[dtypeAttr] {
		case "bool":
			b := make([]bool, len(data))
			for i, x := range data {
				b[i] = x != 0
			}
			v.data = b
		case "string":
			labels := stringList(attrs[labelsAttr])
			s := make([]string, len(data))
			for i, x := range data {
				if x < 0 || int(x) >= len(labels) {
					return nil, fmt.Errorf("label index %d out of range", x)
				}
				s[i] = labels[x]
			}
			v.data = s
		default:
			v.data = data
		}
	case reflect.String:
		data, err := d.ReadString()
		if err != nil {
			return nil, err
		}
		v.data = data
	default:
		return nil, nil
	}
	return v, nil
}

func stringList(v interface{}) []string {
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...)
	case string:
		return []string{s}
	default:
		return nil
	}
}

// resolveHDF5Dims names the axes of variables stored without
// _ARRAY_DIMENSIONS.
func resolveHDF5Dims(vars []*hdf5Var) {
	scales := make(map[int][]string)
	for _, v := range vars {
		if v.dims == nil && len(v.shape) == 1 {
			v.dims = []string{v.name}
		}
		if len(v.dims) == 1 && v.dims[0] == v.name {
			scales[v.shape[0]] = append(scales[v.shape[0]], v.name)
		}
	}
	order := map[string]int{models.ChannelDim: 0, models.PingTimeDim: 1, models.RangeSampleDim: 2}
	for _, names := range scales {
		sort.SliceStable(names, func(i, j int) bool {
			oi, iok := order[names[i]]
			oj, jok := order[names[j]]
			switch {
			case iok && jok:
				return oi < oj
			case iok != jok:
				return iok
			default:
				return names[i] < names[j]
			}
		})
	}
	for _, v := range vars {
		if v.dims != nil {
			continue
		}
		used := make(map[string]bool)
		v.dims = make([]string, len(v.shape))
		for i, n := range v.shape {
			v.dims[i] = fmt.Sprintf("phony_dim_%d", i)
			for _, cand := range scales[n] {
				if !used[cand] {
					v.dims[i] = cand
					used[cand] = true
					break
				}
			}
		}
	}
}

// SaveHDF5 writes ds to a new HDF5 file at path. Every variable becomes a
// root-group dataset whose dimension names and shape are stored as
// attributes; dataset attributes go on a small marker dataset.
func SaveHDF5(ds *models.Dataset, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("write %s: hdf5 writer: %v", path, r)
		}
	}()

	names, err := linkOrder(append(ds.VariableNames(), globalAttrs))
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	f, err := hdf5.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	root := f.Root()
	for _, name := range names {
		if name == globalAttrs {
			if _, err := root.CreateDataset(globalAttrs, []int8{0}, attrOptions(ds.Attrs)...); err != nil {
				return fmt.Errorf("write dataset attributes: %w", err)
			}
			continue
		}
		v, _ := ds.Var(name)
		_, isCoord := ds.Coords[name]
		data, opts, err := encodeHDF5Var(v, isCoord)
		if err != nil {
			return fmt.Errorf("encode %q: %w", name, err)
		}
		if _, err := root.CreateDataset(name, data, opts...); err != nil {
			return fmt.Errorf("write %q: %w", name, err)
		}
	}
	return nil
}

// The writer rewrites a group header after every new link and pads it up
// to groupChunkMin bytes with a NIL message. A pad smaller than the NIL
// message header does not fit, so no intermediate header may end inside
// that window.
const (
	groupChunkMin    = 120
	groupHeaderBase  = 28 // link info and group info messages
	nilMessageHeader = 4
)

// hardLinkSize is the encoded size of a hard link message, message header
// included, with 8-byte file offsets.
func hardLinkSize(name string) int {
	n := len(name)
	size := 4 + 2 + n + 8
	switch {
	case n <= 0xFF:
		size++
	case n <= 0xFFFF:
		size += 2
	default:
		size += 4
	}
	return size
}

func padOverruns(headerSize int) bool {
	pad := groupChunkMin - headerSize
	return pad > 0 && pad < nilMessageHeader
}

// linkOrder orders names so that linking them one by one into an empty
// group never leaves a pad the writer cannot encode. The given order is
// kept wherever it is already safe.
func linkOrder(names []string) ([]string, error) {
	used := make([]bool, len(names))
	order := make([]string, 0, len(names))

	var place func(size int) bool
	place = func(size int) bool {
		if size >= groupChunkMin || len(order) == len(names) {
			for i, name := range names {
				if !used[i] {
					order = append(order, name)
				}
			}
			return true
		}
		for i, name := range names {
			if used[i] {
				continue
			}
			next := size + hardLinkSize(name)
			if padOverruns(next) {
				continue
			}
			used[i] = true
			order = append(order, name)
			if place(next) {
				return true
			}
			used[i] = false
			order = order[:len(order)-1]
		}
		return false
	}

	if !place(groupHeaderBase) {
		return nil, fmt.Errorf("no hdf5 link order fits variables %v", names)
	}
	return order, nil
}

func encodeHDF5Var(v *models.Variable, isCoord bool) (interface{}, []hdf5.DatasetOption, error) {
	if v.Size() == 0 {
		return nil, nil, fmt.Errorf("empty variables cannot be stored")
	}
	opts := attrOptions(v.Attrs)
	if len(v.Dims) > 0 {
		opts = append(opts, hdf5.WithAttribute(arrayDimsAttr, append([]string(nil), v.Dims...)))
	}
	shape := make([]int64, len(v.Shape))
	for i, n := range v.Shape {
		shape[i] = int64(n)
	}
	opts = append(opts, hdf5.WithAttribute(shapeAttr, shape))
	if isCoord {
		opts = append(opts, hdf5.WithAttribute(roleAttr, "coord"))
	}

	switch data := v.Data.(type) {
	case []float64:
		return data, opts, nil
	case []int64:
		return data, opts, nil
	case []bool:
		out := make([]int8, len(data))
		for i, b := range data {
			if b {
				out[i] = 1
			}
		}
		return out, append(opts, hdf5.WithAttribute(dtypeAttr, "bool")), nil
	case []string:
		index := make(map[string]int64)
		var labels []string
		out := make([]int64, len(data))
		for i, s := range data {
			k, ok := index[s]
			if !ok {
				k = int64(len(labels))
				index[s] = k
				labels = append(labels, s)
			}
			out[i] = k
		}
		return out, append(opts,
			hdf5.WithAttribute(dtypeAttr, "string"),
			hdf5.WithAttribute(labelsAttr, labels)), nil
	default:
		return nil, nil, fmt.Errorf("unsupported data type %T", v.Data)
	}
}

// attrOptions converts attributes to HDF5 attribute options in name order.
// Values HDF5 cannot hold natively are stored as their string form.
func attrOptions(attrs map[string]interface{}) []hdf5.DatasetOption {
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	sort.Strings(names)

	var opts []hdf5.DatasetOption
	for _, k := range names {
		if isReservedAttr(k) {
			continue
		}
		var value interface{}
		switch a := attrs[k].(type) {
		case string, float64, int64:
			value = a
		case []float64, []int64, []string:
			if reflect.ValueOf(a).Len() == 0 {
				continue
			}
			value = a
		case int:
			value = int64(a)
		case float32:
			value = float64(a)
		case []int:
			ints := make([]int64, len(a))
			for i, x := range a {
				ints[i] = int64(x)
			}
			value = ints
		case nil:
			continue
		default:
			value = fmt.Sprint(a)
		}
		opts = append(opts, hdf5.WithAttribute(k, value))
	}
	return opts
}
