package store

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"svinterp/internal/models"
)

const (
	zgroupFile    = ".zgroup"
	zattrsFile    = ".zattrs"
	zarrayFile    = ".zarray"
	zmetadataFile = ".zmetadata"
	coordsAttr    = "coordinates"
)

// zarrCompressor is a numcodecs compressor configuration. Level applies to
// zlib, gzip and zstd; the C* fields and Shuffle to blosc.
type zarrCompressor struct {
	ID        string `json:"id"`
	Level     int    `json:"level,omitempty"`
	CName     string `json:"cname,omitempty"`
	CLevel    int    `json:"clevel,omitempty"`
	Shuffle   int    `json:"shuffle,omitempty"`
	BlockSize *int   `json:"blocksize,omitempty"`
}

// zarrArray is the .zarray metadata document of a zarr v2 array.
type zarrArray struct {
	ZarrFormat         int               `json:"zarr_format"`
	Shape              []int             `json:"shape"`
	Chunks             []int             `json:"chunks"`
	DType              string            `json:"dtype"`
	Compressor         *zarrCompressor   `json:"compressor"`
	FillValue          interface{}       `json:"fill_value"`
	Order              string            `json:"order"`
	Filters            []json.RawMessage `json:"filters"`
	DimensionSeparator string            `json:"dimension_separator,omitempty"`
}

// zarrDType is a parsed numpy type string such as "<f8" or "|b1".
type zarrDType struct {
	order binary.ByteOrder
	kind  byte
	size  int // bytes per element
}

func parseDType(s string) (zarrDType, error) {
	if len(s) < 3 {
		return zarrDType{}, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, s)
	}
	dt := zarrDType{order: binary.LittleEndian, kind: s[1]}
	if s[0] == '>' {
		dt.order = binary.BigEndian
	}
	width := s[2:]
	if i := strings.IndexByte(width, '['); i >= 0 {
		width = width[:i] // datetime unit, kept in attributes by writers
	}
	n, err := strconv.Atoi(width)
	if err != nil || n <= 0 {
		return zarrDType{}, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, s)
	}
	dt.size = n
	switch dt.kind {
	case 'f':
		if n != 4 && n != 8 {
			return zarrDType{}, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, s)
		}
	case 'i', 'u', 'M', 'm':
		if n != 1 && n != 2 && n != 4 && n != 8 {
			return zarrDType{}, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, s)
		}
	case 'b', 'S':
	case 'U':
		dt.size = 4 * n
	default:
		return zarrDType{}, fmt.Errorf("%w: dtype %q", ErrUnsupportedFormat, s)
	}
	return dt, nil
}

// modelType is the dataset element type a zarr dtype decodes to.
func (dt zarrDType) modelType() models.DType {
	switch dt.kind {
	case 'f':
		return models.Float64
	case 'b':
		return models.Bool
	case 'U', 'S':
		return models.String
	default:
		return models.Int64
	}
}

// LoadZarr reads every array of a zarr v2 group directory.
func LoadZarr(path string) (*models.Dataset, error) {
	ds := models.NewDataset()
	rootAttrs, err := readZarrAttrs(filepath.Join(path, zattrsFile))
	if err != nil {
		return nil, err
	}

	names, err := zarrArrayNames(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	coordNames := make(map[string]bool)
	for _, c := range strings.Fields(stringAttr(rootAttrs[coordsAttr])) {
		coordNames[c] = true
	}
	delete(rootAttrs, coordsAttr)
	ds.Attrs = rootAttrs

	vars := make(map[string]*models.Variable)
	for _, name := range names {
		v, err := loadZarrArray(filepath.Join(path, name))
		if err != nil {
			return nil, fmt.Errorf("array %q: %w", name, err)
		}
		for _, c := range strings.Fields(stringAttr(v.Attrs[coordsAttr])) {
			coordNames[c] = true
		}
		delete(v.Attrs, coordsAttr)
		vars[name] = v
	}

	for name, v := range vars {
		if coordNames[name] || (len(v.Dims) == 1 && v.Dims[0] == name) {
			ds.Coords[name] = v
		} else {
			ds.DataVars[name] = v
		}
	}
	return ds, nil
}

func stringAttr(v interface{}) string {
	s, _ := v.(string)
	return s
}

func readZarrAttrs(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var attrs map[string]interface{}
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range attrs {
		attrs[k] = fromJSON(v)
	}
	return attrs, nil
}

// fromJSON narrows decoded JSON values to the attribute types used by the
// dataset model: int64, float64, string and homogeneous slices of them.
func fromJSON(v interface{}) interface{} {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case string:
		return x
	case []interface{}:
		items := make([]interface{}, len(x))
		allInt, allFloat, allString := len(x) > 0, len(x) > 0, len(x) > 0
		for i, e := range x {
			items[i] = fromJSON(e)
			_, isInt := items[i].(int64)
			_, isFloat := items[i].(float64)
			_, isString := items[i].(string)
			allInt = allInt && isInt
			allFloat = allFloat && (isFloat || isInt)
			allString = allString && isString
		}
		switch {
		case allInt:
			out := make([]int64, len(items))
			for i, e := range items {
				out[i] = e.(int64)
			}
			return out
		case allFloat:
			out := make([]float64, len(items))
			for i, e := range items {
				if n, ok := e.(int64); ok {
					out[i] = float64(n)
				} else {
					out[i] = e.(float64)
				}
			}
			return out
		case allString:
			out := make([]string, len(items))
			for i, e := range items {
				out[i] = e.(string)
			}
			return out
		}
		return items
	default:
		return v
	}
}

func loadZarrArray(dir string) (*models.Variable, error) {
	raw, err := os.ReadFile(filepath.Join(dir, zarrayFile))
	if err != nil {
		return nil, err
	}
	var meta zarrArray
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", zarrayFile, err)
	}
	if meta.ZarrFormat != 2 {
		return nil, fmt.Errorf("%w: zarr_format %d", ErrUnsupportedFormat, meta.ZarrFormat)
	}
	if meta.Order != "" && meta.Order != "C" {
		return nil, fmt.Errorf("%w: order %q", ErrUnsupportedFormat, meta.Order)
	}
	if len(meta.Filters) > 0 {
		return nil, fmt.Errorf("%w: filters", ErrUnsupportedFormat)
	}
	if len(meta.Chunks) != len(meta.Shape) {
		return nil, fmt.Errorf("chunks %v do not match shape %v", meta.Chunks, meta.Shape)
	}
	dt, err := parseDType(meta.DType)
	if err != nil {
		return nil, err
	}

	attrs, err := readZarrAttrs(filepath.Join(dir, zattrsFile))
	if err != nil {
		return nil, err
	}
	dims := stringList(attrs[arrayDimsAttr])
	delete(attrs, arrayDimsAttr)
	if dims == nil {
		dims = make([]string, len(meta.Shape))
		for i := range dims {
			dims[i] = fmt.Sprintf("dim_%d", i)
		}
	}
	if len(dims) != len(meta.Shape) {
		return nil, fmt.Errorf("%s names %d dimensions for rank %d", arrayDimsAttr, len(dims), len(meta.Shape))
	}

	size := 1
	for _, n := range meta.Shape {
		size *= n
	}
	chunkSize := 1
	for _, n := range meta.Chunks {
		if n <= 0 {
			return nil, fmt.Errorf("invalid chunk shape %v", meta.Chunks)
		}
		chunkSize *= n
	}

	v := &models.Variable{Dims: dims, Shape: append([]int(nil), meta.Shape...), Attrs: attrs}
	switch dt.modelType() {
	case models.Float64:
		data := make([]float64, size)
		fill := floatFill(meta.FillValue)
		for i := range data {
			data[i] = fill
		}
		v.Data = data
	case models.Int64:
		data := make([]int64, size)
		if f, ok := meta.FillValue.(float64); ok {
			for i := range data {
				data[i] = int64(f)
			}
		}
		v.Data = data
	case models.Bool:
		data := make([]bool, size)
		if b, ok := meta.FillValue.(bool); ok && b {
			for i := range data {
				data[i] = true
			}
		}
		v.Data = data
	case models.String:
		data := make([]string, size)
		if s, ok := meta.FillValue.(string); ok && s != "" {
			if dt.kind == 'S' {
				if b, err := base64.StdEncoding.DecodeString(s); err == nil {
					s = strings.TrimRight(string(b), "\x00")
				}
			}
			for i := range data {
				data[i] = s
			}
		}
		v.Data = data
	}

	sep := meta.DimensionSeparator
	if sep == "" {
		sep = "."
	}
	grid := make([]int, len(meta.Shape))
	for i, n := range meta.Shape {
		grid[i] = (n + meta.Chunks[i] - 1) / meta.Chunks[i]
	}
	err = forEachChunk(grid, func(chunkCoords []int) error {
		key := chunkKey(chunkCoords, sep)
		raw, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		raw, err = decompress(meta.Compressor, raw)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", key, err)
		}
		if len(raw) < chunkSize*dt.size {
			return fmt.Errorf("chunk %s holds %d bytes, want %d", key, len(raw), chunkSize*dt.size)
		}
		switch data := v.Data.(type) {
		case []float64:
			copyChunk(data, decodeFloats(raw, dt, chunkSize), meta.Shape, meta.Chunks, chunkCoords)
		case []int64:
			copyChunk(data, decodeInts(raw, dt, chunkSize), meta.Shape, meta.Chunks, chunkCoords)
		case []bool:
			copyChunk(data, decodeBools(raw, chunkSize), meta.Shape, meta.Chunks, chunkCoords)
		case []string:
			copyChunk(data, decodeStrings(raw, dt, chunkSize), meta.Shape, meta.Chunks, chunkCoords)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func floatFill(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		switch x {
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
	}
	return math.NaN()
}

// forEachChunk visits every chunk index of a chunk grid in C order. A
// rank-0 array has a single chunk.
func forEachChunk(grid []int, fn func(chunkCoords []int) error) error {
	for _, n := range grid {
		if n == 0 {
			return nil
		}
	}
	idx := make([]int, len(grid))
	for {
		if err := fn(idx); err != nil {
			return err
		}
		i := len(grid) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < grid[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}

func chunkKey(chunkCoords []int, sep string) string {
	if len(chunkCoords) == 0 {
		return "0"
	}
	parts := make([]string, len(chunkCoords))
	for i, c := range chunkCoords {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, sep)
}

// copyChunk places a full C-ordered chunk into the output array, dropping
// the padding of edge chunks.
func copyChunk[T any](dst, chunk []T, shape, chunks, chunkCoords []int) {
	rank := len(shape)
	dstStrides := models.Strides(shape)
	local := make([]int, rank)
	for k := range chunk {
		rem := k
		inside := true
		off := 0
		for d := rank - 1; d >= 0; d-- {
			local[d] = rem % chunks[d]
			rem /= chunks[d]
		}
		for d := 0; d < rank; d++ {
			g := chunkCoords[d]*chunks[d] + local[d]
			if g >= shape[d] {
				inside = false
				break
			}
			off += g * dstStrides[d]
		}
		if inside {
			dst[off] = chunk[k]
		}
	}
}

func decodeFloats(raw []byte, dt zarrDType, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		b := raw[i*dt.size:]
		if dt.size == 4 {
			out[i] = float64(math.Float32frombits(dt.order.Uint32(b)))
		} else {
			out[i] = math.Float64frombits(dt.order.Uint64(b))
		}
	}
	return out
}

func decodeInts(raw []byte, dt zarrDType, n int) []int64 {
	out := make([]int64, n)
	signed := dt.kind != 'u'
	for i := range out {
		b := raw[i*dt.size:]
		switch {
		case dt.size == 1 && signed:
			out[i] = int64(int8(b[0]))
		case dt.size == 1:
			out[i] = int64(b[0])
		case dt.size == 2 && signed:
			out[i] = int64(int16(dt.order.Uint16(b)))
		case dt.size == 2:
			out[i] = int64(dt.order.Uint16(b))
		case dt.size == 4 && signed:
			out[i] = int64(int32(dt.order.Uint32(b)))
		case dt.size == 4:
			out[i] = int64(dt.order.Uint32(b))
		default:
			out[i] = int64(dt.order.Uint64(b))
		}
	}
	return out
}

func decodeBools(raw []byte, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = raw[i] != 0
	}
	return out
}

func decodeStrings(raw []byte, dt zarrDType, n int) []string {
	out := make([]string, n)
	for i := range out {
		b := raw[i*dt.size : (i+1)*dt.size]
		if dt.kind == 'S' {
			out[i] = strings.TrimRight(string(b), "\x00")
			continue
		}
		var sb strings.Builder
		for j := 0; j+4 <= len(b); j += 4 {
			r := rune(dt.order.Uint32(b[j:]))
			if r == 0 {
				break
			}
			sb.WriteRune(r)
		}
		out[i] = sb.String()
	}
	return out
}

func decompress(c *zarrCompressor, raw []byte) ([]byte, error) {
	if c == nil {
		return raw, nil
	}
	switch c.ID {
	case "zlib":
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "zstd":
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(raw, nil)
	case "blosc":
		return bloscDecompress(raw)
	default:
		return nil, fmt.Errorf("%w: compressor %q", ErrUnsupportedFormat, c.ID)
	}
}

// compress encodes one chunk; typeSize is the element width blosc
// shuffles by.
func compress(c *zarrCompressor, raw []byte, typeSize int) ([]byte, error) {
	if c == nil {
		return raw, nil
	}
	var buf bytes.Buffer
	switch c.ID {
	case "zlib":
		w, err := zlib.NewWriterLevel(&buf, c.Level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "gzip":
		w, err := gzip.NewWriterLevel(&buf, c.Level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case "zstd":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.Level)))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case "blosc":
		return bloscCompress(raw, typeSize, c.CName, c.CLevel)
	default:
		return nil, fmt.Errorf("%w: compressor %q", ErrUnsupportedFormat, c.ID)
	}
	return buf.Bytes(), nil
}

// ZarrOption configures SaveZarr.
type ZarrOption func(*zarrOptions)

type zarrOptions struct {
	compressor *zarrCompressor
}

// WithCompressor selects the chunk codec: "zlib" (default), "gzip",
// "zstd", "blosc" (lz4 inside blosc) or "none".
func WithCompressor(id string, level int) ZarrOption {
	return func(o *zarrOptions) {
		switch id {
		case "", "none":
			o.compressor = nil
		case "blosc":
			WithBlosc("lz4", level)(o)
		default:
			o.compressor = &zarrCompressor{ID: id, Level: level}
		}
	}
}

// WithBlosc selects blosc with byte shuffle around the cname codec: "lz4",
// "lz4hc", "zstd", "zlib" or "snappy".
func WithBlosc(cname string, level int) ZarrOption {
	return func(o *zarrOptions) {
		blockSize := 0
		o.compressor = &zarrCompressor{ID: "blosc", CName: cname, CLevel: level, Shuffle: 1, BlockSize: &blockSize}
	}
}

// SaveZarr writes ds as a zarr v2 group directory at path, one chunk per
// array. An existing zarr store at path is replaced; any other existing
// path is an error.
func SaveZarr(ds *models.Dataset, path string, opts ...ZarrOption) error {
	o := &zarrOptions{compressor: &zarrCompressor{ID: "zlib", Level: 1}}
	for _, opt := range opts {
		opt(o)
	}
	if o.compressor != nil {
		if _, err := compress(o.compressor, nil, 1); err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil {
		if f, _ := DetectFormat(path); f != FormatZarr {
			return fmt.Errorf("%s exists and is not a zarr store", path)
		}
		if err := os.RemoveAll(path); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(path, zgroupFile), map[string]int{"zarr_format": 2}); err != nil {
		return err
	}

	rootAttrs := jsonAttrs(ds.Attrs)
	var orphanCoords []string
	for _, name := range ds.CoordNames() {
		c := ds.Coords[name]
		if len(c.Dims) == 1 && c.Dims[0] == name {
			continue
		}
		if len(attachedCoords(ds, name)) == 0 {
			orphanCoords = append(orphanCoords, name)
		}
	}
	if len(orphanCoords) > 0 {
		rootAttrs[coordsAttr] = strings.Join(orphanCoords, " ")
	}
	if err := writeJSON(filepath.Join(path, zattrsFile), rootAttrs); err != nil {
		return err
	}

	for _, name := range ds.VariableNames() {
		v, _ := ds.Var(name)
		attrs := jsonAttrs(v.Attrs)
		attrs[arrayDimsAttr] = append([]string{}, v.Dims...)
		if _, isData := ds.DataVars[name]; isData {
			if coords := coordsFor(ds, v); len(coords) > 0 {
				attrs[coordsAttr] = strings.Join(coords, " ")
			}
		}
		if err := writeZarrArray(filepath.Join(path, name), v, attrs, o.compressor); err != nil {
			return fmt.Errorf("write %q: %w", name, err)
		}
	}
	return nil
}

// coordsFor lists the non-index coordinates whose dimensions are all used
// by v.
func coordsFor(ds *models.Dataset, v *models.Variable) []string {
	var out []string
	for _, name := range ds.CoordNames() {
		c := ds.Coords[name]
		if len(c.Dims) == 1 && c.Dims[0] == name {
			continue
		}
		shared := true
		for _, d := range c.Dims {
			if !v.HasDim(d) {
				shared = false
				break
			}
		}
		if shared {
			out = append(out, name)
		}
	}
	return out
}

// attachedCoords lists the data variables that will reference coordinate
// name.
func attachedCoords(ds *models.Dataset, name string) []string {
	var out []string
	for _, dv := range ds.DataVarNames() {
		for _, cn := range coordsFor(ds, ds.DataVars[dv]) {
			if cn == name {
				out = append(out, dv)
			}
		}
	}
	return out
}

func writeZarrArray(dir string, v *models.Variable, attrs map[string]interface{}, c *zarrCompressor) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	chunks := make([]int, len(v.Shape))
	for i, n := range v.Shape {
		chunks[i] = n
		if n == 0 {
			chunks[i] = 1
		}
	}
	meta := zarrArray{
		ZarrFormat: 2,
		Shape:      append([]int{}, v.Shape...),
		Chunks:     chunks,
		Compressor: c,
		Order:      "C",
	}

	var raw []byte
	switch data := v.Data.(type) {
	case []float64:
		meta.DType, meta.FillValue = "<f8", "NaN"
		raw = make([]byte, 8*len(data))
		for i, x := range data {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(x))
		}
	case []int64:
		meta.DType = "<i8"
		raw = make([]byte, 8*len(data))
		for i, x := range data {
			binary.LittleEndian.PutUint64(raw[8*i:], uint64(x))
		}
	case []bool:
		meta.DType, meta.FillValue = "|b1", false
		raw = make([]byte, len(data))
		for i, b := range data {
			if b {
				raw[i] = 1
			}
		}
	case []string:
		width := 1
		for _, s := range data {
			if n := utf8.RuneCountInString(s); n > width {
				width = n
			}
		}
		meta.DType, meta.FillValue = fmt.Sprintf("<U%d", width), ""
		raw = make([]byte, 4*width*len(data))
		for i, s := range data {
			off := 4 * width * i
			for _, r := range s {
				binary.LittleEndian.PutUint32(raw[off:], uint32(r))
				off += 4
			}
		}
	default:
		return fmt.Errorf("unsupported data type %T", v.Data)
	}

	if err := writeJSON(filepath.Join(dir, zarrayFile), meta); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, zattrsFile), attrs); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	zeros := make([]int, len(v.Shape))
	out, err := compress(c, raw, len(raw)/v.Size())
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, chunkKey(zeros, ".")), out, 0o644)
}

// jsonAttrs converts attributes to JSON-safe values. Non-finite floats use
// the zarr spellings "NaN", "Infinity" and "-Infinity".
func jsonAttrs(attrs map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		if k == arrayDimsAttr || k == coordsAttr {
			continue
		}
		out[k] = jsonValue(v)
	}
	return out
}

func jsonValue(v interface{}) interface{} {
	switch x := v.(type) {
	case float64:
		return jsonFloat(x)
	case float32:
		return jsonFloat(float64(x))
	case []float64:
		out := make([]interface{}, len(x))
		for i, f := range x {
			out[i] = jsonFloat(f)
		}
		return out
	default:
		return v
	}
}

func jsonFloat(f float64) interface{} {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}

func writeJSON(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

// zarrArrayNames lists the arrays of a group in name order.
func zarrArrayNames(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if _, err := os.Stat(filepath.Join(path, e.Name(), zarrayFile)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
