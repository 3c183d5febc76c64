package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Blosc frames as written by c-blosc 1.x, the default zarr v2 compressor:
// a 16-byte header, a table of block offsets, then every block as one or
// more length-prefixed streams. Streams are split per byte of the element
// type unless the header says otherwise.
const (
	bloscHeaderSize = 16
	bloscVersion    = 2
	bloscVersionLZ  = 1

	bloscDoShuffle    = 0x01
	bloscMemcpyed     = 0x02
	bloscDoBitShuffle = 0x04
	bloscDontSplit    = 0x10

	bloscMaxSplits     = 16
	bloscMinBufferSize = 128
	bloscBlockSize     = 1 << 18
)

// Compressor formats in bits 5-7 of the header flags.
const (
	bloscFormatBloscLZ = iota
	bloscFormatLZ4
	bloscFormatSnappy
	bloscFormatZlib
	bloscFormatZstd
)

var bloscFormats = map[string]int{
	"lz4":    bloscFormatLZ4,
	"lz4hc":  bloscFormatLZ4,
	"snappy": bloscFormatSnappy,
	"zlib":   bloscFormatZlib,
	"zstd":   bloscFormatZstd,
}

type bloscHeader struct {
	flags     byte
	typeSize  int
	nbytes    int
	blockSize int
	cbytes    int
}

func parseBloscHeader(src []byte) (bloscHeader, error) {
	if len(src) < bloscHeaderSize {
		return bloscHeader{}, fmt.Errorf("blosc frame of %d bytes is shorter than its header", len(src))
	}
	h := bloscHeader{
		flags:     src[2],
		typeSize:  int(src[3]),
		nbytes:    int(binary.LittleEndian.Uint32(src[4:])),
		blockSize: int(binary.LittleEndian.Uint32(src[8:])),
		cbytes:    int(binary.LittleEndian.Uint32(src[12:])),
	}
	if h.cbytes > len(src) {
		return bloscHeader{}, fmt.Errorf("blosc frame truncated: %d of %d bytes", len(src), h.cbytes)
	}
	return h, nil
}

func (h bloscHeader) format() int {
	return int(h.flags >> 5)
}

// splits is the number of streams a block of bsize bytes was stored as.
func (h bloscHeader) splits(bsize int, leftover bool) int {
	if h.flags&bloscDontSplit == 0 && !leftover && h.typeSize > 0 &&
		h.typeSize <= bloscMaxSplits && bsize/h.typeSize >= bloscMinBufferSize {
		return h.typeSize
	}
	return 1
}

// bloscDecompress decodes one blosc frame. Bit shuffling and the blosclz
// codec are reported as ErrUnsupportedFormat.
func bloscDecompress(src []byte) ([]byte, error) {
	h, err := parseBloscHeader(src)
	if err != nil {
		return nil, err
	}
	if h.nbytes == 0 {
		return []byte{}, nil
	}
	if h.flags&bloscMemcpyed != 0 {
		if len(src) < bloscHeaderSize+h.nbytes {
			return nil, fmt.Errorf("blosc frame truncated: %d bytes for %d stored", len(src), h.nbytes)
		}
		return append([]byte(nil), src[bloscHeaderSize:bloscHeaderSize+h.nbytes]...), nil
	}
	if h.flags&bloscDoBitShuffle != 0 {
		return nil, fmt.Errorf("%w: blosc bit shuffle", ErrUnsupportedFormat)
	}
	if h.blockSize <= 0 {
		return nil, fmt.Errorf("blosc block size %d", h.blockSize)
	}

	dec := &bloscStreamDecoder{format: h.format()}
	defer dec.close()

	nblocks := (h.nbytes + h.blockSize - 1) / h.blockSize
	if len(src) < bloscHeaderSize+4*nblocks {
		return nil, fmt.Errorf("blosc frame truncated in its block table")
	}
	leftover := h.nbytes % h.blockSize
	out := make([]byte, h.nbytes)
	tmp := make([]byte, h.blockSize)
	for b := 0; b < nblocks; b++ {
		bsize := h.blockSize
		last := leftover > 0 && b == nblocks-1
		if last {
			bsize = leftover
		}
		start := int(binary.LittleEndian.Uint32(src[bloscHeaderSize+4*b:]))
		if err := dec.block(src, start, tmp[:bsize], h.splits(bsize, last)); err != nil {
			return nil, fmt.Errorf("blosc block %d: %w", b, err)
		}
		dst := out[b*h.blockSize : b*h.blockSize+bsize]
		if h.flags&bloscDoShuffle != 0 && h.typeSize > 1 {
			unshuffle(h.typeSize, tmp[:bsize], dst)
		} else {
			copy(dst, tmp[:bsize])
		}
	}
	return out, nil
}

type bloscStreamDecoder struct {
	format int
	zstd   *zstd.Decoder
}

func (d *bloscStreamDecoder) close() {
	if d.zstd != nil {
		d.zstd.Close()
	}
}

// block decodes the streams of one block starting at src[start] into dst.
func (d *bloscStreamDecoder) block(src []byte, start int, dst []byte, nsplits int) error {
	size := len(dst) / nsplits
	pos := start
	for s := 0; s < nsplits; s++ {
		if pos < 0 || pos+4 > len(src) {
			return fmt.Errorf("stream %d starts outside the frame", s)
		}
		n := int(binary.LittleEndian.Uint32(src[pos:]))
		pos += 4
		if n < 0 || pos+n > len(src) {
			return fmt.Errorf("stream %d of %d bytes overruns the frame", s, n)
		}
		part := dst[s*size : (s+1)*size]
		if n == size {
			copy(part, src[pos:pos+n])
		} else if err := d.stream(src[pos:pos+n], part); err != nil {
			return fmt.Errorf("stream %d: %w", s, err)
		}
		pos += n
	}
	return nil
}

// stream decompresses one stream; it must fill dst exactly.
func (d *bloscStreamDecoder) stream(src, dst []byte) error {
	var got int
	switch d.format {
	case bloscFormatLZ4:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return err
		}
		got = n
	case bloscFormatSnappy:
		out, err := snappy.Decode(nil, src)
		if err != nil {
			return err
		}
		got = len(out)
		copy(dst, out)
	case bloscFormatZlib:
		r, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return err
		}
		defer r.Close()
		n, err := io.ReadFull(r, dst)
		if err != nil {
			return err
		}
		got = n
	case bloscFormatZstd:
		if d.zstd == nil {
			dec, err := zstd.NewReader(nil)
			if err != nil {
				return err
			}
			d.zstd = dec
		}
		out, err := d.zstd.DecodeAll(src, nil)
		if err != nil {
			return err
		}
		got = len(out)
		copy(dst, out)
	default:
		return fmt.Errorf("%w: blosc compressor format %d", ErrUnsupportedFormat, d.format)
	}
	if got != len(dst) {
		return fmt.Errorf("decoded %d bytes, want %d", got, len(dst))
	}
	return nil
}

// bloscCompress writes raw as a blosc frame: byte-shuffled by typeSize and
// one cname stream per block. Blocks that do not shrink are stored as is.
func bloscCompress(raw []byte, typeSize int, cname string, level int) ([]byte, error) {
	format, ok := bloscFormats[cname]
	if !ok {
		return nil, fmt.Errorf("%w: blosc compressor %q", ErrUnsupportedFormat, cname)
	}
	if typeSize < 1 || typeSize > 255 {
		typeSize = 1
	}
	blockSize := len(raw)
	if blockSize > bloscBlockSize {
		blockSize = bloscBlockSize / typeSize * typeSize
	}
	flags := byte(format<<5) | bloscDontSplit
	if typeSize > 1 {
		flags |= bloscDoShuffle
	}

	nblocks := 0
	if blockSize > 0 {
		nblocks = (len(raw) + blockSize - 1) / blockSize
	}
	out := make([]byte, bloscHeaderSize+4*nblocks)
	out[0], out[1], out[2], out[3] = bloscVersion, bloscVersionLZ, flags, byte(typeSize)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(out[8:], uint32(blockSize))

	enc := &bloscStreamEncoder{format: format, level: level}
	defer enc.close()
	tmp := make([]byte, blockSize)
	for b := 0; b < nblocks; b++ {
		block := raw[b*blockSize:]
		if len(block) > blockSize {
			block = block[:blockSize]
		}
		shuffled := tmp[:len(block)]
		if typeSize > 1 {
			shuffle(typeSize, block, shuffled)
		} else {
			copy(shuffled, block)
		}
		binary.LittleEndian.PutUint32(out[bloscHeaderSize+4*b:], uint32(len(out)))
		packed, err := enc.stream(shuffled)
		if err != nil {
			return nil, fmt.Errorf("blosc block %d: %w", b, err)
		}
		if len(packed) == 0 || len(packed) >= len(shuffled) {
			packed = shuffled
		}
		out = binary.LittleEndian.AppendUint32(out, uint32(len(packed)))
		out = append(out, packed...)
	}
	binary.LittleEndian.PutUint32(out[12:], uint32(len(out)))
	return out, nil
}

type bloscStreamEncoder struct {
	format int
	level  int
	zstd   *zstd.Encoder
}

func (e *bloscStreamEncoder) close() {
	if e.zstd != nil {
		e.zstd.Close()
	}
}

// stream compresses src; an empty result means src did not compress.
func (e *bloscStreamEncoder) stream(src []byte) ([]byte, error) {
	switch e.format {
	case bloscFormatLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := lz4.CompressBlock(src, dst, nil)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil
	case bloscFormatSnappy:
		return snappy.Encode(nil, src), nil
	case bloscFormatZlib:
		var buf bytes.Buffer
		w, err := zlib.NewWriterLevel(&buf, e.level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(src); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case bloscFormatZstd:
		if e.zstd == nil {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(e.level)))
			if err != nil {
				return nil, err
			}
			e.zstd = enc
		}
		return e.zstd.EncodeAll(src, nil), nil
	default:
		return nil, fmt.Errorf("%w: blosc compressor format %d", ErrUnsupportedFormat, e.format)
	}
}

// shuffle groups byte j of every element together: byte j of element i
// goes to j*n+i. Trailing bytes that do not form an element stay in place.
func shuffle(typeSize int, src, dst []byte) {
	n := len(src) / typeSize
	for i := 0; i < n; i++ {
		for j := 0; j < typeSize; j++ {
			dst[j*n+i] = src[i*typeSize+j]
		}
	}
	copy(dst[n*typeSize:], src[n*typeSize:])
}

func unshuffle(typeSize int, src, dst []byte) {
	n := len(src) / typeSize
	for i := 0; i < n; i++ {
		for j := 0; j < typeSize; j++ {
			dst[i*typeSize+j] = src[j*n+i]
		}
	}
	copy(dst[n*typeSize:], src[n*typeSize:])
}
