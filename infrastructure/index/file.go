package index

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/schemavault/schemavault/domain/schema"
)

// On-disk layout: a fixed header (magic, format version, index kind,
// dimension) followed by a kind-specific payload. The dimension lives in
// the header so a mismatch is detected before any vector is decoded.
const (
	fileMagic   = "SVIX"
	fileVersion = uint16(1)

	kindBruteForce = uint8(1)
	kindHNSW       = uint8(2)
)

type binaryWriter struct {
	buf []byte
}

func newBinaryWriter(sizeHint int) *binaryWriter {
	return &binaryWriter{buf: make([]byte, 0, sizeHint)}
}

func (w *binaryWriter) header(kind uint8, dim int) {
	w.buf = append(w.buf, fileMagic...)
	w.u16(fileVersion)
	w.u8(kind)
	w.u32(uint32(dim))
}

func (w *binaryWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *binaryWriter) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *binaryWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *binaryWriter) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *binaryWriter) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *binaryWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *binaryWriter) vec(v []float32) {
	for _, f := range v {
		w.f32(f)
	}
}

func (w *binaryWriter) bytes() []byte { return w.buf }

// binaryReader decodes with a sticky error: once a read runs past the end
// of the data every subsequent read returns zero values, and err() reports
// the corruption.
type binaryReader struct {
	data    []byte
	off     int
	corrupt bool
}

func newBinaryReader(data []byte) *binaryReader {
	return &binaryReader{data: data}
}

// header validates magic, version, and kind, and returns the stored
// dimension. A dimension different from want is fatal.
func (r *binaryReader) header(wantKind uint8, wantDim int) (int, error) {
	if len(r.data) < len(fileMagic)+3 {
		return 0, fmt.Errorf("%w: index file too short for header", schema.ErrCorrupt)
	}
	if string(r.data[:len(fileMagic)]) != fileMagic {
		return 0, fmt.Errorf("%w: bad index file magic", schema.ErrCorrupt)
	}
	r.off = len(fileMagic)

	if v := r.u16(); v != fileVersion {
		return 0, fmt.Errorf("%w: unsupported index format version %d", schema.ErrCorrupt, v)
	}
	if k := r.u8(); k != wantKind {
		return 0, fmt.Errorf("%w: index file kind %d does not match configured index", schema.ErrCorrupt, k)
	}
	dim := int(r.u32())
	if dim != wantDim {
		return 0, fmt.Errorf("%w: index file has dimension %d, configured dimension is %d",
			ErrDimensionMismatch, dim, wantDim)
	}
	return dim, nil
}

func (r *binaryReader) take(n int) []byte {
	if r.corrupt || n < 0 || r.off+n > len(r.data) {
		r.corrupt = true
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *binaryReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *binaryReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *binaryReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *binaryReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *binaryReader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *binaryReader) str() string {
	n := int(r.u32())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *binaryReader) vec(dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.f32()
	}
	return v
}

func (r *binaryReader) err() error {
	if r.corrupt {
		return fmt.Errorf("%w: truncated index file", schema.ErrCorrupt)
	}
	if r.off != len(r.data) {
		return fmt.Errorf("%w: %d trailing bytes in index file", schema.ErrCorrupt, len(r.data)-r.off)
	}
	return nil
}
