package mvt

import "encoding/binary"

// wireType mirrors the protobuf wire types used by the MVT layer/feature
// sub-messages: varint, length-delimited, and the two fixed-width types
// Value.float_value/double_value require.
type wireType byte

const (
	wireVarint  wireType = 0
	wireFixed64 wireType = 1
	wireBytes   wireType = 2
	wireFixed32 wireType = 5
)

func tag(field int, wt wireType) uint64 {
	return uint64(field)<<3 | uint64(wt)
}

type writer struct {
	buf []byte
}

func (w *writer) varint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *writer) tag(field int, wt wireType) {
	w.varint(tag(field, wt))
}

func (w *writer) bytesField(field int, b []byte) {
	w.tag(field, wireBytes)
	w.varint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) stringField(field int, s string) {
	w.bytesField(field, []byte(s))
}

func (w *writer) varintField(field int, v uint64) {
	w.tag(field, wireVarint)
	w.varint(v)
}

// fixed32Field writes field as a fixed32 (4 raw little-endian bytes, no
// length prefix), the wire shape Value.float_value requires.
func (w *writer) fixed32Field(field int, v uint32) {
	w.tag(field, wireFixed32)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// fixed64Field writes field as a fixed64 (8 raw little-endian bytes, no
// length prefix), the wire shape Value.double_value requires.
func (w *writer) fixed64Field(field int, v uint64) {
	w.tag(field, wireFixed64)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *writer) message(field int, m *writer) {
	w.bytesField(field, m.buf)
}

// zigzag maps a signed integer bijectively onto the unsigned integers so
// small magnitudes of either sign encode as short varints.
func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// reader walks a protobuf byte stream, field by field.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) done() bool { return r.pos >= len(r.buf) }

func (r *reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, errTruncated
	}
	r.pos += n
	return v, nil
}

func (r *reader) fieldHeader() (field int, wt wireType, err error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, 0, err
	}
	return int(v >> 3), wireType(v & 0x7), nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, errTruncated
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *reader) fixed32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errTruncated
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) fixed64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, errTruncated
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) skip(wt wireType) error {
	switch wt {
	case wireVarint:
		_, err := r.uvarint()
		return err
	case wireBytes:
		_, err := r.bytes()
		return err
	case wireFixed64:
		_, err := r.fixed64()
		return err
	case wireFixed32:
		_, err := r.fixed32()
		return err
	default:
		return errUnsupportedWireType
	}
}
