package kafka

import (
	"encoding/binary"
	"fmt"
)

// packetEncoder is the interface each protocol struct encodes itself
// into. Named and shaped after the teacher's encoder/decoder split so
// every message type can share one implementation of the primitives.
type packetEncoder interface {
	putInt8(in int8)
	putInt16(in int16)
	putInt32(in int32)
	putInt64(in int64)
	putVarint(in int32)
	putVarlong(in int64)
	putBool(in bool)

	putString(in string) error
	putNullableString(in *string) error
	putBytes(in []byte) error
	putNullableBytes(in []byte) error
	putVarintBytes(in []byte) error

	putArrayLength(in int) error
	putRawBytes(in []byte) error

	bytes() []byte
}

type packetDecoder interface {
	getInt8() (int8, error)
	getInt16() (int16, error)
	getInt32() (int32, error)
	getInt64() (int64, error)
	getVarint() (int32, error)
	getVarlong() (int64, error)
	getBool() (bool, error)

	getString() (string, error)
	getNullableString() (*string, error)
	getBytes() ([]byte, error)
	getNullableBytes() ([]byte, error)
	getVarintBytes() ([]byte, error)

	getArrayLength() (int, error)
	getRawBytes(length int) ([]byte, error)

	remaining() int
}

// PacketDecodingError is the single fatal-to-the-frame parse error kind
// described by spec §4.A / §7.
type PacketDecodingError struct {
	Info string
}

func (e PacketDecodingError) Error() string {
	return fmt.Sprintf("kafka: insufficient data to decode packet: %s", e.Info)
}

// ErrInsufficientData is returned when a decode runs past the end of the
// underlying buffer.
var ErrInsufficientData = PacketDecodingError{Info: "insufficient data"}

func parseErr(format string, args ...interface{}) error {
	return PacketDecodingError{Info: fmt.Sprintf(format, args...)}
}

// realEncoder writes primitives to a growable byte slice, big-endian, as
// required by §4.A.
type realEncoder struct {
	raw []byte
}

func newRealEncoder() *realEncoder {
	return &realEncoder{}
}

func (e *realEncoder) putInt8(in int8) {
	e.raw = append(e.raw, byte(in))
}

func (e *realEncoder) putInt16(in int16) {
	e.raw = binary.BigEndian.AppendUint16(e.raw, uint16(in))
}

func (e *realEncoder) putInt32(in int32) {
	e.raw = binary.BigEndian.AppendUint32(e.raw, uint32(in))
}

func (e *realEncoder) putInt64(in int64) {
	e.raw = binary.BigEndian.AppendUint64(e.raw, uint64(in))
}

func (e *realEncoder) putBool(in bool) {
	if in {
		e.putInt8(1)
	} else {
		e.putInt8(0)
	}
}

// putVarint writes a zig-zag varint as specified in §4.A:
// (n<<1)^(n>>31), 5 bytes maximum for i32.
func (e *realEncoder) putVarint(in int32) {
	zz := uint32((in << 1) ^ (in >> 31))
	e.putUvarint(uint64(zz))
}

func (e *realEncoder) putVarlong(in int64) {
	zz := uint64((in << 1) ^ (in >> 63))
	e.putUvarint(zz)
}

func (e *realEncoder) putUvarint(u uint64) {
	var buf [10]byte
	n := binary.PutUvarint(buf[:], u)
	e.raw = append(e.raw, buf[:n]...)
}

func (e *realEncoder) putString(in string) error {
	if len(in) > maxStringLength {
		return parseErr("string too long: %d", len(in))
	}
	e.putInt16(int16(len(in)))
	e.raw = append(e.raw, in...)
	return nil
}

func (e *realEncoder) putNullableString(in *string) error {
	if in == nil {
		e.putInt16(-1)
		return nil
	}
	return e.putString(*in)
}

func (e *realEncoder) putBytes(in []byte) error {
	if in == nil {
		return parseErr("putBytes called with nil slice, use putNullableBytes")
	}
	e.putInt32(int32(len(in)))
	e.raw = append(e.raw, in...)
	return nil
}

func (e *realEncoder) putNullableBytes(in []byte) error {
	if in == nil {
		e.putInt32(-1)
		return nil
	}
	return e.putBytes(in)
}

func (e *realEncoder) putVarintBytes(in []byte) error {
	if in == nil {
		e.putVarint(-1)
		return nil
	}
	e.putVarint(int32(len(in)))
	e.raw = append(e.raw, in...)
	return nil
}

func (e *realEncoder) putArrayLength(in int) error {
	if in > maxArrayLength {
		return parseErr("array too long: %d", in)
	}
	e.putInt32(int32(in))
	return nil
}

func (e *realEncoder) putRawBytes(in []byte) error {
	e.raw = append(e.raw, in...)
	return nil
}

func (e *realEncoder) bytes() []byte {
	return e.raw
}

// realDecoder reads primitives from a fixed byte slice, enforcing the
// single parse-error kind on premature end-of-stream or out-of-range
// values (§4.A, §7).
type realDecoder struct {
	raw []byte
	off int
}

func newRealDecoder(raw []byte) *realDecoder {
	return &realDecoder{raw: raw}
}

func (d *realDecoder) remaining() int {
	return len(d.raw) - d.off
}

func (d *realDecoder) need(n int) error {
	if d.remaining() < n {
		return ErrInsufficientData
	}
	return nil
}

func (d *realDecoder) getInt8() (int8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := int8(d.raw[d.off])
	d.off++
	return v, nil
}

func (d *realDecoder) getInt16() (int16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := int16(binary.BigEndian.Uint16(d.raw[d.off:]))
	d.off += 2
	return v, nil
}

func (d *realDecoder) getInt32() (int32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(d.raw[d.off:]))
	d.off += 4
	return v, nil
}

func (d *realDecoder) getInt64() (int64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(d.raw[d.off:]))
	d.off += 8
	return v, nil
}

func (d *realDecoder) getBool() (bool, error) {
	v, err := d.getInt8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// getVarint decodes a zig-zag varint, rejecting sequences that encode
// more than 32 significant bits (§4.A).
func (d *realDecoder) getVarint() (int32, error) {
	// 32 significant bits split across 5 base-128 bytes: the first 4
	// bytes carry 28 bits, leaving only the low 4 bits of the 5th byte
	// significant (max legal final byte 0x0f).
	u, err := d.getUvarint(5, 0x0f)
	if err != nil {
		return 0, err
	}
	return int32((u >> 1) ^ -(u & 1)), nil
}

func (d *realDecoder) getVarlong() (int64, error) {
	// 64 significant bits split across 10 base-128 bytes: the first 9
	// bytes carry 63 bits, leaving only the low 1 bit of the 10th byte
	// significant (max legal final byte 0x01).
	u, err := d.getUvarint(10, 0x01)
	if err != nil {
		return 0, err
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

func (d *realDecoder) getUvarint(maxBytes int, maxFinalByte byte) (uint64, error) {
	var x uint64
	var s uint
	for i := 0; i < maxBytes; i++ {
		if d.remaining() < 1 {
			return 0, ErrInsufficientData
		}
		b := d.raw[d.off]
		d.off++
		if b < 0x80 {
			if i == maxBytes-1 && b > maxFinalByte {
				return 0, parseErr("varint overflow: final byte %#x exceeds %#x", b, maxFinalByte)
			}
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, parseErr("varint overflow: too many continuation bytes")
}

func (d *realDecoder) getString() (string, error) {
	n, err := d.getInt16()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", parseErr("negative length %d in non-nullable string", n)
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.raw[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

func (d *realDecoder) getNullableString() (*string, error) {
	n, err := d.getInt16()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n < -1 {
		return nil, parseErr("invalid nullable string length %d", n)
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	s := string(d.raw[d.off : d.off+int(n)])
	d.off += int(n)
	return &s, nil
}

func (d *realDecoder) getBytes() ([]byte, error) {
	n, err := d.getInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, parseErr("negative length %d in non-nullable bytes", n)
	}
	return d.getRawBytes(int(n))
}

func (d *realDecoder) getNullableBytes() ([]byte, error) {
	n, err := d.getInt32()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n < -1 {
		return nil, parseErr("invalid nullable bytes length %d", n)
	}
	return d.getRawBytes(int(n))
}

func (d *realDecoder) getVarintBytes() ([]byte, error) {
	n, err := d.getVarint()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	if n < -1 {
		return nil, parseErr("invalid varint-prefixed length %d", n)
	}
	return d.getRawBytes(int(n))
}

func (d *realDecoder) getArrayLength() (int, error) {
	n, err := d.getInt32()
	if err != nil {
		return 0, err
	}
	if n == -1 {
		return 0, nil
	}
	if n < 0 {
		return 0, parseErr("invalid array length %d", n)
	}
	if int(n) > maxArrayLength {
		return 0, parseErr("array length %d exceeds sanity limit", n)
	}
	return int(n), nil
}

func (d *realDecoder) getRawBytes(length int) ([]byte, error) {
	if length < 0 {
		return nil, parseErr("negative raw length %d", length)
	}
	if err := d.need(length); err != nil {
		return nil, err
	}
	v := d.raw[d.off : d.off+length]
	d.off += length
	return v, nil
}

const (
	// maxStringLength caps the length putString will encode.
	// maxArrayLength caps encoded array lengths and bounds allocations
	// when parsing malformed responses, per the §5 resource-bounds note.
	maxStringLength = 1 << 15
	maxArrayLength  = 1 << 20
)
