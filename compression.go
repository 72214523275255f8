package kafka

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// decompressor turns a compressed record-batch payload back into the
// concatenated, uncompressed record bytes. Registered per
// CompressionType; see SPEC_FULL.md §4.J.
type decompressor func(in []byte) ([]byte, error)

var decompressors = map[CompressionType]decompressor{
	CompressionGzip:   decompressGzip,
	CompressionSnappy: decompressSnappy,
	CompressionLZ4:    decompressLZ4,
	CompressionZstd:   decompressZstd,
}

// decompressPayload is the single entry point RecordBatch.Decode calls
// for any non-None compression type. Non-goal per spec.md §1/§4.C: the
// uncompressed path is the only one required to work end to end, but
// wiring real codecs here lets the attributes field round-trip honestly
// instead of being rejected outright.
func decompressPayload(ct CompressionType, in []byte) ([]byte, error) {
	fn, ok := decompressors[ct]
	if !ok {
		return nil, ErrUnsupportedCompressionTypeOnDecode
	}
	out, err := fn(in)
	if err != nil {
		return nil, ErrUnsupportedCompressionTypeOnDecode
	}
	return out, nil
}

func decompressGzip(in []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func decompressSnappy(in []byte) ([]byte, error) {
	return snappy.Decode(nil, in)
}

func decompressLZ4(in []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(in))
	return io.ReadAll(r)
}

func decompressZstd(in []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(in, nil)
}
