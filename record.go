package kafka

// CompressionType is the 3-bit compression code carried in the record
// batch attributes bitfield (spec.md §3 "Attributes bitfield").
type CompressionType int8

const (
	CompressionNone   CompressionType = 0
	CompressionGzip   CompressionType = 1
	CompressionSnappy CompressionType = 2
	CompressionLZ4    CompressionType = 3
	CompressionZstd   CompressionType = 4
)

// TimestampType is attributes bit 3.
type TimestampType int8

const (
	TimestampCreateTime     TimestampType = 0
	TimestampLogAppendTime  TimestampType = 1
)

// RecordHeader is a record header pair, varint-length-prefixed on the
// wire like the record's key/value (original_source kafka_records.cc
// kafka_record_header::serialize).
type RecordHeader struct {
	Key   string
	Value []byte
}

func (h *RecordHeader) encode(pe packetEncoder) error {
	if err := pe.putVarintBytes([]byte(h.Key)); err != nil {
		return err
	}
	return pe.putVarintBytes(h.Value)
}

func (h *RecordHeader) decode(pd packetDecoder) error {
	key, err := pd.getVarintBytes()
	if err != nil {
		return err
	}
	h.Key = string(key)
	h.Value, err = pd.getVarintBytes()
	return err
}

// Record is the wire-level record inside a RecordBatch, per spec.md §3
// "Record (wire)". RecordBatch.Encode writes OffsetDelta and
// TimestampDelta exactly as set on the Record and does not compute them;
// buildRecordBatch (sender.go) fills them from the queued records.
type Record struct {
	Attributes     int8
	TimestampDelta int32
	OffsetDelta    int32
	Key            []byte
	Value          []byte
	Headers        []*RecordHeader
}

func (r *Record) encode(pe packetEncoder) error {
	inner := newRealEncoder()
	inner.putInt8(r.Attributes)
	inner.putVarint(r.TimestampDelta)
	inner.putVarint(r.OffsetDelta)
	if err := inner.putVarintBytes(r.Key); err != nil {
		return err
	}
	if err := inner.putVarintBytes(r.Value); err != nil {
		return err
	}
	inner.putVarint(int32(len(r.Headers)))
	for _, h := range r.Headers {
		if err := h.encode(inner); err != nil {
			return err
		}
	}
	body := inner.bytes()
	pe.putVarint(int32(len(body)))
	return pe.putRawBytes(body)
}

func (r *Record) decode(pd packetDecoder) error {
	length, err := pd.getVarint()
	if err != nil {
		return err
	}
	if length < 0 {
		return parseErr("record length %d is invalid", length)
	}
	body, err := pd.getRawBytes(int(length))
	if err != nil {
		return err
	}
	inner := newRealDecoder(body)
	if r.Attributes, err = inner.getInt8(); err != nil {
		return err
	}
	if r.TimestampDelta, err = inner.getVarint(); err != nil {
		return err
	}
	if r.OffsetDelta, err = inner.getVarint(); err != nil {
		return err
	}
	if r.Key, err = inner.getVarintBytes(); err != nil {
		return err
	}
	if r.Value, err = inner.getVarintBytes(); err != nil {
		return err
	}
	headerCount, err := inner.getVarint()
	if err != nil {
		return err
	}
	if headerCount < 0 {
		return parseErr("record header count %d is invalid", headerCount)
	}
	r.Headers = make([]*RecordHeader, headerCount)
	for i := range r.Headers {
		h := &RecordHeader{}
		if err := h.decode(inner); err != nil {
			return err
		}
		r.Headers[i] = h
	}
	if inner.remaining() != 0 {
		return parseErr("record body has %d trailing bytes", inner.remaining())
	}
	return nil
}

// RecordBatch is the v2 on-wire batch container, spec.md §3 "Record
// batch (wire)". Non-idempotent producers always emit ProducerID=-1,
// ProducerEpoch=-1, BaseSequence=-1 (§9 "Producer idempotence").
type RecordBatch struct {
	BaseOffset           int64
	PartitionLeaderEpoch int32
	Magic                int8

	CompressionType CompressionType
	TimestampType   TimestampType
	IsTransactional bool
	IsControlBatch  bool

	FirstTimestamp int64
	ProducerID     int64
	ProducerEpoch  int16
	BaseSequence   int32

	Records []*Record

	// populated on decode only, for inspection/testing.
	LastOffsetDelta int32
	MaxTimestamp    int64
	CRC             uint32
}

// RecordBatchMagic is the only supported magic byte (§1 Non-goals: other
// versions are out of scope).
const RecordBatchMagic int8 = 2

// ErrUnsupportedRecordBatchVersion is returned when Magic != 2 (§4.C
// "treat any batch with magic != 2 as unsupported").
var ErrUnsupportedRecordBatchVersion = parseErr("unsupported record batch magic byte")

// ErrUnsupportedCompressionTypeOnDecode is returned by Decode when the
// batch's compression type has no registered decompressor (§4.C, §4.J).
var ErrUnsupportedCompressionTypeOnDecode = parseErr("unsupported compression type")

// Encode implements spec.md §4.C's batch encoding: the post-CRC payload,
// then the CRC-prefixed header. Per-record deltas are taken from Records
// as given.
func (b *RecordBatch) Encode(pe packetEncoder) error {
	if b.Magic != RecordBatchMagic {
		return ErrUnsupportedRecordBatchVersion
	}
	if b.CompressionType != CompressionNone {
		// Non-goal: compression codecs are a hook, not an encode path (§1, §4.C).
		return parseErr("encoding with compression type %d is not supported", b.CompressionType)
	}

	payload := newRealEncoder()

	attrs := int16(b.CompressionType) & 0x7
	attrs |= int16(b.TimestampType) << 3
	if b.IsTransactional {
		attrs |= 0x10
	}
	if b.IsControlBatch {
		attrs |= 0x20
	}
	payload.putInt16(attrs)

	var lastOffsetDelta int32
	if len(b.Records) > 0 {
		lastOffsetDelta = b.Records[len(b.Records)-1].OffsetDelta
	}
	payload.putInt32(lastOffsetDelta)

	payload.putInt64(b.FirstTimestamp)

	var maxDelta int32
	for _, r := range b.Records {
		if r.TimestampDelta > maxDelta {
			maxDelta = r.TimestampDelta
		}
	}
	payload.putInt64(b.FirstTimestamp + int64(maxDelta))

	payload.putInt64(b.ProducerID)
	payload.putInt16(b.ProducerEpoch)
	payload.putInt32(b.BaseSequence)

	payload.putInt32(int32(len(b.Records)))
	for _, r := range b.Records {
		if err := r.encode(payload); err != nil {
			return err
		}
	}

	payloadBytes := payload.bytes()

	pe.putInt64(b.BaseOffset)
	// batch_length covers partition_leader_epoch(4) + magic(1) + crc(4) + payload.
	pe.putInt32(int32(len(payloadBytes) + 4 + 1 + 4))
	pe.putInt32(b.PartitionLeaderEpoch)
	pe.putInt8(b.Magic)
	pe.putInt32(int32(crc32cChecksum(payloadBytes)))
	return pe.putRawBytes(payloadBytes)
}

// Decode implements spec.md §4.C's decode path: the magic byte sits at
// a fixed offset (16) ahead of the rest of the post-CRC payload, so an
// unsupported version is rejected as soon as it is read, before any
// record is parsed.
func (b *RecordBatch) Decode(pd packetDecoder) error {
	remaining := pd.remaining()
	if remaining < 17 {
		return ErrInsufficientData
	}
	raw, err := pd.getRawBytes(remaining)
	if err != nil {
		return err
	}
	inner := newRealDecoder(raw)

	if b.BaseOffset, err = inner.getInt64(); err != nil {
		return err
	}
	batchLength, err := inner.getInt32()
	if err != nil {
		return err
	}

	if b.PartitionLeaderEpoch, err = inner.getInt32(); err != nil {
		return err
	}
	if b.Magic, err = inner.getInt8(); err != nil {
		return err
	}
	if b.Magic != RecordBatchMagic {
		return ErrUnsupportedRecordBatchVersion
	}
	if batchLength < 9 {
		return parseErr("batch length %d too small", batchLength)
	}
	crc, err := inner.getInt32()
	if err != nil {
		return err
	}
	b.CRC = uint32(crc)

	payloadStart := inner.off
	attrs, err := inner.getInt16()
	if err != nil {
		return err
	}
	b.CompressionType = CompressionType(attrs & 0x7)
	if attrs&0x8 != 0 {
		b.TimestampType = TimestampLogAppendTime
	} else {
		b.TimestampType = TimestampCreateTime
	}
	b.IsTransactional = attrs&0x10 != 0
	b.IsControlBatch = attrs&0x20 != 0

	if b.LastOffsetDelta, err = inner.getInt32(); err != nil {
		return err
	}
	if b.FirstTimestamp, err = inner.getInt64(); err != nil {
		return err
	}
	if b.MaxTimestamp, err = inner.getInt64(); err != nil {
		return err
	}
	if b.ProducerID, err = inner.getInt64(); err != nil {
		return err
	}
	if b.ProducerEpoch, err = inner.getInt16(); err != nil {
		return err
	}
	if b.BaseSequence, err = inner.getInt32(); err != nil {
		return err
	}
	recordCount, err := inner.getInt32()
	if err != nil {
		return err
	}
	if recordCount < 0 {
		return parseErr("record count %d is invalid", recordCount)
	}

	payloadEnd := payloadStart + int(batchLength) - 9
	if payloadEnd < 0 || payloadEnd > len(raw) {
		return parseErr("batch length %d overruns buffer", batchLength)
	}

	if b.CompressionType != CompressionNone {
		decompressed, err := decompressPayload(b.CompressionType, raw[inner.off:payloadEnd])
		if err != nil {
			return err
		}
		recDec := newRealDecoder(decompressed)
		b.Records = make([]*Record, 0, recordCount)
		for i := int32(0); i < recordCount; i++ {
			r := &Record{}
			if err := r.decode(recDec); err != nil {
				return err
			}
			b.Records = append(b.Records, r)
		}
	} else {
		b.Records = make([]*Record, 0, recordCount)
		for i := int32(0); i < recordCount; i++ {
			r := &Record{}
			if err := r.decode(inner); err != nil {
				return err
			}
			b.Records = append(b.Records, r)
		}
		if inner.off != payloadEnd {
			return parseErr("record batch declared length %d but records consumed %d bytes", batchLength-9, inner.off-payloadStart)
		}
	}

	return nil
}
