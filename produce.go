package kafka

import "time"

// AcksPolicy is the acks config value: how many replicas must persist a
// batch before the broker responds (GLOSSARY "acks").
type AcksPolicy int16

const (
	AcksNone   AcksPolicy = 0
	AcksLeader AcksPolicy = 1
	AcksAll    AcksPolicy = -1
)

// ProducePartitionRequest is one partition entry of a ProduceRequest
// topic (spec.md §4.D).
type ProducePartitionRequest struct {
	PartitionIndex int32
	Records        *RecordBatch
}

// ProduceTopicRequest is one topic entry of a ProduceRequest (spec.md
// §4.D).
type ProduceTopicRequest struct {
	Name       string
	Partitions []ProducePartitionRequest
}

// ProduceRequest (API key 0, v2-v8), spec.md §4.D.
type ProduceRequest struct {
	Version         int16
	TransactionalID *string
	Acks            AcksPolicy
	TimeoutMs       int32
	Topics          []ProduceTopicRequest
}

func (r *ProduceRequest) setVersion(v int16)   { r.Version = v }
func (r *ProduceRequest) key() int16           { return apiKeyProduce }
func (r *ProduceRequest) version() int16       { return r.Version }
func (r *ProduceRequest) headerVersion() int16 { return 1 }

func (r *ProduceRequest) encode(pe packetEncoder) error {
	if r.Version >= 3 {
		if err := pe.putNullableString(r.TransactionalID); err != nil {
			return err
		}
	}
	pe.putInt16(int16(r.Acks))
	pe.putInt32(r.TimeoutMs)

	if err := pe.putArrayLength(len(r.Topics)); err != nil {
		return err
	}
	for _, t := range r.Topics {
		if err := pe.putString(t.Name); err != nil {
			return err
		}
		if err := pe.putArrayLength(len(t.Partitions)); err != nil {
			return err
		}
		for _, p := range t.Partitions {
			pe.putInt32(p.PartitionIndex)

			inner := newRealEncoder()
			if err := p.Records.Encode(inner); err != nil {
				return err
			}
			if err := pe.putBytes(inner.bytes()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *ProduceRequest) decode(pd packetDecoder, version int16) error {
	r.Version = version
	var err error
	if version >= 3 {
		if r.TransactionalID, err = pd.getNullableString(); err != nil {
			return err
		}
	}
	acks, err := pd.getInt16()
	if err != nil {
		return err
	}
	r.Acks = AcksPolicy(acks)
	if r.TimeoutMs, err = pd.getInt32(); err != nil {
		return err
	}

	tn, err := pd.getArrayLength()
	if err != nil {
		return err
	}
	r.Topics = make([]ProduceTopicRequest, tn)
	for i := 0; i < tn; i++ {
		t := &r.Topics[i]
		if t.Name, err = pd.getString(); err != nil {
			return err
		}
		pn, err := pd.getArrayLength()
		if err != nil {
			return err
		}
		t.Partitions = make([]ProducePartitionRequest, pn)
		for j := 0; j < pn; j++ {
			p := &t.Partitions[j]
			if p.PartitionIndex, err = pd.getInt32(); err != nil {
				return err
			}
			raw, err := pd.getBytes()
			if err != nil {
				return err
			}
			batch := &RecordBatch{}
			if err := batch.Decode(newRealDecoder(raw)); err != nil {
				return err
			}
			p.Records = batch
		}
	}
	return nil
}

// ProducePartitionResponse is one partition entry of a ProduceResponse
// topic (spec.md §4.D / §4.H step 5).
type ProducePartitionResponse struct {
	PartitionIndex int32
	ErrorCode      KError
	BaseOffset     int64
	LogAppendTime  time.Time
	LogStartOffset int64
}

// ProduceTopicResponse is one topic entry of a ProduceResponse.
type ProduceTopicResponse struct {
	Name       string
	Partitions []ProducePartitionResponse
}

// ProduceResponse (API key 0, v2-v8), spec.md §4.D.
type ProduceResponse struct {
	Version      int16
	Topics       []ProduceTopicResponse
	ThrottleMs   int32
}

func (r *ProduceResponse) setVersion(v int16)   { r.Version = v }
func (r *ProduceResponse) key() int16           { return apiKeyProduce }
func (r *ProduceResponse) version() int16       { return r.Version }
func (r *ProduceResponse) headerVersion() int16 { return 0 }

func (r *ProduceResponse) encode(pe packetEncoder) error {
	if err := pe.putArrayLength(len(r.Topics)); err != nil {
		return err
	}
	for _, t := range r.Topics {
		if err := pe.putString(t.Name); err != nil {
			return err
		}
		if err := pe.putArrayLength(len(t.Partitions)); err != nil {
			return err
		}
		for _, p := range t.Partitions {
			pe.putInt32(p.PartitionIndex)
			pe.putInt16(int16(p.ErrorCode))
			pe.putInt64(p.BaseOffset)
			if r.Version >= 2 {
				pe.putInt64(timeToMs(p.LogAppendTime))
			}
			if r.Version >= 5 {
				pe.putInt64(p.LogStartOffset)
			}
		}
	}
	if r.Version >= 1 {
		pe.putInt32(r.ThrottleMs)
	}
	return nil
}

func (r *ProduceResponse) decode(pd packetDecoder, version int16) error {
	r.Version = version
	tn, err := pd.getArrayLength()
	if err != nil {
		return err
	}
	r.Topics = make([]ProduceTopicResponse, tn)
	for i := 0; i < tn; i++ {
		t := &r.Topics[i]
		if t.Name, err = pd.getString(); err != nil {
			return err
		}
		pn, err := pd.getArrayLength()
		if err != nil {
			return err
		}
		t.Partitions = make([]ProducePartitionResponse, pn)
		for j := 0; j < pn; j++ {
			p := &t.Partitions[j]
			if p.PartitionIndex, err = pd.getInt32(); err != nil {
				return err
			}
			errCode, err := pd.getInt16()
			if err != nil {
				return err
			}
			p.ErrorCode = KError(errCode)
			if p.BaseOffset, err = pd.getInt64(); err != nil {
				return err
			}
			if version >= 2 {
				ms, err := pd.getInt64()
				if err != nil {
					return err
				}
				p.LogAppendTime = msToTime(ms)
			}
			if version >= 5 {
				if p.LogStartOffset, err = pd.getInt64(); err != nil {
					return err
				}
			}
		}
	}
	if version >= 1 {
		if r.ThrottleMs, err = pd.getInt32(); err != nil {
			return err
		}
	}
	return nil
}

func timeToMs(t time.Time) int64 {
	if t.IsZero() {
		return -1
	}
	return t.UnixMilli()
}

func msToTime(ms int64) time.Time {
	if ms < 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
