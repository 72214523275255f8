package kafka

// MetadataRequest (API key 3, v1-v8), spec.md §4.D. An empty Topics
// slice means "all topics", matching the wire convention (not an empty
// array-length sentinel, since v1-v8 is non-flexible and has no
// distinguished all-topics-null encoding in this version range other
// than sending zero topics).
type MetadataRequest struct {
	Version                            int16
	Topics                             []string
	AllowAutoTopicCreation             bool
	IncludeClusterAuthorizedOperations bool
	IncludeTopicAuthorizedOperations   bool
}

func (r *MetadataRequest) setVersion(v int16)   { r.Version = v }
func (r *MetadataRequest) key() int16           { return apiKeyMetadata }
func (r *MetadataRequest) version() int16       { return r.Version }
func (r *MetadataRequest) headerVersion() int16 { return 1 }

func (r *MetadataRequest) encode(pe packetEncoder) error {
	if err := pe.putArrayLength(len(r.Topics)); err != nil {
		return err
	}
	for _, t := range r.Topics {
		if err := pe.putString(t); err != nil {
			return err
		}
	}
	if r.Version >= 4 {
		pe.putBool(r.AllowAutoTopicCreation)
	}
	if r.Version >= 8 {
		pe.putBool(r.IncludeClusterAuthorizedOperations)
		pe.putBool(r.IncludeTopicAuthorizedOperations)
	}
	return nil
}

func (r *MetadataRequest) decode(pd packetDecoder, version int16) error {
	r.Version = version
	n, err := pd.getArrayLength()
	if err != nil {
		return err
	}
	r.Topics = make([]string, n)
	for i := 0; i < n; i++ {
		if r.Topics[i], err = pd.getString(); err != nil {
			return err
		}
	}
	if version >= 4 {
		if r.AllowAutoTopicCreation, err = pd.getBool(); err != nil {
			return err
		}
	}
	if version >= 8 {
		if r.IncludeClusterAuthorizedOperations, err = pd.getBool(); err != nil {
			return err
		}
		if r.IncludeTopicAuthorizedOperations, err = pd.getBool(); err != nil {
			return err
		}
	}
	return nil
}

// Broker is one entry of the metadata snapshot's broker list (spec.md
// §3).
type Broker struct {
	NodeID int32
	Host   string
	Port   int32
	Rack   *string
}

// PartitionMetadata is one partition row of a topic (spec.md §3).
type PartitionMetadata struct {
	ErrorCode       KError
	PartitionIndex  int32
	LeaderID        int32
	LeaderEpoch     int32
	Replicas        []int32
	ISRs            []int32
	OfflineReplicas []int32
}

// TopicMetadata is one topic row of the metadata snapshot (spec.md §3).
type TopicMetadata struct {
	ErrorCode  KError
	Name       string
	IsInternal bool
	Partitions []PartitionMetadata
}

// MetadataResponse (API key 3, v1-v8), spec.md §4.D / §3.
type MetadataResponse struct {
	Version      int16
	Brokers      []Broker
	ClusterID    *string
	ControllerID int32
	Topics       []TopicMetadata
}

func (r *MetadataResponse) setVersion(v int16)   { r.Version = v }
func (r *MetadataResponse) key() int16           { return apiKeyMetadata }
func (r *MetadataResponse) version() int16       { return r.Version }
func (r *MetadataResponse) headerVersion() int16 { return 0 }

func (r *MetadataResponse) encode(pe packetEncoder) error {
	if err := pe.putArrayLength(len(r.Brokers)); err != nil {
		return err
	}
	for _, b := range r.Brokers {
		pe.putInt32(b.NodeID)
		if err := pe.putString(b.Host); err != nil {
			return err
		}
		pe.putInt32(b.Port)
		if r.Version >= 1 {
			if err := pe.putNullableString(b.Rack); err != nil {
				return err
			}
		}
	}
	if r.Version >= 2 {
		if err := pe.putNullableString(r.ClusterID); err != nil {
			return err
		}
	}
	if r.Version >= 1 {
		pe.putInt32(r.ControllerID)
	}
	if err := pe.putArrayLength(len(r.Topics)); err != nil {
		return err
	}
	for _, t := range r.Topics {
		pe.putInt16(int16(t.ErrorCode))
		if err := pe.putString(t.Name); err != nil {
			return err
		}
		if r.Version >= 1 {
			pe.putBool(t.IsInternal)
		}
		if err := pe.putArrayLength(len(t.Partitions)); err != nil {
			return err
		}
		for _, p := range t.Partitions {
			pe.putInt16(int16(p.ErrorCode))
			pe.putInt32(p.PartitionIndex)
			pe.putInt32(p.LeaderID)
			if r.Version >= 7 {
				pe.putInt32(p.LeaderEpoch)
			}
			if err := pe.putArrayLength(len(p.Replicas)); err != nil {
				return err
			}
			for _, id := range p.Replicas {
				pe.putInt32(id)
			}
			if err := pe.putArrayLength(len(p.ISRs)); err != nil {
				return err
			}
			for _, id := range p.ISRs {
				pe.putInt32(id)
			}
			if r.Version >= 5 {
				if err := pe.putArrayLength(len(p.OfflineReplicas)); err != nil {
					return err
				}
				for _, id := range p.OfflineReplicas {
					pe.putInt32(id)
				}
			}
		}
	}
	return nil
}

func (r *MetadataResponse) decode(pd packetDecoder, version int16) error {
	r.Version = version

	n, err := pd.getArrayLength()
	if err != nil {
		return err
	}
	r.Brokers = make([]Broker, n)
	for i := 0; i < n; i++ {
		b := &r.Brokers[i]
		if b.NodeID, err = pd.getInt32(); err != nil {
			return err
		}
		if b.Host, err = pd.getString(); err != nil {
			return err
		}
		if b.Port, err = pd.getInt32(); err != nil {
			return err
		}
		if version >= 1 {
			if b.Rack, err = pd.getNullableString(); err != nil {
				return err
			}
		}
	}

	if version >= 2 {
		if r.ClusterID, err = pd.getNullableString(); err != nil {
			return err
		}
	}
	if version >= 1 {
		if r.ControllerID, err = pd.getInt32(); err != nil {
			return err
		}
	}

	tn, err := pd.getArrayLength()
	if err != nil {
		return err
	}
	r.Topics = make([]TopicMetadata, tn)
	for i := 0; i < tn; i++ {
		t := &r.Topics[i]
		errCode, err := pd.getInt16()
		if err != nil {
			return err
		}
		t.ErrorCode = KError(errCode)
		if t.Name, err = pd.getString(); err != nil {
			return err
		}
		if version >= 1 {
			if t.IsInternal, err = pd.getBool(); err != nil {
				return err
			}
		}
		pn, err := pd.getArrayLength()
		if err != nil {
			return err
		}
		t.Partitions = make([]PartitionMetadata, pn)
		for j := 0; j < pn; j++ {
			p := &t.Partitions[j]
			pErrCode, err := pd.getInt16()
			if err != nil {
				return err
			}
			p.ErrorCode = KError(pErrCode)
			if p.PartitionIndex, err = pd.getInt32(); err != nil {
				return err
			}
			if p.LeaderID, err = pd.getInt32(); err != nil {
				return err
			}
			if version >= 7 {
				if p.LeaderEpoch, err = pd.getInt32(); err != nil {
					return err
				}
			}
			rn, err := pd.getArrayLength()
			if err != nil {
				return err
			}
			p.Replicas = make([]int32, rn)
			for k := range p.Replicas {
				if p.Replicas[k], err = pd.getInt32(); err != nil {
					return err
				}
			}
			isrn, err := pd.getArrayLength()
			if err != nil {
				return err
			}
			p.ISRs = make([]int32, isrn)
			for k := range p.ISRs {
				if p.ISRs[k], err = pd.getInt32(); err != nil {
					return err
				}
			}
			if version >= 5 {
				orn, err := pd.getArrayLength()
				if err != nil {
					return err
				}
				p.OfflineReplicas = make([]int32, orn)
				for k := range p.OfflineReplicas {
					if p.OfflineReplicas[k], err = pd.getInt32(); err != nil {
						return err
					}
				}
			}
		}
	}

	return nil
}
