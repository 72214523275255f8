package kafka

import (
	"hash/fnv"
	"math/rand"
	"sync/atomic"
)

// Partitioner selects a destination partition for a record, spec.md
// §4.I. Grounded on original_source/include/kafka4seastar/utils/partitioner.hh's
// abstract partitioner with a single get_partition(key, partitions)
// method.
type Partitioner interface {
	GetPartition(key []byte, partitions []int32) int32
}

// BasicRandomPartitioner picks uniformly at random among the available
// partitions, ignoring the key (original_source basic_partitioner).
type BasicRandomPartitioner struct{}

func (BasicRandomPartitioner) GetPartition(key []byte, partitions []int32) int32 {
	if len(partitions) == 0 {
		return 0
	}
	return partitions[rand.Intn(len(partitions))]
}

// RoundRobinPartitioner hashes the key when one is provided (a fast
// path, original_source rr_partitioner), and otherwise advances a
// monotonic counter mod len(partitions).
type RoundRobinPartitioner struct {
	counter atomic.Uint32
}

func (p *RoundRobinPartitioner) GetPartition(key []byte, partitions []int32) int32 {
	if len(partitions) == 0 {
		return 0
	}
	if len(key) > 0 {
		h := fnv.New32a()
		h.Write(key)
		return partitions[h.Sum32()%uint32(len(partitions))]
	}
	n := p.counter.Add(1) - 1
	return partitions[n%uint32(len(partitions))]
}
