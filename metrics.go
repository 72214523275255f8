package kafka

import "github.com/rcrowley/go-metrics"

// getOrRegisterHistogram mirrors the teacher's consumer.go helper of the
// same name: a uniform-sample histogram registered once per name.
func getOrRegisterHistogram(name string, r metrics.Registry) metrics.Histogram {
	return r.GetOrRegister(name, func() metrics.Histogram {
		return metrics.NewHistogram(metrics.NewUniformSample(1028))
	}).(metrics.Histogram)
}

// getOrRegisterMeter mirrors the same pattern for a rate-only metric.
func getOrRegisterMeter(name string, r metrics.Registry) metrics.Meter {
	return r.GetOrRegister(name, func() metrics.Meter {
		return metrics.NewMeter()
	}).(metrics.Meter)
}

// producerMetrics is the Sender's metric set, recorded the same way the
// teacher's partitionConsumer records consumer-batch-size: lazily
// resolved against whatever registry the caller supplied, nil-safe so a
// Producer with no registry configured pays nothing.
type producerMetrics struct {
	registry metrics.Registry

	batchSize    metrics.Histogram
	requestRate  metrics.Meter
	retryRate    metrics.Meter
}

func newProducerMetrics(r metrics.Registry) *producerMetrics {
	if r == nil {
		return nil
	}
	return &producerMetrics{
		registry:    r,
		batchSize:   getOrRegisterHistogram("producer-batch-size", r),
		requestRate: getOrRegisterMeter("producer-request-rate", r),
		retryRate:   getOrRegisterMeter("producer-retry-rate", r),
	}
}

func (m *producerMetrics) recordBatch(n int) {
	if m == nil {
		return
	}
	m.batchSize.Update(int64(n))
	m.requestRate.Mark(1)
}

func (m *producerMetrics) recordRetry(n int) {
	if m == nil {
		return
	}
	m.retryRate.Mark(int64(n))
}
