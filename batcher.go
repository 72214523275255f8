package kafka

import (
	"context"
	"sync"
	"time"
)

// Batcher implements spec.md §4.H's admission side: records are queued
// under a byte counter, and a flush is triggered either immediately
// (linger_ms == 0, or the buffer_memory threshold is crossed) or on a
// periodic timer (linger_ms > 0). QueueMessage never calls
// Sender.Dispatch itself, it only wakes the single worker goroutine
// started by Run; a direct Flush call runs its own cycle, which may
// overlap with the worker's.
type Batcher struct {
	mu    sync.Mutex
	queue []*queuedRecord
	bytes int64

	lingerMs     time.Duration
	bufferMemory int64

	sender *Sender

	flushSignal chan struct{}
	stopped     chan struct{}
}

func NewBatcher(sender *Sender, lingerMs time.Duration, bufferMemory int64) *Batcher {
	return &Batcher{
		sender:       sender,
		lingerMs:     lingerMs,
		bufferMemory: bufferMemory,
		flushSignal:  make(chan struct{}, 1),
		stopped:      make(chan struct{}),
	}
}

// QueueMessage implements §4.H's admission step: append the record,
// add its key+value length to the byte counter, and wake the flush
// worker if linger_ms == 0 or the counter now exceeds buffer_memory.
func (b *Batcher) QueueMessage(rec *queuedRecord) {
	b.mu.Lock()
	b.queue = append(b.queue, rec)
	b.bytes += int64(len(rec.key) + len(rec.value))
	trigger := b.lingerMs == 0 || b.bytes > b.bufferMemory
	b.mu.Unlock()

	if trigger {
		b.wake()
	}
}

func (b *Batcher) wake() {
	select {
	case b.flushSignal <- struct{}{}:
	default:
	}
}

// take moves every queued record out under the lock, resetting the byte
// counter, and hands them to the caller for dispatch — the "fresh
// sender" move §4.H describes.
func (b *Batcher) take() []*queuedRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	moved := b.queue
	b.queue = nil
	b.bytes = 0
	return moved
}

// Flush moves the current queue out and drives it through the sender to
// completion. Safe to call directly (e.g. from the public Flush API) or
// from the background worker.
func (b *Batcher) Flush(ctx context.Context) {
	records := b.take()
	if len(records) == 0 {
		return
	}
	b.sender.Dispatch(ctx, records)
}

// Run is the batcher's single background worker: it wakes on an
// explicit trigger (QueueMessage) or, when linger_ms > 0, on a
// recurring timer, and flushes whatever is queued. It exits when ctx is
// canceled, closing Stopped() on the way out (§4.H "Periodic flush",
// §5's cooperative-cancellation idiom).
func (b *Batcher) Run(ctx context.Context) {
	defer close(b.stopped)

	var timerC <-chan time.Time
	if b.lingerMs > 0 {
		timer := time.NewTimer(b.lingerMs)
		defer timer.Stop()
		timerC = timer.C
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.flushSignal:
				b.Flush(ctx)
			case <-timerC:
				b.Flush(ctx)
				timer.Reset(b.lingerMs)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.flushSignal:
			b.Flush(ctx)
		}
	}
}

// Stopped returns a channel closed once Run has returned after
// cancellation.
func (b *Batcher) Stopped() <-chan struct{} {
	return b.stopped
}

// PendingBytes reports the current byte counter, mainly useful for
// tests asserting the buffer_memory trigger.
func (b *Batcher) PendingBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytes
}

// FailAll resolves every still-queued record with err — used by
// Producer.Disconnect to settle records that never got a chance to
// flush (§4.H "records pending at disconnect", §7).
func (b *Batcher) FailAll(err error) {
	records := b.take()
	for _, rec := range records {
		rec.promise.resolve(err)
	}
}
