// Package events publishes pipeline progress notifications. Delivery is
// best-effort; a publish never fails the job that produced it.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Topics published by the pipeline.
const (
	TopicJobStarted    = "job.started"
	TopicJobProgress   = "job.progress"
	TopicJobCompleted  = "job.completed"
	TopicJobFailed     = "job.failed"
	TopicPhaseStarted  = "phase.started"
	TopicPhaseFinished = "phase.finished"
)

// Event is one published notification.
type Event struct {
	Topic   string    `json:"topic"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Bus receives pipeline notifications.
type Bus interface {
	Publish(topic string, payload any)
}

// LogBus writes every event to the global logger. Used by the CLI commands,
// where nobody is listening.
type LogBus struct{}

func (LogBus) Publish(topic string, payload any) {
	zap.L().Info("event", zap.String("topic", topic), zap.Any("payload", payload))
}

// MemoryBus fans events out to in-process subscribers. Publishing is
// non-blocking: a subscriber whose channel is full misses the event.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[int]chan Event{}}
}

// Subscribe registers a buffered subscriber channel and returns it with an
// unsubscribe function. The channel is closed on unsubscribe.
func (b *MemoryBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers the event to every subscriber that has buffer room.
func (b *MemoryBus) Publish(topic string, payload any) {
	evt := Event{Topic: topic, Payload: payload, At: time.Now()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
