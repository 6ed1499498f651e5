package event

import (
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ILoveBacteria/test-instrument-automation/logger"
)

// DefaultSubscriberBuffer is the per-subscriber channel capacity.
const DefaultSubscriberBuffer = 64

// Bus fans published events out to all current subscribers. Each subscriber
// owns a buffered channel; a subscriber that falls behind loses events
// rather than blocking the publisher.
type Bus struct {
	subscribers *xsync.MapOf[uuid.UUID, chan Event]
	bufSize     int
	logger      logger.Logger
}

// BusOption configures a Bus.
type BusOption interface {
	apply(*Bus)
}

type busOptFunc func(*Bus)

func (f busOptFunc) apply(b *Bus) { f(b) }

// WithSubscriberBuffer overrides the per-subscriber channel capacity.
func WithSubscriberBuffer(n int) BusOption {
	return busOptFunc(func(b *Bus) {
		if n > 0 {
			b.bufSize = n
		}
	})
}

// WithBusLogger overrides the bus logger.
func WithBusLogger(l logger.Logger) BusOption {
	return busOptFunc(func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	})
}

func NewBus(opts ...BusOption) *Bus {
	bus := &Bus{
		subscribers: xsync.NewMapOf[uuid.UUID, chan Event](),
		bufSize:     DefaultSubscriberBuffer,
		logger:      logger.GetLogger(),
	}
	for _, opt := range opts {
		opt.apply(bus)
	}

	return bus
}

// Subscribe registers a new subscriber and returns its id and event channel.
// The channel is closed by Unsubscribe or Close.
func (b *Bus) Subscribe() (uuid.UUID, <-chan Event) {
	id := uuid.New()
	ch := make(chan Event, b.bufSize)
	b.subscribers.Store(id, ch)

	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	if ch, ok := b.subscribers.LoadAndDelete(id); ok {
		close(ch)
	}
}

// Publish delivers ev to every subscriber. Subscribers with full buffers
// are skipped; the drop is logged, not retried.
func (b *Bus) Publish(ev Event) {
	b.subscribers.Range(func(id uuid.UUID, ch chan Event) bool {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("event dropped for slow subscriber",
				"subscriber", id.String(), "event_id", ev.ID.String(), "type", ev.Type)
		}
		return true
	})
}

// SubscriberCount reports the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	return b.subscribers.Size()
}

// Close removes all subscribers and closes their channels.
func (b *Bus) Close() {
	b.subscribers.Range(func(id uuid.UUID, ch chan Event) bool {
		if _, ok := b.subscribers.LoadAndDelete(id); ok {
			close(ch)
		}
		return true
	})
}
