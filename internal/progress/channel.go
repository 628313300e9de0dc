// Package progress fans per-task progress events out to subscribers.
package progress

import (
	"sync"

	"github.com/heriberto777/core-app-sub000/internal/entity"
)

// DefaultBuffer is the per-subscriber event buffer size.
const DefaultBuffer = 64

// Subscription is one consumer's view of a task's progress stream. The
// stream closes after the terminal event (100 or -1) is delivered.
type Subscription struct {
	taskID string
	events chan entity.ProgressEvent
	closed bool
}

// Events returns the subscriber's event stream.
func (s *Subscription) Events() <-chan entity.ProgressEvent {
	return s.events
}

// Channel delivers (taskId, progress) events to registered subscribers.
// Back-pressure policy is drop-oldest with a bounded per-subscriber buffer;
// terminal events are never dropped.
type Channel struct {
	mu     sync.Mutex
	buffer int
	subs   map[string]map[*Subscription]struct{}
}

// NewChannel creates a progress channel with the default buffer size.
func NewChannel() *Channel {
	return NewChannelWithBuffer(DefaultBuffer)
}

// NewChannelWithBuffer creates a progress channel with a custom buffer size.
func NewChannelWithBuffer(buffer int) *Channel {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Channel{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers a consumer for one task's events. The subscription is
// scoped to the consumer's lifetime; callers must Unsubscribe when done
// unless the stream already terminated.
func (c *Channel) Subscribe(taskID string) *Subscription {
	sub := &Subscription{
		taskID: taskID,
		events: make(chan entity.ProgressEvent, c.buffer),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[taskID] == nil {
		c.subs[taskID] = make(map[*Subscription]struct{})
	}
	c.subs[taskID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a consumer. Safe to call after stream termination.
func (c *Channel) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(sub)
}

func (c *Channel) removeLocked(sub *Subscription) {
	set, ok := c.subs[sub.taskID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(c.subs, sub.taskID)
	}
	if !sub.closed {
		sub.closed = true
		close(sub.events)
	}
}

// Publish delivers an event to every subscriber of the task. When a buffer
// is full the oldest event is dropped to make room; a terminal event always
// lands and closes the stream.
func (c *Channel) Publish(event entity.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sub := range c.subs[event.TaskID] {
		if sub.closed {
			continue
		}
		for {
			select {
			case sub.events <- event:
			default:
				// Buffer full: drop the oldest and retry.
				select {
				case <-sub.events:
				default:
				}
				continue
			}
			break
		}
		if event.Terminal() {
			c.removeLocked(sub)
		}
	}
}
