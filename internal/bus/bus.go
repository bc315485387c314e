// Package bus implements the bridge's broadcast channel: every message
// published is delivered to every receiver subscribed at publish time, in
// publication order, with a bounded buffer that favors publishers over slow
// receivers.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// Capacity is the number of recent messages the bus retains. A receiver
// that falls further behind than this loses the unread backlog.
const Capacity = 100

// Origin records which side of the bridge produced a message. The stdio
// outbound loop forwards only local-origin traffic to the peer; forwarding
// peer-origin messages back over stdout would echo the peer to itself.
type Origin int

const (
	// OriginLocal marks commands submitted by HTTP or WebSocket clients.
	OriginLocal Origin = iota
	// OriginPeer marks events the peer reported over stdin, rebroadcast so
	// WebSocket subscribers observe them.
	OriginPeer
)

// Message is one unit of bus traffic: a full wire object plus its
// pre-extracted type tag and origin. The bus never inspects Payload.
type Message struct {
	Origin  Origin
	Type    string
	Payload json.RawMessage
}

// ErrClosed is returned by Recv after Close.
var ErrClosed = errors.New("bus: closed")

// LagError reports that a receiver fell behind the retained buffer. The
// receive cursor has already been moved to the oldest retained message; the
// next Recv resumes from there. Losing the backlog is the contract, not a
// failure: publishers never block on slow receivers.
type LagError struct {
	Missed uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("bus: receiver lagged, %d messages dropped", e.Missed)
}

// Bus is a multi-receiver broadcast channel over a fixed ring buffer.
// Receivers track their own position; publishing is O(1) and never blocks.
type Bus struct {
	mu     sync.Mutex
	ring   [Capacity]Message
	head   uint64 // sequence of the oldest retained message
	next   uint64 // sequence the next publish will take
	wake   chan struct{}
	closed bool
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{wake: make(chan struct{})}
}

// Publish appends msg to the ring and wakes all waiting receivers.
// Publishing with no receivers subscribed simply drops the message once it
// rotates out of the ring; that is not an error.
func (b *Bus) Publish(msg Message) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.ring[b.next%Capacity] = msg
	b.next++
	if b.next-b.head > Capacity {
		b.head = b.next - Capacity
	}
	close(b.wake)
	b.wake = make(chan struct{})
	b.mu.Unlock()
}

// Close wakes all receivers and makes further Recv calls fail with
// ErrClosed once they have drained what the ring still retains for them.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.wake)
	}
	b.mu.Unlock()
}

// Subscribe attaches a new receiver positioned after the latest published
// message. There is no replay: catch-up behavior, where wanted, is the
// consumer's job (the hub sends a state snapshot on connect for this).
func (b *Bus) Subscribe() *Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Receiver{bus: b, cursor: b.next}
}

// Receiver is one subscription cursor into the bus.
type Receiver struct {
	bus    *Bus
	cursor uint64
}

// Recv blocks until a message is available, the receiver is found to have
// lagged, the bus closes, or ctx is done.
//
// On lag it returns a *LagError once and internally skips ahead to the
// oldest retained message; the caller logs the gap and calls Recv again.
func (r *Receiver) Recv(ctx context.Context) (Message, error) {
	b := r.bus
	for {
		b.mu.Lock()
		if r.cursor < b.head {
			missed := b.head - r.cursor
			r.cursor = b.head
			b.mu.Unlock()
			return Message{}, &LagError{Missed: missed}
		}
		if r.cursor < b.next {
			msg := b.ring[r.cursor%Capacity]
			r.cursor++
			b.mu.Unlock()
			return msg, nil
		}
		if b.closed {
			b.mu.Unlock()
			return Message{}, ErrClosed
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}
