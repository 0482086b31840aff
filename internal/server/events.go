package server

import (
	"sync"

	"github.com/teemow/inboxagent/internal/agent"
)

// DefaultSubscriberBuffer is the capacity of a subscriber's channel. Steps
// the reader has not caught up with wait in the subscriber's queue.
const DefaultSubscriberBuffer = 64

// Broadcaster fans progress steps out to the connected event streams.
// Publish never blocks and never drops a step: every subscriber has an
// unbounded queue drained in order by its own goroutine.
type Broadcaster struct {
	buffer int

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

// NewBroadcaster returns a Broadcaster whose subscriber channels hold buffer
// steps.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Broadcaster{buffer: buffer, subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a subscriber. The returned channel is closed by the
// cancel function, or by Close once the queued steps have been read.
func (b *Broadcaster) Subscribe() (<-chan agent.Step, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan agent.Step)
		close(ch)
		return ch, func() {}
	}

	sub := newSubscriber(b.buffer)
	b.subs[sub] = struct{}{}

	var once sync.Once
	return sub.out, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.stop)
		})
	}
}

// Publish queues step for every subscriber. It has the agent.Sink
// signature.
func (b *Broadcaster) Publish(step agent.Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.push(step)
	}
}

// Subscribers returns the number of connected subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription after its queued steps. Later subscribers
// receive a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.finish()
	}
}

type subscriber struct {
	out  chan agent.Step
	wake chan struct{}
	stop chan struct{}

	mu       sync.Mutex
	queue    []agent.Step
	finished bool
}

func newSubscriber(buffer int) *subscriber {
	s := &subscriber{
		out:  make(chan agent.Step, buffer),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(step agent.Step) {
	s.mu.Lock()
	s.queue = append(s.queue, step)
	s.mu.Unlock()
	s.signal()
}

// finish closes out once the queue is drained.
func (s *subscriber) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			finished := s.finished
			s.mu.Unlock()
			if finished {
				return
			}
			select {
			case <-s.wake:
			case <-s.stop:
				return
			}
			continue
		}
		step := s.queue[0]
		s.queue[0] = agent.Step{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- step:
		case <-s.stop:
			return
		}
	}
}
