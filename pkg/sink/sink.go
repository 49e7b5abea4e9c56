// Package sink delivers filtered output events to the caller-supplied
// consumer. Delivery is either direct (consumer runs on the emitting
// goroutine) or marshaled (events are queued to one worker goroutine so
// the consumer always runs on the same context, FIFO). The mode is
// fixed at construction.
package sink

import (
	"sync"

	"bashpipe/pkg/expect"
)

// Event is one filtered line of output handed to the consumer. The
// consumer may send further input to Client synchronously during the
// callback, e.g. to auto-answer a yes/no prompt.
type Event struct {
	IsRemote bool
	Client   *expect.Handle
	Line     string
	Command  string
}

// Consumer handles one output event.
type Consumer func(Event)

// Sink dispatches events to a consumer. It never drops or reorders
// events.
type Sink struct {
	consumer Consumer

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewDirect creates a sink that invokes the consumer synchronously on
// the calling goroutine.
func NewDirect(consumer Consumer) *Sink {
	if consumer == nil {
		consumer = func(Event) {}
	}
	return &Sink{consumer: consumer}
}

// NewMarshaled creates a sink that invokes the consumer on a single
// worker goroutine, preserving emission order.
func NewMarshaled(consumer Consumer) *Sink {
	if consumer == nil {
		consumer = func(Event) {}
	}
	s := &Sink{
		consumer: consumer,
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
	}
	go s.worker()
	return s
}

// Deliver hands one event to the consumer. On a marshaled sink this
// blocks when the queue is full rather than dropping.
func (s *Sink) Deliver(ev Event) {
	if s.events == nil {
		s.consumer(ev)
		return
	}
	s.events <- ev
}

// Close flushes a marshaled sink and stops its worker. Direct sinks
// have nothing to release. Close is idempotent.
func (s *Sink) Close() {
	if s.events == nil {
		return
	}
	s.once.Do(func() {
		close(s.events)
		<-s.done
	})
}

func (s *Sink) worker() {
	for ev := range s.events {
		s.consumer(ev)
	}
	close(s.done)
}
