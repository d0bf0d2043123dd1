package testdoubles

import (
	"context"
	"sync"

	"github.com/librarystack/inventory-storage-go/inventory/domainevent"
)

// ProducerSpy is a Producer that keeps every delivered Message and can be told to fail.
type ProducerSpy struct {
	messages []domainevent.Message
	calls    int
	failures int
	failWith error
	mu       sync.Mutex
}

// NewProducerSpy creates a new ProducerSpy.
func NewProducerSpy() *ProducerSpy {
	return &ProducerSpy{}
}

// FailNext makes the next n calls of Send fail with err. A negative n fails every call.
func (s *ProducerSpy) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures = n
	s.failWith = err
}

// Send implements the Producer interface.
func (s *ProducerSpy) Send(_ context.Context, msg domainevent.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++

	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}

		return s.failWith
	}

	s.messages = append(s.messages, msg)

	return nil
}

// Messages returns a copy of the delivered messages in delivery order.
func (s *ProducerSpy) Messages() []domainevent.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domainevent.Message(nil), s.messages...)
}

// Calls returns how often Send was called.
func (s *ProducerSpy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

// Compile-time check to ensure ProducerSpy implements Producer interface.
var _ domainevent.Producer = (*ProducerSpy)(nil)
