package router

import (
	"errors"
	"sync"

	"github.com/terra-clan/interview-engine/internal/metrics"
	"github.com/terra-clan/interview-engine/internal/models"
)

// ErrSubscriberLagged closes a subscription whose buffer overflowed. The
// client should resubscribe from LastSequence.
var ErrSubscriberLagged = errors.New("subscriber lagged behind")

// Subscription is one listener on a session's message stream. Messages
// arrive in sequence order without duplicates.
type Subscription struct {
	sessionID string
	done      chan struct{}

	mu        sync.Mutex
	ch        chan *models.Message
	last      int64
	replaying bool
	backlog   []*models.Message
	closed    bool
	err       error

	detachOnce sync.Once
	detach     func(*Subscription)
}

func newSubscription(sessionID string, after int64, detach func(*Subscription)) *Subscription {
	metrics.SubscriberAdded()
	return &Subscription{
		sessionID: sessionID,
		done:      make(chan struct{}),
		last:      after,
		replaying: true,
		detach:    detach,
	}
}

// SessionID returns the session the subscription listens to
func (s *Subscription) SessionID() string {
	return s.sessionID
}

// Messages returns the delivery channel. It is closed when the
// subscription ends.
func (s *Subscription) Messages() <-chan *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Done is closed when the subscription ends
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the subscription ended, or nil after a plain Close
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LastSequence is the sequence of the last delivered message
func (s *Subscription) LastSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Close detaches the subscription. Other subscribers are unaffected.
func (s *Subscription) Close() {
	s.mu.Lock()
	s.closeLocked(nil)
	s.mu.Unlock()

	s.detachOnce.Do(func() {
		if s.detach != nil {
			s.detach(s)
		}
	})
}

// offer hands a live message to the subscription. It returns false once the
// subscription is closed so the topic can drop it.
func (s *Subscription) offer(m *models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.replaying {
		s.backlog = append(s.backlog, m)
		return true
	}
	return s.sendLocked(m)
}

// finishReplay delivers the persisted history followed by whatever arrived
// live in the meantime, then switches to live delivery.
func (s *Subscription) finishReplay(history []*models.Message, buffer int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ch = make(chan *models.Message, len(history)+buffer)
	if s.closed {
		close(s.ch)
		return
	}
	for _, m := range history {
		if !s.sendLocked(m) {
			return
		}
	}
	for _, m := range s.backlog {
		if !s.sendLocked(m) {
			return
		}
	}
	s.backlog = nil
	s.replaying = false
}

func (s *Subscription) sendLocked(m *models.Message) bool {
	if m.Sequence <= s.last {
		return true
	}
	select {
	case s.ch <- m:
		s.last = m.Sequence
		return true
	default:
		metrics.SubscriberLagged()
		s.closeLocked(ErrSubscriberLagged)
		return false
	}
}

func (s *Subscription) closeLocked(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	s.backlog = nil
	if s.ch != nil {
		close(s.ch)
	}
	close(s.done)
	metrics.SubscriberRemoved()
}
