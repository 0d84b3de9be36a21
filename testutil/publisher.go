package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// RecordingPublisher records published messages by subject. It matches the
// Publish signature of natsclient.Client and is safe for concurrent use.
type RecordingPublisher struct {
	mu       sync.RWMutex
	messages map[string][][]byte
	failWith error
	closed   bool
}

// NewRecordingPublisher creates an empty RecordingPublisher.
func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{messages: make(map[string][][]byte)}
}

// Publish records data under subject, or returns the injected error.
func (p *RecordingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}
	if p.failWith != nil {
		return p.failWith
	}

	msg := make([]byte, len(data))
	copy(msg, data)
	p.messages[subject] = append(p.messages[subject], msg)
	return nil
}

// FailWith makes every later Publish return err. A nil err restores normal behaviour.
func (p *RecordingPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failWith = err
}

// Messages returns a copy of the messages published on subject.
func (p *RecordingPublisher) Messages(subject string) [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()

	msgs := p.messages[subject]
	if msgs == nil {
		return nil
	}
	out := make([][]byte, len(msgs))
	copy(out, msgs)
	return out
}

// Count returns the number of messages published on subject.
func (p *RecordingPublisher) Count(subject string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.messages[subject])
}

// Subjects returns every subject that received at least one message.
func (p *RecordingPublisher) Subjects() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.messages))
	for s := range p.messages {
		out = append(out, s)
	}
	return out
}

// Clear drops all recorded messages.
func (p *RecordingPublisher) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = make(map[string][][]byte)
}

// Close makes later publishes fail.
func (p *RecordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// WaitForMessageCount waits until subject holds at least count messages.
func WaitForMessageCount(t *testing.T, p *RecordingPublisher, subject string, count int, timeout time.Duration) {
	t.Helper()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.Count(subject) >= count {
			return
		}
		select {
		case <-deadline.C:
			t.Fatalf("timeout waiting for %d messages on subject %s (got %d)", count, subject, p.Count(subject))
			return
		case <-ticker.C:
		}
	}
}
