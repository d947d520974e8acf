package testutil

import (
	"context"
	"sync"

	"github.com/stackbill/stackbill/internal/notification"
)

// RecordingSink captures dispatched notices for assertions
type RecordingSink struct {
	mu      sync.Mutex
	Notices []notification.Notice
}

var _ notification.Sink = (*RecordingSink)(nil)

// NewRecordingSink creates a notice sink that stores everything it receives
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Dispatch(_ context.Context, notice notification.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notices = append(s.Notices, notice)
	return nil
}

// Of returns the captured notices of one kind
func (s *RecordingSink) Of(kind notification.Kind) []notification.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notification.Notice
	for _, n := range s.Notices {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Clear drops all captured notices
func (s *RecordingSink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notices = nil
}
