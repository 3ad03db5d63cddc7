package player

import (
	"sync"

	"github.com/snarg/alarm-player/internal/model"
)

// cancelSlot is a small mutex-guarded one-shot cancellation handle. Arming
// replaces any previous channel; canceling takes the current channel and
// sends once, which prevents both double-cancel and lost-cancel races
// between the handler goroutine and the playback goroutine.
type cancelSlot struct {
	mu sync.Mutex
	ch chan model.PlayCancelType
}

func (s *cancelSlot) arm() chan model.PlayCancelType {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan model.PlayCancelType, 1)
	s.ch = ch
	return ch
}

func (s *cancelSlot) disarm(ch chan model.PlayCancelType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == ch {
		s.ch = nil
	}
}

// cancel is idempotent: invoking it when no playback is active, or
// invoking it twice for the same playback, is a no-op beyond the first.
func (s *cancelSlot) cancel(reason model.PlayCancelType) {
	s.mu.Lock()
	ch := s.ch
	s.ch = nil
	s.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- reason:
	default:
	}
}
