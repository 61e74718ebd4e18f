package backend

import (
	"sync"

	"github.com/soundscribe/ml-backend/internal/model"
)

// Session owns the single live model handle. Commands are processed
// strictly sequentially, but the session guards its handle anyway so the
// invariant doesn't depend on the dispatcher's scheduling.
type Session struct {
	mu     sync.Mutex
	handle model.Handle
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Handle() model.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// SetHandle replaces the current handle. There is no explicit unload; the
// previous handle is simply dropped.
func (s *Session) SetHandle(h model.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

func (s *Session) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}
