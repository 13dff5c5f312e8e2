package sessions

import (
	"context"
	"sync"
)

// InMemoryStore holds the session in memory. The gateway uses one per
// connection; the browser keeps its own session storage, so nothing needs to
// survive the process there.
type InMemoryStore struct {
	lock    sync.RWMutex
	session *Session
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Close(ctx context.Context) error {
	return nil
}

func (s *InMemoryStore) Save(ctx context.Context, session *Session) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	copied := *session
	s.session = &copied
	return nil
}

func (s *InMemoryStore) Load(ctx context.Context) (*Session, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.session == nil {
		return nil, nil
	}
	copied := *s.session
	return &copied, nil
}

func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.session = nil
	return nil
}
