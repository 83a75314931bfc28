package cart

import (
	"sync"

	"menu-orders/internal/logger"
)

// Sessions owns one Store per client session. A store lives from the first
// request of its session until End is called.
type Sessions struct {
	mu        sync.Mutex
	stores    map[string]*Store
	submitter Submitter
	logger    *logger.Logger
}

func NewSessions(submitter Submitter, log *logger.Logger) *Sessions {
	return &Sessions{
		stores:    make(map[string]*Store),
		submitter: submitter,
		logger:    log,
	}
}

// Get returns the cart of sessionID, creating it on first use
func (s *Sessions) Get(sessionID string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, ok := s.stores[sessionID]
	if !ok {
		store = NewStore(s.submitter, s.logger)
		s.stores[sessionID] = store
	}
	return store
}

// End drops the cart of sessionID
func (s *Sessions) End(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stores, sessionID)
}

// Len returns the number of live sessions
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stores)
}
