package bot

import "sync"

// session is the per-conversation working set: scratch data a multi-step
// flow carries between turns. It lives in memory only; a completed or reset
// flow drops what it used.
type session struct {
	DraftTask    string // order text captured while awaiting credentials
	ClaimOrderID string // order the contractor is estimating
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[int64]*session)}
}

func (s *sessionStore) get(chatID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[chatID]
	if !ok {
		sess = &session{}
		s.sessions[chatID] = sess
	}
	return sess
}
