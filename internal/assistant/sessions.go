package assistant

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/taskdesk/pkg/models"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

type session struct {
	transcript []Message
	draft      *models.TaskDraft
}

// Sessions provides thread-safe in-memory storage for per-session
// transcripts and staged task drafts.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*session
	now      func() time.Time
}

func NewSessions() *Sessions {
	return &Sessions{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// get must be called with mu held for writing.
func (s *Sessions) get(id string) *session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{transcript: []Message{}}
		s.sessions[id] = sess
	}
	return sess
}

// Append adds a message to the session transcript. Transcripts only grow.
func (s *Sessions) Append(id string, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.get(id)
	sess.transcript = append(sess.transcript, Message{Role: role, Content: content, At: s.now()})
}

// Transcript returns a copy of the session transcript, empty for unknown
// sessions.
func (s *Sessions) Transcript(id string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return []Message{}
	}
	out := make([]Message, len(sess.transcript))
	copy(out, sess.transcript)
	return out
}

// StageDraft replaces any draft staged for the session.
func (s *Sessions) StageDraft(id string, d models.TaskDraft) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.get(id).draft = &d
}

func (s *Sessions) PeekDraft(id string) (models.TaskDraft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok || sess.draft == nil {
		return models.TaskDraft{}, false
	}
	return *sess.draft, true
}

// TakeDraft returns the staged draft and clears it.
func (s *Sessions) TakeDraft(id string) (models.TaskDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || sess.draft == nil {
		return models.TaskDraft{}, false
	}
	d := *sess.draft
	sess.draft = nil
	return d, true
}

// IDs lists the sessions seen so far.
func (s *Sessions) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
