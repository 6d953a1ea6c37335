package service

import (
	"sync"

	"captcha-trainer/internal/models"

	"github.com/google/uuid"
)

// upload is the image currently shown to the user
type upload struct {
	filename   string
	model      string
	image      []byte // PNG
	state      models.UploadState
	label      string
	empty      bool
	finalLabel string
	status     models.RecordStatus
}

func (u *upload) view() *models.UploadView {
	return &models.UploadView{
		Filename:   u.filename,
		Model:      u.model,
		State:      u.state,
		Label:      u.label,
		Empty:      u.empty,
		FinalLabel: u.finalLabel,
		Status:     u.status,
	}
}

// Session is the state of one interactive user. Every operation on a session
// holds its lock, so a session sees at most one recognition or store write at
// a time.
type Session struct {
	ID string

	mu            sync.Mutex
	stats         models.SessionStats
	current       *upload
	lastProcessed string
}

// view must be called with s.mu held
func (s *Session) view() models.SessionView {
	v := models.SessionView{
		ID:       s.ID,
		Stats:    s.stats,
		Accuracy: s.stats.Accuracy(),
	}
	if s.current != nil {
		v.Current = s.current.view()
	}
	return v
}

// SessionStore keeps sessions for the lifetime of the process
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// NewID returns a fresh session id
func NewID() string {
	return uuid.New().String()
}

// Get returns the session for id, creating it when unknown.
// An empty id gets a generated one.
func (s *SessionStore) Get(id string) *Session {
	if id == "" {
		id = NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		sess = &Session{ID: id}
		s.sessions[id] = sess
	}
	return sess
}

// Len returns the number of known sessions
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
