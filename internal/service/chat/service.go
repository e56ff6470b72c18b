package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/model/chat"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/model/document"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/ai"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoDocument      = errors.New("no document loaded in session")
	ErrDocumentLoaded  = errors.New("a document is already loaded in this session")
	ErrChainRequired   = errors.New("a chain is required to attach a document")
)

// sessionState is private to one session. chain is set iff doc is.
type sessionState struct {
	session chat.Session
	doc     *document.Document
	chain   ai.Chain
	entries []chat.Entry
}

// Service encapsulates conversation state management.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	ttl      time.Duration
	now      func() time.Time
}

// NewService bootstraps the in-memory chat service. A ttl of zero keeps
// sessions until they are deleted.
func NewService(ttl time.Duration) *Service {
	return &Service{
		sessions: make(map[string]*sessionState),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateSession provisions an anonymous session and prunes expired ones.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	now := s.now()
	session := chat.Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastActiveAt: now,
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.sessions[session.ID] = &sessionState{
		session: session,
		entries: make([]chat.Entry, 0, 16),
	}
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.lookupLocked(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return state.snapshot(), nil
}

// DeleteSession ends a session and drops its document and history.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// AttachDocument stores the extracted document and its chain. Each session
// accepts exactly one document.
func (s *Service) AttachDocument(_ context.Context, sessionID string, doc document.Document, chain ai.Chain) (chat.Session, error) {
	if chain == nil {
		return chat.Session{}, ErrChainRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.lookupLocked(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	if state.doc != nil {
		return chat.Session{}, ErrDocumentLoaded
	}

	state.doc = &doc
	state.chain = chain
	state.session.HasDocument = true
	state.session.DocumentName = doc.Name
	state.session.DocumentChars = doc.Chars()
	state.session.Pages = doc.Pages
	return state.snapshot(), nil
}

// HasDocument reports whether a document is loaded.
func (s *Service) HasDocument(ctx context.Context, sessionID string) (bool, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return session.HasDocument, nil
}

// Document returns the loaded text and chain for a session.
func (s *Service) Document(_ context.Context, sessionID string) (document.Document, ai.Chain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.lookupLocked(sessionID)
	if err != nil {
		return document.Document{}, nil, err
	}
	if state.doc == nil {
		return document.Document{}, nil, ErrNoDocument
	}
	return *state.doc, state.chain, nil
}

// AppendEntry adds an answered question to the session history.
func (s *Service) AppendEntry(_ context.Context, sessionID string, entry chat.Entry) (chat.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.lookupLocked(sessionID)
	if err != nil {
		return chat.Entry{}, err
	}

	if entry.AskedAt.IsZero() {
		entry.AskedAt = s.now()
	}
	state.entries = append(state.entries, entry)
	state.session.Entries = len(state.entries)
	return entry, nil
}

// LoadTranscript returns stored entries for the provided session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.lookupLocked(sessionID)
	if err != nil {
		return nil, err
	}

	copied := make([]chat.Entry, len(state.entries))
	copy(copied, state.entries)
	return copied, nil
}

// lookupLocked returns a live session and refreshes its activity time.
// Expired sessions are removed on access.
func (s *Service) lookupLocked(sessionID string) (*sessionState, error) {
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	now := s.now()
	if s.expired(state, now) {
		delete(s.sessions, sessionID)
		return nil, ErrSessionNotFound
	}
	state.session.LastActiveAt = now
	return state, nil
}

func (s *Service) pruneLocked(now time.Time) {
	for id, state := range s.sessions {
		if s.expired(state, now) {
			delete(s.sessions, id)
		}
	}
}

func (s *Service) expired(state *sessionState, now time.Time) bool {
	return s.ttl > 0 && now.Sub(state.session.LastActiveAt) > s.ttl
}

func (st *sessionState) snapshot() chat.Session {
	return st.session
}
