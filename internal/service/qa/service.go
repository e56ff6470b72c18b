package qa

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/model/chat"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/model/document"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/pdf-chatbot/backend/internal/service/chat"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/export"
)

var (
	ErrAIUnavailable   = errors.New("ai service unavailable: configure OPENAI_API_KEY")
	ErrEmptyQuestion   = errors.New("question is required")
	ErrEmptyTranscript = errors.New("conversation is empty")
)

// Extractor turns an uploaded file into a document.
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) (document.Document, error)
}

// Answerer builds chains and answers questions through them. *ai.Service
// implements it.
type Answerer interface {
	NewChain(ctx context.Context) (ai.Chain, error)
	Ask(ctx context.Context, chain ai.Chain, text, question string, onRetry ai.RetryObserver) (string, error)
}

// Service runs the upload -> ask -> export flow against one session at a time.
type Service struct {
	sessions  *chatservice.Service
	extractor Extractor
	answerer  Answerer
	export    export.Options
}

// NewService wires the flow. answerer may be nil when no credential is set;
// uploads and questions then fail with ErrAIUnavailable.
func NewService(sessions *chatservice.Service, extractor Extractor, answerer Answerer, exportOpts export.Options) *Service {
	return &Service{
		sessions:  sessions,
		extractor: extractor,
		answerer:  answerer,
		export:    exportOpts,
	}
}

// AIAvailable reports whether a model credential was configured.
func (s *Service) AIAvailable() bool {
	return s.answerer != nil
}

// Sessions exposes the underlying session store.
func (s *Service) Sessions() *chatservice.Service {
	return s.sessions
}

// LoadDocument extracts data and builds the session's chain. The session must
// not hold a document yet.
func (s *Service) LoadDocument(ctx context.Context, sessionID, name string, data []byte) (chat.Session, error) {
	if s.answerer == nil {
		return chat.Session{}, ErrAIUnavailable
	}

	has, err := s.sessions.HasDocument(ctx, sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	if has {
		return chat.Session{}, chatservice.ErrDocumentLoaded
	}

	doc, err := s.extractor.Extract(ctx, name, data)
	if err != nil {
		return chat.Session{}, err
	}

	chain, err := s.answerer.NewChain(ctx)
	if err != nil {
		return chat.Session{}, fmt.Errorf("build chain: %w", err)
	}

	session, err := s.sessions.AttachDocument(ctx, sessionID, doc, chain)
	if err != nil {
		return chat.Session{}, err
	}

	log.Printf("[qa] document loaded session=%s name=%s pages=%d chars=%d", sessionID, doc.Name, doc.Pages, session.DocumentChars)
	return session, nil
}

// Ask answers question against the session's document and records the entry
// on success. The question is stored as typed; failed questions are not recorded.
func (s *Service) Ask(ctx context.Context, sessionID, question string, onRetry ai.RetryObserver) (chat.Entry, error) {
	if strings.TrimSpace(question) == "" {
		return chat.Entry{}, ErrEmptyQuestion
	}
	if s.answerer == nil {
		return chat.Entry{}, ErrAIUnavailable
	}

	doc, chain, err := s.sessions.Document(ctx, sessionID)
	if err != nil {
		return chat.Entry{}, err
	}

	answer, err := s.answerer.Ask(ctx, chain, doc.Text, question, onRetry)
	if err != nil {
		log.Printf("[qa] question failed session=%s kind=%s: %v", sessionID, ai.KindOf(err), err)
		return chat.Entry{}, err
	}

	return s.sessions.AppendEntry(ctx, sessionID, chat.Entry{Question: question, Answer: answer})
}

// Conversation returns the session history in arrival order.
func (s *Service) Conversation(ctx context.Context, sessionID string) ([]chat.Entry, error) {
	return s.sessions.LoadTranscript(ctx, sessionID)
}

// Transcript renders the conversation as LaTeX. escape, when non-nil,
// overrides the configured escaping.
func (s *Service) Transcript(ctx context.Context, sessionID string, escape *bool) ([]byte, error) {
	entries, err := s.sessions.LoadTranscript(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmptyTranscript
	}

	opts := s.export
	if escape != nil {
		opts.Escape = *escape
	}
	return export.RenderLaTeX(entries, opts), nil
}
