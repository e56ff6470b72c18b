package qa

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/config"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/model/document"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/pdf-chatbot/backend/internal/service/chat"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/export"
)

type fakeExtractor struct {
	text  string
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, name string, data []byte) (document.Document, error) {
	f.calls++
	if f.err != nil {
		return document.Document{}, f.err
	}
	return document.Document{Name: name, Text: f.text, Pages: 1, Size: int64(len(data))}, nil
}

type echoModel struct {
	err error
}

func (m *echoModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	last := input[len(input)-1].Content
	return schema.AssistantMessage("answer to "+strings.TrimPrefix(last, "User question: "), nil), nil
}

func (m *echoModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func newFlow(t *testing.T, chatModel model.BaseChatModel, extractor *fakeExtractor) (*Service, string) {
	t.Helper()
	sessions := chatservice.NewService(0)
	answerer := ai.NewServiceWithModel(chatModel, config.QAConfig{MaxRetries: 1, BaseDelay: time.Millisecond, ContextLimit: 4000})
	svc := NewService(sessions, extractor, answerer, export.Options{})

	session, err := sessions.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	return svc, session.ID
}

func TestFlowUploadAskExport(t *testing.T) {
	svc, sessionID := newFlow(t, &echoModel{}, &fakeExtractor{text: "Title: Report A"})
	ctx := context.Background()

	session, err := svc.LoadDocument(ctx, sessionID, "report.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("LoadDocument err: %v", err)
	}
	if !session.HasDocument {
		t.Fatal("expected document to be loaded")
	}

	entry, err := svc.Ask(ctx, sessionID, "  What is the title?  ", nil)
	if err != nil {
		t.Fatalf("Ask err: %v", err)
	}
	if entry.Question != "  What is the title?  " || entry.Answer != "answer to   What is the title?  " {
		t.Fatalf("unexpected entry %+v", entry)
	}

	tex, err := svc.Transcript(ctx, sessionID, nil)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if !strings.Contains(string(tex), `\item \textbf{Question:}   What is the title?  `+"\n") {
		t.Fatalf("transcript missing question:\n%s", tex)
	}
}

func TestLoadDocumentOnlyOnce(t *testing.T) {
	extractor := &fakeExtractor{text: "text"}
	svc, sessionID := newFlow(t, &echoModel{}, extractor)
	ctx := context.Background()

	if _, err := svc.LoadDocument(ctx, sessionID, "a.pdf", []byte("1")); err != nil {
		t.Fatalf("LoadDocument err: %v", err)
	}
	if _, err := svc.LoadDocument(ctx, sessionID, "b.pdf", []byte("2")); !errors.Is(err, chatservice.ErrDocumentLoaded) {
		t.Fatalf("expected ErrDocumentLoaded, got %v", err)
	}
	if extractor.calls != 1 {
		t.Fatalf("second upload should not be extracted, calls=%d", extractor.calls)
	}
}

func TestLoadDocumentExtractionFailureLeavesSessionEmpty(t *testing.T) {
	svc, sessionID := newFlow(t, &echoModel{}, &fakeExtractor{err: errors.New("error extracting text: bad xref")})
	ctx := context.Background()

	if _, err := svc.LoadDocument(ctx, sessionID, "bad.pdf", []byte("x")); err == nil {
		t.Fatal("expected extraction error")
	}
	has, err := svc.Sessions().HasDocument(ctx, sessionID)
	if err != nil || has {
		t.Fatalf("session should stay without document, has=%v err=%v", has, err)
	}
}

func TestAskFailureIsNotRecorded(t *testing.T) {
	chatModel := &echoModel{}
	svc, sessionID := newFlow(t, chatModel, &fakeExtractor{text: "text"})
	ctx := context.Background()
	if _, err := svc.LoadDocument(ctx, sessionID, "a.pdf", []byte("1")); err != nil {
		t.Fatalf("LoadDocument err: %v", err)
	}

	chatModel.err = errors.New("invalid api key")

	if _, err := svc.Ask(ctx, sessionID, "q", nil); ai.KindOf(err) != ai.KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}

	entries, _ := svc.Conversation(ctx, sessionID)
	if len(entries) != 0 {
		t.Fatalf("failed question must not be recorded, got %d entries", len(entries))
	}
	if _, err := svc.Transcript(ctx, sessionID, nil); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}

func TestAskRequiresDocumentAndQuestion(t *testing.T) {
	svc, sessionID := newFlow(t, &echoModel{}, &fakeExtractor{text: "text"})
	ctx := context.Background()

	if _, err := svc.Ask(ctx, sessionID, "   ", nil); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if _, err := svc.Ask(ctx, sessionID, "q", nil); !errors.Is(err, chatservice.ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
}

func TestWithoutAnswererAIUnavailable(t *testing.T) {
	sessions := chatservice.NewService(0)
	svc := NewService(sessions, &fakeExtractor{text: "text"}, nil, export.Options{})
	session, _ := sessions.CreateSession(context.Background())

	if svc.AIAvailable() {
		t.Fatal("expected AI to be unavailable")
	}
	if _, err := svc.LoadDocument(context.Background(), session.ID, "a.pdf", []byte("1")); !errors.Is(err, ErrAIUnavailable) {
		t.Fatalf("expected ErrAIUnavailable, got %v", err)
	}
}

func TestTranscriptEscapeOverride(t *testing.T) {
	svc, sessionID := newFlow(t, &echoModel{}, &fakeExtractor{text: "text"})
	ctx := context.Background()
	if _, err := svc.LoadDocument(ctx, sessionID, "a.pdf", []byte("1")); err != nil {
		t.Fatalf("LoadDocument err: %v", err)
	}
	if _, err := svc.Ask(ctx, sessionID, "100%?", nil); err != nil {
		t.Fatalf("Ask err: %v", err)
	}

	escape := true
	tex, err := svc.Transcript(ctx, sessionID, &escape)
	if err != nil {
		t.Fatalf("Transcript err: %v", err)
	}
	if !strings.Contains(string(tex), `\item \textbf{Question:} 100\%?`) {
		t.Fatalf("expected escaped question:\n%s", tex)
	}
}
