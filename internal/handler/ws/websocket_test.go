package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/model/document"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/pdf-chatbot/backend/internal/service/chat"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/export"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/qa"
)

type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, name string, data []byte) (document.Document, error) {
	return document.Document{Name: name, Text: "Title: Report A", Pages: 1, Size: int64(len(data))}, nil
}

type stubChain struct{}

func (stubChain) Invoke(context.Context, map[string]any, ...compose.Option) (*schema.Message, error) {
	return nil, errors.New("not used")
}

type retryOnceAnswerer struct{}

func (retryOnceAnswerer) NewChain(context.Context) (ai.Chain, error) { return stubChain{}, nil }

func (retryOnceAnswerer) Ask(_ context.Context, _ ai.Chain, _ string, question string, onRetry ai.RetryObserver) (string, error) {
	if onRetry != nil {
		onRetry(1, time.Second, errors.New("status code: 429"))
	}
	return "answer to " + question, nil
}

// blockingAnswerer waits until its context ends, as a long retry backoff would.
type blockingAnswerer struct {
	started  chan struct{}
	canceled chan struct{}
}

func (a *blockingAnswerer) NewChain(context.Context) (ai.Chain, error) { return stubChain{}, nil }

func (a *blockingAnswerer) Ask(ctx context.Context, _ ai.Chain, _ string, _ string, _ ai.RetryObserver) (string, error) {
	close(a.started)
	<-ctx.Done()
	close(a.canceled)
	return "", &ai.AnswerError{Kind: ai.KindCanceled, Err: ctx.Err()}
}

func startServer(t *testing.T, answerer qa.Answerer) (*httptest.Server, string) {
	t.Helper()
	sessions := chatservice.NewService(0)
	qaSvc := qa.NewService(sessions, fakeExtractor{}, answerer, export.Options{})
	ctx := context.Background()

	session, err := sessions.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if _, err := qaSvc.LoadDocument(ctx, session.ID, "report.pdf", []byte("%PDF")); err != nil {
		t.Fatalf("LoadDocument err: %v", err)
	}

	r := chi.NewRouter()
	New(qaSvc).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, session.ID
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + sessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg received
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read err: %v", err)
	}
	return msg
}

func TestWebSocketQuestionFlow(t *testing.T) {
	srv, sessionID := startServer(t, retryOnceAnswerer{})
	conn := dial(t, srv, sessionID)

	if msg := readMessage(t, conn); msg.Type != "connected" {
		t.Fatalf("expected connected, got %s", msg.Type)
	}

	if err := conn.WriteJSON(map[string]any{
		"type": "question",
		"data": map[string]string{"question": "What is the title?"},
	}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	if msg := readMessage(t, conn); msg.Type != "retrying" {
		t.Fatalf("expected retrying, got %s", msg.Type)
	}
	msg := readMessage(t, conn)
	if msg.Type != "answer" || !strings.Contains(string(msg.Data), "answer to What is the title?") {
		t.Fatalf("unexpected answer message %s %s", msg.Type, msg.Data)
	}

	if err := conn.WriteJSON(map[string]string{"type": "history"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	msg = readMessage(t, conn)
	if msg.Type != "history" || !strings.Contains(string(msg.Data), `"label":"Q1/A1"`) {
		t.Fatalf("unexpected history message %s %s", msg.Type, msg.Data)
	}
}

func TestWebSocketRejectsBadMessages(t *testing.T) {
	srv, sessionID := startServer(t, retryOnceAnswerer{})
	conn := dial(t, srv, sessionID)
	readMessage(t, conn)

	conn.WriteJSON(map[string]string{"type": "audio"})
	if msg := readMessage(t, conn); msg.Type != "error" {
		t.Fatalf("expected error for unsupported type, got %s", msg.Type)
	}

	conn.WriteJSON(map[string]any{"type": "question", "data": map[string]string{"question": " "}})
	msg := readMessage(t, conn)
	if msg.Type != "error" || !strings.Contains(string(msg.Data), `"status":400`) {
		t.Fatalf("expected 400 error for empty question, got %s %s", msg.Type, msg.Data)
	}

	conn.WriteJSON(map[string]any{"type": "history", "sessionId": "other"})
	if msg := readMessage(t, conn); msg.Type != "error" {
		t.Fatalf("expected session mismatch error, got %s", msg.Type)
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	srv, _ := startServer(t, retryOnceAnswerer{})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/missing/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404 response, got %+v", resp)
	}
}

func TestWebSocketDisconnectCancelsQuestion(t *testing.T) {
	answerer := &blockingAnswerer{started: make(chan struct{}), canceled: make(chan struct{})}
	srv, sessionID := startServer(t, answerer)
	conn := dial(t, srv, sessionID)
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]any{
		"type": "question",
		"data": map[string]string{"question": "q"},
	}); err != nil {
		t.Fatalf("write err: %v", err)
	}

	select {
	case <-answerer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("question was never dispatched")
	}

	conn.Close()

	select {
	case <-answerer.canceled:
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect did not cancel the in-flight question")
	}
}
