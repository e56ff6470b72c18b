package stream

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/handler/httperr"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/model/chat"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/ai"
	chatService "github.com/zhouzirui/pdf-chatbot/backend/internal/service/chat"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/qa"
	"github.com/zhouzirui/pdf-chatbot/backend/pkg/utils"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// Handler pushes question progress to the client via Server-Sent Events
type Handler struct {
	qaSvc *qa.Service
}

// New creates a new stream handler
func New(qaSvc *qa.Service) *Handler {
	return &Handler{qaSvc: qaSvc}
}

// RegisterRoutes 注册SSE问答路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/{sessionID}/stream", h.handleStream)
}

// StreamResponse is the data of one SSE event
type StreamResponse struct {
	SessionID    string      `json:"sessionId"`
	Question     string      `json:"question,omitempty"`
	Retry        int         `json:"retry,omitempty"`
	DelaySeconds float64     `json:"delaySeconds,omitempty"`
	Entry        *chat.Entry `json:"entry,omitempty"`
	Kind         string      `json:"kind,omitempty"`
	Status       int         `json:"status,omitempty"`
	Error        string      `json:"error,omitempty"`
	Finished     bool        `json:"finished,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	question := r.URL.Query().Get("question")
	if question == "" {
		utils.RespondError(w, http.StatusBadRequest, "question query parameter is required")
		return
	}

	if err := h.HandleStreamRequest(r.Context(), w, sessionID, question); err != nil {
		log.Printf("[stream] error handling request session=%s: %v", sessionID, err)
	}
}

// HandleStreamRequest answers question and reports each rate-limit retry as it
// happens. Failures detected before the stream opens are written as a JSON
// error response instead.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID, question string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, ErrStreamingUnsupported.Error())
		return ErrStreamingUnsupported
	}

	if !h.qaSvc.AIAvailable() {
		httperr.Respond(w, qa.ErrAIUnavailable)
		return qa.ErrAIUnavailable
	}
	has, err := h.qaSvc.Sessions().HasDocument(ctx, sessionID)
	if err == nil && !has {
		err = chatService.ErrNoDocument
	}
	if err != nil {
		httperr.Respond(w, err)
		return err
	}

	utils.SetupSSEHeaders(w)

	utils.SendSSEEvent(w, flusher, "start", StreamResponse{
		SessionID: sessionID,
		Question:  question,
	})

	onRetry := func(retry int, delay time.Duration, cause error) {
		utils.SendSSEEvent(w, flusher, "retry", StreamResponse{
			SessionID:    sessionID,
			Retry:        retry,
			DelaySeconds: delay.Seconds(),
			Error:        cause.Error(),
		})
	}

	entry, err := h.qaSvc.Ask(ctx, sessionID, question, onRetry)
	if err != nil {
		h.sendSSEError(w, flusher, sessionID, err)
		return err
	}

	utils.SendSSEEvent(w, flusher, "answer", StreamResponse{
		SessionID: sessionID,
		Entry:     &entry,
	})

	// Send completion signal
	utils.SendSSEEvent(w, flusher, "end", StreamResponse{
		SessionID: sessionID,
		Finished:  true,
	})

	log.Printf("[stream] completed answer for session=%s", sessionID)
	return nil
}

// sendSSEError sends an error via Server-Sent Events
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, sessionID string, err error) {
	utils.SendSSEEvent(w, flusher, "error", StreamResponse{
		SessionID: sessionID,
		Kind:      string(ai.KindOf(err)),
		Status:    httperr.Status(err),
		Error:     err.Error(),
	})
}
