package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/handler/httperr"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/model/chat"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/export"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/qa"
	"github.com/zhouzirui/pdf-chatbot/backend/pkg/utils"
)

// Handler 问答与对话导出的HTTP处理器
type Handler struct {
	qaSvc *qa.Service
}

// New 创建问答处理器
func New(qaSvc *qa.Service) *Handler {
	return &Handler{qaSvc: qaSvc}
}

// RegisterRoutes 注册问答相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions/{sessionID}/questions", h.handleAsk)
	r.Get("/sessions/{sessionID}/conversation", h.handleConversation)
	r.Get("/sessions/{sessionID}/transcript", h.handleTranscript)
}

// ConversationItem 是带编号的一轮问答
type ConversationItem struct {
	Number   int       `json:"number"`
	Label    string    `json:"label"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	AskedAt  time.Time `json:"askedAt"`
}

// NumberEntries labels each entry Q1/A1, Q2/A2... in arrival order.
func NumberEntries(entries []chat.Entry) []ConversationItem {
	items := make([]ConversationItem, 0, len(entries))
	for i, entry := range entries {
		n := i + 1
		items = append(items, ConversationItem{
			Number:   n,
			Label:    fmt.Sprintf("Q%d/A%d", n, n),
			Question: entry.Question,
			Answer:   entry.Answer,
			AskedAt:  entry.AskedAt,
		})
	}
	return items
}

// handleAsk 针对会话中的文档提问
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.qaSvc.Ask(r.Context(), chi.URLParam(r, "sessionID"), payload.Question, nil)
	if err != nil {
		httperr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, entry)
}

// handleConversation 返回编号后的对话历史
func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	entries, err := h.qaSvc.Conversation(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		httperr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"items": NumberEntries(entries),
		"count": len(entries),
	})
}

// handleTranscript 下载LaTeX格式的对话记录
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var escape *bool
	if raw := r.URL.Query().Get("escape"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "escape must be a boolean")
			return
		}
		escape = &v
	}

	tex, err := h.qaSvc.Transcript(r.Context(), chi.URLParam(r, "sessionID"), escape)
	if err != nil {
		httperr.Respond(w, err)
		return
	}

	utils.RespondAttachment(w, export.FileName, export.ContentType, tex)
}
