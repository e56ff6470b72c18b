package document

import (
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/handler/httperr"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/qa"
	"github.com/zhouzirui/pdf-chatbot/backend/pkg/utils"
)

// Handler PDF上传的HTTP处理器
type Handler struct {
	qaSvc    *qa.Service
	maxBytes int64
}

// New 创建文档处理器
func New(qaSvc *qa.Service, maxBytes int64) *Handler {
	return &Handler{
		qaSvc:    qaSvc,
		maxBytes: maxBytes,
	}
}

// RegisterRoutes 注册文档相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions/{sessionID}/document", h.handleUpload)
}

// handleUpload 上传PDF、提取文本并为会话构建问答链
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// multipart framing needs a little headroom over the file itself
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "uploaded file is too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if !isPDF(header.Filename, header.Header.Get("Content-Type")) {
		utils.RespondError(w, http.StatusUnsupportedMediaType, "only PDF files are accepted")
		return
	}
	if header.Size > h.maxBytes {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "uploaded file is too large")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	session, err := h.qaSvc.LoadDocument(r.Context(), sessionID, filepath.Base(header.Filename), data)
	if err != nil {
		log.Printf("[document] upload rejected session=%s file=%s: %v", sessionID, header.Filename, err)
		httperr.Respond(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"session": session,
		"message": "PDF processed! You can now ask questions.",
	})
}

func isPDF(fileName, contentType string) bool {
	if strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(contentType), "application/pdf")
}
