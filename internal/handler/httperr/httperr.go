// Package httperr maps service errors to HTTP responses.
package httperr

import (
	"errors"
	"log"
	"net/http"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/pdf-chatbot/backend/internal/service/chat"
	docservice "github.com/zhouzirui/pdf-chatbot/backend/internal/service/document"
	"github.com/zhouzirui/pdf-chatbot/backend/internal/service/qa"
	"github.com/zhouzirui/pdf-chatbot/backend/pkg/utils"
)

// Status returns the HTTP status code for err.
func Status(err error) int {
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatservice.ErrNoDocument),
		errors.Is(err, chatservice.ErrDocumentLoaded):
		return http.StatusConflict
	case errors.Is(err, qa.ErrEmptyQuestion),
		errors.Is(err, docservice.ErrEmptyUpload):
		return http.StatusBadRequest
	case errors.Is(err, qa.ErrEmptyTranscript):
		return http.StatusNotFound
	case errors.Is(err, docservice.ErrExtraction),
		errors.Is(err, docservice.ErrNoText):
		return http.StatusUnprocessableEntity
	case errors.Is(err, qa.ErrAIUnavailable):
		return http.StatusServiceUnavailable
	}

	switch ai.KindOf(err) {
	case ai.KindRateLimited:
		return http.StatusTooManyRequests
	case ai.KindUpstream:
		return http.StatusBadGateway
	case ai.KindCanceled:
		return http.StatusRequestTimeout
	}

	return http.StatusInternalServerError
}

// Respond writes err as a JSON error body with the mapped status.
func Respond(w http.ResponseWriter, err error) {
	status := Status(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[http] responding %d: %v", status, err)
	}
	utils.RespondError(w, status, err.Error())
}
