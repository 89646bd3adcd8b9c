package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/phuslu/log"

	"github.com/docuchat/rag-pdf-chat/internal/core"
	"github.com/docuchat/rag-pdf-chat/internal/store"
)

const serviceName = "RAG PDF Chat API"

type APIHandler struct {
	controller     *core.SystemController
	maxUploadBytes int64
}

func NewAPIHandler(controller *core.SystemController, maxUploadBytes int64) *APIHandler {
	return &APIHandler{controller: controller, maxUploadBytes: maxUploadBytes}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn().Err(err).Msg("Failed to write JSON response")
	}
}

// writeDetail emits the error body the client contract expects: a JSON
// object with a human-readable detail field, surfaced verbatim in the UI.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeError maps the error taxonomy onto HTTP status codes. Anything
// outside the taxonomy is an internal error and gets a generic detail.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidFile):
		writeDetail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrFileTooLarge):
		writeDetail(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, store.ErrDuplicateDocument):
		writeDetail(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrNotReady):
		writeDetail(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, core.ErrTimeout):
		writeDetail(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, core.ErrEmbeddingFailed), errors.Is(err, core.ErrGenerationFailed):
		writeDetail(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeDetail(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("Internal server error")
		writeDetail(w, http.StatusInternalServerError, "Internal server error. Please try again later.")
	}
}

func (h *APIHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<h1>RAG PDF Chat API</h1><p>Backend server is running. Use the API endpoints to interact with the service.</p>"))
}

type UploadResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

func (h *APIHandler) UploadPDFHandler(w http.ResponseWriter, r *http.Request) {
	// Leave headroom for the multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1024*1024)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "File too large. Maximum size is "+formatMB(h.maxUploadBytes)+".")
			return
		}
		writeDetail(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	summary, err := h.controller.Ingest(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Status:   "success",
		Filename: summary.Filename,
		Message:  "Successfully uploaded and processed " + summary.Filename,
	})
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Status    string          `json:"status"`
	Response  string          `json:"response"`
	Citations []core.Citation `json:"citations,omitempty"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeDetail(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}

	result, err := h.controller.Ask(r.Context(), strings.TrimSpace(req.Message))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Status:    "success",
		Response:  result.Response,
		Citations: result.Citations,
	})
}

type StatusResponse struct {
	Status          string `json:"status"`
	RAGAgentReady   bool   `json:"rag_agent_ready"`
	DocumentsLoaded int    `json:"documents_loaded"`
	PDFsDirectory   string `json:"pdfs_directory"`
}

func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	info, err := h.controller.Status()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:          "running",
		RAGAgentReady:   info.Ready,
		DocumentsLoaded: info.DocumentCount,
		PDFsDirectory:   info.PDFsDir,
	})
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Error   string `json:"error,omitempty"`
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Health(); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusOK, HealthResponse{Status: "unhealthy", Service: serviceName, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Service: serviceName})
}

func (h *APIHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.controller.Reset(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "All documents and chat history have been reset",
	})
}

func formatMB(bytes int64) string {
	return strconv.FormatInt(bytes/(1024*1024), 10) + " MB"
}
