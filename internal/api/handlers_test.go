package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuchat/rag-pdf-chat/internal/chunker"
	"github.com/docuchat/rag-pdf-chat/internal/core"
	"github.com/docuchat/rag-pdf-chat/internal/index"
	"github.com/docuchat/rag-pdf-chat/internal/store"
)

type fakeCapability struct {
	embedFn    func(text string) ([]float32, error)
	generateFn func(prompt string) (string, error)
}

func (f *fakeCapability) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.embedFn(text)
}

func (f *fakeCapability) Generate(ctx context.Context, prompt string) (string, error) {
	return f.generateFn(prompt)
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, data []byte) (string, int, error) {
	return "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima", 2, nil
}

type serverFixture struct {
	router http.Handler
	llm    *fakeCapability
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	idx := index.New(3)
	llm := &fakeCapability{
		embedFn:    func(string) ([]float32, error) { return []float32{1, 0, 0}, nil },
		generateFn: func(string) (string, error) { return "a generated answer", nil },
	}

	splitter, err := chunker.NewSplitter(40, 0)
	require.NoError(t, err)

	rag := core.NewRAGService(db, idx, llm, 2, 10)
	controller, err := core.NewSystemController(db, idx, rag, llm, fakeExtractor{}, splitter, t.TempDir(), 1024*1024)
	require.NoError(t, err)

	handler := NewAPIHandler(controller, 1024*1024)
	return &serverFixture{router: NewRouter(handler), llm: llm}
}

func (f *serverFixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var body map[string]any
	if strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func (f *serverFixture) uploadPDF(t *testing.T, filename string, content []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-pdf", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return f.do(t, req)
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec, body := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "RAG PDF Chat API", body["service"])
}

func TestStatusEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec, body := f.do(t, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, false, body["rag_agent_ready"])
	assert.Equal(t, float64(0), body["documents_loaded"])
	assert.NotEmpty(t, body["pdfs_directory"])

	rec, _ = f.uploadPDF(t, "notes.pdf", []byte("%PDF-1.4 fake"))
	require.Equal(t, http.StatusOK, rec.Code)

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, true, body["rag_agent_ready"])
	assert.Equal(t, float64(1), body["documents_loaded"])
}

func TestUploadPDF(t *testing.T) {
	f := newServerFixture(t)

	rec, body := f.uploadPDF(t, "notes.pdf", []byte("%PDF-1.4 fake"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "notes.pdf", body["filename"])
	assert.Contains(t, body["message"], "notes.pdf")
}

func TestUploadRejectsNonPDF(t *testing.T) {
	f := newServerFixture(t)

	rec, body := f.uploadPDF(t, "notes.txt", []byte("plain text"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["detail"], "PDF")
}

func TestUploadRejectsDuplicate(t *testing.T) {
	f := newServerFixture(t)

	rec, _ := f.uploadPDF(t, "notes.pdf", []byte("%PDF-1.4 fake"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := f.uploadPDF(t, "notes.pdf", []byte("%PDF-1.4 fake"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEmpty(t, body["detail"])
}

func TestUploadMissingFileField(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/upload-pdf", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	rec, body := f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file provided", body["detail"])
}

func TestChatBeforeUpload(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hello"}`))
	rec, body := f.do(t, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, body["detail"])
}

func TestChatEmptyMessage(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"  "}`))
	rec, body := f.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Message cannot be empty", body["detail"])
}

func TestChatSuccess(t *testing.T) {
	f := newServerFixture(t)

	rec, _ := f.uploadPDF(t, "notes.pdf", []byte("%PDF-1.4 fake"))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"what is this about?"}`))
	rec, body := f.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "a generated answer", body["response"])
	assert.NotEmpty(t, body["citations"])
}

func TestChatGenerationFailure(t *testing.T) {
	f := newServerFixture(t)

	rec, _ := f.uploadPDF(t, "notes.pdf", []byte("%PDF-1.4 fake"))
	require.Equal(t, http.StatusOK, rec.Code)

	f.llm.generateFn = func(string) (string, error) {
		return "", fmt.Errorf("%w: upstream unavailable", core.ErrGenerationFailed)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"doomed"}`))
	rec, body := f.do(t, req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, body["detail"], "generation request failed")
}

func TestResetEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec, _ := f.uploadPDF(t, "notes.pdf", []byte("%PDF-1.4 fake"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := f.do(t, httptest.NewRequest(http.MethodDelete, "/reset", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])

	_, body = f.do(t, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, float64(0), body["documents_loaded"])
	assert.Equal(t, false, body["rag_agent_ready"])
}

func TestRootEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "RAG PDF Chat API")
}
