package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/docuchat/rag-pdf-chat/internal/chunker"
	"github.com/docuchat/rag-pdf-chat/internal/index"
	"github.com/docuchat/rag-pdf-chat/internal/store"
)

// TextExtractor converts a raw PDF into plain text plus a page count.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (text string, pageCount int, err error)
}

type DocumentSummary struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
}

type StatusInfo struct {
	Ready         bool
	DocumentCount int
	PDFsDir       string
}

// SystemController owns the session state: the document store, the vector
// index and the conversation history. A single mutex serializes ingest,
// ask and reset, so a query never observes a partially ingested document
// and reset never races an in-flight operation.
type SystemController struct {
	mu sync.Mutex

	dbStore     *store.SQLiteStore
	vectorIndex *index.Index
	ragService  *RAGService
	llm         Capability
	extractor   TextExtractor
	splitter    *chunker.Splitter

	pdfsDir        string
	maxUploadBytes int64
}

func NewSystemController(db *store.SQLiteStore, idx *index.Index, rag *RAGService, llm Capability,
	extractor TextExtractor, splitter *chunker.Splitter, pdfsDir string, maxUploadBytes int64) (*SystemController, error) {
	if err := os.MkdirAll(pdfsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pdfs directory %s: %w", pdfsDir, err)
	}
	return &SystemController{
		dbStore:        db,
		vectorIndex:    idx,
		ragService:     rag,
		llm:            llm,
		extractor:      extractor,
		splitter:       splitter,
		pdfsDir:        pdfsDir,
		maxUploadBytes: maxUploadBytes,
	}, nil
}

// Ingest validates, extracts, chunks, embeds and registers one PDF. The
// registration is all-or-nothing: a failure at any stage leaves no partial
// document in the store and no partial chunk set in the index.
func (c *SystemController) Ingest(ctx context.Context, filename string, data []byte) (*DocumentSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if filename == "" {
		return nil, fmt.Errorf("%w: no file provided", ErrInvalidFile)
	}
	if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
		return nil, fmt.Errorf("%w: only PDF files are allowed", ErrInvalidFile)
	}
	if int64(len(data)) > c.maxUploadBytes {
		return nil, fmt.Errorf("%w: maximum size is %d MB", ErrFileTooLarge, c.maxUploadBytes/(1024*1024))
	}
	if c.llm == nil {
		return nil, fmt.Errorf("%w: generation capability is not configured", ErrNotReady)
	}

	hash := sha256.Sum256(data)
	digest := hex.EncodeToString(hash[:])
	if exists, err := c.dbStore.DocumentExists(filename, digest); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%w: %s", store.ErrDuplicateDocument, filename)
	}

	text, pageCount, err := c.extractor.Extract(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read PDF: %v", ErrInvalidFile, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: PDF contains no extractable text", ErrInvalidFile)
	}

	chunkTexts := c.splitter.Split(text)
	if len(chunkTexts) == 0 {
		return nil, fmt.Errorf("%w: PDF produced no text chunks", ErrInvalidFile)
	}

	chunks := make([]store.Chunk, 0, len(chunkTexts))
	chunkIDs := make([]string, 0, len(chunkTexts))
	vectors := make([][]float32, 0, len(chunkTexts))
	for i, chunkText := range chunkTexts {
		vec, err := c.llm.Embed(ctx, chunkText)
		if err != nil {
			return nil, err
		}
		id := uuid.NewString()
		chunks = append(chunks, store.Chunk{ID: id, Position: i, Content: chunkText})
		chunkIDs = append(chunkIDs, id)
		vectors = append(vectors, vec)
	}

	doc := &store.Document{
		Filename:  filename,
		ByteSize:  int64(len(data)),
		SHA256:    digest,
		PageCount: pageCount,
	}
	if err := c.dbStore.InsertDocument(doc, chunks); err != nil {
		return nil, err
	}
	if err := c.vectorIndex.InsertBatch(chunkIDs, vectors); err != nil {
		// Roll the registration back so store and index stay in sync.
		if rbErr := c.dbStore.RemoveDocument(doc.ID); rbErr != nil {
			log.Error().Err(rbErr).Str("document_id", doc.ID).Msg("Failed to roll back document after index failure")
		}
		return nil, fmt.Errorf("failed to index document chunks: %w", err)
	}

	// Keep a copy of the original file so /status can report what is loaded.
	// The document is already registered, so a disk failure here is logged
	// rather than surfaced.
	savedPath := filepath.Join(c.pdfsDir, filepath.Base(filename))
	if err := os.WriteFile(savedPath, data, 0644); err != nil {
		log.Warn().Err(err).Str("path", savedPath).Msg("Failed to save uploaded PDF")
	}

	log.Info().Str("filename", filename).Int("pages", pageCount).Int("chunks", len(chunks)).Msg("Ingested document")
	return &DocumentSummary{
		ID:         doc.ID,
		Filename:   doc.Filename,
		PageCount:  doc.PageCount,
		ChunkCount: len(chunks),
	}, nil
}

// Ask answers one question. Questions within the session are processed in
// the order received.
func (c *SystemController) Ask(ctx context.Context, question string) (*AnswerResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ragService.Answer(ctx, question)
}

// Reset atomically clears documents, index and conversation history, and
// removes saved PDF files. It waits for any in-flight ingest or ask.
func (c *SystemController) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dbStore.Reset(); err != nil {
		return fmt.Errorf("failed to reset document store: %w", err)
	}
	c.vectorIndex.Clear()

	entries, err := os.ReadDir(c.pdfsDir)
	if err != nil {
		log.Warn().Err(err).Str("dir", c.pdfsDir).Msg("Could not list pdfs directory during reset")
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			continue
		}
		if err := os.Remove(filepath.Join(c.pdfsDir, entry.Name())); err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Could not remove saved PDF during reset")
		}
	}

	log.Info().Msg("System state reset")
	return nil
}

func (c *SystemController) Status() (*StatusInfo, error) {
	count, err := c.dbStore.CountDocuments()
	if err != nil {
		return nil, err
	}
	absDir, err := filepath.Abs(c.pdfsDir)
	if err != nil {
		absDir = c.pdfsDir
	}
	return &StatusInfo{
		Ready:         count > 0 && c.llm != nil,
		DocumentCount: count,
		PDFsDir:       absDir,
	}, nil
}

// Health reports whether the controller can reach its own state.
func (c *SystemController) Health() error {
	_, err := c.dbStore.CountDocuments()
	return err
}
