package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/phuslu/log"

	"github.com/docuchat/rag-pdf-chat/internal/index"
	"github.com/docuchat/rag-pdf-chat/internal/store"
)

// maxChunkPromptChars caps how much of a retrieved chunk is placed in the
// prompt, so a handful of large chunks cannot blow the context window.
const maxChunkPromptChars = 800

// Citation points from a generated answer back to a chunk that was placed
// in the prompt. Chunks that were merely similar but not given to the
// generator are never cited.
type Citation struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	ChunkID    string  `json:"chunk_id"`
	Position   int     `json:"position"`
	Score      float32 `json:"score"`
}

type AnswerResult struct {
	Response  string     `json:"response"`
	Citations []Citation `json:"citations"`
}

// RAGService turns a question into an answer: retrieve the most relevant
// chunks, compose a prompt with recent conversation history, and delegate
// generation to the LLM capability.
type RAGService struct {
	dbStore       *store.SQLiteStore
	vectorIndex   *index.Index
	llm           Capability
	topK          int
	historyWindow int
}

func NewRAGService(db *store.SQLiteStore, idx *index.Index, llm Capability, topK, historyWindow int) *RAGService {
	return &RAGService{
		dbStore:       db,
		vectorIndex:   idx,
		llm:           llm,
		topK:          topK,
		historyWindow: historyWindow,
	}
}

func (s *RAGService) Answer(ctx context.Context, question string) (*AnswerResult, error) {
	docCount, err := s.dbStore.CountDocuments()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if s.llm == nil {
		return nil, fmt.Errorf("%w: generation capability is not configured", ErrNotReady)
	}
	if docCount == 0 {
		return nil, fmt.Errorf("%w: no documents have been uploaded yet", ErrNotReady)
	}

	// Same embedding model as ingestion, or retrieval scores are meaningless.
	queryVec, err := s.llm.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	hits, err := s.vectorIndex.Query(queryVec, s.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector index: %w", err)
	}

	contextBlocks, citations, err := s.resolveHits(hits)
	if err != nil {
		return nil, err
	}

	history, err := s.dbStore.RecentTurns(s.historyWindow)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load conversation history, proceeding without it")
		history = nil
	}

	prompt := buildPrompt(contextBlocks, history, question)

	// The question enters history even when generation fails below, so it
	// is never silently lost.
	userTurn := &store.Turn{Role: store.RoleUser, Content: question}
	if err := s.dbStore.AppendTurn(userTurn); err != nil {
		return nil, fmt.Errorf("failed to record user turn: %w", err)
	}

	answer, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		// No assistant turn is persisted for a failed generation.
		return nil, err
	}

	citedIDs := make([]string, 0, len(citations))
	for _, c := range citations {
		citedIDs = append(citedIDs, c.ChunkID)
	}
	assistantTurn := &store.Turn{Role: store.RoleAssistant, Content: answer, Citations: citedIDs}
	if err := s.dbStore.AppendTurn(assistantTurn); err != nil {
		return nil, fmt.Errorf("failed to record assistant turn: %w", err)
	}

	log.Info().Int("retrieved", len(citations)).Int("history", len(history)).Msg("Generated answer")
	return &AnswerResult{Response: answer, Citations: citations}, nil
}

// resolveHits loads the retrieved chunks and their documents, producing the
// labeled prompt blocks and the citation list. The two are built together:
// whatever ends up in a block ends up cited, and nothing else. A chunk id
// the index knows but the store does not means the two are out of sync,
// which is an internal invariant violation, not a recoverable error.
func (s *RAGService) resolveHits(hits []index.Hit) ([]string, []Citation, error) {
	var blocks []string
	var citations []Citation
	for i, hit := range hits {
		chunk, err := s.dbStore.ChunkByID(hit.ChunkID)
		if err != nil {
			return nil, nil, fmt.Errorf("vector index and document store out of sync for chunk %s: %w", hit.ChunkID, err)
		}
		doc, err := s.dbStore.DocumentByID(chunk.DocumentID)
		if err != nil {
			return nil, nil, fmt.Errorf("vector index and document store out of sync for document %s: %w", chunk.DocumentID, err)
		}

		content := chunk.Content
		if len(content) > maxChunkPromptChars {
			content = content[:maxChunkPromptChars] + "..."
		}
		blocks = append(blocks, fmt.Sprintf("Document %d (%s, part %d):\n%s", i+1, doc.Filename, chunk.Position+1, content))
		citations = append(citations, Citation{
			DocumentID: doc.ID,
			Filename:   doc.Filename,
			ChunkID:    chunk.ID,
			Position:   chunk.Position,
			Score:      hit.Score,
		})
	}
	return blocks, citations, nil
}

func buildPrompt(contextBlocks []string, history []store.Turn, question string) string {
	var b strings.Builder

	if len(contextBlocks) > 0 {
		b.WriteString("Relevant Information:\n")
		b.WriteString(strings.Join(contextBlocks, "\n\n"))
		b.WriteString("\n\n")
	}

	if len(history) > 0 {
		b.WriteString("Recent Conversation:\n")
		for _, turn := range history {
			b.WriteString(turn.Role)
			b.WriteString(": ")
			b.WriteString(turn.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Current Question: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer the question clearly and helpfully, based on the information above.\n\nAnswer:")
	return b.String()
}
