package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/phuslu/log"
	"google.golang.org/api/option"

	"github.com/docuchat/rag-pdf-chat/internal/config"
)

const chatSystemInstruction = "You are a helpful AI assistant that answers questions based on provided documents " +
	"and conversation context. Use information from the provided documents when relevant. " +
	"If the documents don't contain relevant information, say so clearly. " +
	"Be concise but comprehensive, and maintain conversation context when appropriate. " +
	"Do not make up information."

// Capability is the external LLM surface the pipeline depends on: one
// embedding method and one generation method. Query and corpus vectors must
// come from the same embedding model, so a single Capability serves both
// ingestion and question answering.
type Capability interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiService implements Capability against the Google GenAI API.
type GeminiService struct {
	client          *genai.Client
	embeddingModel  string
	generationModel string
	embedTimeout    time.Duration
	generateTimeout time.Duration
}

func NewGeminiService() (*GeminiService, error) {
	if config.AppConfig.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiService{
		client:          client,
		embeddingModel:  config.AppConfig.EmbeddingModel,
		generationModel: config.AppConfig.GenerationModel,
		embedTimeout:    time.Duration(config.AppConfig.EmbedTimeoutSecs) * time.Second,
		generateTimeout: time.Duration(config.AppConfig.GenerateTimeoutSecs) * time.Second,
	}, nil
}

func (s *GeminiService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing GenAI client")
		}
	}
}

func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	em := s.client.EmbeddingModel(s.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding data received", ErrEmbeddingFailed)
	}
	return res.Embedding.Values, nil
}

func (s *GeminiService) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.generateTimeout)
	defer cancel()

	model := s.client.GenerativeModel(s.generationModel)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: generation: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty response from model", ErrGenerationFailed)
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Debug().Str("type", fmt.Sprintf("%T", part)).Msg("Skipping non-text response part")
		}
	}

	if responseText.Len() == 0 {
		return "", fmt.Errorf("%w: model returned no text parts", ErrGenerationFailed)
	}
	return responseText.String(), nil
}
