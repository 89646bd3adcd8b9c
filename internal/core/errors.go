package core

import "errors"

// Request-boundary error taxonomy. Every sentinel here is recoverable: the
// API layer maps them to a status code and a human-readable detail string.
var (
	ErrInvalidFile      = errors.New("invalid file")
	ErrFileTooLarge     = errors.New("file too large")
	ErrNotReady         = errors.New("RAG agent is not ready")
	ErrEmbeddingFailed  = errors.New("embedding request failed")
	ErrGenerationFailed = errors.New("generation request failed")
	ErrTimeout          = errors.New("request to generation capability timed out")
)
