package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/phuslu/log"
)

// Extractor pulls text content out of PDF files using pdfcpu. pdfcpu's API
// is file based, so extraction stages the document in a temp directory.
type Extractor struct {
	tempDir string
}

func NewExtractor() *Extractor {
	tempDir := filepath.Join(os.TempDir(), "rag-pdf-chat")
	os.MkdirAll(tempDir, 0755)
	return &Extractor{tempDir: tempDir}
}

// Extract returns the concatenated text of all pages plus the page count.
// Pages are joined in order; pages with no extractable text are skipped.
func (e *Extractor) Extract(ctx context.Context, data []byte) (string, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	tempFile := filepath.Join(e.tempDir, fmt.Sprintf("extract_%s.pdf", uuid.NewString()))
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return "", 0, fmt.Errorf("failed to write temp PDF file: %w", err)
	}
	defer os.Remove(tempFile)

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(e.tempDir, fmt.Sprintf("pages_%s", uuid.NewString()))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create extraction dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return "", 0, fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			log.Warn().Err(err).Str("file", file.Name()).Msg("Skipping unreadable extraction output")
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err != nil {
				continue
			}
		}
		pageTexts[pageNum] = string(content)
	}

	pages := make([]int, 0, len(pageTexts))
	for p := range pageTexts {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	var builder strings.Builder
	for _, p := range pages {
		text := strings.TrimSpace(pageTexts[p])
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(text)
	}

	return builder.String(), pageCount, nil
}
