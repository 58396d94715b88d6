// Package document turns local files and Confluence pages into documents
// ready for RAG ingestion. Per-file failures are logged and skipped so one
// broken document never aborts a batch.
package document

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rajarajane97/mastt/internal/knowledge"
	"github.com/rajarajane97/mastt/internal/log"
	"github.com/rajarajane97/mastt/internal/rag"
)

// Processor reads supported document formats from disk.
type Processor struct {
	logger log.Logger
}

// NewProcessor creates a Processor. A nil logger falls back to a no-op
// logger.
func NewProcessor(logger log.Logger) *Processor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Processor{logger: logger}
}

// sourceTypeByExt maps supported file extensions to knowledge source types.
var sourceTypeByExt = map[string]string{
	".txt":  knowledge.SourceTypeText,
	".rst":  knowledge.SourceTypeText,
	".md":   knowledge.SourceTypeMarkdown,
	".html": knowledge.SourceTypeHTML,
	".htm":  knowledge.SourceTypeHTML,
	".py":   knowledge.SourceTypeCode,
	".go":   knowledge.SourceTypeCode,
	".json": knowledge.SourceTypeCode,
	".yaml": knowledge.SourceTypeCode,
	".yml":  knowledge.SourceTypeCode,
}

// ProcessFile reads one file into a document. Unsupported extensions return
// an error.
func (p *Processor) ProcessFile(path string) (rag.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	sourceType, ok := sourceTypeByExt[ext]
	if !ok {
		return rag.Document{}, fmt.Errorf("unsupported file type %q", ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return rag.Document{}, fmt.Errorf("reading %s: %w", path, err)
	}
	text := string(data)

	if sourceType == knowledge.SourceTypeHTML {
		text, err = htmlToText(text)
		if err != nil {
			return rag.Document{}, fmt.Errorf("stripping HTML from %s: %w", path, err)
		}
	}

	doc := rag.Document{
		Text:       text,
		Source:     path,
		SourceType: sourceType,
		Metadata: map[string]string{
			"lines": strconv.Itoa(strings.Count(text, "\n") + 1),
		},
	}
	p.logger.Debug("document processed", "path", path, "type", sourceType, "chars", len(text))
	return doc, nil
}

// ProcessDirectory recursively reads every supported file under dir. Files
// that fail to parse are logged and skipped; a missing directory yields an
// empty batch.
func (p *Processor) ProcessDirectory(dir string) []rag.Document {
	var docs []rag.Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := sourceTypeByExt[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}

		doc, err := p.ProcessFile(path)
		if err != nil {
			p.logger.Warn("skipping document", "path", path, "error", err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		p.logger.Error("directory walk failed", "dir", dir, "error", err)
	}

	p.logger.Info("directory processed", "dir", dir, "documents", len(docs))
	return docs
}

// SaveProcessed writes the batch as processed_documents.json under dir. Full
// text is included so a run's input corpus can be inspected afterwards.
func SaveProcessed(dir string, docs []rag.Document) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling documents: %w", err)
	}
	path := filepath.Join(dir, "processed_documents.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// htmlToText strips tags and returns readable text.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style").Remove()
	return strings.TrimSpace(doc.Text()), nil
}
