// Package extractor turns uploaded PDF and DOCX design documents into plain text.
//
// Supported kinds:
//   - pdf: page text via pdfcpu content streams, one segment per page
//   - docx: paragraph text from word/document.xml, one segment per paragraph
//
// A page or paragraph that yields no text contributes an empty segment. A
// document with no text at all fails with ErrExtraction.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Kind is the declared document type.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindDocx Kind = "docx"
)

var (
	// ErrUnsupportedFormat is a client error: the kind is neither pdf nor docx.
	ErrUnsupportedFormat = errors.New("unsupported file type; only PDF and DOCX are allowed")

	// ErrExtraction means the container could not be opened or read.
	ErrExtraction = errors.New("text extraction failed")
)

// RawDocument is the uploaded content with its declared kind.
type RawDocument struct {
	Filename string
	Kind     Kind
	Data     []byte
}

// ExtractedText holds one segment per page or paragraph, in document order.
type ExtractedText struct {
	Segments []string
}

// Text joins the segments with newlines.
func (t ExtractedText) Text() string {
	return strings.Join(t.Segments, "\n")
}

// IsBlank reports whether no segment carries visible text.
func (t ExtractedText) IsBlank() bool {
	return strings.TrimSpace(t.Text()) == ""
}

// Config configures the extractor.
type Config struct {
	// MaxBytes caps the accepted document size (default: 50 MiB).
	MaxBytes int64

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxBytes <= 0 {
		c.MaxBytes = 50 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor is the document text extraction engine.
type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor with the given configuration.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg, logger: cfg.Logger}
}

// KindFromFilename maps a file extension to a Kind, case-insensitively.
func KindFromFilename(name string) (Kind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF, nil
	case ".docx":
		return KindDocx, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Extract converts doc into text. It fails with ErrUnsupportedFormat for
// unknown kinds and with ErrExtraction when the container is unreadable.
func (e *Extractor) Extract(ctx context.Context, doc RawDocument) (ExtractedText, error) {
	if doc.Kind != KindPDF && doc.Kind != KindDocx {
		return ExtractedText{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, doc.Kind)
	}
	if int64(len(doc.Data)) > e.cfg.MaxBytes {
		return ExtractedText{}, fmt.Errorf("%w: file too large: %d bytes (max %d)", ErrExtraction, len(doc.Data), e.cfg.MaxBytes)
	}

	e.logger.DebugContext(ctx, "extracting document", "filename", doc.Filename, "kind", doc.Kind, "bytes", len(doc.Data))

	var (
		segments []string
		err      error
	)
	switch doc.Kind {
	case KindPDF:
		segments, err = extractPDF(doc.Data)
	case KindDocx:
		segments, err = extractDocx(doc.Data)
	}
	if err != nil {
		return ExtractedText{}, fmt.Errorf("%w: %s (%s): %w", ErrExtraction, doc.Filename, doc.Kind, err)
	}

	text := ExtractedText{Segments: segments}
	if text.IsBlank() {
		return ExtractedText{}, fmt.Errorf("%w: no text content found in %s (%s)", ErrExtraction, doc.Filename, doc.Kind)
	}
	e.logger.InfoContext(ctx, "document extracted",
		"filename", doc.Filename,
		"kind", doc.Kind,
		"segments", len(segments),
		"chars", len(text.Text()),
	)
	return text, nil
}

// ExtractFile is a convenience for callers holding a filename and its bytes.
func (e *Extractor) ExtractFile(ctx context.Context, filename string, data []byte) (ExtractedText, error) {
	kind, err := KindFromFilename(filename)
	if err != nil {
		return ExtractedText{}, err
	}
	return e.Extract(ctx, RawDocument{Filename: filename, Kind: kind, Data: data})
}
