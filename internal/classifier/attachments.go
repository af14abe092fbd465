package classifier

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/commguard/commguard/internal/models"
	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// AttachmentExtractor pulls scannable text out of attachment content so the
// pattern stages can inspect it. Only PDF and plain-text attachments are
// extracted; everything else contributes metadata signals only.
type AttachmentExtractor struct {
	logger *zap.Logger
}

// NewAttachmentExtractor creates an attachment extractor.
func NewAttachmentExtractor(logger *zap.Logger) *AttachmentExtractor {
	return &AttachmentExtractor{logger: logger}
}

// maxExtractPages bounds per-attachment extraction work.
const maxExtractPages = 10

// ExtractText returns extracted text, or "" for types that are not
// extracted. Errors are reported so the caller can treat the attachment as a
// zero-contribution input.
func (e *AttachmentExtractor) ExtractText(att models.Attachment) (string, error) {
	if len(att.Content) == 0 {
		return "", nil
	}

	switch {
	case att.MimeType == "application/pdf" || strings.HasSuffix(strings.ToLower(att.Name), ".pdf"):
		return e.extractPDF(att)
	case strings.HasPrefix(att.MimeType, "text/"):
		if !utf8.Valid(att.Content) {
			return "", fmt.Errorf("attachment %s is not valid UTF-8", att.Name)
		}
		return string(att.Content), nil
	default:
		return "", nil
	}
}

// extractPDF renders text from PDF pages via mupdf.
func (e *AttachmentExtractor) extractPDF(att models.Attachment) (string, error) {
	doc, err := fitz.NewFromMemory(att.Content)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF attachment: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount > maxExtractPages {
		pageCount = maxExtractPages
	}

	var sb strings.Builder
	for page := 0; page < pageCount; page++ {
		text, err := doc.Text(page)
		if err != nil {
			e.logger.Warn("Failed to extract PDF page text",
				zap.String("attachment", att.Name),
				zap.Int("page", page),
				zap.Error(err))
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	e.logger.Debug("Extracted PDF attachment text",
		zap.String("attachment", att.Name),
		zap.Int("pages", pageCount),
		zap.Int("chars", sb.Len()))

	return sb.String(), nil
}
