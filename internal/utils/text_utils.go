package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// TextProcessor provides utilities for processing submission text
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText safely truncates text to the specified maximum size
// and ensures the result is valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]

	// Remove bytes until we have valid UTF-8
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + "\n[... Content truncated due to size limits ...]"
}

// SanitizeUTF8 drops invalid UTF-8 sequences
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	sanitized := strings.ToValidUTF8(text, "")

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))

	return sanitized
}

// ProcessText truncates and sanitizes text in one operation
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	return tp.SanitizeUTF8(tp.TruncateText(text, maxSize))
}

// Normalize folds compatibility forms and case so that look-alike spellings
// such as fullwidth letters compare equal to their plain forms
func (tp *TextProcessor) Normalize(text string) string {
	text = tp.SanitizeUTF8(text)
	text = norm.NFKC.String(text)
	// cases.Caser is stateful and not safe for concurrent use
	return cases.Fold().String(text)
}

// Tokenize splits normalized text into word tokens made of letters and digits
func (tp *TextProcessor) Tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}
