package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// errorIndicators mark extracted content that is an extractor error message
// rather than document text. Checked with plain substring containment.
var errorIndicators = []string{
	"[No extractable text",
	"[No text extracted",
	"[Error reading DOCX",
	"[Cannot read .doc",
	"[Error reading DOC",
	"[No extractable text found in PDF",
	"[Error reading file:",
	"[Error reading DOC via COM",
	"[python-docx library not available]",
	"[PDF library not available",
	"[Excel library not available",
	"[Binary file -",
}

// ocrIndicators is the subset of placeholders that justify a forced OCR
// retry. Binary and missing-library placeholders are excluded: OCR cannot
// recover those.
var ocrIndicators = errorIndicators[:8]

// shortDocThreshold is the content length below which a .doc extraction is
// considered suspicious enough to retry with OCR.
const shortDocThreshold = 32

// IsExtractionError reports whether content is an extractor placeholder
// instead of real document text.
func IsExtractionError(content string) bool {
	for _, ind := range errorIndicators {
		if strings.Contains(content, ind) {
			return true
		}
	}
	return false
}

// NeedsOCR reports whether the extracted content warrants a forced OCR pass:
// nothing was extracted, the content is a recoverable placeholder, or a .doc
// file produced implausibly little text.
func NeedsOCR(content, ext string) bool {
	preview := strings.TrimSpace(content)
	if preview == "" {
		return true
	}
	for _, ind := range ocrIndicators {
		if strings.Contains(preview, ind) {
			return true
		}
	}
	return utf8.RuneCountInString(preview) < shortDocThreshold && strings.ToLower(ext) == ".doc"
}

// OCRUsable reports whether an OCR result can replace placeholder content.
func OCRUsable(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, ind := range ocrIndicators {
		if strings.Contains(text, ind) {
			return false
		}
	}
	return true
}

// ReadErrorPlaceholder is stored when extraction fails outright.
func ReadErrorPlaceholder(err error) string {
	return fmt.Sprintf("[Error reading file: %v]", err)
}

// BinaryPlaceholder is stored when an unknown format cannot be read as text.
func BinaryPlaceholder(ext string) string {
	return fmt.Sprintf("[Binary file - %s - Cannot read as text]", ext)
}
