// Package extract prepares uploaded documents for grading: it maps file
// extensions to handling capabilities, decides when an OCR pass is worth
// attempting, and turns raw extracted text into prompt-ready content.
package extract

import (
	"path/filepath"
	"strings"
)

// textExtensions are the extensions read as plain text, including common
// source code files submitted for programming assignments.
var textExtensions = []string{
	".txt", ".md", ".py", ".js", ".jsx", ".ts", ".tsx", ".java", ".cpp", ".c", ".h",
	".html", ".css", ".scss", ".json", ".xml", ".yaml", ".yml", ".sql", ".sh", ".bat",
	".ps1", ".rb", ".php", ".go", ".rs", ".swift", ".kt", ".dart", ".r", ".m", ".pl",
	".lua", ".scala", ".clj", ".hs", ".elm", ".ex", ".exs", ".erl", ".ml", ".fs",
	".cs", ".vb", ".asm", ".s", ".asmx", ".vue", ".svelte",
}

// Capability describes how one family of file extensions is handled.
type Capability struct {
	// Tag is recorded on uploads and echoed in grading prompts.
	Tag string
	// Extensions covered by this capability, lowercase with leading dot.
	Extensions []string
	// OCR marks formats where a forced OCR pass can recover content that
	// plain extraction missed.
	OCR bool
}

// Registry resolves file extensions to capabilities.
type Registry struct {
	byExt map[string]Capability
}

// NewRegistry indexes the given capabilities by extension. Later entries win
// on duplicate extensions.
func NewRegistry(caps ...Capability) *Registry {
	byExt := make(map[string]Capability)
	for _, c := range caps {
		for _, ext := range c.Extensions {
			byExt[strings.ToLower(ext)] = c
		}
	}
	return &Registry{byExt: byExt}
}

// DefaultRegistry covers the formats the grading pipeline understands. Plain
// text wins over more specific handling for overlapping extensions such as
// .json.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Capability{Tag: "pdf", Extensions: []string{".pdf"}, OCR: true},
		Capability{Tag: "docx", Extensions: []string{".docx"}, OCR: true},
		Capability{Tag: "doc", Extensions: []string{".doc"}, OCR: true},
		Capability{Tag: "excel", Extensions: []string{".xlsx", ".xls"}},
		Capability{Tag: "csv", Extensions: []string{".csv"}},
		Capability{Tag: "ppt", Extensions: []string{".ppt", ".pptx", ".pptm"}},
		Capability{Tag: "text", Extensions: textExtensions},
	)
}

// Lookup returns the capability for an extension (with or without leading
// dot handling left to the caller; the match is case-insensitive).
func (r *Registry) Lookup(ext string) (Capability, bool) {
	c, ok := r.byExt[strings.ToLower(ext)]
	return c, ok
}

// TypeFor resolves the capability tag for a filename. Unknown extensions are
// tagged "binary".
func (r *Registry) TypeFor(filename string) string {
	if c, ok := r.Lookup(filepath.Ext(filename)); ok {
		return c.Tag
	}
	return "binary"
}

// OCRCapable reports whether the filename's format supports an OCR retry.
func (r *Registry) OCRCapable(filename string) bool {
	c, ok := r.Lookup(filepath.Ext(filename))
	return ok && c.OCR
}
