package usecase

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/extract"
	"github.com/fairyhunter13/assignment-grader/pkg/textx"
)

// IncomingFile is one uploaded document before extraction. MIME carries the
// sniffed content type from the HTTP layer; Data is the full file body.
type IncomingFile struct {
	Filename string
	MIME     string
	Data     []byte
}

// UploadService extracts text from submitted documents and persists them.
// Extraction never fails a request: unreadable files are stored with a
// placeholder body and graded as zero later in the pipeline.
type UploadService struct {
	Repo      domain.UploadRepository
	Extractor domain.TextExtractor
	Registry  *extract.Registry
	// MaxBytes caps a single file; MaxFiles caps one request. Zero disables
	// the corresponding check.
	MaxBytes int64
	MaxFiles int
}

// NewUploadService constructs an UploadService with the default format registry.
func NewUploadService(r domain.UploadRepository, ex domain.TextExtractor, maxBytes int64, maxFiles int) UploadService {
	return UploadService{Repo: r, Extractor: ex, Registry: extract.DefaultRegistry(), MaxBytes: maxBytes, MaxFiles: maxFiles}
}

// Ingest extracts and stores every file, returning the upload ids in input
// order. Oversized files and empty requests are rejected before anything is
// stored; extraction failures degrade to stored placeholders instead.
func (s UploadService) Ingest(ctx domain.Context, files []IncomingFile) ([]string, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files provided", domain.ErrInvalidArgument)
	}
	if s.MaxFiles > 0 && len(files) > s.MaxFiles {
		return nil, fmt.Errorf("%w: maximum %d files allowed", domain.ErrInvalidArgument, s.MaxFiles)
	}
	for _, f := range files {
		if s.MaxBytes > 0 && int64(len(f.Data)) > s.MaxBytes {
			return nil, fmt.Errorf("%w: file %s exceeds %d MB limit", domain.ErrInvalidArgument, f.Filename, s.MaxBytes/(1024*1024))
		}
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		up := s.extractOne(ctx, f)
		id, err := s.Repo.Create(ctx, up)
		if err != nil {
			return nil, fmt.Errorf("op=usecase.Ingest: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// extractOne turns one incoming file into a storable upload. Text formats are
// read directly; document formats go through the extractor; anything else is
// stored as a binary placeholder. When plain extraction yields nothing usable
// and the format supports it, one forced OCR pass runs and its text replaces
// the content only if the OCR output is not itself a placeholder.
func (s UploadService) extractOne(ctx domain.Context, f IncomingFile) domain.Upload {
	ext := strings.ToLower(filepath.Ext(f.Filename))
	fileType := s.Registry.TypeFor(f.Filename)
	fromOCR := false

	var content string
	capType, known := s.Registry.Lookup(ext)
	switch {
	case known && capType.Tag == "text":
		content = textx.SanitizeText(string(f.Data))
	case !known:
		content = extract.BinaryPlaceholder(ext)
	default:
		text, err := s.Extractor.Extract(ctx, f.Filename, f.Data)
		if err != nil {
			slog.Warn("text extraction failed, storing placeholder",
				slog.String("filename", f.Filename),
				slog.Any("error", err))
			content = extract.ReadErrorPlaceholder(err)
		} else {
			content = text
		}
	}

	if extract.NeedsOCR(content, ext) && s.Registry.OCRCapable(f.Filename) {
		slog.Info("attempting OCR extraction",
			slog.String("filename", f.Filename),
			slog.Int("extracted_chars", len(strings.TrimSpace(content))))
		ocrText, err := s.Extractor.ExtractOCR(ctx, f.Filename, f.Data)
		switch {
		case err != nil:
			slog.Warn("OCR extraction failed",
				slog.String("filename", f.Filename),
				slog.Any("error", err))
		case extract.OCRUsable(ocrText):
			content = ocrText
			fromOCR = true
			slog.Info("recovered content via OCR",
				slog.String("filename", f.Filename),
				slog.Int("chars", len(ocrText)))
		default:
			slog.Warn("OCR returned no usable text", slog.String("filename", f.Filename))
		}
	}

	return domain.Upload{
		Text:      content,
		Filename:  f.Filename,
		MIME:      f.MIME,
		FileType:  fileType,
		Extension: ext,
		Size:      int64(len(f.Data)),
		FromOCR:   fromOCR,
		CreatedAt: time.Now().UTC(),
	}
}
