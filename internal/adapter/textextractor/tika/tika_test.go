package tika_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/assignment-grader/internal/adapter/textextractor/tika"
)

func TestClient_Extract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fileName string
		data     []byte
		handler  http.HandlerFunc
		want     string
		wantErr  bool
		errMsg   string
	}{
		{
			name:     "successful text extraction",
			fileName: "test.txt",
			data:     []byte("This is test content"),
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "/tika", r.URL.Path)
				assert.Equal(t, "text/plain", r.Header.Get("Accept"))
				assert.Empty(t, r.Header.Get("X-Tika-PDFOcrStrategy"))

				body, _ := io.ReadAll(r.Body)
				assert.Equal(t, "This is test content", string(body))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("Extracted text content"))
			},
			want:    "Extracted text content",
			wantErr: false,
		},
		{
			name:     "PDF file with content type",
			fileName: "document.pdf",
			data:     []byte("%PDF-1.4"),
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("PDF content extracted"))
			},
			want:    "PDF content extracted",
			wantErr: false,
		},
		{
			name:     "DOCX file with content type",
			fileName: "document.docx",
			data:     []byte("PK"),
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
					r.Header.Get("Content-Type"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("DOCX content extracted"))
			},
			want:    "DOCX content extracted",
			wantErr: false,
		},
		{
			name:     "server error",
			fileName: "test.txt",
			data:     []byte("x"),
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("Internal Server Error"))
			},
			wantErr: true,
			errMsg:  "tika status 500",
		},
		{
			name:     "unsupported status",
			fileName: "test.txt",
			data:     []byte("x"),
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnsupportedMediaType)
			},
			wantErr: true,
			errMsg:  "tika status 415",
		},
		{
			name:     "normalized text with special characters",
			fileName: "test.txt",
			data:     []byte("raw"),
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("Text with\ttabs\nand\r\nnewlines   and    spaces"))
			},
			want:    "Text with tabs and newlines and spaces",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := tika.New(server.URL)
			ctx := context.Background()

			got, err := client.Extract(ctx, tt.fileName, tt.data)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestClient_ExtractOCR_SetsHeaders(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ocr_only", r.Header.Get("X-Tika-PDFOcrStrategy"))
		assert.NotEmpty(t, r.Header.Get("X-Tika-OCRTimeout"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("scanned page text"))
	}))
	defer server.Close()

	client := tika.New(server.URL)
	got, err := client.ExtractOCR(context.Background(), "scan.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "scanned page text", got)
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		baseURL string
	}{
		{
			name:    "with base URL",
			baseURL: "http://tika-server:9998",
		},
		{
			name:    "empty base URL",
			baseURL: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := tika.New(tt.baseURL)
			assert.NotNil(t, client)
		})
	}
}
