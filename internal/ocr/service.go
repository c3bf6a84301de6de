// Package ocr extracts text from receipt photos and PDF documents using
// the Google Cloud Vision API.
//
// Required Environment Variables:
//   - CREDENTIALS_JSON: Inline service account JSON, OR
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file
//
// Cloud Vision API Limitations:
//   - Maximum PDF file size: 20MB for synchronous processing
//   - Maximum pages: 5 pages for synchronous processing
//   - PDFs are sent as inline data (no Cloud Storage upload required)
//
// Receipts are mostly Brazilian, so recognition runs with Portuguese and
// English language hints.
package ocr

import (
	"context"
	"io"
)

// Service defines the interface for OCR text extraction.
type Service interface {
	// RecognizeImage extracts text from a photo or scan.
	RecognizeImage(ctx context.Context, r io.Reader) (string, error)

	// RecognizePDF extracts text from a PDF document, pages concatenated
	// in reading order.
	RecognizePDF(ctx context.Context, r io.Reader) (string, error)
}

// languageHints bias Vision's text detection toward the languages
// receipts actually arrive in.
var languageHints = []string{"pt", "en"}
