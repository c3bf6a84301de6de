package ocr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

const (
	// MaxFileSizeBytes is the maximum PDF size for synchronous processing (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// MaxPagesSync is the maximum number of pages for synchronous processing
	MaxPagesSync = 5
)

// VisionService implements Service using Google Cloud Vision API.
type VisionService struct {
	client *vision.ImageAnnotatorClient
}

// NewVisionService creates an OCR service with credentials from the
// environment. It expects CREDENTIALS_JSON inline JSON or a
// GOOGLE_APPLICATION_CREDENTIALS path, falling back to application
// default credentials.
func NewVisionService(ctx context.Context) (*VisionService, error) {
	const op = "NewVisionService"

	var client *vision.ImageAnnotatorClient
	var err error

	if credJSON := os.Getenv("CREDENTIALS_JSON"); credJSON != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with CREDENTIALS_JSON")
		}
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(credFile))
		if err != nil {
			return nil, WrapOCRError(op, err, "failed to create client with GOOGLE_APPLICATION_CREDENTIALS")
		}
	} else {
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, WrapOCRError(op, ErrMissingCredentials, "no credentials found in environment")
		}
	}

	return &VisionService{client: client}, nil
}

// NewVisionServiceWithClient creates an OCR service with an explicit client (for testing).
func NewVisionServiceWithClient(client *vision.ImageAnnotatorClient) *VisionService {
	return &VisionService{client: client}
}

// RecognizeImage extracts text from a photo or scan.
func (v *VisionService) RecognizeImage(ctx context.Context, r io.Reader) (string, error) {
	const op = "RecognizeImage"

	img, err := vision.NewImageFromReader(r)
	if err != nil {
		return "", WrapOCRError(op, err, "failed to read image data")
	}

	annotation, err := v.client.DetectDocumentText(ctx, img, &visionpb.ImageContext{
		LanguageHints: languageHints,
	})
	if err != nil {
		return "", WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}

	if annotation == nil || strings.TrimSpace(annotation.Text) == "" {
		return "", WrapOCRError(op, ErrEmptyDocument, "no text detected in image")
	}

	return annotation.Text, nil
}

// RecognizePDF extracts text from a PDF document.
func (v *VisionService) RecognizePDF(ctx context.Context, r io.Reader) (string, error) {
	const op = "RecognizePDF"

	pdfBytes, err := io.ReadAll(r)
	if err != nil {
		return "", WrapOCRError(op, err, "failed to read PDF data")
	}

	if len(pdfBytes) > MaxFileSizeBytes {
		return "", WrapOCRError(op, ErrPDFTooLarge, fmt.Sprintf("file size: %d bytes", len(pdfBytes)))
	}

	if len(pdfBytes) < 4 || string(pdfBytes[:4]) != "%PDF" {
		return "", WrapOCRError(op, ErrInvalidPDF, "missing PDF header")
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  pdfBytes,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{
					LanguageHints: languageHints,
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return "", WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}

	if len(resp.Responses) == 0 {
		return "", WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return "", WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
	}

	text, err := concatPages(fileResp)
	if err != nil {
		return "", WrapOCRError(op, err, "")
	}

	return text, nil
}

// concatPages joins the recognized text of every page in reading order.
func concatPages(fileResp *visionpb.AnnotateFileResponse) (string, error) {
	if len(fileResp.Responses) == 0 {
		return "", ErrEmptyDocument
	}

	if pageCount := len(fileResp.Responses); pageCount > MaxPagesSync {
		return "", WrapOCRError("concatPages", ErrTooManyPages, fmt.Sprintf("document has %d pages", pageCount))
	}

	var allText strings.Builder
	for pageIdx, page := range fileResp.Responses {
		if page.Error != nil {
			return "", fmt.Errorf("error processing page %d: %s", pageIdx+1, page.Error.Message)
		}
		if page.FullTextAnnotation == nil {
			continue
		}
		if allText.Len() > 0 {
			allText.WriteString("\n\n")
		}
		allText.WriteString(page.FullTextAnnotation.Text)
	}

	text := allText.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}

	return text, nil
}

// Close closes the underlying Vision client.
func (v *VisionService) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
