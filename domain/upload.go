package domain

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

/****************************
*        Upload errors      *
****************************/
var (
	ErrUploadFilesFailed = &DetailedError{
		IDField:         "UPLOAD_FILES_FAILED",
		StatusDescField: http.StatusText(http.StatusInternalServerError),
		ErrorField:      "Failed to upload files",
		StatusCodeField: http.StatusInternalServerError,
	}
	ErrUploadInvalidContentType = &DetailedError{
		IDField:         "UPLOAD_INVALID_CONTENT_TYPE",
		StatusDescField: http.StatusText(http.StatusBadRequest),
		ErrorField:      "Invalid content type for upload",
		StatusCodeField: http.StatusBadRequest,
	}
	ErrUploadFilesRequired = &DetailedError{
		IDField:         "UPLOAD_FILES_REQUIRED",
		StatusDescField: http.StatusText(http.StatusBadRequest),
		ErrorField:      "No files provided for upload",
		StatusCodeField: http.StatusBadRequest,
	}
)

// MaxProofSize bounds a single payment proof upload.
const MaxProofSize = 5 << 20

/***************************************
*       Upload entities and types      *
***************************************/

// ProofFile is a transfer receipt attached to a payment.
type ProofFile struct {
	Name    string `json:"name"`
	Mime    string `json:"mime"`
	Content []byte `json:"-"`
}

func (f *ProofFile) IsImage() bool {
	return strings.HasPrefix(f.Mime, "image/")
}

func (f *ProofFile) IsPDF() bool {
	return f.Mime == "application/pdf"
}

func (f *ProofFile) Validate() error {
	if f == nil || len(f.Content) == 0 {
		return ErrUploadFilesRequired
	}
	if !f.IsImage() && !f.IsPDF() {
		return ErrUploadInvalidContentType.WithReasonf("unsupported content type %q", f.Mime)
	}
	if len(f.Content) > MaxProofSize {
		return ErrValidation.WithReasonf("proof must not exceed %d bytes", MaxProofSize)
	}
	return nil
}

func NewProofFile(fileHeader *multipart.FileHeader) (*ProofFile, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, MaxProofSize+1))
	if err != nil {
		return nil, err
	}
	return &ProofFile{
		Name:    fileHeader.Filename,
		Mime:    fileHeader.Header.Get("Content-Type"),
		Content: content,
	}, nil
}
