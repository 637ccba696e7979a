package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MaxFileSize is 10MB in bytes
	MaxFileSize = 10 * 1024 * 1024
)

var (
	// AllowedPhotoFormats are the extensions accepted for inspection photos
	AllowedPhotoFormats = []string{".png", ".jpg", ".jpeg"}

	// UploadDir is the directory where uploaded files are stored
	// Can be overridden for testing
	UploadDir = "./uploads"
)

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidatePhotoFile validates the uploaded file format and size
func ValidatePhotoFile(fileHeader *multipart.FileHeader) error {
	// Check file size
	if fileHeader.Size > MaxFileSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
		}
	}

	// Check file extension
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	for _, allowed := range AllowedPhotoFormats {
		if ext == allowed {
			return nil
		}
	}
	return &FileUploadError{
		Code:    "INVALID_FILE_FORMAT",
		Message: fmt.Sprintf("Only %s files are allowed", strings.Join(AllowedPhotoFormats, ", ")),
	}
}

// SaveUploadedFile saves the uploaded file to the local filesystem
// Returns the name of the saved file
func SaveUploadedFile(fileHeader *multipart.FileHeader, uploadDir string) (filename string, err error) {
	// Create uploads directory if it doesn't exist
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	filename = filepath.Base(fileHeader.Filename)
	dstPath := filepath.Join(uploadDir, filename)

	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to save file: %w", err)
	}

	return filename, nil
}
