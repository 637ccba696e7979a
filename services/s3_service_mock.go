package services

import (
	"fmt"
	"io"
	"mime/multipart"
	"sync"
)

// MockS3Service is a mock implementation of S3Service for testing
type MockS3Service struct {
	uploadedFiles map[string][]byte // map of S3 key to file content
	mu            sync.RWMutex
}

// NewMockS3Service creates a new mock S3 service
func NewMockS3Service() *MockS3Service {
	return &MockS3Service{
		uploadedFiles: make(map[string][]byte),
	}
}

// SetAsMockForTesting sets this mock as the global S3 service instance for testing
func (m *MockS3Service) SetAsMockForTesting() {
	SetS3Service(m)
}

// UploadFile simulates uploading a file to S3
func (m *MockS3Service) UploadFile(fileHeader *multipart.FileHeader) (string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	s3Key := fmt.Sprintf("inspections/mock_%s", fileHeader.Filename)

	m.mu.Lock()
	m.uploadedFiles[s3Key] = content
	m.mu.Unlock()

	return s3Key, nil
}

// GetPresignedURL simulates generating a presigned URL
func (m *MockS3Service) GetPresignedURL(s3Key string) (string, error) {
	if s3Key == "" {
		return "", nil
	}

	m.mu.RLock()
	_, exists := m.uploadedFiles[s3Key]
	m.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("file not found: %s", s3Key)
	}

	return fmt.Sprintf("https://mock-s3.example.com/%s?signature=mock", s3Key), nil
}

// DeleteFile simulates deleting a file from S3
func (m *MockS3Service) DeleteFile(s3Key string) error {
	if s3Key == "" {
		return nil
	}

	m.mu.Lock()
	delete(m.uploadedFiles, s3Key)
	m.mu.Unlock()

	return nil
}

// HasFile reports whether a key exists in the mock storage
func (m *MockS3Service) HasFile(s3Key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.uploadedFiles[s3Key]
	return exists
}
