package pipeline_test

import (
	"context"
	"sync"

	bq "github.com/dvloznov/fraud-features/internal/bigquery"
	"github.com/dvloznov/fraud-features/internal/domain"
)

// MockRawLoader is a mock implementation of RawLoader for testing.
type MockRawLoader struct {
	LoadRawFromGCSFunc func(ctx context.Context, uris []string) (int64, error)
}

func (m *MockRawLoader) LoadRawFromGCS(ctx context.Context, uris []string) (int64, error) {
	if m.LoadRawFromGCSFunc != nil {
		return m.LoadRawFromGCSFunc(ctx, uris)
	}
	return 0, nil
}

// MockRawSource is a mock implementation of RawTransactionSource for testing.
type MockRawSource struct {
	ReadRawTransactionsFunc func(ctx context.Context) ([]domain.RawTransaction, error)
}

func (m *MockRawSource) ReadRawTransactions(ctx context.Context) ([]domain.RawTransaction, error) {
	if m.ReadRawTransactionsFunc != nil {
		return m.ReadRawTransactionsFunc(ctx)
	}
	return nil, nil
}

// MockEnrichedSink is a mock implementation of EnrichedTransactionSink for testing.
type MockEnrichedSink struct {
	ReplaceEnrichedTransactionsFunc func(ctx context.Context, rows []domain.EnrichedTransaction) error

	calls int
	rows  []domain.EnrichedTransaction
}

func (m *MockEnrichedSink) ReplaceEnrichedTransactions(ctx context.Context, rows []domain.EnrichedTransaction) error {
	m.calls++
	m.rows = rows
	if m.ReplaceEnrichedTransactionsFunc != nil {
		return m.ReplaceEnrichedTransactionsFunc(ctx, rows)
	}
	return nil
}

// MockRunRepository is a mock implementation of RunRepository that records calls.
type MockRunRepository struct {
	StartRunFunc         func(ctx context.Context) (string, error)
	MarkRunSucceededFunc func(ctx context.Context, runID string, counts bq.RunCounts) error

	mu        sync.Mutex
	succeeded []bq.RunCounts
	failed    []error
}

func (m *MockRunRepository) StartRun(ctx context.Context) (string, error) {
	if m.StartRunFunc != nil {
		return m.StartRunFunc(ctx)
	}
	return "run-1", nil
}

func (m *MockRunRepository) MarkRunSucceeded(ctx context.Context, runID string, counts bq.RunCounts) error {
	m.mu.Lock()
	m.succeeded = append(m.succeeded, counts)
	m.mu.Unlock()
	if m.MarkRunSucceededFunc != nil {
		return m.MarkRunSucceededFunc(ctx, runID, counts)
	}
	return nil
}

func (m *MockRunRepository) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, runErr)
}

// MockStorageService is a mock implementation of StorageService for testing.
type MockStorageService struct {
	ListCSVObjectsFunc func(ctx context.Context, bucketName, prefix string) ([]string, error)
}

func (m *MockStorageService) UploadFile(ctx context.Context, bucketName, objectName, filePath string) error {
	return nil
}

func (m *MockStorageService) WriteObject(ctx context.Context, bucketName, objectName, contentType string, data []byte) error {
	return nil
}

func (m *MockStorageService) DeleteObject(ctx context.Context, bucketName, objectName string) error {
	return nil
}

func (m *MockStorageService) ListCSVObjects(ctx context.Context, bucketName, prefix string) ([]string, error) {
	if m.ListCSVObjectsFunc != nil {
		return m.ListCSVObjectsFunc(ctx, bucketName, prefix)
	}
	return []string{prefix + "transactions.csv"}, nil
}
