package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/askllm/models"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu       sync.Mutex
	inserted []*models.AuditEntry
}

func (m *MockAuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := m.Called(ctx, entry)
	m.inserted = append(m.inserted, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) Recent(ctx context.Context, limit int) ([]*models.AuditEntry, error) {
	args := m.Called(ctx, limit)
	if entries := args.Get(0); entries != nil {
		return entries.([]*models.AuditEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) CountByAlias(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	if counts := args.Get(0); counts != nil {
		return counts.(map[string]int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAuditRepository) Inserted() []*models.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditEntry(nil), m.inserted...)
}

var _ Recorder = (*AuditService)(nil)
var _ Recorder = NoopRecorder{}

func TestAuditService_StartStop(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	assert.Error(t, service.Start(), "cannot start twice")

	require.NoError(t, service.Stop(time.Second))
	assert.False(t, service.GetStats().Started)
	assert.ErrorIs(t, service.Stop(time.Second), ErrNotStarted)
}

func TestAuditService_Record(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.AnythingOfType("*models.AuditEntry")).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 3})
	require.NoError(t, service.Start())

	for i := 0; i < 20; i++ {
		entry := models.NewAuditEntry(models.TransportHTTP, "gemini")
		require.NoError(t, service.Record(context.Background(), entry))
	}

	require.NoError(t, service.Close())
	assert.Len(t, mockRepo.Inserted(), 20)
	mockRepo.AssertNumberOfCalls(t, "Insert", 20)
}

func TestAuditService_RecordBeforeStart(t *testing.T) {
	service := NewAuditService(new(MockAuditRepository), zap.NewNop(), DefaultConfig())

	err := service.Record(context.Background(), models.NewAuditEntry(models.TransportCLI, "gpt"))
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestAuditService_RecordAfterStop(t *testing.T) {
	service := NewAuditService(new(MockAuditRepository), zap.NewNop(), DefaultConfig())
	require.NoError(t, service.Start())
	require.NoError(t, service.Close())

	err := service.Record(context.Background(), models.NewAuditEntry(models.TransportCLI, "gpt"))
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestAuditService_BufferFull(t *testing.T) {
	release := make(chan struct{})
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, service.Start())

	var full bool
	for i := 0; i < 10 && !full; i++ {
		err := service.Record(context.Background(), models.NewAuditEntry(models.TransportHTTP, "gemini"))
		full = errors.Is(err, ErrBufferFull)
	}
	assert.True(t, full, "a blocked worker with a one-slot buffer must eventually drop entries")

	close(release)
	require.NoError(t, service.Close())
}

func TestAuditService_InsertErrorIsLogged(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down"))

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 5, WorkerCount: 1})
	require.NoError(t, service.Start())
	require.NoError(t, service.Record(context.Background(), models.NewAuditEntry(models.TransportHTTP, "gemini")))
	require.NoError(t, service.Close())

	mockRepo.AssertNumberOfCalls(t, "Insert", 1)
}

func TestAuditService_Recent(t *testing.T) {
	want := []*models.AuditEntry{models.NewAuditEntry(models.TransportHTTP, "gemini")}
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Recent", mock.Anything, 5).Return(want, nil)

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())

	got, err := service.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, service.Enabled())
}

func TestAuditService_CountByAlias(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("CountByAlias", mock.Anything).Return(map[string]int{"gemini": 3}, nil)

	service := NewAuditService(mockRepo, zap.NewNop(), DefaultConfig())

	counts, err := service.CountByAlias(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, counts["gemini"])
	mockRepo.AssertExpectations(t)
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}

	assert.NoError(t, r.Record(context.Background(), models.NewAuditEntry(models.TransportHTTP, "x")))
	_, err := r.Recent(context.Background(), 10)
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = r.CountByAlias(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
	assert.False(t, r.Enabled())
	assert.NoError(t, r.Close())
}
