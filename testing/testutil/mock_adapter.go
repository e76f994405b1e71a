// Package testutil provides test doubles for the event store and its collaborators.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/havenhq/chronicle/adapters"
)

// Ensure MockAdapter implements adapters.EventStoreAdapter.
var _ adapters.EventStoreAdapter = (*MockAdapter)(nil)

// MockAdapter is a mock implementation of adapters.EventStoreAdapter.
// Records are returned by Load as-is, which lets tests plant payloads that
// a real adapter would never produce. Set the *Err fields to inject failures.
type MockAdapter struct {
	mu sync.Mutex

	AppendErr         error
	LoadErr           error
	CurrentVersionErr error
	InitializeErr     error

	Records map[uuid.UUID][]adapters.EventRecord

	AppendCalls int
	Appended    [][]adapters.EventData
	Closed      bool
}

// NewMockAdapter creates an empty MockAdapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{Records: make(map[uuid.UUID][]adapters.EventRecord)}
}

// Plant stores records for aggregateID without any validation.
func (m *MockAdapter) Plant(aggregateID uuid.UUID, records ...adapters.EventRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Records == nil {
		m.Records = make(map[uuid.UUID][]adapters.EventRecord)
	}
	m.Records[aggregateID] = append(m.Records[aggregateID], records...)
}

// Append implements adapters.EventStoreAdapter.
func (m *MockAdapter) Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []adapters.EventData) ([]adapters.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppendCalls++
	m.Appended = append(m.Appended, events)

	if m.AppendErr != nil {
		return nil, m.AppendErr
	}
	if len(events) == 0 {
		return nil, nil
	}

	current := uint64(len(m.Records[aggregateID]))
	if err := adapters.CheckVersion(aggregateID, expectedVersion, current); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]adapters.EventRecord, len(events))
	for i, e := range events {
		records[i] = adapters.EventRecord{
			AggregateID: aggregateID,
			Sequence:    current + uint64(i) + 1,
			EventType:   e.Type,
			Payload:     e.Payload,
			RecordedAt:  now,
		}
	}

	if m.Records == nil {
		m.Records = make(map[uuid.UUID][]adapters.EventRecord)
	}
	m.Records[aggregateID] = append(m.Records[aggregateID], records...)
	return records, nil
}

// Load implements adapters.EventStoreAdapter.
func (m *MockAdapter) Load(ctx context.Context, aggregateID uuid.UUID) ([]adapters.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return append([]adapters.EventRecord{}, m.Records[aggregateID]...), nil
}

// CurrentVersion implements adapters.EventStoreAdapter.
func (m *MockAdapter) CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CurrentVersionErr != nil {
		return 0, m.CurrentVersionErr
	}
	return uint64(len(m.Records[aggregateID])), nil
}

// Initialize implements adapters.EventStoreAdapter.
func (m *MockAdapter) Initialize(ctx context.Context) error {
	return m.InitializeErr
}

// Close implements adapters.EventStoreAdapter.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
