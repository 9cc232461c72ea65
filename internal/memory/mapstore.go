package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MapStore is a process-local HistoryStore. Values are stored serialized so
// callers never share slices with the store.
type MapStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMapStore() *MapStore {
	return &MapStore{data: make(map[string][]byte)}
}

func (m *MapStore) Load(_ context.Context, threadID string) (*ThreadHistory, error) {
	m.mu.RLock()
	b, ok := m.data[threadID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var h ThreadHistory
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (m *MapStore) Save(_ context.Context, threadID string, h ThreadHistory) error {
	b, err := json.Marshal(h)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[threadID] = b
	m.mu.Unlock()
	return nil
}

func (m *MapStore) ListThreads(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
