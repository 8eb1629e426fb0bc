package persistence

import (
	"context"
	"sync"
)

// Memory keeps documents in process memory.
type Memory struct {
	docs  map[string]Document
	mutex sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]Document)}
}

func (m *Memory) Load(ctx context.Context, key string) (*Document, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	doc, ok := m.docs[key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	doc.Data = append([]byte(nil), doc.Data...)
	return &doc, nil
}

func (m *Memory) Save(ctx context.Context, doc *Document) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	stored := *doc
	stored.Data = append([]byte(nil), doc.Data...)
	m.docs[doc.Key] = stored
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.docs, key)
	return nil
}

func (m *Memory) Close() error {
	return nil
}
