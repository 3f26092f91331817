package ledger

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sync"
)

// MemoryStore keeps records in a map. Scans walk keys in sorted order.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]map[string]any
	pageSize int
}

func NewMemoryStore(pageSize int) *MemoryStore {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &MemoryStore{docs: map[string]map[string]any{}, pageSize: pageSize}
}

func (m *MemoryStore) Get(_ context.Context, videoURL string) (*VideoRecord, error) {
	m.mu.RLock()
	doc, ok := m.docs[videoURL]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	r, err := m.decode(videoURL, doc)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *MemoryStore) Upsert(_ context.Context, videoURL string, fields Fields) error {
	if err := checkUpsert(videoURL, fields); err != nil {
		return err
	}
	plain, err := fields.normalize()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[videoURL]
	if !ok {
		doc = map[string]any{}
		m.docs[videoURL] = doc
	}
	maps.Copy(doc, plain)
	return nil
}

func (m *MemoryStore) Scan(_ context.Context, filter Filter, cursor string) (Page, error) {
	m.mu.RLock()
	keys := slices.Sorted(maps.Keys(m.docs))
	var page Page
	for _, k := range keys {
		if k <= cursor || !filter.Match(m.docs[k]) {
			continue
		}
		r, err := m.decode(k, m.docs[k])
		if err != nil {
			m.mu.RUnlock()
			return Page{}, err
		}
		page.Items = append(page.Items, r)
		if len(page.Items) == m.pageSize {
			page.Next = k
			break
		}
	}
	m.mu.RUnlock()
	return page, nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) decode(videoURL string, doc map[string]any) (VideoRecord, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return VideoRecord{}, err
	}
	return decodeRecord(videoURL, raw)
}
