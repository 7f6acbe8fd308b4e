package memstore

import (
	"fmt"
	"sync"

	"bookrag/internal/domain"
)

// MemoryRegistry is the process-local counterpart of the bolt doc registry,
// paired with MemoryIndex.
type MemoryRegistry struct {
	mu        sync.RWMutex
	docs      map[string]domain.Document
	docChunks map[string][]string
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		docs:      make(map[string]domain.Document),
		docChunks: make(map[string][]string),
	}
}

func (s *MemoryRegistry) PutDoc(doc domain.Document, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	s.docChunks[doc.ID] = append([]string(nil), chunkIDs...)
	return nil
}

func (s *MemoryRegistry) GetDoc(id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document not found: %s", id)
	}
	return doc, nil
}

func (s *MemoryRegistry) ListDocs() ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *MemoryRegistry) GetDocChunkIDs(docID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docChunks[docID], nil
}

func (s *MemoryRegistry) DeleteDoc(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.docChunks, id)
	return nil
}
