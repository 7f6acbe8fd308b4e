package port

import "bookrag/internal/domain"

// DocRegistry remembers which book files are indexed and the chunk IDs each
// produced, so corpus population can be incremental.
type DocRegistry interface {
	PutDoc(doc domain.Document, chunkIDs []string) error
	ListDocs() ([]domain.Document, error)
	GetDocChunkIDs(docID string) ([]string, error)
	DeleteDoc(id string) error
}
