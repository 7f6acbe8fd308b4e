package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"bookrag/internal/domain"
)

var (
	bucketDocs      = []byte("docs")
	bucketDocChunks = []byte("doc_chunks")
	bucketMeta      = []byte("meta")
)

// BoltStore is the on-disk registry of indexed book files. It remembers each
// file's modification time and the chunk IDs it produced so re-indexing can
// skip unchanged files and drop vectors of removed ones.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketDocs, bucketDocChunks, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

type docMeta struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	ModTime int64  `json:"mod_time"`
}

func (s *BoltStore) PutDoc(doc domain.Document, chunkIDs []string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(docMeta{
			Path:    doc.Path,
			Title:   doc.Title,
			ModTime: doc.ModTime.Unix(),
		})
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketDocs).Put([]byte(doc.ID), data); err != nil {
			return err
		}

		ids, err := json.Marshal(chunkIDs)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocChunks).Put([]byte(doc.ID), ids)
	})
}

func (s *BoltStore) GetDoc(id string) (domain.Document, error) {
	var doc domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document not found: %s", id)
		}
		var meta docMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		doc = toDocument(id, meta)
		return nil
	})
	return doc, err
}

func (s *BoltStore) ListDocs() ([]domain.Document, error) {
	var docs []domain.Document
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocs).ForEach(func(k, v []byte) error {
			var meta docMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			docs = append(docs, toDocument(string(k), meta))
			return nil
		})
	})
	return docs, err
}

func (s *BoltStore) GetDocChunkIDs(docID string) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocChunks).Get([]byte(docID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &ids)
	})
	return ids, err
}

func (s *BoltStore) DeleteDoc(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketDocs).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketDocChunks).Delete([]byte(id))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func toDocument(id string, meta docMeta) domain.Document {
	return domain.Document{
		ID:      id,
		Path:    meta.Path,
		Title:   meta.Title,
		ModTime: time.Unix(meta.ModTime, 0),
	}
}
