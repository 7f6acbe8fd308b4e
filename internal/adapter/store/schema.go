package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"bookrag/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var keySchema = []byte("schema")

// SchemaInfo records how the stored vectors were produced.
type SchemaInfo struct {
	Version   int    `json:"version"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// GetSchemaInfo returns the stored schema info; a zero value means the
// index has never been written.
func (s *BoltStore) GetSchemaInfo() (SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchema)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &info)
	})
	return info, err
}

func (s *BoltStore) SetSchemaInfo(info SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySchema, data)
	})
}

// CheckEmbedding verifies that an index is being opened with the embedder it
// was built with. A dimension change is a fatal configuration error; a model
// change with equal dimension is also rejected since the vector spaces differ.
// An empty index adopts the given model and dimension.
func (s *BoltStore) CheckEmbedding(model string, dimension int) error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return fmt.Errorf("failed to read schema info: %w", err)
	}

	if info.Version == 0 {
		return s.SetSchemaInfo(SchemaInfo{
			Version:   CurrentSchemaVersion,
			Model:     model,
			Dimension: dimension,
		})
	}

	if info.Version > CurrentSchemaVersion {
		return fmt.Errorf("index created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
	}
	if info.Dimension != dimension {
		return domain.DimensionMismatch("open index", info.Dimension, dimension)
	}
	if info.Model != model {
		return fmt.Errorf("index built with embedding model %q, configured model is %q; re-index with --rebuild", info.Model, model)
	}
	return nil
}

// Clear removes all indexed documents and vectors, and forgets the schema
// so the next CheckEmbedding adopts the current embedder.
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketDocs, bucketDocChunks, bucketVectors, bucketMeta} {
			if tx.Bucket(name) == nil {
				continue
			}
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		for _, name := range [][]byte{bucketDocs, bucketDocChunks, bucketMeta, bucketVectors} {
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}
