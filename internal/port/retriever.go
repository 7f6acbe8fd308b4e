package port

import (
	"context"

	"bookrag/internal/domain"
)

// RetrievalEngine answers a query for a session, from the corpus or from the
// session's ad hoc text.
type RetrievalEngine interface {
	Retrieve(ctx context.Context, sessionID string, q domain.Query, adHocText string) (domain.Retrieval, error)
}
