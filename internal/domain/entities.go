package domain

import "time"

// Mode selects where a session's queries are answered from.
type Mode string

const (
	ModeCorpus Mode = "corpus"
	ModeAdHoc  Mode = "ad_hoc"
)

// Source records where a Passage came from.
type Source string

const (
	SourceCorpus Source = "corpus"
	SourceAdHoc  Source = "ad_hoc"
)

// Passage is a scored unit of retrieved text. Treat it as read-only once
// returned by a retriever.
type Passage struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Source   Source            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Query struct {
	Text string
	TopK int
}

// Session is the per-conversation retrieval state.
// Mode is ModeAdHoc exactly when AdHocText is non-empty.
type Session struct {
	ID         string    `json:"id"`
	Mode       Mode      `json:"mode"`
	AdHocText  string    `json:"ad_hoc_text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Expired reports whether the session has been idle for longer than timeout.
func (s Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActive) > timeout
}

// Retrieval is the result of a single engine call.
type Retrieval struct {
	SessionID string    `json:"session_id"`
	Mode      Mode      `json:"mode"`
	Passages  []Passage `json:"passages"`
}

// IndexEntry is one stored vector in the corpus index.
type IndexEntry struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type Payload struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IndexHit is a nearest-neighbour result returned by a VectorIndex.
type IndexHit struct {
	ID      string
	Score   float64
	Payload Payload
}

// Document is a book file fed to corpus population.
type Document struct {
	ID      string
	Path    string
	Title   string
	ModTime time.Time
}

// Chunk is a passage-sized slice of a Document.
type Chunk struct {
	ID        string
	DocID     string
	Ordinal   int
	StartLine int
	EndLine   int
	Text      string
}
