// Package messagequeue defines the message queue port and the wire subjects
// shared with the external retrieval worker.
package messagequeue

import "context"

// Subjects exchanged with the retrieval worker. Requests carry a request_id
// that the worker echoes back on its result and progress messages.
const (
	SubjectRAGIndexRequest = "rag.index.request"
	SubjectRAGIndexResult  = "rag.index.result"
	SubjectRAGQueryRequest = "rag.query.request"
	SubjectRAGQueryResult  = "rag.query.result"
	SubjectRAGProgress     = "rag.progress"
)

// Handler processes one received message.
type Handler func(subject string, data []byte) error

// Queue is the port interface for durable pub/sub messaging.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler Handler) (func(), error)
	Close() error
}

// RAGIndexRequest asks the worker to (re)index a working copy.
type RAGIndexRequest struct {
	RequestID string `json:"request_id"`
	LocalPath string `json:"local_path"`
	SourceURL string `json:"source_url"`
}

// RAGIndexResult reports a finished (or failed) indexing pass.
type RAGIndexResult struct {
	RequestID    string `json:"request_id"`
	VersionID    string `json:"version_id"`
	ItemsIndexed int    `json:"items_indexed"`
	Error        string `json:"error,omitempty"`
}

// RAGQueryRequest asks the worker for ranked snippets.
type RAGQueryRequest struct {
	RequestID string `json:"request_id"`
	Query     string `json:"query"`
	SourceURL string `json:"source_url"`
	Limit     int    `json:"limit"`
}

// RAGChunk mirrors the worker's snippet schema.
type RAGChunk struct {
	FilePath string  `json:"file_path"`
	Kind     string  `json:"type"`
	Name     string  `json:"name"`
	Code     string  `json:"code"`
	Score    float64 `json:"score,omitempty"`
}

// RAGQueryResult reports ranked snippets for one query.
type RAGQueryResult struct {
	RequestID string     `json:"request_id"`
	Chunks    []RAGChunk `json:"chunks"`
	Error     string     `json:"error,omitempty"`
}

// RAGProgress reports incremental worker progress for one request.
type RAGProgress struct {
	RequestID string `json:"request_id"`
	Stage     string `json:"stage"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
}
