// Package contextprovider defines the code-context retrieval port.
package contextprovider

import (
	"context"

	"github.com/arenaforge/arenaforge/internal/domain/task"
)

// Chunk is one ranked snippet returned by the retrieval backend.
type Chunk struct {
	FilePath string  `json:"file_path"`
	Kind     string  `json:"kind"`
	Name     string  `json:"name"`
	Code     string  `json:"code"`
	Score    float64 `json:"score,omitempty"`
}

// IndexResult describes a completed indexing pass.
type IndexResult struct {
	VersionID    string `json:"version_id"`
	ItemsIndexed int    `json:"items_indexed"`
}

// ProgressFunc reports incremental indexing or query progress.
type ProgressFunc func(stage string, done, total int)

// Provider turns a task description into ranked code snippets. Retrieval is
// an enhancement: every method may fail without affecting a competition.
type Provider interface {
	// IndexContext indexes a working copy. Re-indexing an already-indexed
	// version must be a cheap no-op. onProgress may be nil.
	IndexContext(ctx context.Context, localPath, sourceURL string, onProgress ProgressFunc) (*IndexResult, error)

	// QueryContext returns up to limit ranked snippets for the task.
	QueryContext(ctx context.Context, t task.Task, limit int, onProgress ProgressFunc) ([]Chunk, error)

	// IsIndexed reports whether the given source version is already indexed.
	IsIndexed(ctx context.Context, sourceURL, versionID string) (bool, error)
}
