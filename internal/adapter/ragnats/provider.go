// Package ragnats implements the context retrieval port by bridging to an
// external retrieval worker over the message queue. Requests and results are
// correlated by request id; progress messages are relayed while a request is
// in flight.
package ragnats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arenaforge/arenaforge/internal/config"
	"github.com/arenaforge/arenaforge/internal/domain/task"
	"github.com/arenaforge/arenaforge/internal/port/cache"
	"github.com/arenaforge/arenaforge/internal/port/contextprovider"
	"github.com/arenaforge/arenaforge/internal/port/messagequeue"
)

// Provider bridges retrieval requests to the worker behind the queue.
type Provider struct {
	queue     messagequeue.Queue
	cache     cache.Cache
	localPath string
	indexTTL  time.Duration
	reqTO     time.Duration
	indexTO   time.Duration

	mu       sync.Mutex
	indexW   map[string]chan messagequeue.RAGIndexResult
	queryW   map[string]chan messagequeue.RAGQueryResult
	progress map[string]contextprovider.ProgressFunc

	stops []func()
}

// New creates the bridge and subscribes to the worker's result and progress
// subjects. Call Close to release the subscriptions.
func New(ctx context.Context, queue messagequeue.Queue, c cache.Cache, cfg config.Retrieval) (*Provider, error) {
	p := &Provider{
		queue:     queue,
		cache:     c,
		localPath: cfg.LocalPath,
		indexTTL:  24 * time.Hour,
		reqTO:     cfg.RequestTimeout,
		indexTO:   cfg.IndexTimeout,
		indexW:    make(map[string]chan messagequeue.RAGIndexResult),
		queryW:    make(map[string]chan messagequeue.RAGQueryResult),
		progress:  make(map[string]contextprovider.ProgressFunc),
	}

	subs := []struct {
		subject string
		handler messagequeue.Handler
	}{
		{messagequeue.SubjectRAGIndexResult, p.onIndexResult},
		{messagequeue.SubjectRAGQueryResult, p.onQueryResult},
		{messagequeue.SubjectRAGProgress, p.onProgress},
	}
	for _, s := range subs {
		stop, err := queue.Subscribe(ctx, s.subject, s.handler)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("subscribe %s: %w", s.subject, err)
		}
		p.stops = append(p.stops, stop)
	}
	return p, nil
}

// Close stops the queue subscriptions.
func (p *Provider) Close() {
	for _, stop := range p.stops {
		stop()
	}
	p.stops = nil
}

func (p *Provider) IndexContext(ctx context.Context, localPath, sourceURL string, onProgress contextprovider.ProgressFunc) (*contextprovider.IndexResult, error) {
	if localPath == "" {
		localPath = p.localPath
	}

	reqID := uuid.NewString()
	ch := make(chan messagequeue.RAGIndexResult, 1)

	p.mu.Lock()
	p.indexW[reqID] = ch
	if onProgress != nil {
		p.progress[reqID] = onProgress
	}
	p.mu.Unlock()
	defer p.forget(reqID)

	data, err := json.Marshal(messagequeue.RAGIndexRequest{
		RequestID: reqID,
		LocalPath: localPath,
		SourceURL: sourceURL,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal index request: %w", err)
	}
	if err := p.queue.Publish(ctx, messagequeue.SubjectRAGIndexRequest, data); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.indexTO)
	defer cancel()

	select {
	case res := <-ch:
		if res.Error != "" {
			return nil, fmt.Errorf("index worker: %s", res.Error)
		}
		p.markIndexed(ctx, sourceURL, res.VersionID)
		return &contextprovider.IndexResult{
			VersionID:    res.VersionID,
			ItemsIndexed: res.ItemsIndexed,
		}, nil
	case <-waitCtx.Done():
		return nil, fmt.Errorf("index request %s: %w", reqID, waitCtx.Err())
	}
}

func (p *Provider) QueryContext(ctx context.Context, t task.Task, limit int, onProgress contextprovider.ProgressFunc) ([]contextprovider.Chunk, error) {
	reqID := uuid.NewString()
	ch := make(chan messagequeue.RAGQueryResult, 1)

	p.mu.Lock()
	p.queryW[reqID] = ch
	if onProgress != nil {
		p.progress[reqID] = onProgress
	}
	p.mu.Unlock()
	defer p.forget(reqID)

	data, err := json.Marshal(messagequeue.RAGQueryRequest{
		RequestID: reqID,
		Query:     queryText(t),
		SourceURL: t.SourceURL,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}
	if err := p.queue.Publish(ctx, messagequeue.SubjectRAGQueryRequest, data); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.reqTO)
	defer cancel()

	select {
	case res := <-ch:
		if res.Error != "" {
			return nil, fmt.Errorf("query worker: %s", res.Error)
		}
		chunks := make([]contextprovider.Chunk, len(res.Chunks))
		for i, c := range res.Chunks {
			chunks[i] = contextprovider.Chunk{
				FilePath: c.FilePath,
				Kind:     c.Kind,
				Name:     c.Name,
				Code:     c.Code,
				Score:    c.Score,
			}
		}
		return chunks, nil
	case <-waitCtx.Done():
		return nil, fmt.Errorf("query request %s: %w", reqID, waitCtx.Err())
	}
}

// IsIndexed answers from the local marker cache. An empty versionID matches
// any recently indexed version of the source.
func (p *Provider) IsIndexed(ctx context.Context, sourceURL, versionID string) (bool, error) {
	if p.cache == nil {
		return false, nil
	}
	_, ok, err := p.cache.Get(ctx, indexKey(sourceURL, versionID))
	return ok, err
}

// markIndexed records both the exact version marker and the bare-source
// marker so callers that do not track versions still get the no-op path.
func (p *Provider) markIndexed(ctx context.Context, sourceURL, versionID string) {
	if p.cache == nil || versionID == "" {
		return
	}
	for _, key := range []string{indexKey(sourceURL, versionID), indexKey(sourceURL, "")} {
		if err := p.cache.Set(ctx, key, []byte("1"), p.indexTTL); err != nil {
			slog.Warn("cache index marker", "key", key, "error", err)
		}
	}
}

func (p *Provider) onIndexResult(_ string, data []byte) error {
	var res messagequeue.RAGIndexResult
	if err := json.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("unmarshal index result: %w", err)
	}

	p.mu.Lock()
	ch, ok := p.indexW[res.RequestID]
	p.mu.Unlock()
	if !ok {
		// Late result after the waiter timed out; drop it.
		return nil
	}
	ch <- res
	return nil
}

func (p *Provider) onQueryResult(_ string, data []byte) error {
	var res messagequeue.RAGQueryResult
	if err := json.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("unmarshal query result: %w", err)
	}

	p.mu.Lock()
	ch, ok := p.queryW[res.RequestID]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	ch <- res
	return nil
}

func (p *Provider) onProgress(_ string, data []byte) error {
	var prog messagequeue.RAGProgress
	if err := json.Unmarshal(data, &prog); err != nil {
		return fmt.Errorf("unmarshal progress: %w", err)
	}

	p.mu.Lock()
	fn, ok := p.progress[prog.RequestID]
	p.mu.Unlock()
	if ok {
		fn(prog.Stage, prog.Done, prog.Total)
	}
	return nil
}

func (p *Provider) forget(reqID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.indexW, reqID)
	delete(p.queryW, reqID)
	delete(p.progress, reqID)
}

func indexKey(sourceURL, versionID string) string {
	return "rag:indexed:" + sourceURL + "@" + versionID
}

// queryText condenses a task into retrieval query text. Bodies are capped;
// embedding models truncate long inputs anyway.
func queryText(t task.Task) string {
	body := t.Body
	if len(body) > 2000 {
		body = body[:2000]
	}
	return strings.TrimSpace(t.Title + "\n" + body)
}
