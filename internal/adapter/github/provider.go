// Package github implements the source-control port against the GitHub REST
// API: tasks come from issues, winning solutions go back as issue comments.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arenaforge/arenaforge/internal/domain/solution"
	"github.com/arenaforge/arenaforge/internal/domain/task"
)

const providerName = "github"

// Provider implements the source-control port via the GitHub REST API.
type Provider struct {
	apiURL     string
	token      string
	httpClient *http.Client
}

// NewProvider creates a GitHub provider. apiURL defaults to the public API
// when empty; set it for GitHub Enterprise.
func NewProvider(apiURL, token string) *Provider {
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}
	return &Provider{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		token:  token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *Provider) Name() string { return providerName }

// ghIssue mirrors the JSON response from the GitHub issues API.
type ghIssue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	HTMLURL   string    `json:"html_url"`
	Labels    []ghLabel `json:"labels"`
	CreatedAt time.Time `json:"created_at"`
}

type ghLabel struct {
	Name string `json:"name"`
}

func (p *Provider) GetTask(ctx context.Context, sourceURL string, number int) (*task.Task, error) {
	owner, repo, err := parseRepoURL(sourceURL)
	if err != nil {
		return nil, err
	}

	body, err := p.doRequest(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s/issues/%d", p.apiURL, owner, repo, number), nil)
	if err != nil {
		return nil, fmt.Errorf("github get issue: %w", err)
	}

	var issue ghIssue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("github parse issue: %w", err)
	}

	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.Name)
	}

	return &task.Task{
		ID:        fmt.Sprintf("%s/%s#%d", owner, repo, issue.Number),
		Number:    issue.Number,
		Title:     issue.Title,
		Body:      issue.Body,
		SourceURL: sourceURL,
		Labels:    labels,
		CreatedAt: issue.CreatedAt,
	}, nil
}

func (p *Provider) PublishResult(ctx context.Context, t task.Task, sol *solution.Solution, authorLabel string) (string, error) {
	if sol == nil || len(sol.Changes) == 0 {
		return "", fmt.Errorf("github publish: solution holds no change-set")
	}
	owner, repo, err := parseRepoURL(t.SourceURL)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]string{
		"body": renderComment(sol, authorLabel),
	})
	if err != nil {
		return "", fmt.Errorf("github marshal comment: %w", err)
	}

	body, err := p.doRequest(ctx, http.MethodPost,
		fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", p.apiURL, owner, repo, t.Number), payload)
	if err != nil {
		return "", fmt.Errorf("github create comment: %w", err)
	}

	var created struct {
		HTMLURL string `json:"html_url"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("github parse comment response: %w", err)
	}
	return created.HTMLURL, nil
}

func (p *Provider) doRequest(ctx context.Context, method, reqURL string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("github API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}

// parseRepoURL extracts owner and repo from a repository URL such as
// https://github.com/owner/repo or a bare owner/repo reference.
func parseRepoURL(sourceURL string) (owner, repo string, err error) {
	ref := sourceURL
	if strings.Contains(sourceURL, "://") {
		u, err := url.Parse(sourceURL)
		if err != nil {
			return "", "", fmt.Errorf("parse source url %q: %w", sourceURL, err)
		}
		ref = strings.Trim(u.Path, "/")
	}

	parts := strings.Split(ref, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("source url %q is not owner/repo", sourceURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// renderComment formats the winning change-set as a markdown comment.
func renderComment(sol *solution.Solution, authorLabel string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Winning solution by `%s`\n\n", sol.AgentID)
	if sol.Explanation != "" {
		sb.WriteString(sol.Explanation)
		sb.WriteString("\n\n")
	}

	for _, ch := range sol.Changes {
		fmt.Fprintf(&sb, "<details><summary><code>%s</code> (%s)</summary>\n\n", ch.Path, ch.Action)
		if ch.Action != solution.ActionDelete {
			fmt.Fprintf(&sb, "```\n%s\n```\n", ch.Content)
		}
		sb.WriteString("\n</details>\n\n")
	}

	if authorLabel != "" {
		fmt.Fprintf(&sb, "---\n_Posted by %s after a timed solver competition (%d ms)._\n", authorLabel, sol.ElapsedMS)
	}
	return sb.String()
}
