package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/arenaforge/arenaforge/internal/domain/competition"
	"github.com/arenaforge/arenaforge/internal/domain/solution"
	"github.com/arenaforge/arenaforge/internal/domain/task"
)

// Score weights, applied to the 0-100 criterion scores.
const (
	weightCorrectness  = 0.5
	weightCodeQuality  = 0.3
	weightCompleteness = 0.2
)

// Completer is the raw text-in/text-out collaborator the judge runs on.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// JudgeAdapter ranks successful solutions with an LLM judge, defending
// against position bias (input shuffle) and malformed verdicts (fallback
// ranking). Rank always returns a well-formed verdict.
type JudgeAdapter struct {
	llm     Completer
	model   string
	timeout time.Duration
	codeCap int
	// shuffle is swappable for deterministic tests.
	shuffle func(n int, swap func(i, j int))
}

// NewJudgeAdapter creates a judge over the given completion backend.
func NewJudgeAdapter(llm Completer, model string, timeout time.Duration, codeCap int) *JudgeAdapter {
	return &JudgeAdapter{
		llm:     llm,
		model:   model,
		timeout: timeout,
		codeCap: codeCap,
		shuffle: rand.Shuffle,
	}
}

// Rank scores the successful outcomes and names a winner, or nobody when no
// outcome succeeded. The returned error is always nil; it exists to satisfy
// the judge port, whose other implementations may fail.
func (j *JudgeAdapter) Rank(ctx context.Context, t task.Task, outcomes []solution.Outcome) (*competition.Verdict, error) {
	successful := successfulOutcomes(outcomes)
	if len(successful) == 0 {
		return noSubmissionsVerdict(outcomes), nil
	}

	// Fair random permutation so prompt position carries no signal. Agent
	// ids travel with each entry, so the verdict can reference them
	// regardless of prompt order.
	shuffled := make([]solution.Outcome, len(successful))
	copy(shuffled, successful)
	j.shuffle(len(shuffled), func(a, b int) {
		shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
	})

	callCtx := ctx
	if j.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	reply, err := j.llm.Complete(callCtx, j.model, j.buildPrompt(t, shuffled))
	if err != nil {
		slog.Warn("judge call failed, using fallback ranking", "error", err)
		return FallbackVerdict(successful), nil
	}

	verdict, err := parseVerdict(reply, successful)
	if err != nil {
		slog.Warn("judge verdict unparseable, using fallback ranking", "error", err)
		return FallbackVerdict(successful), nil
	}
	return verdict, nil
}

func successfulOutcomes(outcomes []solution.Outcome) []solution.Outcome {
	var ok []solution.Outcome
	for _, o := range outcomes {
		if o.Success && o.Solution != nil {
			ok = append(ok, o)
		}
	}
	return ok
}

// noSubmissionsVerdict zero-scores every input with no winner.
func noSubmissionsVerdict(outcomes []solution.Outcome) *competition.Verdict {
	scores := make([]competition.Score, 0, len(outcomes))
	for _, o := range outcomes {
		scores = append(scores, competition.Score{
			AgentID: o.AgentID,
			Note:    "no successful submission",
		})
	}
	return &competition.Verdict{
		Scores:  scores,
		Summary: "No agent produced a successful submission; no winner.",
	}
}

// FallbackVerdict ranks successful outcomes by ascending elapsed time,
// fastest first, with descending synthetic scores. Ties keep first-seen
// order (the sort is stable).
func FallbackVerdict(successful []solution.Outcome) *competition.Verdict {
	ranked := make([]solution.Outcome, len(successful))
	copy(ranked, successful)
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].ElapsedMS < ranked[b].ElapsedMS
	})

	scores := make([]competition.Score, len(ranked))
	for i, o := range ranked {
		synthetic := 90.0 - float64(i)*10.0
		if synthetic < 10 {
			synthetic = 10
		}
		scores[i] = competition.Score{
			AgentID:      o.AgentID,
			Correctness:  synthetic,
			CodeQuality:  synthetic,
			Completeness: synthetic,
			Overall:      synthetic,
			Note:         "fallback: ranked by completion time",
		}
	}

	v := &competition.Verdict{
		Scores:   scores,
		Summary:  "Judge unavailable; fallback scoring by completion time was used.",
		Fallback: true,
	}
	if len(ranked) > 0 {
		v.WinnerID = ranked[0].AgentID
	}
	return v
}

// buildPrompt enumerates the shuffled solutions for the judge model.
func (j *JudgeAdapter) buildPrompt(t task.Task, shuffled []solution.Outcome) string {
	var sb strings.Builder

	sb.WriteString("You are judging a coding competition. Rank the submissions below.\n\n")
	fmt.Fprintf(&sb, "## Task: %s\n\n%s\n", t.Title, t.Body)

	for _, o := range shuffled {
		fmt.Fprintf(&sb, "\n## Submission %s (%d ms)\n\n", o.AgentID, o.ElapsedMS)
		if o.Solution.Explanation != "" {
			fmt.Fprintf(&sb, "%s\n\n", o.Solution.Explanation)
		}
		for _, ch := range o.Solution.Changes {
			fmt.Fprintf(&sb, "### %s (%s)\n```\n%s\n```\n", ch.Path, ch.Action, capString(ch.Content, j.codeCap))
		}
	}

	sb.WriteString(`
## Instructions

Score every submission on correctness (weight 0.5), code_quality (weight
0.3) and completeness (weight 0.2), each 0-100. Reply with JSON only:

{"winner_id": "<one of the submission ids verbatim>",
 "summary": "<one paragraph>",
 "scores": [{"agent_id": "...", "correctness": 0, "code_quality": 0, "completeness": 0}]}
`)
	return sb.String()
}

func capString(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max] + "\n[... truncated ...]"
	}
	return s
}

// judgeReply mirrors the JSON the judge model is instructed to produce.
type judgeReply struct {
	WinnerID string `json:"winner_id"`
	Summary  string `json:"summary"`
	Scores   []struct {
		AgentID      string  `json:"agent_id"`
		Correctness  float64 `json:"correctness"`
		CodeQuality  float64 `json:"code_quality"`
		Completeness float64 `json:"completeness"`
	} `json:"scores"`
}

// parseVerdict extracts and normalizes the judge's reply: criterion scores
// are clamped into [0,100], missing participants are back-filled with zero
// scores, and an absent winner defaults to the highest overall score with
// first-seen tie-break.
func parseVerdict(reply string, successful []solution.Outcome) (*competition.Verdict, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in judge reply")
	}

	var parsed judgeReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal judge reply: %w", err)
	}
	if len(parsed.Scores) == 0 {
		return nil, fmt.Errorf("judge reply has no scores")
	}

	byAgent := make(map[string]competition.Score, len(parsed.Scores))
	for _, s := range parsed.Scores {
		c := clamp(s.Correctness)
		q := clamp(s.CodeQuality)
		m := clamp(s.Completeness)
		byAgent[s.AgentID] = competition.Score{
			AgentID:      s.AgentID,
			Correctness:  c,
			CodeQuality:  q,
			Completeness: m,
			Overall:      weightCorrectness*c + weightCodeQuality*q + weightCompleteness*m,
		}
	}

	// Emit scores in input order; back-fill anyone the judge skipped.
	scores := make([]competition.Score, 0, len(successful))
	valid := make(map[string]bool, len(successful))
	for _, o := range successful {
		valid[o.AgentID] = true
		if s, ok := byAgent[o.AgentID]; ok {
			scores = append(scores, s)
			continue
		}
		scores = append(scores, competition.Score{
			AgentID: o.AgentID,
			Note:    "not evaluated by judge",
		})
	}

	winner := parsed.WinnerID
	if !valid[winner] {
		winner = ""
	}
	if winner == "" {
		best := -1.0
		for _, s := range scores {
			if s.Overall > best {
				best = s.Overall
				winner = s.AgentID
			}
		}
	}

	return &competition.Verdict{
		WinnerID: winner,
		Scores:   scores,
		Summary:  parsed.Summary,
	}, nil
}

// extractJSON returns the first balanced top-level JSON object in s; judge
// models often wrap their JSON in prose or code fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
