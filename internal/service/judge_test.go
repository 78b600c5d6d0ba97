package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/arenaforge/arenaforge/internal/domain/solution"
)

// mockCompleter returns a canned judge reply.
type mockCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (c *mockCompleter) Complete(_ context.Context, _ string, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.reply, c.err
}

func successfulOutcome(agentID string, elapsed int64) solution.Outcome {
	return solution.Outcome{
		AgentID:   agentID,
		Success:   true,
		ElapsedMS: elapsed,
		Solution: &solution.Solution{
			AgentID:     agentID,
			Explanation: "fixed it",
			Changes:     []solution.FileChange{{Path: "a.go", Action: solution.ActionModify, Content: "x"}},
		},
	}
}

func newTestJudge(c Completer) *JudgeAdapter {
	j := NewJudgeAdapter(c, "judge/model", time.Second, 1000)
	j.shuffle = func(int, func(i, j int)) {} // deterministic
	return j
}

func TestJudgeRankParsesVerdict(t *testing.T) {
	c := &mockCompleter{reply: `The strongest entry was beta.
{"winner_id": "beta", "summary": "beta handled the edge case",
 "scores": [
   {"agent_id": "alpha", "correctness": 60, "code_quality": 70, "completeness": 80},
   {"agent_id": "beta", "correctness": 90, "code_quality": 80, "completeness": 90}]}`}
	j := newTestJudge(c)

	v, err := j.Rank(context.Background(), testTask(), []solution.Outcome{
		successfulOutcome("alpha", 100),
		successfulOutcome("beta", 200),
	})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}

	if v.WinnerID != "beta" {
		t.Errorf("winner = %q, want beta", v.WinnerID)
	}
	if v.Fallback {
		t.Error("parsed verdict marked fallback")
	}
	// Weighted overall: 0.5*90 + 0.3*80 + 0.2*90 = 87.
	if got := v.Scores[1].Overall; got != 87 {
		t.Errorf("beta overall = %v, want 87", got)
	}
	if got := v.Scores[0].Overall; got != 67 {
		t.Errorf("alpha overall = %v, want 67", got)
	}
}

func TestJudgeRankClampsScores(t *testing.T) {
	c := &mockCompleter{reply: `{"winner_id": "a", "summary": "s",
 "scores": [{"agent_id": "a", "correctness": 150, "code_quality": -20, "completeness": 50}]}`}
	j := newTestJudge(c)

	v, _ := j.Rank(context.Background(), testTask(), []solution.Outcome{successfulOutcome("a", 10)})

	s := v.Scores[0]
	if s.Correctness != 100 || s.CodeQuality != 0 || s.Completeness != 50 {
		t.Errorf("clamped scores = %+v", s)
	}
	if s.Overall != 0.5*100+0.2*50 {
		t.Errorf("overall = %v", s.Overall)
	}
}

func TestJudgeRankBackfillsSkippedAgents(t *testing.T) {
	c := &mockCompleter{reply: `{"winner_id": "a", "summary": "s",
 "scores": [{"agent_id": "a", "correctness": 80, "code_quality": 80, "completeness": 80}]}`}
	j := newTestJudge(c)

	v, _ := j.Rank(context.Background(), testTask(), []solution.Outcome{
		successfulOutcome("a", 10),
		successfulOutcome("b", 20),
	})

	if len(v.Scores) != 2 {
		t.Fatalf("scores = %d, want 2", len(v.Scores))
	}
	if v.Scores[1].AgentID != "b" || v.Scores[1].Note != "not evaluated by judge" {
		t.Errorf("backfilled score = %+v", v.Scores[1])
	}
	if v.Scores[1].Overall != 0 {
		t.Errorf("backfilled overall = %v, want 0", v.Scores[1].Overall)
	}
}

func TestJudgeRankInvalidWinnerFallsBackToTopScore(t *testing.T) {
	c := &mockCompleter{reply: `{"winner_id": "nobody", "summary": "s",
 "scores": [
   {"agent_id": "a", "correctness": 50, "code_quality": 50, "completeness": 50},
   {"agent_id": "b", "correctness": 90, "code_quality": 90, "completeness": 90}]}`}
	j := newTestJudge(c)

	v, _ := j.Rank(context.Background(), testTask(), []solution.Outcome{
		successfulOutcome("a", 10),
		successfulOutcome("b", 20),
	})

	if v.WinnerID != "b" {
		t.Errorf("winner = %q, want b (highest overall)", v.WinnerID)
	}
}

func TestJudgeRankFallsBackOnGarbage(t *testing.T) {
	for _, reply := range []string{
		"I refuse to answer.",
		`{"winner_id": "a"`,
		`{"summary": "no scores key"}`,
	} {
		j := newTestJudge(&mockCompleter{reply: reply})
		v, err := j.Rank(context.Background(), testTask(), []solution.Outcome{
			successfulOutcome("slowest", 500),
			successfulOutcome("fastest", 100),
		})
		if err != nil {
			t.Fatalf("reply %q: Rank returned error %v", reply, err)
		}
		if !v.Fallback {
			t.Errorf("reply %q: verdict not marked fallback", reply)
		}
		if v.WinnerID != "fastest" {
			t.Errorf("reply %q: winner = %q, want fastest", reply, v.WinnerID)
		}
	}
}

func TestJudgeRankFallsBackOnCallError(t *testing.T) {
	j := newTestJudge(&mockCompleter{err: errBoom})

	v, err := j.Rank(context.Background(), testTask(), []solution.Outcome{
		successfulOutcome("a", 100),
	})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if !v.Fallback || v.WinnerID != "a" {
		t.Errorf("verdict = %+v, want fallback with winner a", v)
	}
}

func TestJudgeRankNoSubmissions(t *testing.T) {
	c := &mockCompleter{}
	j := newTestJudge(c)

	v, err := j.Rank(context.Background(), testTask(), []solution.Outcome{
		{AgentID: "a", Error: "timeout"},
		{AgentID: "b", Error: "parse"},
	})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if v.WinnerID != "" {
		t.Errorf("winner = %q, want none", v.WinnerID)
	}
	if len(v.Scores) != 2 || v.Scores[0].Overall != 0 {
		t.Errorf("scores = %+v, want zeroed", v.Scores)
	}
	if len(c.prompts) != 0 {
		t.Error("judge model called with no submissions")
	}
}

func TestJudgeRankShuffleDoesNotAffectVerdict(t *testing.T) {
	reply := `{"winner_id": "b", "summary": "s",
 "scores": [
   {"agent_id": "a", "correctness": 70, "code_quality": 70, "completeness": 70},
   {"agent_id": "b", "correctness": 80, "code_quality": 80, "completeness": 80}]}`

	outcomes := []solution.Outcome{
		successfulOutcome("a", 10),
		successfulOutcome("b", 20),
	}

	// Identity permutation and full reversal must agree: scores stay keyed
	// by agent id, emitted in input order.
	var verdicts []string
	for _, shuffle := range []func(int, func(i, j int)){
		func(int, func(i, j int)) {},
		func(n int, swap func(i, j int)) {
			for i := 0; i < n/2; i++ {
				swap(i, n-1-i)
			}
		},
	} {
		j := NewJudgeAdapter(&mockCompleter{reply: reply}, "m", time.Second, 1000)
		j.shuffle = shuffle
		v, _ := j.Rank(context.Background(), testTask(), outcomes)
		verdicts = append(verdicts, fmt.Sprintf("%s|%s|%s", v.WinnerID, v.Scores[0].AgentID, v.Scores[1].AgentID))
	}
	if verdicts[0] != verdicts[1] {
		t.Errorf("verdict depends on shuffle order: %v", verdicts)
	}
}

func TestFallbackVerdictScores(t *testing.T) {
	v := FallbackVerdict([]solution.Outcome{
		successfulOutcome("c", 300),
		successfulOutcome("a", 100),
		successfulOutcome("b", 200),
	})

	if v.WinnerID != "a" {
		t.Errorf("winner = %q, want fastest", v.WinnerID)
	}
	want := []struct {
		id    string
		score float64
	}{{"a", 90}, {"b", 80}, {"c", 70}}
	for i, w := range want {
		if v.Scores[i].AgentID != w.id || v.Scores[i].Overall != w.score {
			t.Errorf("score[%d] = %+v, want %s/%v", i, v.Scores[i], w.id, w.score)
		}
	}
}

func TestFallbackVerdictSyntheticFloor(t *testing.T) {
	var outcomes []solution.Outcome
	for i := 0; i < 12; i++ {
		outcomes = append(outcomes, successfulOutcome(fmt.Sprintf("s%02d", i), int64(i)))
	}
	v := FallbackVerdict(outcomes)
	for _, s := range v.Scores {
		if s.Overall < 10 {
			t.Errorf("score for %s = %v, below floor", s.AgentID, s.Overall)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`prefix {"a": 1} suffix`, `{"a": 1}`},
		{`{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{`{"s": "brace } in string"}`, `{"s": "brace } in string"}`},
		{`no json here`, ""},
		{`{"unterminated": 1`, ""},
	}
	for _, c := range cases {
		if got := extractJSON(c.in); got != c.want {
			t.Errorf("extractJSON(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
