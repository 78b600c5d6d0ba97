// Package solution defines structured solver output: file change-sets and
// the parser that extracts them from raw model responses.
package solution

// Action describes what a file change does to its target path.
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// FileChange is a single file-level edit with the full new content.
type FileChange struct {
	Path    string `json:"path"`
	Action  Action `json:"action"`
	Content string `json:"content"`
}

// Solution is the structured result of one solver's attempt.
type Solution struct {
	AgentID     string       `json:"agent_id"`
	RawText     string       `json:"raw_text"`
	Explanation string       `json:"explanation,omitempty"`
	Changes     []FileChange `json:"changes"`
	ElapsedMS   int64        `json:"elapsed_ms"`
}

// Outcome is the per-solver result slot produced by the pool runner.
// Slots are pre-allocated in roster order so consumers can locate a
// participant's result by id regardless of completion order.
type Outcome struct {
	AgentID   string    `json:"agent_id"`
	Success   bool      `json:"success"`
	Solution  *Solution `json:"solution,omitempty"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
}
