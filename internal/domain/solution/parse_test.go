package solution

import (
	"strings"
	"testing"
)

func TestParseTaggedBlock(t *testing.T) {
	raw := `I fixed the nil check.

<changes>
<file path="internal/server.go" action="modify">
package internal

func main() {}
</file>
<file path="docs/NOTES.md" action="create">
notes
</file>
</changes>

Done.`

	changes, expl := Parse(raw)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Path != "internal/server.go" || changes[0].Action != ActionModify {
		t.Fatalf("unexpected first change: %+v", changes[0])
	}
	if !strings.Contains(changes[0].Content, "func main() {}") {
		t.Fatalf("content not captured: %q", changes[0].Content)
	}
	if changes[1].Action != ActionCreate {
		t.Fatalf("expected create, got %s", changes[1].Action)
	}
	if !strings.Contains(expl, "nil check") || !strings.Contains(expl, "Done.") {
		t.Fatalf("explanation not captured: %q", expl)
	}
}

func TestParseTaggedBlockUnknownAction(t *testing.T) {
	raw := `<changes><file path="a.go" action="rewrite">x</file></changes>`
	changes, _ := Parse(raw)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Action != ActionModify {
		t.Fatalf("unknown action should default to modify, got %s", changes[0].Action)
	}
}

func TestParseFileHeaderFallback(t *testing.T) {
	raw := "Here is the fix.\n\nFile: pkg/util.go\n```go\npackage pkg\n\nvar X = 1\n```\n\nFile: `pkg/other.go`\n```go\nvar Y = 2\n```\n"

	changes, expl := Parse(raw)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Path != "pkg/util.go" {
		t.Fatalf("unexpected path: %q", changes[0].Path)
	}
	if changes[1].Path != "pkg/other.go" {
		t.Fatalf("backticked path not stripped: %q", changes[1].Path)
	}
	if !strings.Contains(changes[0].Content, "var X = 1") {
		t.Fatalf("content not captured: %q", changes[0].Content)
	}
	if !strings.Contains(expl, "Here is the fix.") {
		t.Fatalf("explanation not captured: %q", expl)
	}
}

func TestParseSingleBlockFallback(t *testing.T) {
	raw := "Apply this patch:\n```diff\n-old\n+new\n```"

	changes, expl := Parse(raw)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Path != DefaultPath || changes[0].Action != ActionCreate {
		t.Fatalf("unexpected change: %+v", changes[0])
	}
	if changes[0].Content != "-old\n+new" {
		t.Fatalf("unexpected content: %q", changes[0].Content)
	}
	if expl != "Apply this patch:" {
		t.Fatalf("unexpected explanation: %q", expl)
	}
}

func TestParseNoChanges(t *testing.T) {
	for _, raw := range []string{
		"",
		"I could not solve this task.",
		"```\n```", // empty fence
		"<changes></changes>",
	} {
		changes, _ := Parse(raw)
		if len(changes) != 0 {
			t.Fatalf("expected no changes for %q, got %d", raw, len(changes))
		}
	}
}
