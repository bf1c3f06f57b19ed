package generator

import (
	"context"
	"fmt"
	"strings"
)

// MockLLM answers deterministically without calling a model, for local runs
// and demos. Understanding echoes the document in the expected outline, edits
// append the instruction, and the final prompt names the first design line.
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	switch prompt.Stage {
	case StageUnderstanding:
		doc := after(prompt.User, "\nDocument:\n")
		var sb strings.Builder
		sb.WriteString("# iFlow understanding\n\n")
		for _, item := range understandingSections {
			sb.WriteString(fmt.Sprintf("- %s: (from document)\n", item))
		}
		sb.WriteString("\n## Source\n\n")
		sb.WriteString(strings.TrimSpace(doc))
		return sb.String(), nil
	case StageEdit:
		current := between(prompt.User, "Current design:\n", "\n\nEdit instruction:\n")
		instr := between(prompt.User, "\n\nEdit instruction:\n", "\n\nReturn the FULL updated design.")
		return current + "\n- Edit: " + instr, nil
	case StageFinalize:
		design := strings.TrimSpace(after(prompt.User, "Approved design:\n"))
		first, _, _ := strings.Cut(design, "\n")
		first = strings.TrimLeft(first, "# ")
		return fmt.Sprintf("Create the iFlow described as %q.", first), nil
	default:
		return "", fmt.Errorf("mock llm: unknown stage %q", prompt.Stage)
	}
}

func after(s, marker string) string {
	_, rest, _ := strings.Cut(s, marker)
	return rest
}

func between(s, start, end string) string {
	rest := after(s, start)
	out, _, _ := strings.Cut(rest, end)
	return out
}
