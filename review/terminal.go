package review

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"iflow_prompt_generator/generator"
)

// ErrInputClosed means the reviewer's input ended before a decision.
var ErrInputClosed = errors.New("reviewer input closed")

// TerminalReviewer shows the design on out and reads Y/E/N answers from in.
// Edit instructions may span several lines and end with an empty line.
type TerminalReviewer struct {
	reader *bufio.Reader
	out    io.Writer
	// Quiet drops the menu text, for piped input.
	Quiet bool
}

func NewTerminalReviewer(in io.Reader, out io.Writer) *TerminalReviewer {
	return &TerminalReviewer{reader: bufio.NewReader(in), out: out}
}

func (t *TerminalReviewer) Decide(ctx context.Context, current generator.DesignDocument) (Decision, error) {
	fmt.Fprintln(t.out, "\n========== IFLOW UNDERSTANDING ==========")
	fmt.Fprintln(t.out)
	fmt.Fprintln(t.out, current.String())
	fmt.Fprintln(t.out, "\n========================================")

	if !t.Quiet {
		fmt.Fprintln(t.out, "\nHuman-in-the-loop decision:")
		fmt.Fprintln(t.out, "[Y] Yes   → Approve and continue")
		fmt.Fprintln(t.out, "[E] Edit  → Provide edit instruction")
		fmt.Fprintln(t.out, "[N] No    → Abort")
	}
	fmt.Fprint(t.out, "\nEnter choice (Y/E/N): ")

	choice, err := t.readLine(ctx)
	if err != nil {
		return Decision{}, err
	}

	switch ParseChoice(choice) {
	case DecisionApprove:
		return Approve(), nil
	case DecisionReject:
		return Reject(), nil
	case DecisionEdit:
		instruction, err := t.readInstruction(ctx)
		if err != nil {
			return Decision{}, err
		}
		if instruction != "" {
			fmt.Fprintln(t.out, "\nApplying edit using LLM...")
		}
		return Edit(instruction), nil
	default:
		return Invalid(choice), nil
	}
}

func (t *TerminalReviewer) readInstruction(ctx context.Context) (string, error) {
	if !t.Quiet {
		fmt.Fprintln(t.out, "\nEnter edit instruction (single or multi-line).")
		fmt.Fprintln(t.out, "Example: 'Update the package name to mcptest'")
		fmt.Fprintln(t.out, "Press ENTER on an empty line to apply.")
		fmt.Fprintln(t.out)
	}

	var lines []string
	for {
		line, err := t.readLine(ctx)
		if errors.Is(err, ErrInputClosed) {
			break
		}
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// readLine returns one line without its terminator. A final line without a
// newline is still returned; ErrInputClosed follows on the next call.
func (t *TerminalReviewer) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := t.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			if line != "" {
				return strings.TrimRight(line, "\r\n"), nil
			}
			return "", ErrInputClosed
		}
		return "", fmt.Errorf("failed to read reviewer input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (t *TerminalReviewer) Notify(_ context.Context, n Notice) {
	switch n.Kind {
	case NoticeInvalidInput:
		fmt.Fprintln(t.out, "\nInvalid choice. Please enter Y, E, or N.")
	case NoticeEmptyInstruction:
		fmt.Fprintln(t.out, "No edit provided. Skipping.")
	case NoticeEditApplied:
		fmt.Fprintln(t.out, "Edit applied successfully.")
		if n.Check != nil {
			fmt.Fprintf(t.out, "Change: %s\n", n.Check)
		}
	case NoticeEditRejected:
		fmt.Fprintf(t.out, "Edit not applied, the previous design is kept: %v\n", n.Err)
	case NoticeEditFailed:
		fmt.Fprintf(t.out, "Edit failed: %v\n", n.Err)
	case NoticeApproved:
		fmt.Fprintln(t.out, "\nDesign approved.")
	case NoticeAborted:
		fmt.Fprintln(t.out, "\nAborted by user.")
	}
}
