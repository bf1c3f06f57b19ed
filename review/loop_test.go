package review

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iflow_prompt_generator/generator"
)

// appendEditor appends each instruction on its own line.
type appendEditor struct {
	calls int
	fail  error
}

func (e *appendEditor) ApplyEdit(_ context.Context, current generator.DesignDocument, instruction string) (generator.DesignDocument, error) {
	e.calls++
	if e.fail != nil {
		return current, e.fail
	}
	return generator.DesignDocument(current.String() + "\n" + instruction), nil
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	calls := 0
	apply := func(_ context.Context, cur generator.DesignDocument, instr string) (generator.DesignDocument, error) {
		calls++
		return cur + generator.DesignDocument("+"+instr), nil
	}

	tests := []struct {
		name     string
		decision Decision
		phase    Phase
		current  generator.DesignDocument
		err      error
	}{
		{"approve", Approve(), Approved, "d", nil},
		{"reject", Reject(), Aborted, "d", nil},
		{"edit", Edit("x"), AwaitingDecision, "d+x", nil},
		{"edit trims instruction", Edit("  x \n"), AwaitingDecision, "d+x", nil},
		{"blank edit", Edit(" \t "), AwaitingDecision, "d", generator.ErrEmptyInstruction},
		{"invalid", Invalid("maybe"), AwaitingDecision, "d", ErrInvalidDecision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Transition(ctx, Awaiting("d"), tt.decision, apply)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.phase, next.Phase())
			assert.Equal(t, tt.current, next.Current())
		})
	}
	assert.Equal(t, 2, calls)
}

func TestTransitionApprovalIsFinal(t *testing.T) {
	ctx := context.Background()
	apply := func(context.Context, generator.DesignDocument, string) (generator.DesignDocument, error) {
		t.Fatal("apply must not run after approval")
		return "", nil
	}

	approved, err := Transition(ctx, Awaiting("final"), Approve(), apply)
	require.NoError(t, err)

	got, ok := approved.Approved()
	require.True(t, ok)
	assert.Equal(t, generator.DesignDocument("final"), got.Design())

	for _, d := range []Decision{Approve(), Reject(), Edit("x"), Invalid("?")} {
		next, err := Transition(ctx, approved, d, apply)
		assert.ErrorIs(t, err, ErrTerminal)
		assert.Equal(t, Approved, next.Phase())
	}
}

func TestTransitionEditFailureKeepsState(t *testing.T) {
	boom := errors.New("boom")
	apply := func(context.Context, generator.DesignDocument, string) (generator.DesignDocument, error) {
		return "partial", boom
	}

	next, err := Transition(context.Background(), Awaiting("d"), Edit("x"), apply)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Awaiting("d"), next)
}

func TestParseChoice(t *testing.T) {
	tests := map[string]DecisionKind{
		"y": DecisionApprove, "YES": DecisionApprove, " Yes ": DecisionApprove,
		"e": DecisionEdit, "Edit": DecisionEdit,
		"n": DecisionReject, "no": DecisionReject,
		"": DecisionInvalid, "x": DecisionInvalid, "yep": DecisionInvalid,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseChoice(in), "input %q", in)
	}
}

func TestRunEditsThenApprove(t *testing.T) {
	editor := &appendEditor{}
	loop := NewLoop(editor, "base")
	script := NewScript(Edit("x"), Edit("y"), Approve())

	res, err := loop.Run(context.Background(), script)
	require.NoError(t, err)

	assert.Equal(t, OutcomeApproved, res.Outcome)
	assert.Equal(t, generator.DesignDocument("base\nx\ny"), res.Approved.Design())
	assert.Equal(t, 2, editor.calls)

	require.Len(t, res.History, 2)
	assert.Equal(t, "x", res.History[0].Instruction)
	assert.Equal(t, generator.DesignDocument("base\nx"), res.History[0].Design)
	assert.Equal(t, "y", res.History[1].Instruction)

	assert.Equal(t, []generator.DesignDocument{"base", "base\nx", "base\nx\ny"}, script.Shown)
	assert.Equal(t, Approved, loop.State().Phase())
}

func TestStepRecordsTrimmedInstruction(t *testing.T) {
	editor := &appendEditor{}
	loop := NewLoop(editor, "base")

	_, err := loop.Step(context.Background(), Edit("  add retry\n\t"))
	require.NoError(t, err)

	require.Len(t, loop.History(), 1)
	assert.Equal(t, "add retry", loop.History()[0].Instruction)
	assert.Equal(t, generator.DesignDocument("base\nadd retry"), loop.State().Current())
}

func TestRunRejectMakesNoCalls(t *testing.T) {
	editor := &appendEditor{}
	res, err := NewLoop(editor, "base").Run(context.Background(), NewScript(Reject()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.True(t, res.Approved.IsZero())
	assert.Zero(t, editor.calls)
}

func TestRunRecoverableInputReprompts(t *testing.T) {
	editor := &appendEditor{}
	script := NewScript(Invalid("maybe"), Edit("   "), Edit(""), Approve())

	res, err := NewLoop(editor, "base").Run(context.Background(), script)
	require.NoError(t, err)

	assert.Equal(t, OutcomeApproved, res.Outcome)
	assert.Equal(t, generator.DesignDocument("base"), res.Approved.Design())
	assert.Zero(t, editor.calls)
	assert.Len(t, script.Shown, 4)

	kinds := make([]NoticeKind, len(script.Notices))
	for i, n := range script.Notices {
		kinds[i] = n.Kind
	}
	assert.Equal(t, []NoticeKind{NoticeInvalidInput, NoticeEmptyInstruction, NoticeEmptyInstruction, NoticeApproved}, kinds)
}

func TestRunEditFailureStops(t *testing.T) {
	boom := errors.New("upstream down")
	editor := &appendEditor{fail: boom}
	loop := NewLoop(editor, "base")

	_, err := loop.Run(context.Background(), NewScript(Edit("x"), Approve()))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Awaiting("base"), loop.State())
	assert.Empty(t, loop.History())

	// The loop can be resumed with the design it held before the failure.
	editor.fail = nil
	res, err := loop.Run(context.Background(), NewScript(Approve()))
	require.NoError(t, err)
	assert.Equal(t, generator.DesignDocument("base"), res.Approved.Design())
}

func TestRunInputClosed(t *testing.T) {
	_, err := NewLoop(&appendEditor{}, "base").Run(context.Background(), NewScript())
	assert.ErrorIs(t, err, ErrInputClosed)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLoop(&appendEditor{}, "base").Run(ctx, NewScript(Approve()))
	assert.ErrorIs(t, err, context.Canceled)
}

// replaceEditor ignores the current design and returns a fixed text.
type replaceEditor struct{ out generator.DesignDocument }

func (e replaceEditor) ApplyEdit(context.Context, generator.DesignDocument, string) (generator.DesignDocument, error) {
	return e.out, nil
}

func TestRunStrictGuardRejectsLossyEdit(t *testing.T) {
	base := generator.DesignDocument("- iFlow name: Orders\n- Sender adapter: HTTP\n- Receiver adapter: SFTP")
	loop := NewLoop(replaceEditor{out: "- iFlow name: Orders"}, base, WithGuard(NewGuard(GuardConfig{Strict: true})))
	script := NewScript(Edit("rename the iFlow"), Approve())

	res, err := loop.Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, base, res.Approved.Design())
	assert.Empty(t, res.History)

	require.NotEmpty(t, script.Notices)
	n := script.Notices[0]
	assert.Equal(t, NoticeEditRejected, n.Kind)
	assert.ErrorIs(t, n.Err, ErrEditRejected)
	require.NotNil(t, n.Check)
	assert.ElementsMatch(t, []string{"Sender adapter", "Receiver adapter"}, n.Check.DroppedSections)
}

func TestRunLenientGuardReportsCheck(t *testing.T) {
	base := generator.DesignDocument("- iFlow name: Orders\n- Sender adapter: HTTP")
	loop := NewLoop(&appendEditor{}, base, WithGuard(NewGuard(GuardConfig{})))
	script := NewScript(Edit("- Receiver adapter: SFTP"), Approve())

	res, err := loop.Run(context.Background(), script)
	require.NoError(t, err)
	require.Len(t, res.History, 1)
	require.NotNil(t, res.History[0].Check)
	assert.Empty(t, res.History[0].Check.DroppedSections)
	assert.Greater(t, res.History[0].Check.Added, 0)
	assert.True(t, strings.HasSuffix(res.Approved.Design().String(), "- Receiver adapter: SFTP"))

	assert.Equal(t, NoticeEditApplied, script.Notices[0].Kind)
	assert.Same(t, res.History[0].Check, script.Notices[0].Check)
}
