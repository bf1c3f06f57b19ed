package review

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"iflow_prompt_generator/generator"
)

// Editor applies one natural-language instruction and returns the full design.
// *generator.Agent satisfies it.
type Editor interface {
	ApplyEdit(ctx context.Context, current generator.DesignDocument, instruction string) (generator.DesignDocument, error)
}

// NoticeKind classifies what the loop tells the reviewer between decisions.
type NoticeKind int

const (
	NoticeInvalidInput NoticeKind = iota
	NoticeEmptyInstruction
	NoticeEditApplied
	NoticeEditRejected
	NoticeEditFailed
	NoticeApproved
	NoticeAborted
)

// Notice is feedback for the reviewer about the last decision.
type Notice struct {
	Kind  NoticeKind
	Err   error
	Check *Check
}

// Reviewer is the human side of the loop. Decide blocks until the reviewer
// answers for the design shown; an error from Decide ends the loop.
type Reviewer interface {
	Decide(ctx context.Context, current generator.DesignDocument) (Decision, error)
	Notify(ctx context.Context, n Notice)
}

// Turn records one accepted edit. Instruction is the trimmed text sent to the
// editor.
type Turn struct {
	Instruction string                   `json:"instruction"`
	Design      generator.DesignDocument `json:"design"`
	Check       *Check                   `json:"check,omitempty"`
	At          time.Time                `json:"at"`
}

// Outcome is how a finished loop ended.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeAborted  Outcome = "aborted"
)

// Result is the terminal value of Run.
type Result struct {
	Outcome  Outcome
	Approved generator.ApprovedDesign
	History  []Turn
}

// Loop owns the current design for one review session. It is not safe for
// concurrent use; one session drives one loop.
type Loop struct {
	editor  Editor
	guard   *Guard
	logger  *slog.Logger
	state   State
	history []Turn
	now     func() time.Time
}

type Option func(*Loop)

// WithGuard checks every replacement with g before it is accepted.
func WithGuard(g *Guard) Option {
	return func(l *Loop) { l.guard = g }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop starts a loop in AwaitingDecision(initial).
func NewLoop(editor Editor, initial generator.DesignDocument, opts ...Option) *Loop {
	l := &Loop{
		editor: editor,
		logger: slog.Default(),
		state:  Awaiting(initial),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) State() State { return l.state }

// History returns the accepted edits in application order.
func (l *Loop) History() []Turn {
	out := make([]Turn, len(l.history))
	copy(out, l.history)
	return out
}

// Step consumes one decision. On error the state is unchanged.
func (l *Loop) Step(ctx context.Context, d Decision) (State, error) {
	var check *Check
	apply := func(ctx context.Context, current generator.DesignDocument, instruction string) (generator.DesignDocument, error) {
		next, err := l.editor.ApplyEdit(ctx, current, instruction)
		if err != nil {
			return current, err
		}
		if l.guard != nil {
			c := l.guard.Inspect(current, next, instruction)
			check = &c
			if err := l.guard.Verify(c); err != nil {
				return current, err
			}
		}
		return next, nil
	}

	next, err := Transition(ctx, l.state, d, apply)
	if err != nil {
		l.logger.DebugContext(ctx, "review decision not applied", "decision", d.Kind, "error", err)
		return l.state, withCheck(err, check)
	}

	l.state = next
	if d.Kind == DecisionEdit {
		l.history = append(l.history, Turn{
			Instruction: strings.TrimSpace(d.Instruction),
			Design:      next.Current(),
			Check:       check,
			At:          l.now(),
		})
	}
	l.logger.InfoContext(ctx, "review decision applied", "decision", d.Kind, "phase", next.Phase(), "edits", len(l.history))
	return next, nil
}

// Run drives the loop with r until approve or reject. Invalid input, blank
// instructions and guard rejections are reported and re-prompted. A failed
// edit call ends Run with that error; the loop keeps the pre-edit design and
// Run may be called again.
func (l *Loop) Run(ctx context.Context, r Reviewer) (Result, error) {
	for !l.state.Terminal() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		d, err := r.Decide(ctx, l.state.Current())
		if err != nil {
			return Result{}, err
		}

		_, err = l.Step(ctx, d)
		switch {
		case err == nil:
			if d.Kind == DecisionEdit {
				last := l.history[len(l.history)-1]
				r.Notify(ctx, Notice{Kind: NoticeEditApplied, Check: last.Check})
			}
		case errors.Is(err, ErrInvalidDecision):
			r.Notify(ctx, Notice{Kind: NoticeInvalidInput, Err: err})
		case errors.Is(err, generator.ErrEmptyInstruction):
			r.Notify(ctx, Notice{Kind: NoticeEmptyInstruction, Err: err})
		case errors.Is(err, ErrEditRejected):
			r.Notify(ctx, Notice{Kind: NoticeEditRejected, Err: err, Check: checkOf(err)})
		default:
			r.Notify(ctx, Notice{Kind: NoticeEditFailed, Err: err})
			return Result{}, err
		}
	}

	res := Result{History: l.History()}
	if approved, ok := l.state.Approved(); ok {
		res.Outcome = OutcomeApproved
		res.Approved = approved
		r.Notify(ctx, Notice{Kind: NoticeApproved})
	} else {
		res.Outcome = OutcomeAborted
		r.Notify(ctx, Notice{Kind: NoticeAborted})
	}
	return res, nil
}

type checkedError struct {
	err   error
	check *Check
}

func (e *checkedError) Error() string { return e.err.Error() }
func (e *checkedError) Unwrap() error { return e.err }

func withCheck(err error, c *Check) error {
	if c == nil {
		return err
	}
	return &checkedError{err: err, check: c}
}

func checkOf(err error) *Check {
	var ce *checkedError
	if errors.As(err, &ce) {
		return ce.check
	}
	return nil
}
