// Package review holds the human-in-the-loop approval state machine for iFlow
// designs. The transition function is independent of how decisions are read,
// so terminals, HTTP callers and scripted tests drive the same machine.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"iflow_prompt_generator/generator"
)

// Phase is the position of the loop in its lifecycle.
type Phase int

const (
	AwaitingDecision Phase = iota
	Approved
	Aborted
)

func (p Phase) String() string {
	switch p {
	case AwaitingDecision:
		return "awaiting_decision"
	case Approved:
		return "approved"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

var (
	// ErrTerminal is returned when a decision arrives after approve or reject.
	ErrTerminal = errors.New("review already finished")

	// ErrInvalidDecision marks unrecognised reviewer input. It never changes state.
	ErrInvalidDecision = errors.New("invalid choice; enter Y, E or N")

	// ErrEditRejected is returned when the edit guard refuses a replacement.
	ErrEditRejected = errors.New("edit rejected by guard")
)

// State is one of AwaitingDecision(current), Approved(design) or Aborted.
type State struct {
	phase    Phase
	current  generator.DesignDocument
	approved generator.ApprovedDesign
}

// Awaiting returns the initial state holding d.
func Awaiting(d generator.DesignDocument) State {
	return State{phase: AwaitingDecision, current: d}
}

func (s State) Phase() Phase { return s.phase }

// Current is the design under review. After approval it is the approved text;
// after an abort it is the last design shown.
func (s State) Current() generator.DesignDocument { return s.current }

// Approved returns the approved design once the phase is Approved.
func (s State) Approved() (generator.ApprovedDesign, bool) {
	return s.approved, s.phase == Approved
}

// Terminal reports whether no further decisions are accepted.
func (s State) Terminal() bool { return s.phase != AwaitingDecision }

// DecisionKind tags a reviewer decision.
type DecisionKind int

const (
	DecisionInvalid DecisionKind = iota
	DecisionApprove
	DecisionEdit
	DecisionReject
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionApprove:
		return "approve"
	case DecisionEdit:
		return "edit"
	case DecisionReject:
		return "reject"
	default:
		return "invalid"
	}
}

// Decision is exactly one reviewer choice for a cycle.
type Decision struct {
	Kind        DecisionKind
	Instruction string
	// Input keeps the raw text of an invalid choice for reporting.
	Input string
}

func Approve() Decision { return Decision{Kind: DecisionApprove} }

func Reject() Decision { return Decision{Kind: DecisionReject} }

func Edit(instruction string) Decision {
	return Decision{Kind: DecisionEdit, Instruction: instruction}
}

func Invalid(input string) Decision {
	return Decision{Kind: DecisionInvalid, Input: input}
}

// ParseChoice maps a menu answer to a decision kind. Matching ignores case and
// surrounding space; anything unknown is DecisionInvalid.
func ParseChoice(input string) DecisionKind {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes", "approve":
		return DecisionApprove
	case "e", "edit":
		return DecisionEdit
	case "n", "no", "reject":
		return DecisionReject
	default:
		return DecisionInvalid
	}
}

// EditFunc produces the full replacement for current.
type EditFunc func(ctx context.Context, current generator.DesignDocument, instruction string) (generator.DesignDocument, error)

// Transition applies d to s. Whenever it returns an error the returned state
// equals s: failed edits, blank instructions and invalid input never mutate
// the design. Blank instructions are refused before apply is called.
func Transition(ctx context.Context, s State, d Decision, apply EditFunc) (State, error) {
	if s.Terminal() {
		return s, ErrTerminal
	}

	switch d.Kind {
	case DecisionApprove:
		return State{phase: Approved, current: s.current, approved: generator.Approve(s.current)}, nil

	case DecisionReject:
		return State{phase: Aborted, current: s.current}, nil

	case DecisionEdit:
		instruction := strings.TrimSpace(d.Instruction)
		if instruction == "" {
			return s, generator.ErrEmptyInstruction
		}
		next, err := apply(ctx, s.current, instruction)
		if err != nil {
			return s, err
		}
		return Awaiting(next), nil

	default:
		return s, ErrInvalidDecision
	}
}
