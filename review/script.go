package review

import (
	"context"

	"iflow_prompt_generator/generator"
)

// Script is a Reviewer that replays a fixed list of decisions. It records the
// designs it was shown and the notices it received.
type Script struct {
	decisions []Decision
	Shown     []generator.DesignDocument
	Notices   []Notice
}

func NewScript(decisions ...Decision) *Script {
	return &Script{decisions: decisions}
}

func (s *Script) Decide(_ context.Context, current generator.DesignDocument) (Decision, error) {
	s.Shown = append(s.Shown, current)
	if len(s.decisions) == 0 {
		return Decision{}, ErrInputClosed
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, nil
}

func (s *Script) Notify(_ context.Context, n Notice) {
	s.Notices = append(s.Notices, n)
}
