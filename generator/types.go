package generator

// DesignDocument is the current understanding of an iFlow design. It is
// replaced wholesale by every accepted edit.
type DesignDocument string

// String returns the design text.
func (d DesignDocument) String() string { return string(d) }

// ApprovedDesign is a DesignDocument that received an approval. The only way
// to obtain a non-zero value is Approve, so Finalize cannot be reached with an
// unreviewed design.
type ApprovedDesign struct {
	design DesignDocument
}

// Approve freezes d as finalizable. Approval is one-way: there is no way back
// from an ApprovedDesign to an editable DesignDocument of the same value.
//
// Only two callers are expected: review.Transition, when the reviewer
// approves, and the stateless final-prompt endpoints, where the request itself
// is the caller's approval. Other code must not mint approvals.
func Approve(d DesignDocument) ApprovedDesign {
	return ApprovedDesign{design: d}
}

// Design returns the approved text.
func (a ApprovedDesign) Design() DesignDocument { return a.design }

// IsZero reports whether a was not produced by Approve (or approved empty text).
func (a ApprovedDesign) IsZero() bool { return a.design == "" }

// FinalPrompt is the short imperative instruction derived from an approved design.
type FinalPrompt string

func (p FinalPrompt) String() string { return string(p) }
