package generator

import (
	"errors"
	"fmt"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageUnderstanding Stage = "understanding"
	StageEdit          Stage = "edit"
	StageFinalize      Stage = "finalize"
)

var (
	// ErrGeneration marks any failure of the text-generation service,
	// including an empty completion.
	ErrGeneration = errors.New("generation failed")

	// ErrEmptyCompletion is returned when the model answered with blank text.
	ErrEmptyCompletion = errors.New("model returned empty content")

	// ErrEmptyInstruction rejects blank edit instructions before any model call.
	ErrEmptyInstruction = errors.New("edit instruction is empty")

	// ErrNotApproved rejects a zero ApprovedDesign.
	ErrNotApproved = errors.New("design has not been approved")
)

// StageError carries the failing stage together with its cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func generationError(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: fmt.Errorf("%w: %w", ErrGeneration, err)}
}
