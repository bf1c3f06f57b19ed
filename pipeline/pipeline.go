// Package pipeline runs one document through extraction, understanding, human
// review and final prompt synthesis.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"iflow_prompt_generator/extractor"
	"iflow_prompt_generator/generator"
	"iflow_prompt_generator/logging"
	"iflow_prompt_generator/review"
)

// Stage names a pipeline step.
type Stage string

const (
	StageExtraction    Stage = "extraction"
	StageUnderstanding Stage = Stage(generator.StageUnderstanding)
	StageReview        Stage = "review"
	StageEdit          Stage = Stage(generator.StageEdit)
	StageFinalize      Stage = Stage(generator.StageFinalize)
)

// StageError reports the step a run failed in. A failed edit call is reported
// as StageEdit; other review failures (closed input, cancellation) as
// StageReview.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Outcome is how a finished run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
)

// Result describes a finished run. FinalPrompt is set only when Outcome is
// OutcomeCompleted.
type Result struct {
	RunID         string
	Filename      string
	Outcome       Outcome
	Understanding generator.DesignDocument
	Approved      generator.ApprovedDesign
	FinalPrompt   generator.FinalPrompt
	History       []review.Turn
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Generator is the model-backed part of the pipeline. *generator.Agent
// implements it.
type Generator interface {
	review.Editor
	Understand(ctx context.Context, documentText string) (generator.DesignDocument, error)
	Finalize(ctx context.Context, approved generator.ApprovedDesign) (generator.FinalPrompt, error)
}

// Runner wires the stages together. A Runner holds no per-run state and may
// serve several runs, each with its own Reviewer.
type Runner struct {
	extractor *extractor.Extractor
	gen       Generator
	guard     *review.Guard
	logger    *slog.Logger
	onStage   func(context.Context, Stage)
	newID     func() string
	now       func() time.Time
}

type Option func(*Runner)

// WithGuard checks every edit during review.
func WithGuard(g *review.Guard) Option {
	return func(r *Runner) { r.guard = g }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStageHook calls fn as each stage starts.
func WithStageHook(fn func(context.Context, Stage)) Option {
	return func(r *Runner) { r.onStage = fn }
}

func NewRunner(ext *extractor.Extractor, gen Generator, opts ...Option) (*Runner, error) {
	if ext == nil {
		return nil, errors.New("extractor is required")
	}
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	r := &Runner{
		extractor: ext,
		gen:       gen,
		logger:    slog.Default(),
		onStage:   func(context.Context, Stage) {},
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run processes doc. Reject by the reviewer is not an error: the result has
// OutcomeAborted and no final prompt. Any other failure is a *StageError and
// nothing after the failing stage runs.
func (r *Runner) Run(ctx context.Context, doc extractor.RawDocument, reviewer review.Reviewer) (Result, error) {
	res := Result{RunID: r.newID(), Filename: doc.Filename, StartedAt: r.now()}
	logger := r.logger.With("run_id", res.RunID, "filename", doc.Filename)
	logger.InfoContext(ctx, "run started", "kind", doc.Kind, "bytes", len(doc.Data))

	fail := func(stage Stage, err error) (Result, error) {
		res.FinishedAt = r.now()
		logger.ErrorContext(ctx, "run failed", "stage", stage, "error", err)
		return res, &StageError{Stage: stage, Err: err}
	}

	r.onStage(ctx, StageExtraction)
	text, err := r.extractor.Extract(ctx, doc)
	if err != nil {
		return fail(StageExtraction, err)
	}
	logger.DebugContext(ctx, "extracted text", "chars", len(text.Text()), "preview", logging.Preview(text.Text(), 500))

	r.onStage(ctx, StageUnderstanding)
	understanding, err := r.gen.Understand(ctx, text.Text())
	if err != nil {
		return fail(StageUnderstanding, err)
	}
	res.Understanding = understanding
	logger.InfoContext(ctx, "understanding generated", "chars", len(understanding))

	r.onStage(ctx, StageReview)
	loopOpts := []review.Option{review.WithLogger(logger)}
	if r.guard != nil {
		loopOpts = append(loopOpts, review.WithGuard(r.guard))
	}
	loop := review.NewLoop(r.gen, understanding, loopOpts...)
	outcome, err := loop.Run(ctx, reviewer)
	res.History = loop.History()
	if err != nil {
		var ge *generator.StageError
		if errors.As(err, &ge) {
			return fail(Stage(ge.Stage), err)
		}
		return fail(StageReview, err)
	}
	if outcome.Outcome == review.OutcomeAborted {
		res.Outcome = OutcomeAborted
		res.FinishedAt = r.now()
		logger.InfoContext(ctx, "run aborted by reviewer", "edits", len(res.History))
		return res, nil
	}
	res.Approved = outcome.Approved

	r.onStage(ctx, StageFinalize)
	prompt, err := r.gen.Finalize(ctx, outcome.Approved)
	if err != nil {
		return fail(StageFinalize, err)
	}
	res.FinalPrompt = prompt
	res.Outcome = OutcomeCompleted
	res.FinishedAt = r.now()
	logger.InfoContext(ctx, "run completed",
		"edits", len(res.History),
		"duration", res.FinishedAt.Sub(res.StartedAt),
	)
	return res, nil
}

// StageOf returns the stage recorded in err, or "" when err carries none.
func StageOf(err error) Stage {
	var pe *StageError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	var ge *generator.StageError
	if errors.As(err, &ge) {
		return Stage(ge.Stage)
	}
	return ""
}
