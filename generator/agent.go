package generator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Agent runs the three templated generation calls: understanding, edit and
// final prompt.
type Agent struct {
	llm    LLMClient
	logger *slog.Logger
}

func NewAgent(llm LLMClient, logger *slog.Logger) (*Agent, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{llm: llm, logger: logger}, nil
}

// Understand produces the initial design from extracted document text.
func (a *Agent) Understand(ctx context.Context, documentText string) (DesignDocument, error) {
	text, err := a.complete(ctx, BuildUnderstandingPrompt(documentText), PostProcess)
	if err != nil {
		return "", err
	}
	return DesignDocument(text), nil
}

// ApplyEdit returns the full design after applying instruction to current.
// Blank instructions fail with ErrEmptyInstruction without calling the model.
// On any failure current is left as the caller holds it.
func (a *Agent) ApplyEdit(ctx context.Context, current DesignDocument, instruction string) (DesignDocument, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return current, ErrEmptyInstruction
	}
	text, err := a.complete(ctx, BuildEditPrompt(current, instruction), PostProcess)
	if err != nil {
		return current, err
	}
	return DesignDocument(text), nil
}

// Finalize renders an approved design into the final prompt.
func (a *Agent) Finalize(ctx context.Context, approved ApprovedDesign) (FinalPrompt, error) {
	if approved.IsZero() {
		return "", &StageError{Stage: StageFinalize, Err: ErrNotApproved}
	}
	text, err := a.complete(ctx, BuildFinalPrompt(approved), PostProcessFinal)
	if err != nil {
		return "", err
	}
	return FinalPrompt(text), nil
}

func (a *Agent) complete(ctx context.Context, prompt Prompt, post func(string) (string, error)) (string, error) {
	a.logger.DebugContext(ctx, "llm call", "stage", prompt.Stage, "prompt_chars", len(prompt.User))

	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		a.logger.ErrorContext(ctx, "llm call failed", "stage", prompt.Stage, "error", err)
		return "", generationError(prompt.Stage, err)
	}

	text, err := post(raw)
	if err != nil {
		a.logger.ErrorContext(ctx, "llm output rejected", "stage", prompt.Stage, "error", err)
		return "", generationError(prompt.Stage, err)
	}

	a.logger.DebugContext(ctx, "llm call complete", "stage", prompt.Stage, "output_chars", len(text))
	return text, nil
}
