package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iflow_prompt_generator/extractor"
	"iflow_prompt_generator/generator"
	"iflow_prompt_generator/review"
)

const (
	understandingX = "- iFlow name: X\n- Sender adapter: HTTP\n- Steps: map A, call B\n- Receiver adapter: SFTP"
	finalX         = "Create iFlow X with HTTP sender and SFTP receiver."
)

// stageLLM answers per stage and records every prompt.
type stageLLM struct {
	mu      sync.Mutex
	prompts []generator.Prompt
	answers map[generator.Stage]string
	errs    map[generator.Stage]error
}

func (s *stageLLM) Complete(_ context.Context, p generator.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	if err := s.errs[p.Stage]; err != nil {
		return "", err
	}
	return s.answers[p.Stage], nil
}

func (s *stageLLM) count(stage generator.Stage) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.prompts {
		if p.Stage == stage {
			n++
		}
	}
	return n
}

func designDocx(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString("<w:p><w:r><w:t>" + p + "</w:t></w:r></w:p>")
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fw.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newRunner(t *testing.T, llm generator.LLMClient, opts ...Option) *Runner {
	t.Helper()
	agent, err := generator.NewAgent(llm, nil)
	require.NoError(t, err)
	r, err := NewRunner(extractor.New(extractor.Config{}), agent, opts...)
	require.NoError(t, err)
	r.newID = func() string { return "run-1" }
	return r
}

func flowDoc(t *testing.T) extractor.RawDocument {
	return extractor.RawDocument{
		Filename: "flow.docx",
		Kind:     extractor.KindDocx,
		Data:     designDocx(t, "Sender: HTTP", "Steps: map A, call B", "Receiver: SFTP"),
	}
}

func TestRunEndToEnd(t *testing.T) {
	llm := &stageLLM{answers: map[generator.Stage]string{
		generator.StageUnderstanding: understandingX,
		generator.StageFinalize:      finalX,
	}}
	var stages []Stage
	r := newRunner(t, llm, WithStageHook(func(_ context.Context, s Stage) { stages = append(stages, s) }))

	res, err := r.Run(context.Background(), flowDoc(t), review.NewScript(review.Approve()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, generator.FinalPrompt(finalX), res.FinalPrompt)
	assert.Equal(t, generator.DesignDocument(understandingX), res.Understanding)
	assert.Equal(t, generator.DesignDocument(understandingX), res.Approved.Design())
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "flow.docx", res.Filename)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))

	assert.Equal(t, []Stage{StageExtraction, StageUnderstanding, StageReview, StageFinalize}, stages)

	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[0].User, "Sender: HTTP\nSteps: map A, call B\nReceiver: SFTP")
	assert.Contains(t, llm.prompts[1].User, understandingX)
}

func TestRunWithEdits(t *testing.T) {
	llm := &stageLLM{answers: map[generator.Stage]string{
		generator.StageUnderstanding: understandingX,
		generator.StageEdit:          understandingX + "\n- Note: retry twice",
		generator.StageFinalize:      finalX,
	}}
	r := newRunner(t, llm, WithGuard(review.NewGuard(review.GuardConfig{})))

	res, err := r.Run(context.Background(), flowDoc(t), review.NewScript(review.Edit("retry twice"), review.Approve()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, res.Outcome)
	require.Len(t, res.History, 1)
	assert.Equal(t, "retry twice", res.History[0].Instruction)
	assert.Equal(t, generator.DesignDocument(understandingX+"\n- Note: retry twice"), res.Approved.Design())
	require.NotNil(t, res.History[0].Check)
	assert.Empty(t, res.History[0].Check.DroppedSections)
	assert.Equal(t, 1, llm.count(generator.StageEdit))
}

func TestRunRejectSkipsFinalize(t *testing.T) {
	llm := &stageLLM{answers: map[generator.Stage]string{generator.StageUnderstanding: understandingX}}
	r := newRunner(t, llm)

	res, err := r.Run(context.Background(), flowDoc(t), review.NewScript(review.Reject()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAborted, res.Outcome)
	assert.Empty(t, res.FinalPrompt)
	assert.True(t, res.Approved.IsZero())
	assert.Len(t, llm.prompts, 1)
}

func TestRunUnderstandingFailure(t *testing.T) {
	llm := &stageLLM{errs: map[generator.Stage]error{generator.StageUnderstanding: errors.New("503 from upstream")}}
	r := newRunner(t, llm)
	script := review.NewScript(review.Approve())

	_, err := r.Run(context.Background(), flowDoc(t), script)
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageUnderstanding, se.Stage)
	assert.Equal(t, StageUnderstanding, StageOf(err))
	assert.ErrorIs(t, err, generator.ErrGeneration)
	assert.Empty(t, script.Shown, "review loop must not be entered")
}

func TestRunEmptyUnderstanding(t *testing.T) {
	llm := &stageLLM{answers: map[generator.Stage]string{generator.StageUnderstanding: "  \n "}}
	_, err := newRunner(t, llm).Run(context.Background(), flowDoc(t), review.NewScript(review.Approve()))

	assert.Equal(t, StageUnderstanding, StageOf(err))
	assert.ErrorIs(t, err, generator.ErrEmptyCompletion)
}

func TestRunExtractionFailures(t *testing.T) {
	tests := []struct {
		name string
		doc  extractor.RawDocument
		err  error
	}{
		{"unsupported", extractor.RawDocument{Filename: "a.txt", Kind: "txt", Data: []byte("x")}, extractor.ErrUnsupportedFormat},
		{"unreadable", extractor.RawDocument{Filename: "a.docx", Kind: extractor.KindDocx, Data: []byte("x")}, extractor.ErrExtraction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &stageLLM{}
			_, err := newRunner(t, llm).Run(context.Background(), tt.doc, review.NewScript(review.Approve()))
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, StageExtraction, StageOf(err))
			assert.Empty(t, llm.prompts)
		})
	}
}

func TestRunEditFailure(t *testing.T) {
	llm := &stageLLM{
		answers: map[generator.Stage]string{generator.StageUnderstanding: understandingX},
		errs:    map[generator.Stage]error{generator.StageEdit: errors.New("timeout")},
	}
	res, err := newRunner(t, llm).Run(context.Background(), flowDoc(t), review.NewScript(review.Edit("x"), review.Approve()))

	assert.Equal(t, StageEdit, StageOf(err))
	assert.ErrorIs(t, err, generator.ErrGeneration)
	assert.Empty(t, res.History)
	assert.Zero(t, llm.count(generator.StageFinalize))
}

func TestRunFinalizeFailure(t *testing.T) {
	llm := &stageLLM{
		answers: map[generator.Stage]string{generator.StageUnderstanding: understandingX},
		errs:    map[generator.Stage]error{generator.StageFinalize: errors.New("quota")},
	}
	res, err := newRunner(t, llm).Run(context.Background(), flowDoc(t), review.NewScript(review.Approve()))

	assert.Equal(t, StageFinalize, StageOf(err))
	assert.Empty(t, res.FinalPrompt)
	assert.False(t, res.Approved.IsZero())
}

func TestRunInputClosed(t *testing.T) {
	llm := &stageLLM{answers: map[generator.Stage]string{generator.StageUnderstanding: understandingX}}
	_, err := newRunner(t, llm).Run(context.Background(), flowDoc(t), review.NewScript())

	assert.Equal(t, StageReview, StageOf(err))
	assert.ErrorIs(t, err, review.ErrInputClosed)
}

func TestRunWithMockLLM(t *testing.T) {
	r := newRunner(t, generator.MockLLM{})
	res, err := r.Run(context.Background(), flowDoc(t), review.NewScript(review.Approve()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.NotEmpty(t, res.FinalPrompt)
}

func TestNewRunnerRequiresParts(t *testing.T) {
	_, err := NewRunner(nil, &generator.Agent{})
	assert.Error(t, err)
	_, err = NewRunner(extractor.New(extractor.Config{}), nil)
	assert.Error(t, err)
}
