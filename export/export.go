// Package export writes the artifacts of a finished run: a Markdown report and
// its sanitised HTML rendering.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"iflow_prompt_generator/pipeline"
)

var (
	md     = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy = bluemonday.UGCPolicy()
)

// Artifacts lists the files written for one run.
type Artifacts struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// Exporter writes run reports into a directory.
type Exporter struct {
	dir    string
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) (*Exporter, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("export dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{dir: dir, logger: logger}, nil
}

// Export writes <run-id>.md and <run-id>.html. Aborted runs are exported too;
// their report has no final prompt.
func (e *Exporter) Export(ctx context.Context, res pipeline.Result) (Artifacts, error) {
	if res.RunID == "" {
		return Artifacts{}, errors.New("result has no run id")
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("create export dir: %w", err)
	}

	report := Report(res)
	page, err := RenderPage("iFlow run "+res.RunID, report)
	if err != nil {
		return Artifacts{}, err
	}

	out := Artifacts{
		Markdown: filepath.Join(e.dir, res.RunID+".md"),
		HTML:     filepath.Join(e.dir, res.RunID+".html"),
	}
	if err := os.WriteFile(out.Markdown, []byte(report), 0o644); err != nil {
		return Artifacts{}, fmt.Errorf("write markdown report: %w", err)
	}
	if err := os.WriteFile(out.HTML, []byte(page), 0o644); err != nil {
		return Artifacts{}, fmt.Errorf("write html report: %w", err)
	}

	e.logger.InfoContext(ctx, "run exported", "run_id", res.RunID, "markdown", out.Markdown, "html", out.HTML)
	return out, nil
}

// Report renders res as Markdown.
func Report(res pipeline.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# iFlow run %s\n\n", res.RunID)
	fmt.Fprintf(&b, "- Document: %s\n", res.Filename)
	fmt.Fprintf(&b, "- Outcome: %s\n", res.Outcome)
	if !res.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- Started: %s\n", res.StartedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if !res.FinishedAt.IsZero() && !res.StartedAt.IsZero() {
		fmt.Fprintf(&b, "- Duration: %s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(&b, "- Edits: %d\n", len(res.History))

	if res.FinalPrompt != "" {
		b.WriteString("\n## Final prompt\n\n")
		b.WriteString(fence(res.FinalPrompt.String()))
	}

	if !res.Approved.IsZero() {
		b.WriteString("\n## Approved design\n\n")
		b.WriteString(fence(res.Approved.Design().String()))
	} else if res.Understanding != "" {
		b.WriteString("\n## Last design\n\n")
		design := res.Understanding
		if n := len(res.History); n > 0 {
			design = res.History[n-1].Design
		}
		b.WriteString(fence(design.String()))
	}

	if len(res.History) > 0 {
		b.WriteString("\n## Edit history\n")
		for i, turn := range res.History {
			fmt.Fprintf(&b, "\n### Edit %d\n\n", i+1)
			for _, line := range strings.Split(turn.Instruction, "\n") {
				b.WriteString("> " + line + "\n")
			}
			if turn.Check != nil {
				fmt.Fprintf(&b, "\n%s\n", turn.Check)
			}
		}
	}
	return b.String()
}

// RenderHTML converts Markdown to sanitised HTML.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return policy.Sanitize(buf.String()), nil
}

// RenderPage wraps the rendered Markdown in a standalone HTML document.
func RenderPage(title, markdown string) (string, error) {
	body, err := RenderHTML(markdown)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(title))
	fmt.Fprintf(&b, "<meta name=\"description\" content=\"%s\">\n", html.EscapeString(Digest(markdown, 120)))
	b.WriteString("</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// Digest collapses whitespace in s and cuts it to limit runes.
func Digest(s string, limit int) string {
	joined := strings.Join(strings.Fields(s), " ")
	r := []rune(joined)
	if len(r) <= limit {
		return joined
	}
	return string(r[:limit])
}

// fence wraps text in a code fence longer than any backtick run inside it.
func fence(text string) string {
	ticks := "```"
	for strings.Contains(text, ticks) {
		ticks += "`"
	}
	return ticks + "text\n" + strings.TrimRight(text, "\n") + "\n" + ticks + "\n"
}
