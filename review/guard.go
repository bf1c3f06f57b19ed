package review

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"iflow_prompt_generator/generator"
)

// GuardConfig configures the sanity check run on every edit replacement.
type GuardConfig struct {
	// MinSimilarity is the lowest accepted similarity in [0,1] (default 0.5).
	MinSimilarity float64
	// Strict refuses suspicious replacements instead of only reporting them.
	Strict bool
}

// Check summarises how a replacement differs from the design it replaced.
type Check struct {
	Similarity float64
	Added      int
	Deleted    int
	// DroppedSections lists headings and labelled bullets present before the
	// edit, missing after it, and not named by the instruction.
	DroppedSections []string
}

func (c Check) String() string {
	s := fmt.Sprintf("similarity %.2f, +%d/-%d chars", c.Similarity, c.Added, c.Deleted)
	if len(c.DroppedSections) > 0 {
		s += ", dropped: " + strings.Join(c.DroppedSections, "; ")
	}
	return s
}

// Guard compares a design with the editor's replacement. The editor call is
// trusted to preserve unrelated content; the guard only makes losses visible.
type Guard struct {
	cfg GuardConfig
	dmp *diffmatchpatch.DiffMatchPatch
	md  goldmark.Markdown
}

func NewGuard(cfg GuardConfig) *Guard {
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.5
	}
	return &Guard{cfg: cfg, dmp: diffmatchpatch.New(), md: goldmark.New()}
}

// Inspect computes the Check for a replacement of before by after.
func (g *Guard) Inspect(before, after generator.DesignDocument, instruction string) Check {
	diffs := g.dmp.DiffMain(before.String(), after.String(), false)

	var c Check
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			c.Added += utf8.RuneCountInString(d.Text)
		case diffmatchpatch.DiffDelete:
			c.Deleted += utf8.RuneCountInString(d.Text)
		}
	}

	longest := max(utf8.RuneCountInString(before.String()), utf8.RuneCountInString(after.String()))
	if longest == 0 {
		c.Similarity = 1
	} else {
		c.Similarity = 1 - float64(g.dmp.DiffLevenshtein(diffs))/float64(longest)
	}

	remaining := make(map[string]bool)
	for _, s := range g.sections(after) {
		remaining[strings.ToLower(s)] = true
	}
	lowerInstr := strings.ToLower(instruction)
	for _, s := range g.sections(before) {
		key := strings.ToLower(s)
		if remaining[key] || strings.Contains(lowerInstr, key) {
			continue
		}
		c.DroppedSections = append(c.DroppedSections, s)
	}
	return c
}

// Suspicious reports whether c falls below the configured thresholds.
func (g *Guard) Suspicious(c Check) bool {
	return c.Similarity < g.cfg.MinSimilarity || len(c.DroppedSections) > 0
}

// Verify returns ErrEditRejected for suspicious checks in strict mode.
func (g *Guard) Verify(c Check) error {
	if g.cfg.Strict && g.Suspicious(c) {
		return fmt.Errorf("%w: %s", ErrEditRejected, c)
	}
	return nil
}

// sections returns heading texts and the labels of top-level "Label: value"
// bullets, in document order.
func (g *Guard) sections(d generator.DesignDocument) []string {
	src := []byte(d.String())
	doc := g.md.Parser().Parse(text.NewReader(src))

	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading:
			add(nodeText(n, src))
			return ast.WalkSkipChildren, nil
		case ast.KindListItem:
			if list := n.Parent(); list != nil && list.Parent() != nil && list.Parent().Kind() == ast.KindDocument {
				if first := n.FirstChild(); first != nil {
					if label, _, ok := strings.Cut(nodeText(first, src), ":"); ok && len(label) <= 60 {
						add(label)
					}
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return out
}

func nodeText(n ast.Node, src []byte) string {
	var sb strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		default:
			sb.WriteString(nodeText(c, src))
		}
	}
	return sb.String()
}
