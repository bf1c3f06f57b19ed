package generator

import (
	"regexp"
	"strings"
)

// PostProcess trims the raw completion and rejects blank output.
func PostProcess(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n?```$")

// PostProcessFinal additionally unwraps a single fenced block, since the final
// prompt must be plain text.
func PostProcessFinal(raw string) (string, error) {
	text, err := PostProcess(raw)
	if err != nil {
		return "", err
	}
	if m := fenceRe.FindStringSubmatch(text); len(m) == 2 {
		text = strings.TrimSpace(m[1])
	}
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
