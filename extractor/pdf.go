package extractor

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF returns one segment per page. Pages whose content stream cannot
// be read or shows no text yield "".
func extractPDF(data []byte) ([]string, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}

	segments := make([]string, ctx.PageCount)
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		segments[pageNr-1] = pageText(ctx, pageNr)
	}
	return segments, nil
}

func pageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	content, err := io.ReadAll(r)
	if err != nil || len(content) == 0 {
		return ""
	}
	return textFromContent(content)
}

// textFromContent scans a page content stream and keeps the literal and hex
// string operands of the text-showing operators (Tj, TJ, ' and "). Text positioning operators
// start a new line.
func textFromContent(data []byte) string {
	var (
		sb      strings.Builder
		pending []string
	)

	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	flush := func() {
		for _, s := range pending {
			sb.WriteString(s)
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '(':
			s, n := readLiteral(data[i:])
			pending = append(pending, s)
			i += n
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '<':
			s, n := readHex(data[i:])
			pending = append(pending, s)
			i += n
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case isPDFSpace(c) || isPDFDelim(c):
			i++
		default:
			j := i
			for j < len(data) && !isPDFSpace(data[j]) && !isPDFDelim(data[j]) && data[j] != '(' && data[j] != '%' {
				j++
			}
			tok := string(data[i:j])
			i = j

			switch tok {
			case "Tj", "TJ":
				flush()
			case "'", `"`:
				newline()
				flush()
			case "Td", "TD", "T*", "ET":
				newline()
			}
			if isOperator(tok) {
				pending = pending[:0]
			}
		}
	}

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// readLiteral decodes a PDF string literal starting at data[0] == '('. It
// returns the decoded text (bytes mapped one-to-one to runes) and the number
// of bytes consumed, closing parenthesis included.
func readLiteral(data []byte) (string, int) {
	var sb strings.Builder
	depth := 0
	i := 0
	for ; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '(':
			depth++
			if depth > 1 {
				sb.WriteByte('(')
			}
		case c == ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(')')
		case c == '\\' && i+1 < len(data):
			i++
			switch e := data[i]; e {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					sb.WriteRune(rune(byte(val)))
				} else {
					sb.WriteByte(e)
				}
			}
		default:
			sb.WriteRune(rune(c))
		}
	}
	return sb.String(), i
}

// readHex decodes a PDF hex string starting at data[0] == '<'. Whitespace is
// ignored and an odd final digit is padded with 0. Strings opening with the
// UTF-16BE byte order mark are decoded as UTF-16; other bytes map one-to-one
// to runes, as in readLiteral.
func readHex(data []byte) (string, int) {
	var (
		raw  []byte
		hi   byte
		half bool
	)
	i := 1
	for ; i < len(data) && data[i] != '>'; i++ {
		v, ok := hexValue(data[i])
		if !ok {
			continue
		}
		if half {
			raw = append(raw, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		raw = append(raw, hi<<4)
	}
	if i < len(data) {
		i++
	}
	return decodePDFBytes(raw), i
}

func decodePDFBytes(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		units := make([]uint16, 0, (len(raw)-2)/2)
		for k := 2; k+1 < len(raw); k += 2 {
			units = append(units, uint16(raw[k])<<8|uint16(raw[k+1]))
		}
		return string(utf16.Decode(units))
	}
	var sb strings.Builder
	for _, b := range raw {
		sb.WriteRune(rune(b))
	}
	return sb.String()
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isPDFDelim(c byte) bool {
	switch c {
	case ')', '<', '>', '[', ']', '{', '}', '/':
		return true
	}
	return false
}

func isOperator(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '\'' || c == '"' || c == '*'
}
