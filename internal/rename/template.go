// Package rename builds canonical filenames from comic metadata using token templates.
//
// A template mixes literal text with {Token} and {Token:N} placeholders, where N
// zero-pads the integer part of the value. Text inside [ ] is optional: the whole
// segment is dropped when any token in it is empty. Tokens outside brackets are
// required, so a template yields no name when one of them is missing.
//
//	{Series} ({Year}) #{Number:3}[ - {Title}]
package rename

import (
	"fmt"
	"strconv"
	"strings"
)

type part struct {
	literal string
	token   string
	pad     int
}

type segment struct {
	optional bool
	parts    []part
}

// Template is a parsed naming template.
type Template struct {
	raw      string
	segments []segment
}

// Parse compiles a template string.
func Parse(raw string) (*Template, error) {
	t := &Template{raw: raw}
	cur := segment{}
	var lit strings.Builder

	flushLiteral := func() {
		if lit.Len() > 0 {
			cur.parts = append(cur.parts, part{literal: lit.String()})
			lit.Reset()
		}
	}
	flushSegment := func() {
		flushLiteral()
		if len(cur.parts) > 0 {
			t.segments = append(t.segments, cur)
		}
		cur = segment{}
	}

	for i := 0; i < len(raw); i++ {
		switch c := raw[i]; c {
		case '[':
			if cur.optional {
				return nil, fmt.Errorf("nested optional segment at %d", i)
			}
			flushSegment()
			cur.optional = true
		case ']':
			if !cur.optional {
				return nil, fmt.Errorf("unbalanced ']' at %d", i)
			}
			flushSegment()
		case '{':
			end := strings.IndexByte(raw[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unclosed token at %d", i)
			}
			p, err := parseToken(raw[i+1 : i+end])
			if err != nil {
				return nil, err
			}
			flushLiteral()
			cur.parts = append(cur.parts, p)
			i += end
		case '}':
			return nil, fmt.Errorf("unbalanced '}' at %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	if cur.optional {
		return nil, fmt.Errorf("unclosed optional segment")
	}
	flushSegment()

	if len(t.segments) == 0 {
		return nil, fmt.Errorf("empty template")
	}
	return t, nil
}

// MustParse is Parse for templates known at compile time.
func MustParse(raw string) *Template {
	t, err := Parse(raw)
	if err != nil {
		panic(fmt.Sprintf("rename: %v", err))
	}
	return t
}

func parseToken(body string) (part, error) {
	name, padStr, hasPad := strings.Cut(body, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return part{}, fmt.Errorf("empty token name")
	}
	p := part{token: strings.ToLower(name)}
	if hasPad {
		n, err := strconv.Atoi(strings.TrimSpace(padStr))
		if err != nil || n < 0 || n > 10 {
			return part{}, fmt.Errorf("invalid padding %q for token %s", padStr, name)
		}
		p.pad = n
	}
	return p, nil
}

// String returns the source text of the template.
func (t *Template) String() string {
	return t.raw
}

// Tokens lists the lowercased token names the template references.
func (t *Template) Tokens() []string {
	var out []string
	for _, seg := range t.segments {
		for _, p := range seg.parts {
			if p.token != "" {
				out = append(out, p.token)
			}
		}
	}
	return out
}

// Execute renders the template. lookup receives lowercased token names.
// ok is false when a required token resolved to an empty value.
func (t *Template) Execute(lookup func(token string) string) (string, bool) {
	var out strings.Builder
	for _, seg := range t.segments {
		rendered, complete := renderSegment(seg, lookup)
		if !complete {
			if seg.optional {
				continue
			}
			return "", false
		}
		out.WriteString(rendered)
	}
	return out.String(), true
}

func renderSegment(seg segment, lookup func(string) string) (string, bool) {
	var b strings.Builder
	for _, p := range seg.parts {
		if p.token == "" {
			b.WriteString(p.literal)
			continue
		}
		v := strings.TrimSpace(lookup(p.token))
		if v == "" {
			return "", false
		}
		b.WriteString(padNumber(v, p.pad))
	}
	return b.String(), true
}

// padNumber zero-pads the leading integer of v: ("5a", 3) -> "005a".
func padNumber(v string, width int) string {
	if width == 0 {
		return v
	}
	neg := strings.HasPrefix(v, "-")
	body := strings.TrimPrefix(v, "-")

	digits := 0
	for digits < len(body) && body[digits] >= '0' && body[digits] <= '9' {
		digits++
	}
	if digits == 0 {
		return v
	}
	if digits < width {
		body = strings.Repeat("0", width-digits) + body
	}
	if neg {
		return "-" + body
	}
	return body
}
