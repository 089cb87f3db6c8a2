// Package filename recovers series and numbering hints from comic archive names.
package filename

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// Result is what could be inferred from a filename. Empty fields were not found.
type Result struct {
	Series    string `json:"series,omitempty"`
	Number    string `json:"number,omitempty"`
	Volume    string `json:"volume,omitempty"`
	Chapter   string `json:"chapter,omitempty"`
	Year      int    `json:"year,omitempty"`
	Publisher string `json:"publisher,omitempty"`
}

var (
	leadingTag   = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*`)
	yearTag      = regexp.MustCompile(`[\(\[]((?:19|20)\d{2})[\)\]]`)
	bracketed    = regexp.MustCompile(`\s*[\(\[][^\)\]]*[\)\]]`)
	volumeToken  = regexp.MustCompile(`(?i)(?:^|[\s_.-])(?:v|vol\.?|volume)\s*(\d+(?:\.\d+)?)\b`)
	chapterToken = regexp.MustCompile(`(?i)(?:^|[\s_.-])(?:c|ch\.?|chap\.?|chapter)\s*(\d+(?:\.\d+)?)\b`)
	hashNumber   = regexp.MustCompile(`#\s*(-?\d+(?:\.\d+)?[a-zA-Z]?)`)
	bareNumber   = regexp.MustCompile(`(?:^|\s)(-?\d{1,4}(?:\.\d+)?[a-zA-Z]?)(?:\s+of\s+\d+)?\s*$`)
	anyNumber    = regexp.MustCompile(`\d+(?:\.\d+)?`)
	spaces       = regexp.MustCompile(`\s+`)
	trailingJunk = regexp.MustCompile(`[\s\-:,#]+$`)
)

// Parser extracts series and numbering from filenames.
type Parser struct{}

// NewParser creates a filename parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse infers what it can from a filename. It never fails; unknown parts are left empty.
func (p *Parser) Parse(name string) Result {
	var r Result

	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	if m := leadingTag.FindStringSubmatch(base); m != nil {
		r.Publisher = strings.TrimSpace(m[1])
		base = base[len(m[0]):]
	}

	if m := yearTag.FindStringSubmatch(base); m != nil {
		r.Year, _ = strconv.Atoi(m[1])
	}
	base = bracketed.ReplaceAllString(base, " ")
	base = cleanSeparators(base)

	// The series name ends where the first numbering token starts.
	cut := len(base)

	if loc := volumeToken.FindStringSubmatchIndex(base); loc != nil {
		r.Volume = normalize.IssueNumber(base[loc[2]:loc[3]])
		cut = min(cut, loc[0])
	}
	if loc := chapterToken.FindStringSubmatchIndex(base); loc != nil {
		r.Chapter = normalize.IssueNumber(base[loc[2]:loc[3]])
		cut = min(cut, loc[0])
	}
	if loc := hashNumber.FindStringSubmatchIndex(base); loc != nil {
		r.Number = normalize.IssueNumber(base[loc[2]:loc[3]])
		cut = min(cut, loc[0])
	} else if r.Volume == "" && r.Chapter == "" {
		if loc := bareNumber.FindStringSubmatchIndex(base); loc != nil && loc[2] > 0 {
			r.Number = normalize.IssueNumber(base[loc[2]:loc[3]])
			cut = min(cut, loc[0])
		}
	}

	r.Series = trailingJunk.ReplaceAllString(strings.TrimSpace(base[:cut]), "")
	return r
}

// LastNumber is the last-resort extraction: the final number anywhere in the name,
// ignoring four-digit years in brackets. Returns "" when the name has no digits.
func LastNumber(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = yearTag.ReplaceAllString(base, " ")
	matches := anyNumber.FindAllString(base, -1)
	if len(matches) == 0 {
		return ""
	}
	return normalize.IssueNumber(matches[len(matches)-1])
}

// cleanSeparators turns underscores and word dots into spaces while keeping
// decimal points inside numbers ("Vol.5" -> "Vol 5", "#12.5" stays).
func cleanSeparators(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch c {
		case '_':
			b[i] = ' '
		case '.':
			if i > 0 && i < len(b)-1 && isDigit(b[i-1]) && isDigit(b[i+1]) {
				continue
			}
			b[i] = ' '
		}
	}
	return strings.TrimSpace(spaces.ReplaceAllString(string(b), " "))
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
