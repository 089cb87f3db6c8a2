// Package normalize canonicalizes series names, issue numbers and language codes
// so that values from filenames, archives and metadata sources compare equal.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	leadingArticle  = regexp.MustCompile(`^(the|a|an)\s+`)
	numericIssue    = regexp.MustCompile(`^(-?)0*(\d+)(?:\.(\d+))?([a-z]*)$`)
)

// foldMarks strips combining marks after NFKD decomposition ("Pokémon" -> "Pokemon").
var foldMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases and removes diacritics, leaving other characters in place.
func Fold(s string) string {
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// SeriesKey reduces a series name to a comparison key:
// "The Amazing Spider-Man (2018)" -> "amazing spider man 2018".
func SeriesKey(name string) string {
	s := Fold(name)
	s = strings.ReplaceAll(s, "&", " and ")
	s = nonAlphanumeric.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	s = leadingArticle.ReplaceAllString(s, "")
	return s
}

// IssueNumber canonicalizes an issue/chapter number:
// "001" -> "1", "1.0" -> "1", "12.50" -> "12.5", "005a" -> "5a", "½" -> "0.5".
// Non-numeric designations ("Annual") are folded and returned as-is.
func IssueNumber(raw string) string {
	s := Fold(raw)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimSpace(s)
	if s == "½" || s == "1/2" {
		return "0.5"
	}

	m := numericIssue.FindStringSubmatch(s)
	if m == nil {
		return s
	}

	sign, whole, frac, suffix := m[1], m[2], strings.TrimRight(m[3], "0"), m[4]
	if whole == "" {
		whole = "0"
	}
	out := sign + whole
	if frac != "" {
		out += "." + frac
	}
	if out == "-0" {
		out = "0"
	}
	return out + suffix
}

// IssueNumberValue parses a canonical issue number as a float.
// ok is false for designations that carry no numeric value.
func IssueNumberValue(raw string) (value float64, ok bool) {
	n := IssueNumber(raw)
	n = strings.TrimRightFunc(n, unicode.IsLetter)
	v, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Similarity scores two names in [0,1] using the Dice coefficient over
// character bigrams of their series keys.
func Similarity(a, b string) float64 {
	ka, kb := SeriesKey(a), SeriesKey(b)
	if ka == "" || kb == "" {
		return 0
	}
	if ka == kb {
		return 1
	}

	ba, bb := bigrams(ka), bigrams(kb)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	counts := make(map[string]int, len(ba))
	for _, g := range ba {
		counts[g]++
	}
	shared := 0
	for _, g := range bb {
		if counts[g] > 0 {
			counts[g]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ba)+len(bb))
}

func bigrams(s string) []string {
	r := []rune(strings.ReplaceAll(s, " ", ""))
	if len(r) < 2 {
		return nil
	}
	out := make([]string, 0, len(r)-1)
	for i := 0; i < len(r)-1; i++ {
		out = append(out, string(r[i:i+2]))
	}
	return out
}

// iso639_2to1 covers the languages comic sources report most often.
var iso639_2to1 = map[string]string{
	"eng": "en", "jpn": "ja", "kor": "ko", "zho": "zh", "chi": "zh",
	"fra": "fr", "fre": "fr", "deu": "de", "ger": "de", "spa": "es",
	"ita": "it", "por": "pt", "rus": "ru", "pol": "pl", "nld": "nl",
	"dut": "nl", "vie": "vi", "tha": "th", "ind": "id", "tur": "tr",
}

var languageNames = map[string]string{
	"english": "en", "japanese": "ja", "korean": "ko", "chinese": "zh",
	"french": "fr", "german": "de", "spanish": "es", "italian": "it",
	"portuguese": "pt", "russian": "ru",
}

// LanguageCode converts "eng", "en-US", "ja-ro", "English" to an ISO 639-1 code.
// Returns "" when the value is not recognized.
func LanguageCode(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if name, ok := languageNames[s]; ok {
		return name
	}
	if idx := strings.IndexAny(s, "-_"); idx > 0 {
		s = s[:idx]
	}
	if len(s) == 2 {
		return s
	}
	return iso639_2to1[s]
}
