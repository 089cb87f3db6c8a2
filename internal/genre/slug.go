// Package genre normalizes genre names reported by metadata sources.
// Comic Vine concepts and MangaDex tags spell the same genre many ways;
// everything is reduced to a slug before alias lookup.
package genre

import (
	"strings"

	"github.com/inkwellapp/inkwell-server/internal/normalize"
)

// Slugify reduces a genre name to its lookup key:
// "Sci-Fi/Fantasy" -> "sci-fi-fantasy", "Shōnen" -> "shonen",
// "Girls' Love" -> "girls-love".
// Apostrophes vanish; any other run of non-alphanumerics becomes one hyphen.
func Slugify(s string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range normalize.Fold(s) {
		switch {
		case r == '\'' || r == '’':
			continue
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return b.String()
}
