package rename

import (
	"context"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/logger"
)

// Default templates per library type.
const (
	DefaultWesternTemplate = "{Series}[ ({Year})] #{Number:3}"
	DefaultMangaTemplate   = "{Series}[ v{Volume:2}][ c{Number:3}]"
)

// maxNameBytes keeps names under common filesystem limits once the extension is added.
const maxNameBytes = 240

// LibraryLookup resolves the library a file belongs to.
type LibraryLookup interface {
	GetLibrary(ctx context.Context, id string) (*domain.Library, error)
}

// Context carries what the template cannot read from the metadata itself.
type Context struct {
	LibraryID string
	FilePath  string

	// Series fills Series/Year/Publisher when the metadata leaves them empty.
	Series *domain.SeriesMatch
}

// Engine proposes filenames from metadata and per-library templates.
type Engine struct {
	libraries LibraryLookup
	western   *Template
	manga     *Template
	logger    *slog.Logger
}

// NewEngine creates a rename engine. libraries may be nil, in which case the
// per-type defaults always apply.
func NewEngine(libraries LibraryLookup, log *slog.Logger) *Engine {
	return &Engine{
		libraries: libraries,
		western:   MustParse(DefaultWesternTemplate),
		manga:     MustParse(DefaultMangaTemplate),
		logger:    logger.OrDiscard(log),
	}
}

// Propose returns the filename (with extension) the metadata maps to.
// ok is false when the template's required tokens cannot be filled.
func (e *Engine) Propose(ctx context.Context, md domain.ComicMetadata, rc Context) (string, bool) {
	tmpl := e.templateFor(ctx, rc.LibraryID, md)

	name, ok := tmpl.Execute(func(token string) string {
		return lookupToken(&md, rc.Series, token)
	})
	if !ok {
		return "", false
	}

	name = Sanitize(name)
	if name == "" {
		return "", false
	}
	if len(name) > maxNameBytes {
		name = truncateUTF8(name, maxNameBytes)
	}
	return name + strings.ToLower(filepath.Ext(rc.FilePath)), true
}

func (e *Engine) templateFor(ctx context.Context, libraryID string, md domain.ComicMetadata) *Template {
	fallback := e.western
	if md.Manga == "Yes" || md.Manga == "YesAndRightToLeft" {
		fallback = e.manga
	}
	if e.libraries == nil || libraryID == "" {
		return fallback
	}

	lib, err := e.libraries.GetLibrary(ctx, libraryID)
	if err != nil || lib == nil {
		e.logger.Debug("rename template fallback", "library_id", libraryID, "error", err)
		return fallback
	}

	if lib.RenameTemplate != "" {
		t, err := Parse(lib.RenameTemplate)
		if err == nil {
			return t
		}
		e.logger.Warn("invalid library rename template", "library_id", libraryID, "template", lib.RenameTemplate, "error", err)
	}
	if lib.Type == domain.LibraryTypeManga {
		return e.manga
	}
	return fallback
}

func lookupToken(md *domain.ComicMetadata, series *domain.SeriesMatch, token string) string {
	for _, name := range domain.MetadataFieldNames() {
		if strings.EqualFold(name, token) {
			if v := md.Get(name); v != "" {
				return v
			}
			break
		}
	}
	if series == nil {
		return ""
	}
	switch token {
	case "series":
		return series.Name
	case "publisher":
		return series.Publisher
	case "year", "startyear":
		if series.StartYear > 0 {
			return strconv.Itoa(series.StartYear)
		}
	}
	return ""
}

var invalidChars = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", " -",
	"*", "",
	"?", "",
	"\"", "'",
	"<", "",
	">", "",
	"|", "-",
	"\n", " ",
	"\t", " ",
)

// Sanitize makes a name safe for common filesystems: path separators and
// reserved characters are replaced, whitespace collapsed, trailing dots removed.
func Sanitize(name string) string {
	name = norm.NFC.String(name)
	name = invalidChars.Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	return strings.TrimRight(name, ". ")
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return strings.TrimRight(s[:n], ". ")
}
