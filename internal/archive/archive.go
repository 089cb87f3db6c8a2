// Package archive reads and writes ComicInfo.xml metadata embedded in comic
// archives and converts non-zip archives to CBZ.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/logger"
)

// ComicInfoName is the conventional metadata entry name.
const ComicInfoName = "ComicInfo.xml"

var (
	// ErrUnsupportedFormat is returned for archives that cannot be read in place.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrNoExtractor is returned when conversion is requested without an extractor binary.
	ErrNoExtractor = errors.New("no archive extractor available")
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".avif": true, ".bmp": true,
}

// Config configures archive handling.
type Config struct {
	// ExtractorPath is the 7z or unar binary used for conversion.
	// Empty means look one up on PATH.
	ExtractorPath string
}

// Store reads, merges and converts comic archives on the local filesystem.
type Store struct {
	extractor string
	logger    *slog.Logger
}

// New creates an archive store. Conversion is disabled when no extractor is found.
func New(cfg Config, log *slog.Logger) *Store {
	s := &Store{
		extractor: cfg.ExtractorPath,
		logger:    logger.OrDiscard(log),
	}
	if s.extractor == "" {
		s.extractor = findExtractor()
	}
	if s.extractor == "" {
		s.logger.Warn("no 7z or unar found, archive conversion disabled")
	} else {
		s.logger.Info("using archive extractor", slog.String("path", s.extractor))
	}
	return s
}

// IsZip reports whether path has a zip-based comic extension.
func IsZip(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".cbz", ".zip":
		return true
	}
	return false
}

// NeedsConversion reports whether the archive must be converted to CBZ before
// its metadata can be written.
func NeedsConversion(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".cbr", ".rar", ".cb7", ".7z":
		return true
	}
	return false
}

// NeedsConversion reports whether the archive at p must be converted first.
func (s *Store) NeedsConversion(p string) bool {
	return NeedsConversion(p)
}

// ReadAll returns the complete embedded metadata of a CBZ. An archive with no
// ComicInfo.xml yields empty metadata carrying only the page count.
func (s *Store) ReadAll(ctx context.Context, p string) (*domain.ComicMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !IsZip(p) {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(p), ErrUnsupportedFormat)
	}

	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	md := &domain.ComicMetadata{}
	pages := 0
	for _, f := range zr.File {
		if isImage(f.Name) {
			pages++
		}
		if !isComicInfo(f.Name) {
			continue
		}
		if err := decodeComicInfo(f, md); err != nil {
			return nil, err
		}
	}

	if md.PageCount == "" && pages > 0 {
		md.PageCount = fmt.Sprint(pages)
	}
	return md, nil
}

// Merge overlays the non-empty values of fields onto the archive's embedded
// metadata and rewrites the archive atomically.
func (s *Store) Merge(ctx context.Context, p string, fields map[string]string) error {
	md, err := s.ReadAll(ctx, p)
	if err != nil {
		return err
	}
	md.Merge(fields)

	if err := s.rewrite(ctx, p, md); err != nil {
		return fmt.Errorf("write metadata to %s: %w", filepath.Base(p), err)
	}

	s.logger.Debug("merged archive metadata",
		slog.String("path", p),
		slog.Int("fields", len(fields)),
	)
	return nil
}

// rewrite copies every entry except ComicInfo.xml into a temp file next to p,
// appends the new ComicInfo.xml and renames the temp file over p.
func (s *Store) rewrite(ctx context.Context, p string, md *domain.ComicMetadata) (err error) {
	info, err := os.Stat(p)
	if err != nil {
		return err
	}

	zr, err := zip.OpenReader(p)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	tmpPath := tempName(p)
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(out)
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if isComicInfo(f.Name) {
			continue
		}
		if err := zw.Copy(f); err != nil {
			return fmt.Errorf("copy %s: %w", f.Name, err)
		}
	}

	if err := writeComicInfo(zw, md); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync temp archive: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close temp archive: %w", err)
	}
	zr.Close()

	return os.Rename(tmpPath, p)
}

func decodeComicInfo(f *zip.File, md *domain.ComicMetadata) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	if err := xml.NewDecoder(rc).Decode(md); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", f.Name, err)
	}
	return nil
}

func writeComicInfo(zw *zip.Writer, md *domain.ComicMetadata) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(md); err != nil {
		return fmt.Errorf("encode %s: %w", ComicInfoName, err)
	}
	buf.WriteByte('\n')

	w, err := zw.Create(ComicInfoName)
	if err != nil {
		return fmt.Errorf("create %s: %w", ComicInfoName, err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func isComicInfo(name string) bool {
	return strings.EqualFold(path.Base(name), ComicInfoName)
}

func isImage(name string) bool {
	base := path.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(name, "__MACOSX/") {
		return false
	}
	return imageExts[strings.ToLower(path.Ext(base))]
}

func tempName(p string) string {
	return filepath.Join(filepath.Dir(p), "."+filepath.Base(p)+"."+uuid.NewString()+".tmp")
}
