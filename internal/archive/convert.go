package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// findExtractor looks for a supported extractor on PATH.
func findExtractor() string {
	for _, name := range []string{"7zz", "7z", "7za", "unar"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// extractArgs builds the command line that extracts src into dir.
func extractArgs(extractor, src, dir string) []string {
	if strings.HasPrefix(filepath.Base(extractor), "unar") {
		return []string{"-quiet", "-force-overwrite", "-no-directory", "-output-directory", dir, src}
	}
	return []string{"x", "-y", "-bd", "-o" + dir, src}
}

// Convert repacks a RAR or 7z archive as CBZ next to the original, removes the
// original and returns the new path. Zip archives are returned unchanged.
func (s *Store) Convert(ctx context.Context, src string) (string, error) {
	if !NeedsConversion(src) {
		return src, nil
	}
	if s.extractor == "" {
		return "", ErrNoExtractor
	}

	dest := strings.TrimSuffix(src, filepath.Ext(src)) + ".cbz"
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("convert %s: %s already exists", filepath.Base(src), filepath.Base(dest))
	}

	workDir, err := os.MkdirTemp("", "inkwell-convert-*")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	args := extractArgs(s.extractor, src, workDir)
	s.logger.Debug("extracting archive",
		slog.String("path", src),
		slog.Any("args", args),
	)

	cmd := exec.CommandContext(ctx, s.extractor, args...) //nolint:gosec // extractor comes from config or exec.LookPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("extract %s: %w: %s", filepath.Base(src), err, strings.TrimSpace(string(out)))
	}

	if err := packDir(ctx, workDir, dest); err != nil {
		return "", err
	}

	if err := os.Remove(src); err != nil {
		s.logger.Warn("converted archive but could not remove original",
			slog.String("path", src),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("converted archive",
		slog.String("from", src),
		slog.String("to", dest),
	)
	return dest, nil
}

// packDir zips every regular file under dir, in path order, into dest.
func packDir(ctx context.Context, dir, dest string) (err error) {
	var files []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk extracted files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("archive %s extracted no files", filepath.Base(dest))
	}
	slices.Sort(files)

	tmpPath := tempName(dest)
	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
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
	for _, p := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if err := addFile(zw, p, filepath.ToSlash(rel)); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	if err := out.Sync(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dest)
}

func addFile(zw *zip.Writer, p, name string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	// Page images are already compressed.
	hdr.Method = zip.Store
	if !isImage(name) {
		hdr.Method = zip.Deflate
	}

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	_, err = io.Copy(w, f)
	return err
}
