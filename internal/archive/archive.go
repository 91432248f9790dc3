// Package archive backs up a station store folder into a zip file and restores it.
//
// Restore checks every entry against the destination folder and skips entries that would land
// outside it (zip-slip), recording each one as an [EntryViolation] while the rest of the archive
// is still extracted.
package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/stationsync/internal/shared"
)

const (
	backupBufferSize  = 2048
	restoreBufferSize = 1024
)

// Notifier is told that restored files may have changed the collection.
type Notifier interface {
	NotifyCollectionChanged(modificationDate time.Time)
}

// EntryViolation is an archive entry whose path escapes the destination folder.
type EntryViolation struct {
	Name string
	Path string
}

func (e *EntryViolation) Error() string {
	return fmt.Sprintf("%s: %s", shared.ErrEntryViolation, e.Name)
}

func (e *EntryViolation) Unwrap() error { return shared.ErrEntryViolation }

// RestoreResult summarizes one restore.
type RestoreResult struct {
	Files    int
	Dirs     int
	Rejected []*EntryViolation
	// Failed holds per-entry errors other than violations.
	Failed []error
}

// Service implements backup and restore. It performs no internal concurrency.
type Service struct {
	logger   *log.Logger
	notifier Notifier
	now      func() time.Time
}

func New(logger *log.Logger, notifier Notifier) *Service {
	return &Service{
		logger:   shared.WithLogger(logger, "component", "archive"),
		notifier: notifier,
		now:      time.Now,
	}
}

// BackupFile writes a backup of sourceDir to dest. When dest is inside sourceDir it is left
// out of the archive.
func (s *Service) BackupFile(ctx context.Context, sourceDir, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create backup folder: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}

	if err := s.backup(ctx, sourceDir, f, dest); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close backup: %w", err)
	}
	return nil
}

// Backup streams every file under sourceDir into a zip written to w. Entry names are
// slash-separated paths relative to sourceDir; entry times mirror the files' modification times.
func (s *Service) Backup(ctx context.Context, sourceDir string, w io.Writer) error {
	return s.backup(ctx, sourceDir, w, "")
}

func (s *Service) backup(ctx context.Context, sourceDir string, w io.Writer, skip string) error {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("unable to access source folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", shared.ErrInvalidInput, sourceDir)
	}
	if skip != "" {
		if abs, err := filepath.Abs(skip); err == nil {
			skip = abs
		}
	}
	root, err := filepath.Abs(sourceDir)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	buf := make([]byte, backupBufferSize)
	files := 0

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root || path == skip {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		switch {
		case d.IsDir():
			return s.addEmptyDir(zw, path, name)
		case d.Type().IsRegular():
			files++
			return addFile(zw, path, name, buf)
		default:
			s.logger.Debug("skipping non-regular file", "path", path)
			return nil
		}
	})
	if walkErr != nil {
		zw.Close()
		return fmt.Errorf("backup failed: %w", walkErr)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}

	s.logger.Info("backup complete", "source", sourceDir, "files", files)
	return nil
}

// addEmptyDir records directories without children so that they survive a round trip.
func (s *Service) addEmptyDir(zw *zip.Writer, path, name string) error {
	entries, err := os.ReadDir(path)
	if err != nil || len(entries) > 0 {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	header := &zip.FileHeader{Name: name + "/", Modified: info.ModTime()}
	header.SetMode(info.Mode())
	_, err = zw.CreateHeader(header)
	return err
}

func addFile(zw *zip.Writer, path, name string, buf []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate
	header.Modified = info.ModTime()

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	// hide WriterTo so the fixed buffer is used
	_, err = io.CopyBuffer(w, struct{ io.Reader }{f}, buf)
	return err
}

// RestoreFile restores the zip at src into destDir.
func (s *Service) RestoreFile(ctx context.Context, src, destDir string) (*RestoreResult, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return s.Restore(ctx, f, info.Size(), destDir)
}

// Restore extracts the zip in r into destDir. Each entry must resolve strictly inside destDir;
// entries that do not are rejected and skipped. Other per-entry errors are collected and
// extraction continues. Collaborators are notified once every entry has been processed.
func (s *Service) Restore(ctx context.Context, r io.ReaderAt, size int64, destDir string) (*RestoreResult, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}
	dest, err := canonicalize(destDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination: %w", err)
	}

	result := &RestoreResult{}
	buf := make([]byte, restoreBufferSize)

	for _, entry := range zr.File {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		target, err := entryPath(dest, entry.Name)
		if err != nil {
			var violation *EntryViolation
			if errors.As(err, &violation) {
				s.logger.Warn("rejected archive entry", "entry", entry.Name, "resolved", violation.Path)
				result.Rejected = append(result.Rejected, violation)
			} else {
				result.Failed = append(result.Failed, err)
			}
			continue
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				s.logger.Warn("failed to create directory", "path", target, "error", err)
				result.Failed = append(result.Failed, err)
				continue
			}
			result.Dirs++
			continue
		}

		if err := extractFile(entry, target, buf); err != nil {
			s.logger.Error("unable to safely create file", "entry", entry.Name, "error", err)
			result.Failed = append(result.Failed, fmt.Errorf("%s: %w", entry.Name, err))
			continue
		}
		result.Files++
	}

	s.logger.Info("restore complete", "destination", destDir, "files", result.Files, "rejected", len(result.Rejected), "failed", len(result.Failed))
	if s.notifier != nil {
		s.notifier.NotifyCollectionChanged(s.now())
	}
	return result, nil
}

// entryPath resolves name under the canonical destination and requires the canonical result
// to start with dest plus a separator.
func entryPath(dest, name string) (string, error) {
	normalized := strings.ReplaceAll(name, `\`, "/")
	target := filepath.Join(dest, filepath.FromSlash(normalized))

	resolved, err := canonicalize(target)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(resolved, dest+string(filepath.Separator)) {
		return "", &EntryViolation{Name: name, Path: resolved}
	}
	return target, nil
}

func extractFile(entry *zip.File, target string, buf []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.CopyBuffer(out, struct{ io.Reader }{rc}, buf); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if !entry.Modified.IsZero() {
		_ = os.Chtimes(target, entry.Modified, entry.Modified)
	}
	return nil
}

// canonicalize returns the absolute path with symlinks resolved. Trailing components that do
// not exist yet are appended to the resolved form of their deepest existing ancestor.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	existing, rest := abs, ""
	for {
		resolved, err := filepath.EvalSymlinks(existing)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}
