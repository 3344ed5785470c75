// Package stage keeps a private copy of the whisper.cpp source tree in the
// build output directory.
//
// A tree is staged at most once. It is first written to a temporary sibling
// and renamed into place only when complete, so the presence of the
// destination always means a full copy.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/otiai10/copy"
)

var ErrDestinationExists = errors.New("destination exists and is not a directory")

// Error records a failed staging operation and the path it failed on.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return "stage " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Stager stages source trees. The zero value is ready to use.
type Stager struct {
	// Copy fills dst from src. dst does not exist when Copy is called.
	// Defaults to a recursive copy for directories and extraction for
	// .tar.xz archives.
	Copy func(ctx context.Context, src, dst string) error
}

// Source stages src under outDir with the default Stager.
func Source(ctx context.Context, src, outDir string) (string, error) {
	var s Stager
	return s.Source(ctx, src, outDir)
}

// Name is the directory src is staged as.
func Name(src string) string {
	base := filepath.Base(filepath.Clean(src))
	for _, ext := range archiveExts {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// Source returns the staged copy of src under outDir, creating it if it
// does not exist yet.
func (s *Stager) Source(ctx context.Context, src, outDir string) (string, error) {
	dst := filepath.Join(outDir, Name(src))

	fi, err := os.Stat(dst)
	switch {
	case err == nil && fi.IsDir():
		slog.Debug("source already staged", "path", dst)
		return dst, nil
	case err == nil:
		return "", &Error{Op: "check", Path: dst, Err: ErrDestinationExists}
	case !errors.Is(err, os.ErrNotExist):
		return "", &Error{Op: "check", Path: dst, Err: err}
	}

	if _, err := os.Stat(src); err != nil {
		return "", &Error{Op: "open", Path: src, Err: err}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", &Error{Op: "mkdir", Path: outDir, Err: err}
	}

	tmp := filepath.Join(outDir, fmt.Sprintf(".%s-%s", filepath.Base(dst), uuid.NewString()))
	defer os.RemoveAll(tmp)

	slog.Info("staging source", "src", src, "dst", dst)
	if err := s.copy(ctx, src, tmp); err != nil {
		return "", &Error{Op: "copy", Path: src, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.Rename(tmp, dst); err != nil {
		return "", &Error{Op: "publish", Path: dst, Err: err}
	}

	return dst, nil
}

func (s *Stager) copy(ctx context.Context, src, dst string) error {
	if s.Copy != nil {
		return s.Copy(ctx, src, dst)
	}
	if IsArchive(src) {
		return extract(ctx, src, dst)
	}
	return copyTree(src, dst)
}

func copyTree(src, dst string) error {
	return copy.Copy(src, dst, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Shallow },
		Skip: func(fi os.FileInfo, _, _ string) (bool, error) {
			return fi.Name() == ".git", nil
		},
		PreserveTimes: true,
	})
}

// Clean removes the staged copy of src from outDir.
func Clean(src, outDir string) error {
	dst := filepath.Join(outDir, Name(src))
	if err := os.RemoveAll(dst); err != nil {
		return &Error{Op: "clean", Path: dst, Err: err}
	}
	return nil
}
