// Package bindgen produces the Go declarations for the whisper C API.
//
// Bindings are generated with c-for-go when it is available. Generation is
// best effort: when it fails, the bundled copy of the bindings that ships
// with this module is used instead, which may lag behind the headers.
package bindgen

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"github.com/ollama/whispersys/internal/command"
	"github.com/ollama/whispersys/logutil"
)

//go:embed bindings.go.in
var bundled []byte

const (
	DefaultProgram = "c-for-go"
	DefaultPackage = "whisper"

	// Dir is the directory under the output dir holding the bindings.
	Dir = "bindings"
)

// Bundled returns the bindings that ship with this module.
func Bundled() []byte { return bytes.Clone(bundled) }

type Request struct {
	// Header is the entry point of generation. It includes the whisper API.
	Header      string
	IncludeDirs []string
	OutDir      string
	// Package defaults to DefaultPackage.
	Package string
	// Skip goes straight to the bundled bindings.
	Skip bool
	// Fallback replaces the embedded bundled bindings when set.
	Fallback string
}

func (r Request) absolute() (Request, error) {
	var err error
	abs := func(p string) string {
		if p == "" || err != nil {
			return p
		}
		var a string
		a, err = filepath.Abs(p)
		return a
	}

	r.Header = abs(r.Header)
	r.OutDir = abs(r.OutDir)
	r.Fallback = abs(r.Fallback)
	dirs := make([]string, len(r.IncludeDirs))
	for i, dir := range r.IncludeDirs {
		dirs[i] = abs(dir)
	}
	r.IncludeDirs = dirs
	return r, err
}

type Result struct {
	// Dir is the package directory holding the bindings.
	Dir string
	// Fallback is true when the bundled bindings were used.
	Fallback bool
	// Cause is the generation failure that triggered the fallback.
	Cause error
}

type Generator struct {
	Runner  command.Runner
	Program string
}

// Generate writes the bindings to req.OutDir/bindings. Only a failure to
// write the bundled bindings is returned as an error.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	if req.Package == "" {
		req.Package = DefaultPackage
	}

	// the generator runs from the header's directory
	req, err := req.absolute()
	if err != nil {
		return Result{}, err
	}
	dst := filepath.Join(req.OutDir, Dir)

	if req.Skip {
		slog.Debug("binding generation disabled, using bundled bindings")
		return g.fallback(req, dst, nil)
	}

	if err := g.generate(ctx, req, dst); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		slog.Warn("unable to generate bindings", "error", err)
		slog.Warn("using bundled bindings, which may be out of date")
		return g.fallback(req, dst, err)
	}

	return Result{Dir: dst}, nil
}

func (g *Generator) generate(ctx context.Context, req Request, dst string) error {
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return err
	}

	tmp, err := os.MkdirTemp(req.OutDir, ".bindgen-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	manifest := filepath.Join(tmp, req.Package+".yml")
	if err := NewManifest(req.Package, req.Header, req.IncludeDirs).WriteFile(manifest); err != nil {
		return err
	}

	runner := g.Runner
	if runner == nil {
		runner = command.Exec()
	}

	var out bytes.Buffer
	lw := logutil.NewLineWriter(slog.Default(), logutil.LevelTrace, "step", "bindgen")
	cmd := command.Command{
		Name:   g.program(),
		Args:   []string{"-out", tmp, "-nostamp", manifest},
		Dir:    filepath.Dir(req.Header),
		Output: io.MultiWriter(&out, lw),
	}
	slog.Debug("generating bindings", "cmd", cmd.String())
	err = runner.Run(ctx, cmd)
	lw.Close()
	if err != nil {
		if msg := bytes.TrimSpace(out.Bytes()); len(msg) > 0 {
			return fmt.Errorf("%s: %w: %s", g.program(), err, msg)
		}
		return fmt.Errorf("%s: %w", g.program(), err)
	}

	generated := filepath.Join(tmp, req.Package)
	if matches, _ := filepath.Glob(filepath.Join(generated, "*.go")); len(matches) == 0 {
		return fmt.Errorf("%s produced no Go files in %s", g.program(), generated)
	}

	return publish(generated, dst)
}

func (g *Generator) fallback(req Request, dst string, cause error) (Result, error) {
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("bundled bindings: %w", err)
	}

	tmp, err := os.MkdirTemp(req.OutDir, ".bindings-")
	if err != nil {
		return Result{}, fmt.Errorf("bundled bindings: %w", err)
	}
	defer os.RemoveAll(tmp)

	src := bundled
	if req.Fallback != "" {
		if src, err = os.ReadFile(req.Fallback); err != nil {
			return Result{}, fmt.Errorf("bundled bindings: %w", err)
		}
	}

	src, err = renamePackage(src, req.Package)
	if err != nil {
		return Result{}, fmt.Errorf("bundled bindings: %w", err)
	}

	if err := os.WriteFile(filepath.Join(tmp, req.Package+".go"), src, 0o644); err != nil {
		return Result{}, fmt.Errorf("bundled bindings: %w", err)
	}

	if err := publish(tmp, dst); err != nil {
		return Result{}, fmt.Errorf("bundled bindings: %w", err)
	}
	return Result{Dir: dst, Fallback: true, Cause: cause}, nil
}

var packageClause = regexp.MustCompile(`(?m)^package[ \t]+([A-Za-z_][A-Za-z0-9_]*)`)

// renamePackage rewrites the package clause of src to pkg.
func renamePackage(src []byte, pkg string) ([]byte, error) {
	loc := packageClause.FindSubmatchIndex(src)
	if loc == nil {
		return nil, errors.New("no package clause")
	}
	if string(src[loc[2]:loc[3]]) == pkg {
		return src, nil
	}

	out := make([]byte, 0, len(src)+len(pkg))
	out = append(out, src[:loc[2]]...)
	out = append(out, pkg...)
	return append(out, src[loc[3]:]...), nil
}

// publish replaces dst with the complete directory src.
func publish(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func (g *Generator) program() string {
	if g.Program != "" {
		return g.Program
	}
	return DefaultProgram
}

var ErrGeneratorNotFound = errors.New("binding generator not found")

// Check reports whether the generator is installed. A missing generator is
// not fatal to a build.
func (g *Generator) Check() error {
	if _, err := exec.LookPath(g.program()); err != nil {
		return fmt.Errorf("%w: %s", ErrGeneratorNotFound, g.program())
	}
	return nil
}
