// Package cmake drives the native build of the staged whisper.cpp tree.
package cmake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ollama/whispersys/internal/command"
	"github.com/ollama/whispersys/link"
	"github.com/ollama/whispersys/logutil"
	"github.com/ollama/whispersys/resolve"
)

const (
	DefaultProgram   = "cmake"
	DefaultBuildType = "Release"
)

// Artifact is the installed output of a build.
type Artifact = link.Artifact

type (
	Command    = command.Command
	Runner     = command.Runner
	RunnerFunc = command.RunnerFunc
)

// Entries is an ordered set of cache entries.
type Entries interface {
	All() iter.Seq2[string, string]
}

type Request struct {
	// SourceDir is the staged source tree.
	SourceDir string
	// OutDir receives the build tree and the install prefix.
	OutDir string
	Config Entries
}

type Driver struct {
	Runner  Runner
	Program string
	// Generator is passed with -G when set.
	Generator string
	// Jobs limits build parallelism. Zero leaves it to the generator.
	Jobs int
	Env  []string
}

// Defines returns the cache entries for req: the fixed baseline overlaid
// with every entry of req.Config.
func Defines(req Request) *resolve.Config {
	defines := resolve.NewConfig()
	defines.Set("CMAKE_BUILD_TYPE", DefaultBuildType)
	defines.Set("BUILD_SHARED_LIBS", "OFF")
	defines.Set("WHISPER_ALL_WARNINGS", "OFF")
	defines.Set("WHISPER_ALL_WARNINGS_3RD_PARTY", "OFF")
	defines.Set("WHISPER_BUILD_TESTS", "OFF")
	defines.Set("WHISPER_BUILD_EXAMPLES", "OFF")
	defines.Set("CMAKE_POSITION_INDEPENDENT_CODE", "ON")
	defines.Set("CMAKE_INSTALL_PREFIX", req.OutDir)
	defines.Set("CMAKE_INSTALL_LIBDIR", "lib")
	defines.Set("CMAKE_VERBOSE_MAKEFILE", "ON")

	if req.Config != nil {
		for k, v := range req.Config.All() {
			defines.Set(k, v)
		}
	}
	return defines
}

// Build configures, builds and installs the tree. It blocks until the build
// tool exits.
func (d *Driver) Build(ctx context.Context, req Request) (Artifact, error) {
	if req.SourceDir == "" || req.OutDir == "" {
		return Artifact{}, fmt.Errorf("cmake: source and output directories are required")
	}

	buildDir := filepath.Join(req.OutDir, "build")
	defines := Defines(req)
	buildType, _ := defines.Get("CMAKE_BUILD_TYPE")

	configure := []string{"-S", req.SourceDir, "-B", buildDir}
	if d.Generator != "" {
		configure = append(configure, "-G", d.Generator)
	}
	for k, v := range defines.All() {
		configure = append(configure, "-D"+k+"="+v)
	}

	build := []string{"--build", buildDir, "--target", "install", "--config", buildType}
	if d.Jobs > 0 {
		build = append(build, "--parallel", strconv.Itoa(d.Jobs))
	}

	for _, step := range []struct {
		name string
		args []string
	}{
		{"configure", configure},
		{"build", build},
	} {
		if err := d.run(ctx, step.name, step.args); err != nil {
			return Artifact{}, err
		}
	}

	return Artifact{
		Prefix:   req.OutDir,
		BuildDir: buildDir,
		LibDir:   filepath.Join(req.OutDir, "lib"),
	}, nil
}

func (d *Driver) run(ctx context.Context, step string, args []string) error {
	runner := d.Runner
	if runner == nil {
		runner = command.Exec()
	}

	var out bytes.Buffer
	lw := logutil.NewLineWriter(slog.Default(), slog.LevelDebug, "step", step)
	cmd := Command{
		Name:   d.program(),
		Args:   args,
		Env:    d.Env,
		Output: io.MultiWriter(&out, lw),
	}

	slog.Info("running native build step", "step", step)
	slog.Debug("native build command", "step", step, "cmd", cmd.String())

	start := time.Now()
	err := runner.Run(ctx, cmd)
	lw.Close()
	if err != nil {
		return &BuildError{Step: step, Command: cmd.String(), Output: out.String(), Err: err}
	}

	slog.Info("native build step finished", "step", step, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func (d *Driver) program() string {
	if d.Program != "" {
		return d.Program
	}
	return DefaultProgram
}

// Check reports whether the build tool can be found.
func (d *Driver) Check() error {
	if _, err := exec.LookPath(d.program()); err != nil {
		return fmt.Errorf("%s is required to build whisper.cpp: %w", d.program(), err)
	}
	return nil
}
