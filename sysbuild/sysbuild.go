// Package sysbuild runs a complete native build of whisper.cpp: staging,
// bindings, capability resolution, the cmake build and the link plan.
package sysbuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ollama/whispersys/bindgen"
	"github.com/ollama/whispersys/capability"
	"github.com/ollama/whispersys/cmake"
	"github.com/ollama/whispersys/envconfig"
	"github.com/ollama/whispersys/link"
	"github.com/ollama/whispersys/platform"
	"github.com/ollama/whispersys/resolve"
	"github.com/ollama/whispersys/stage"
)

type Options struct {
	Settings envconfig.Settings
	// Env is consulted by capability resolution. Defaults to the process
	// environment.
	Env envconfig.Lookup

	Driver    *cmake.Driver
	Generator *bindgen.Generator
	Stager    *stage.Stager
}

type Result struct {
	ID     string
	Triple platform.Triple
	Flags  capability.Set
	OutDir string

	// SourceDir is the staged source tree.
	SourceDir string
	Bindings  bindgen.Result

	Resolution *resolve.Resolution
	// Defines is the complete cache passed to cmake.
	Defines  *resolve.Config
	Artifact cmake.Artifact
	Plan     link.Plan

	// DocsOnly is set when the native build was skipped.
	DocsOnly bool
}

func (o *Options) setDefaults() {
	if o.Env == nil {
		o.Env = envconfig.OS()
	}
	if o.Driver == nil {
		o.Driver = &cmake.Driver{}
	}
	if o.Driver.Generator == "" {
		o.Driver.Generator = envconfig.Var(o.Env, envconfig.CMakeGeneratorVar)
	}
	if o.Driver.Jobs == 0 {
		o.Driver.Jobs = o.Settings.Jobs
	}
	if o.Generator == nil {
		o.Generator = &bindgen.Generator{}
	}
	if o.Stager == nil {
		o.Stager = &stage.Stager{}
	}
}

func prepare(opts Options) (*Result, error) {
	s := opts.Settings
	flags, err := capability.Parse(s.Features)
	if err != nil {
		return nil, err
	}

	outDir, err := filepath.Abs(s.OutDir)
	if err != nil {
		return nil, err
	}

	return &Result{
		ID:     uuid.NewString(),
		Triple: platform.Parse(s.Target),
		Flags:  flags,
		OutDir: outDir,
	}, nil
}

func (r *Result) resolve(opts Options) error {
	res, err := resolve.Resolve(resolve.Input{
		Triple: r.Triple,
		Flags:  r.Flags,
		Debug:  opts.Settings.Debug(),
		Env:    opts.Env,
	})
	if err != nil {
		return err
	}

	r.Resolution = res
	r.Defines = cmake.Defines(cmake.Request{OutDir: r.OutDir, Config: res.Config})
	return nil
}

// Run performs the build. Staging the source and preparing bindings happen
// concurrently; everything after that is sequential. With the docs sentinel
// set, Run returns once bindings are in place.
func Run(ctx context.Context, opts Options) (*Result, error) {
	opts.setDefaults()
	start := time.Now()

	r, err := prepare(opts)
	if err != nil {
		return nil, err
	}

	logger := slog.With("build", r.ID)
	logger.Info("building whisper.cpp", "target", r.Triple, "features", r.Flags, "profile", opts.Settings.Profile, "out", r.OutDir)

	if err := os.MkdirAll(r.OutDir, 0o755); err != nil {
		return nil, err
	}

	if err := r.prepareSources(ctx, opts); err != nil {
		return nil, err
	}
	if r.Bindings.Fallback {
		logger.Info("using bundled bindings", "dir", r.Bindings.Dir)
	}

	if opts.Settings.DocsOnly {
		logger.Info("documentation build, skipping native build")
		r.DocsOnly = true
		return r, nil
	}

	if err := r.resolve(opts); err != nil {
		return nil, err
	}

	r.Artifact, err = opts.Driver.Build(ctx, cmake.Request{
		SourceDir: r.SourceDir,
		OutDir:    r.OutDir,
		Config:    r.Resolution.Config,
	})
	if err != nil {
		return nil, err
	}

	link.RemoveByproduct(r.SourceDir)
	r.Plan = link.Emit(r.Triple, r.Artifact, r.Resolution)

	logger.Info("build finished", "duration", time.Since(start).Round(time.Millisecond))
	return r, nil
}

func (r *Result) prepareSources(ctx context.Context, opts Options) error {
	s := opts.Settings
	src := s.SourceDir

	stageSource := func(ctx context.Context) error {
		dir, err := opts.Stager.Source(ctx, src, r.OutDir)
		if err != nil {
			return err
		}
		r.SourceDir = dir
		return nil
	}

	bindings := func(ctx context.Context, root string) error {
		res, err := opts.Generator.Generate(ctx, bindgen.Request{
			Header:      s.Header,
			IncludeDirs: []string{root, filepath.Join(root, "include"), filepath.Join(root, "ggml", "include")},
			OutDir:      r.OutDir,
			Skip:        s.SkipBindings,
			Fallback:    s.BindingsFallback,
		})
		if err != nil {
			return err
		}
		r.Bindings = res
		return nil
	}

	// headers inside an archive are only readable once it is unpacked
	if stage.IsArchive(src) {
		if err := stageSource(ctx); err != nil {
			return err
		}
		return bindings(ctx, r.SourceDir)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return stageSource(gctx) })
	g.Go(func() error { return bindings(gctx, src) })
	return g.Wait()
}

// Plan resolves the build without touching the filesystem. The artifact
// locations are the ones a build with the same settings would produce.
func Plan(opts Options) (*Result, error) {
	opts.setDefaults()

	r, err := prepare(opts)
	if err != nil {
		return nil, err
	}

	if err := r.resolve(opts); err != nil {
		return nil, err
	}

	r.SourceDir = filepath.Join(r.OutDir, stage.Name(opts.Settings.SourceDir))
	r.Artifact = cmake.Artifact{
		Prefix:   r.OutDir,
		BuildDir: filepath.Join(r.OutDir, "build"),
		LibDir:   filepath.Join(r.OutDir, "lib"),
	}
	r.Plan = link.Emit(r.Triple, r.Artifact, r.Resolution)
	return r, nil
}

// Clean removes everything a build writes to the output directory so the
// next build stages the source again.
func Clean(s envconfig.Settings) error {
	outDir, err := filepath.Abs(s.OutDir)
	if err != nil {
		return err
	}

	errs := []error{stage.Clean(s.SourceDir, outDir)}
	for _, dir := range []string{bindgen.Dir, "build", "lib", "include"} {
		p := filepath.Join(outDir, dir)
		slog.Debug("removing", "path", p)
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckTools verifies the external tools a build needs. A missing binding
// generator only produces a warning since bundled bindings can be used.
func CheckTools(opts Options) error {
	opts.setDefaults()

	if err := opts.Generator.Check(); err != nil {
		slog.Warn("bindings will not be regenerated", "error", err)
	}

	if err := opts.Driver.Check(); err != nil {
		return fmt.Errorf("failed dependency check: %w", err)
	}
	return nil
}
