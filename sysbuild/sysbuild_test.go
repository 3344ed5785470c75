package sysbuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/fs"

	"github.com/ollama/whispersys/bindgen"
	"github.com/ollama/whispersys/capability"
	"github.com/ollama/whispersys/cmake"
	"github.com/ollama/whispersys/envconfig"
	"github.com/ollama/whispersys/internal/command"
	"github.com/ollama/whispersys/link"
	"github.com/ollama/whispersys/resolve"
	"github.com/ollama/whispersys/stage"
)

type fakeCMake struct {
	cmds []command.Command
	err  error
}

func (f *fakeCMake) Run(_ context.Context, cmd command.Command) error {
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		fmt.Fprintln(cmd.Output, "CMake Error at CMakeLists.txt:1")
		return f.err
	}
	return nil
}

var noGenerator = command.RunnerFunc(func(context.Context, command.Command) error {
	return errors.New(`exec: "c-for-go": executable file not found in $PATH`)
})

func fixture(t *testing.T) (src string, out string) {
	t.Helper()
	dir := fs.NewDir(t, "sysbuild",
		fs.WithDir("whisper.cpp",
			fs.WithFile("CMakeLists.txt", "project(whisper)\n"),
			fs.WithFile("whisper.h", "int whisper_lang_max_id(void);\n"),
			fs.WithDir("bindings", fs.WithDir("javascript", fs.WithFile("package.json", "{}"))),
		),
		fs.WithFile("wrapper.h", "#include <whisper.h>\n"),
	)
	return dir.Join("whisper.cpp"), dir.Join("out")
}

func options(t *testing.T, target, features string, env envconfig.Map) (Options, *fakeCMake) {
	t.Helper()
	src, out := fixture(t)
	fake := &fakeCMake{}
	return Options{
		Settings: envconfig.Settings{
			Target:    target,
			OutDir:    out,
			SourceDir: src,
			Header:    filepath.Join(filepath.Dir(src), "wrapper.h"),
			Features:  features,
			Profile:   "release",
		},
		Env:       env,
		Driver:    &cmake.Driver{Runner: fake},
		Generator: &bindgen.Generator{Runner: noGenerator},
	}, fake
}

func TestRunLinuxCUDA(t *testing.T) {
	opts, fake := options(t, "x86_64-unknown-linux-gnu", "cuda", envconfig.Map{
		"WHISPER_NO_AVX":  "ON",
		"CMAKE_GENERATOR": "Ninja",
	})

	r, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.NotEmpty(t, r.ID)
	assert.False(t, r.DocsOnly)
	assert.True(t, r.Flags.Has(capability.CUDA))
	assert.True(t, r.Bindings.Fallback)
	assert.FileExists(t, filepath.Join(r.OutDir, "bindings", "whisper.go"))

	assert.Equal(t, filepath.Join(r.OutDir, "whisper.cpp"), r.SourceDir)
	assert.FileExists(t, filepath.Join(r.SourceDir, "CMakeLists.txt"))
	assert.NoFileExists(t, filepath.Join(r.SourceDir, "bindings", "javascript", "package.json"))

	require.Len(t, fake.cmds, 2)
	assert.True(t, slices.Contains(fake.cmds[0].Args, "Ninja"))
	assert.True(t, slices.Contains(fake.cmds[0].Args, "-DWHISPER_CUDA=ON"))
	assert.True(t, slices.Contains(fake.cmds[0].Args, "-DWHISPER_METAL=OFF"))
	assert.True(t, slices.Contains(fake.cmds[0].Args, "-DWHISPER_NO_AVX=ON"))

	v, _ := r.Defines.Get("CMAKE_BUILD_TYPE")
	assert.Equal(t, "Release", v)

	assert.Equal(t, []string{
		"/usr/local/cuda/lib64",
		"/usr/local/cuda/lib64/stubs",
		"/opt/cuda/lib64",
		"/opt/cuda/lib64/stubs",
		filepath.Join(r.OutDir, "build"),
		filepath.Join(r.OutDir, "lib"),
	}, r.Plan.SearchPaths)
	assert.Equal(t, link.Static("whisper"), r.Plan.Libraries[len(r.Plan.Libraries)-1])
	assert.Contains(t, r.Plan.Libraries, link.Dylib("culibos"))
}

func TestRunDebugProfile(t *testing.T) {
	opts, fake := options(t, "x86_64-unknown-linux-gnu", "", envconfig.Map{})
	opts.Settings.Profile = "debug"

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, fake.cmds, 2)
	assert.True(t, slices.Contains(fake.cmds[0].Args, "-DCMAKE_BUILD_TYPE=RelWithDebInfo"))
	assert.True(t, slices.Contains(fake.cmds[1].Args, "RelWithDebInfo"))
}

func TestRunTwiceStagesOnce(t *testing.T) {
	opts, _ := options(t, "x86_64-unknown-linux-gnu", "", envconfig.Map{})

	var copies int
	opts.Stager = &stage.Stager{Copy: func(_ context.Context, _, dst string) error {
		copies++
		return os.MkdirAll(dst, 0o755)
	}}

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)
	_, err = Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, copies)
}

func TestRunDocsOnly(t *testing.T) {
	opts, fake := options(t, "x86_64-unknown-linux-gnu", "cuda", envconfig.Map{})
	opts.Settings.DocsOnly = true

	r, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, r.DocsOnly)
	assert.Empty(t, fake.cmds)
	assert.Nil(t, r.Resolution)
	assert.FileExists(t, filepath.Join(r.OutDir, "bindings", "whisper.go"))
	assert.DirExists(t, r.SourceDir)
}

func TestRunMissingEnv(t *testing.T) {
	opts, fake := options(t, "x86_64-pc-windows-msvc", "cuda", envconfig.Map{})

	_, err := Run(context.Background(), opts)
	require.ErrorIs(t, err, resolve.ErrMissingEnv)
	assert.Empty(t, fake.cmds)
}

func TestRunUnknownFeature(t *testing.T) {
	opts, _ := options(t, "x86_64-unknown-linux-gnu", "cuda,vulkan", envconfig.Map{})

	_, err := Run(context.Background(), opts)
	assert.ErrorIs(t, err, capability.ErrUnknownFlag)
}

func TestRunStageFailure(t *testing.T) {
	opts, fake := options(t, "x86_64-unknown-linux-gnu", "", envconfig.Map{})
	opts.Settings.SourceDir = filepath.Join(t.TempDir(), "missing")

	_, err := Run(context.Background(), opts)
	var stageErr *stage.Error
	require.ErrorAs(t, err, &stageErr)
	assert.Empty(t, fake.cmds)
}

func TestRunBuildFailure(t *testing.T) {
	opts, fake := options(t, "x86_64-unknown-linux-gnu", "", envconfig.Map{})
	fake.err = errors.New("exit status 1")

	_, err := Run(context.Background(), opts)
	var buildErr *cmake.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Contains(t, buildErr.Output, "CMake Error")
}

func TestPlan(t *testing.T) {
	opts, fake := options(t, "x86_64-pc-windows-msvc", "", envconfig.Map{})

	r, err := Plan(opts)
	require.NoError(t, err)
	assert.Empty(t, fake.cmds)
	assert.NoDirExists(t, opts.Settings.OutDir)

	assert.Contains(t, r.Plan.SearchPaths, filepath.Join(r.OutDir, "build", "Release"))
	assert.Equal(t, []link.Library{link.Static("whisper")}, r.Plan.Libraries)

	v, ok := r.Defines.Get("WHISPER_METAL")
	require.True(t, ok)
	assert.Equal(t, "OFF", v)
	v, _ = r.Defines.Get("BUILD_SHARED_LIBS")
	assert.Equal(t, "OFF", v)
}

func TestPlanAppleCoreMLMetal(t *testing.T) {
	opts, _ := options(t, "aarch64-apple-darwin", "coreml,metal", envconfig.Map{})

	r, err := Plan(opts)
	require.NoError(t, err)
	assert.Equal(t, []link.Library{
		link.Dylib("c++"),
		link.Framework("Accelerate"),
		link.Framework("Foundation"),
		link.Framework("CoreML"),
		link.Framework("Metal"),
		link.Framework("MetalKit"),
		link.Static("whisper.coreml"),
		link.Static("whisper"),
	}, r.Plan.Libraries)
}

func TestClean(t *testing.T) {
	opts, _ := options(t, "x86_64-unknown-linux-gnu", "", envconfig.Map{})

	r, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.DirExists(t, r.SourceDir)

	require.NoError(t, Clean(opts.Settings))
	assert.NoDirExists(t, r.SourceDir)
	assert.NoDirExists(t, filepath.Join(r.OutDir, "bindings"))
	assert.DirExists(t, r.OutDir)
}

func TestCheckTools(t *testing.T) {
	err := CheckTools(Options{
		Env:       envconfig.Map{},
		Driver:    &cmake.Driver{Program: "whispersys-missing-cmake"},
		Generator: &bindgen.Generator{Program: "whispersys-missing-c-for-go"},
	})
	assert.ErrorContains(t, err, "whispersys-missing-cmake")
	assert.NotContains(t, err.Error(), "c-for-go")
}
