package link

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ollama/whispersys/platform"
)

// StaticLibrary is the archive produced by the native build.
const StaticLibrary = "whisper"

// Artifact locates the output of a native build.
type Artifact struct {
	// Prefix is the install prefix, also the output dir of the build.
	Prefix   string
	BuildDir string
	LibDir   string
}

// Requirements is what capability resolution contributes to a plan.
type Requirements interface {
	SearchPaths() []string
	Libraries() []Library
}

// Emit assembles the final plan. Capability search paths come first,
// followed by the build output directory and the installed library dir.
// The whisper archive is linked after every library it depends on.
func Emit(triple platform.Triple, art Artifact, req Requirements) Plan {
	b := NewBuilder()
	if req != nil {
		b.AddSearchPath(req.SearchPaths()...)
	}

	buildDir := art.BuildDir
	if buildDir == "" {
		buildDir = filepath.Join(art.Prefix, "build")
	}
	if triple.IsWindowsNonGNU() {
		// multi-config generators put outputs under the configuration name
		buildDir = filepath.Join(buildDir, "Release")
	}
	b.AddSearchPath(buildDir)
	if art.LibDir != "" {
		b.AddSearchPath(art.LibDir)
	}

	if req != nil {
		b.AddLibrary(req.Libraries()...)
	}
	b.AddLibrary(Static(StaticLibrary))
	return b.Plan()
}

// Byproduct is a package manifest the staged tree's javascript bindings
// leave behind. Its presence confuses module tooling walking the output.
var Byproduct = filepath.Join("bindings", "javascript", "package.json")

// RemoveByproduct deletes Byproduct under root. Failures are ignored.
func RemoveByproduct(root string) {
	p := filepath.Join(root, Byproduct)
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove build byproduct", "path", p, "error", err)
	}
}
