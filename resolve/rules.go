package resolve

import (
	"path/filepath"
	"strings"

	"github.com/ollama/whispersys/capability"
	"github.com/ollama/whispersys/envconfig"
	"github.com/ollama/whispersys/link"
)

// Native build cache entries set by the rules.
const (
	DefineBuildType           = "CMAKE_BUILD_TYPE"
	DefinePrefixPath          = "CMAKE_PREFIX_PATH"
	DefineCCompiler           = "CMAKE_C_COMPILER"
	DefineCXXCompiler         = "CMAKE_CXX_COMPILER"
	DefineMetal               = "WHISPER_METAL"
	DefineCoreML              = "WHISPER_COREML"
	DefineCoreMLAllowFallback = "WHISPER_COREML_ALLOW_FALLBACK"
	DefineCLBlast             = "WHISPER_CLBLAST"
	DefineOpenBLAS            = "WHISPER_OPENBLAS"
	DefineHIPBLAS             = "WHISPER_HIPBLAS"
	DefineCUDA                = "WHISPER_CUDA"
)

const (
	// DebugBuildType replaces an unoptimized profile. Inference without
	// optimizations is too slow to be usable.
	DebugBuildType = "RelWithDebInfo"

	hipCompiler = "hipcc"
	rocmLibDir  = "/opt/rocm/lib"
)

var cudaLibDirs = []string{
	"/usr/local/cuda/lib64",
	"/usr/local/cuda/lib64/stubs",
	"/opt/cuda/lib64",
	"/opt/cuda/lib64/stubs",
}

// Rules is the capability matrix, evaluated top to bottom.
var Rules = []Rule{
	{
		Name:  "cxx-runtime",
		Apply: applyCXXRuntime,
	},
	{
		Name:  "apple",
		When:  func(in Input) bool { return in.Triple.IsApple() },
		Apply: applyApple,
	},
	{
		Name:  "metal",
		Apply: applyMetal,
	},
	{
		Name:  "coreml",
		When:  enabled(capability.CoreML),
		Apply: applyCoreML,
	},
	{
		Name:  "opencl",
		When:  enabled(capability.OpenCL),
		Apply: applyOpenCL,
	},
	{
		Name:  "openblas",
		When:  enabled(capability.OpenBLAS),
		Apply: applyOpenBLAS,
	},
	{
		Name:  "hipblas",
		When:  enabled(capability.HIPBLAS),
		Apply: applyHIPBLAS,
	},
	{
		Name:  "cuda",
		When:  enabled(capability.CUDA),
		Apply: applyCUDA,
	},
	{
		Name:  "debug-override",
		When:  func(in Input) bool { return in.Debug || in.Flags.Has(capability.ForceDebug) },
		Apply: applyDebugOverride,
	},
	{
		Name:  "passthrough",
		Apply: applyPassthrough,
	},
}

func enabled(f capability.Flag) func(Input) bool {
	return func(in Input) bool { return in.Flags.Has(f) }
}

func applyCXXRuntime(in Input, r *Resolution) error {
	if name, ok := in.Triple.CXXRuntime(); ok {
		r.Link(link.Dylib(name))
	}
	return nil
}

func applyApple(in Input, r *Resolution) error {
	r.Link(link.Framework("Accelerate"))
	if in.Flags.Has(capability.CoreML) {
		r.Link(link.Framework("Foundation"), link.Framework("CoreML"))
	}
	if in.Flags.Has(capability.Metal) {
		r.Link(link.Framework("Foundation"), link.Framework("Metal"), link.Framework("MetalKit"))
	}
	return nil
}

// The native build enables Metal unless told otherwise, so the disabled case
// must be written out.
func applyMetal(in Input, r *Resolution) error {
	if in.Flags.Has(capability.Metal) {
		r.Config.Set(DefineMetal, "ON")
	} else {
		r.Config.Set(DefineMetal, "OFF")
	}
	return nil
}

func applyCoreML(_ Input, r *Resolution) error {
	r.Link(link.Static("whisper.coreml"))
	r.Config.Set(DefineCoreML, "ON")
	r.Config.Set(DefineCoreMLAllowFallback, "1")
	return nil
}

func applyOpenCL(_ Input, r *Resolution) error {
	r.Link(link.Dylib("clblast"), link.Dylib("OpenCL"))
	r.Config.Set(DefineCLBlast, "ON")
	return nil
}

func applyOpenBLAS(_ Input, r *Resolution) error {
	r.Link(link.Dylib("openblas"))
	r.Config.Set(DefineOpenBLAS, "ON")
	return nil
}

func applyHIPBLAS(in Input, r *Resolution) error {
	if in.Triple.IsWindows() {
		root, err := requireEnv(in, envconfig.HIPPathVar, capability.HIPBLAS)
		if err != nil {
			return err
		}

		cmakeDir := filepath.Join(root, "lib", "cmake")
		r.Search(filepath.Join(root, "lib"))
		r.Config.Set(DefinePrefixPath, strings.Join([]string{
			filepath.Join(cmakeDir, "hip"),
			filepath.Join(cmakeDir, "hipblas"),
			filepath.Join(cmakeDir, "rocblas"),
		}, in.Triple.PathListSeparator()))
	} else {
		r.Config.Set(DefineCCompiler, hipCompiler)
		r.Config.Set(DefineCXXCompiler, hipCompiler)
		r.Search(rocmLibDir)
	}

	r.Link(link.Dylib("hipblas"), link.Dylib("rocblas"), link.Dylib("amdhip64"))
	r.Config.Set(DefineHIPBLAS, "ON")
	return nil
}

func applyCUDA(in Input, r *Resolution) error {
	if in.Triple.IsWindows() {
		root, err := requireEnv(in, envconfig.CUDAPathVar, capability.CUDA)
		if err != nil {
			return err
		}
		r.Search(filepath.Join(root, "lib", "x64"))
	} else {
		r.Search(cudaLibDirs...)
	}

	r.Link(link.Dylib("cublas"), link.Dylib("cudart"), link.Dylib("cublasLt"), link.Dylib("cuda"))
	if !in.Triple.IsWindows() {
		r.Link(link.Dylib("culibos"))
	}
	r.Config.Set(DefineCUDA, "ON")
	return nil
}

func applyDebugOverride(_ Input, r *Resolution) error {
	r.Config.Set(DefineBuildType, DebugBuildType)
	return nil
}

// applyPassthrough forwards WHISPER_* variables verbatim. They are applied
// last so callers can override anything the rules above decided.
func applyPassthrough(in Input, r *Resolution) error {
	for _, kv := range envconfig.Prefixed(in.Env, envconfig.NativePrefix) {
		if kv[0] == envconfig.SkipBindingsVar {
			continue
		}
		r.Config.Set(kv[0], kv[1])
	}
	return nil
}
