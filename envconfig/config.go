package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ollama/whispersys/platform"
)

// Variables read by whispersys. Everything outside the WHISPERSYS_ namespace
// is either set by a toolchain installer (CUDA_PATH, HIP_PATH) or shared with
// the native build (WHISPER_*).
const (
	TargetVar           = "WHISPERSYS_TARGET"
	OutDirVar           = "WHISPERSYS_OUT_DIR"
	SourceDirVar        = "WHISPERSYS_SOURCE_DIR"
	HeaderVar           = "WHISPERSYS_HEADER"
	FeaturesVar         = "WHISPERSYS_FEATURES"
	ProfileVar          = "WHISPERSYS_PROFILE"
	DocsVar             = "WHISPERSYS_DOCS"
	DocsRSVar           = "DOCS_RS"
	BindingsFallbackVar = "WHISPERSYS_BINDINGS_FALLBACK"
	JobsVar             = "WHISPERSYS_JOBS"
	DebugVar            = "WHISPERSYS_DEBUG"
	ConfigVar           = "WHISPERSYS_CONFIG"

	CUDAPathVar       = "CUDA_PATH"
	HIPPathVar        = "HIP_PATH"
	CMakeGeneratorVar = "CMAKE_GENERATOR"

	// NativePrefix namespaces every variable forwarded to the native build.
	NativePrefix = "WHISPER_"
	// SkipBindingsVar lives in the native namespace but only controls
	// binding generation, so it is never forwarded.
	SkipBindingsVar = "WHISPER_DONT_GENERATE_BINDINGS"
)

// Lookup is read-only access to a set of environment variables.
type Lookup interface {
	LookupEnv(key string) (string, bool)
	// Environ returns every variable as KEY=VALUE.
	Environ() []string
}

type osEnv struct{}

func (osEnv) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

func (osEnv) Environ() []string { return os.Environ() }

// OS is the process environment.
func OS() Lookup { return osEnv{} }

// Map is a fixed environment, mostly useful in tests.
type Map map[string]string

func (m Map) LookupEnv(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m Map) Environ() []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Var returns an environment variable stripped of leading and trailing
// quotes or spaces.
func Var(env Lookup, key string) string {
	v, _ := env.LookupEnv(key)
	return strings.Trim(strings.TrimSpace(v), "\"'")
}

// Set reports whether key is present at all, even with an empty value.
func Set(env Lookup, key string) bool {
	_, ok := env.LookupEnv(key)
	return ok
}

// Prefixed returns the variables whose names start with prefix, sorted by
// name so the result does not depend on environment ordering.
func Prefixed(env Lookup, prefix string) [][2]string {
	var out [][2]string
	for _, kv := range env.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, [2]string{k, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// LogLevel maps WHISPERSYS_DEBUG to a slog level: a true boolean enables
// debug, an integer n sets the level to -4n so 2 enables trace.
func LogLevel(env Lookup) slog.Level {
	level := slog.LevelInfo
	if s := Var(env, DebugVar); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			if b {
				level = slog.LevelDebug
			}
		} else if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// Settings is everything a build invocation reads from its environment.
type Settings struct {
	Target           string
	OutDir           string
	SourceDir        string
	Header           string
	Features         string
	Profile          string
	BindingsFallback string
	Jobs             int
	DocsOnly         bool
	SkipBindings     bool
}

const (
	DefaultOutDir    = "build"
	DefaultSourceDir = "whisper.cpp"
	DefaultHeader    = "wrapper.h"
	DefaultProfile   = "release"
)

// Load resolves Settings from env, falling back to file (which may be nil)
// and then to defaults.
func Load(env Lookup, file *File) Settings {
	if file == nil {
		file = &File{}
	}

	s := Settings{
		Target:           first(Var(env, TargetVar), file.Target, platform.HostTriple()),
		OutDir:           first(Var(env, OutDirVar), file.OutDir, DefaultOutDir),
		SourceDir:        first(Var(env, SourceDirVar), file.SourceDir, DefaultSourceDir),
		Header:           first(Var(env, HeaderVar), file.Header, DefaultHeader),
		Features:         first(Var(env, FeaturesVar), strings.Join(file.Features, ",")),
		Profile:          strings.ToLower(first(Var(env, ProfileVar), file.Profile, DefaultProfile)),
		BindingsFallback: first(Var(env, BindingsFallbackVar), file.BindingsFallback),
		Jobs:             file.Jobs,
		DocsOnly:         Set(env, DocsVar) || Set(env, DocsRSVar),
		SkipBindings:     Set(env, SkipBindingsVar),
	}

	if jobs := Var(env, JobsVar); jobs != "" {
		n, err := strconv.Atoi(jobs)
		if err != nil || n < 0 {
			slog.Error("invalid setting, ignoring", JobsVar, jobs, "error", err)
		} else {
			s.Jobs = n
		}
	}

	return s
}

// Debug reports whether the build profile is a debug profile.
func (s Settings) Debug() bool {
	return s.Profile == "debug" || s.Profile == "dev"
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap describes every variable whispersys reads along with its current
// value in env.
func AsMap(env Lookup) map[string]EnvVar {
	s := Load(env, nil)
	m := map[string]EnvVar{
		TargetVar:           {TargetVar, s.Target, "Target triple to build for (default: host triple)"},
		OutDirVar:           {OutDirVar, s.OutDir, "Output directory for staged sources, bindings and build artifacts"},
		SourceDirVar:        {SourceDirVar, s.SourceDir, "whisper.cpp source tree or .tar.xz archive"},
		HeaderVar:           {HeaderVar, s.Header, "Header binding generation starts from"},
		FeaturesVar:         {FeaturesVar, s.Features, "Comma separated capabilities (coreml, metal, cuda, hipblas, opencl, openblas, force_debug)"},
		ProfileVar:          {ProfileVar, s.Profile, "Build profile; debug is built as RelWithDebInfo"},
		DocsVar:             {DocsVar, s.DocsOnly, "Prepare bindings only and skip the native build"},
		DocsRSVar:           {DocsRSVar, Set(env, DocsRSVar), "Same as " + DocsVar},
		BindingsFallbackVar: {BindingsFallbackVar, s.BindingsFallback, "Pre-generated bindings used when generation fails"},
		JobsVar:             {JobsVar, s.Jobs, "Parallel native compile jobs (default: build tool default)"},
		DebugVar:            {DebugVar, LogLevel(env), "Show additional debug information (e.g. WHISPERSYS_DEBUG=1)"},
		ConfigVar:           {ConfigVar, Var(env, ConfigVar), "Path to a whispersys.toml configuration file"},
		SkipBindingsVar:     {SkipBindingsVar, s.SkipBindings, "Skip binding generation and use the bundled copy"},
		CUDAPathVar:         {CUDAPathVar, Var(env, CUDAPathVar), "CUDA toolkit root, required for cuda on Windows"},
		HIPPathVar:          {HIPPathVar, Var(env, HIPPathVar), "ROCm HIP SDK root, required for hipblas on Windows"},
		CMakeGeneratorVar:   {CMakeGeneratorVar, Var(env, CMakeGeneratorVar), "CMake generator override"},
	}
	return m
}

func Values(env Lookup) map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap(env) {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
