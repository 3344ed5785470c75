package envconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
)

// DefaultConfigFile is looked up in the working directory when
// WHISPERSYS_CONFIG is unset.
const DefaultConfigFile = "whispersys.toml"

// File is the TOML configuration file. Every field is optional and loses
// to the corresponding environment variable.
type File struct {
	Target           string   `mapstructure:"target"`
	OutDir           string   `mapstructure:"out_dir"`
	SourceDir        string   `mapstructure:"source_dir"`
	Header           string   `mapstructure:"header"`
	Features         []string `mapstructure:"features"`
	Profile          string   `mapstructure:"profile"`
	Jobs             int      `mapstructure:"jobs"`
	BindingsFallback string   `mapstructure:"bindings_fallback"`
}

// LoadFile decodes the configuration file at path. Values are weakly typed,
// so `jobs = "8"` and `features = "cuda"` are accepted.
func LoadFile(path string) (*File, error) {
	raw := make(map[string]any)
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	var f File
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &f,
	})
	if err != nil {
		return nil, err
	}

	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	return &f, nil
}

// FindFile loads WHISPERSYS_CONFIG, or whispersys.toml from the working
// directory when that variable is unset. A missing default file is not an
// error; a missing explicit file is.
func FindFile(env Lookup) (*File, error) {
	path := Var(env, ConfigVar)
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, err
	}

	f, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("loaded config file", "path", path)
	return f, nil
}

// ExampleConfig is a commented whispersys.toml.
func ExampleConfig() string {
	return `# whispersys configuration file
# Environment variables (WHISPERSYS_*) take precedence over these values.

# Target triple (default: host triple)
target = "x86_64-unknown-linux-gnu"

# Where staged sources, bindings and build artifacts go
out_dir = "build"

# whisper.cpp source tree, or a .tar.xz archive of it
source_dir = "whisper.cpp"

# Header binding generation starts from
header = "wrapper.h"

# Enabled capabilities: coreml, metal, cuda, hipblas, opencl, openblas, force_debug
features = ["cuda"]

# "debug" builds RelWithDebInfo, anything else builds Release
profile = "release"

# Parallel native compile jobs (0: build tool default)
jobs = 0
`
}
