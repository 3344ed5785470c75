// Package resolve turns a target triple and a set of capabilities into the
// native build configuration and the libraries the result must be linked
// against.
//
// Resolution is a fixed, ordered table of rules. Each rule declares when it
// applies and what it adds; rules never remove what an earlier rule added.
package resolve

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ollama/whispersys/capability"
	"github.com/ollama/whispersys/envconfig"
	"github.com/ollama/whispersys/link"
	"github.com/ollama/whispersys/logutil"
	"github.com/ollama/whispersys/platform"
)

var ErrMissingEnv = errors.New("required environment variable not set")

// MissingEnvError reports an SDK root that an enabled capability needs on
// the target.
type MissingEnvError struct {
	Var        string
	Capability capability.Flag
	Target     string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("%s: %s is required when targeting %s: %v", e.Capability, e.Var, e.Target, ErrMissingEnv)
}

func (e *MissingEnvError) Unwrap() error { return ErrMissingEnv }

type Input struct {
	Triple platform.Triple
	Flags  capability.Set
	// Debug is true when the host build profile is a debug profile.
	Debug bool
	Env   envconfig.Lookup
}

// Resolution is the output of Resolve. Config only grows while rules run.
type Resolution struct {
	Config *Config
	links  *link.Builder
}

func newResolution() *Resolution {
	return &Resolution{
		Config: NewConfig(),
		links:  link.NewBuilder(),
	}
}

func (r *Resolution) Link(libs ...link.Library) { r.links.AddLibrary(libs...) }

func (r *Resolution) Search(paths ...string) { r.links.AddSearchPath(paths...) }

// Libraries are the capability libraries in link order, without the
// whisper archive itself.
func (r *Resolution) Libraries() []link.Library { return r.links.Libraries() }

func (r *Resolution) SearchPaths() []string { return r.links.SearchPaths() }

type Rule struct {
	Name  string
	When  func(Input) bool
	Apply func(Input, *Resolution) error
}

func Resolve(in Input) (*Resolution, error) {
	return ResolveWith(Rules, in)
}

// ResolveWith evaluates rules in order. The first failing rule aborts
// resolution.
func ResolveWith(rules []Rule, in Input) (*Resolution, error) {
	if in.Env == nil {
		in.Env = envconfig.OS()
	}

	res := newResolution()
	for _, rule := range rules {
		if rule.When != nil && !rule.When(in) {
			continue
		}
		slog.Debug("applying rule", "rule", rule.Name, "target", in.Triple)
		if err := rule.Apply(in, res); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", rule.Name, err)
		}
		logutil.Trace("rule applied", "rule", rule.Name, "defines", res.Config.Len(), "libraries", len(res.Libraries()))
	}

	return res, nil
}

func requireEnv(in Input, key string, flag capability.Flag) (string, error) {
	v := envconfig.Var(in.Env, key)
	if v == "" {
		return "", &MissingEnvError{Var: key, Capability: flag, Target: in.Triple.String()}
	}
	return v, nil
}
