// Package link models the search paths and libraries a host toolchain needs
// to link the static whisper archive, and renders them for consumers.
package link

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/sets/linkedhashset"
)

type Kind string

const (
	KindDylib     Kind = "dylib"
	KindStatic    Kind = "static"
	KindFramework Kind = "framework"
)

type Library struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

func Dylib(name string) Library     { return Library{KindDylib, name} }
func Static(name string) Library    { return Library{KindStatic, name} }
func Framework(name string) Library { return Library{KindFramework, name} }

func (l Library) String() string {
	return fmt.Sprintf("%s=%s", l.Kind, l.Name)
}

// ParseLibrary is the inverse of Library.String. A bare name is a dylib.
func ParseLibrary(s string) (Library, error) {
	kind, name, ok := strings.Cut(s, "=")
	if !ok {
		return Dylib(s), nil
	}
	switch k := Kind(kind); k {
	case KindDylib, KindStatic, KindFramework:
		if name == "" {
			return Library{}, fmt.Errorf("empty library name in %q", s)
		}
		return Library{k, name}, nil
	default:
		return Library{}, fmt.Errorf("unknown link kind %q", kind)
	}
}

// Plan is the ordered result handed to the host toolchain. Every search path
// precedes every library, and a library appears before the libraries that
// depend on it.
type Plan struct {
	SearchPaths []string  `json:"search_paths"`
	Libraries   []Library `json:"libraries"`
}

// Builder accumulates search paths and libraries, dropping repeats. The
// first occurrence of a directive decides its position.
type Builder struct {
	paths *linkedhashset.Set
	libs  *linkedhashset.Set
}

func NewBuilder() *Builder {
	return &Builder{
		paths: linkedhashset.New(),
		libs:  linkedhashset.New(),
	}
}

func (b *Builder) AddSearchPath(paths ...string) {
	for _, p := range paths {
		b.paths.Add(p)
	}
}

func (b *Builder) AddLibrary(libs ...Library) {
	for _, l := range libs {
		b.libs.Add(l)
	}
}

func (b *Builder) SearchPaths() []string {
	out := make([]string, 0, b.paths.Size())
	for _, v := range b.paths.Values() {
		out = append(out, v.(string))
	}
	return out
}

func (b *Builder) Libraries() []Library {
	out := make([]Library, 0, b.libs.Size())
	for _, v := range b.libs.Values() {
		out = append(out, v.(Library))
	}
	return out
}

func (b *Builder) Plan() Plan {
	return Plan{
		SearchPaths: b.SearchPaths(),
		Libraries:   b.Libraries(),
	}
}
