// Package capability names the optional acceleration backends a build can
// enable.
package capability

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type Flag string

const (
	CoreML     Flag = "coreml"
	Metal      Flag = "metal"
	CUDA       Flag = "cuda"
	HIPBLAS    Flag = "hipblas"
	OpenCL     Flag = "opencl"
	OpenBLAS   Flag = "openblas"
	ForceDebug Flag = "force_debug"
)

// All lists every flag in the order the resolver evaluates them.
var All = []Flag{CoreML, Metal, CUDA, HIPBLAS, OpenCL, OpenBLAS, ForceDebug}

var ErrUnknownFlag = errors.New("unknown capability")

var descriptions = map[Flag]string{
	CoreML:     "Apple CoreML encoder with CPU fallback",
	Metal:      "Apple Metal GPU compute",
	CUDA:       "NVIDIA CUDA and cuBLAS",
	HIPBLAS:    "AMD ROCm hipBLAS",
	OpenCL:     "OpenCL through CLBlast",
	OpenBLAS:   "OpenBLAS CPU math",
	ForceDebug: "build with debug symbols and optimizations",
}

func (f Flag) Description() string { return descriptions[f] }

// ParseFlag accepts the canonical name as well as the dashed spelling
// ("force-debug").
func ParseFlag(s string) (Flag, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	f := Flag(name)
	if !slices.Contains(All, f) {
		return "", fmt.Errorf("%w %q", ErrUnknownFlag, s)
	}
	return f, nil
}

// Set is the fixed collection of flags enabled for one build.
type Set struct {
	enabled map[Flag]bool
}

func NewSet(flags ...Flag) Set {
	s := Set{enabled: make(map[Flag]bool, len(flags))}
	for _, f := range flags {
		s.enabled[f] = true
	}
	return s
}

// Parse reads a comma or space separated list of flag names. An empty
// string yields the empty set.
func Parse(list string) (Set, error) {
	var flags []Flag
	for _, field := range strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == ' ' }) {
		f, err := ParseFlag(field)
		if err != nil {
			return Set{}, err
		}
		flags = append(flags, f)
	}
	return NewSet(flags...), nil
}

func (s Set) Has(f Flag) bool { return s.enabled[f] }

func (s Set) Len() int { return len(s.enabled) }

// Flags returns the enabled flags in evaluation order.
func (s Set) Flags() []Flag {
	var out []Flag
	for _, f := range All {
		if s.enabled[f] {
			out = append(out, f)
		}
	}
	return out
}

// Union returns a new set holding the flags of both sets.
func (s Set) Union(o Set) Set {
	return NewSet(append(s.Flags(), o.Flags()...)...)
}

func (s Set) String() string {
	flags := s.Flags()
	names := make([]string, len(flags))
	for i, f := range flags {
		names[i] = string(f)
	}
	return strings.Join(names, ",")
}
