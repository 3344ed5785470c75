package link

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"
	"text/template"
)

// Directives renders the plan as one directive per line, search paths
// first:
//
//	link-search=native=/out/build
//	link-lib=static=whisper
func (p Plan) Directives() []string {
	lines := make([]string, 0, len(p.SearchPaths)+len(p.Libraries))
	for _, path := range p.SearchPaths {
		lines = append(lines, "link-search=native="+path)
	}
	for _, l := range p.Libraries {
		lines = append(lines, "link-lib="+l.String())
	}
	return lines
}

// LDFLAGS renders the plan for a single pass unix linker. Static archives
// are placed before the libraries they depend on since such linkers only
// resolve symbols against libraries that follow the referencing object.
func (p Plan) LDFLAGS() []string {
	flags := make([]string, 0, len(p.SearchPaths)+2*len(p.Libraries))
	for _, path := range p.SearchPaths {
		flags = append(flags, "-L"+path)
	}

	var static, rest []string
	for _, l := range p.Libraries {
		switch l.Kind {
		case KindStatic:
			static = append(static, "-l"+l.Name)
		case KindFramework:
			rest = append(rest, "-framework", l.Name)
		default:
			rest = append(rest, "-l"+l.Name)
		}
	}
	// dependents before dependencies
	for i, j := 0, len(static)-1; i < j; i, j = i+1, j-1 {
		static[i], static[j] = static[j], static[i]
	}

	flags = append(flags, static...)
	return append(flags, rest...)
}

// FlagString joins LDFLAGS into the single string the go command splits
// CGO_LDFLAGS with. Arguments holding whitespace are quoted. That splitter
// has no escapes, so an argument holding whitespace and both quote
// characters cannot be represented.
func (p Plan) FlagString() (string, error) {
	flags := p.LDFLAGS()
	for i, f := range flags {
		if f != "" && !strings.ContainsAny(f, " \t\n\r") && f[0] != '"' && f[0] != '\'' {
			continue
		}
		switch {
		case !strings.Contains(f, "'"):
			flags[i] = "'" + f + "'"
		case !strings.Contains(f, `"`):
			flags[i] = `"` + f + `"`
		default:
			return "", fmt.Errorf("cannot quote linker argument %q", f)
		}
	}
	return strings.Join(flags, " "), nil
}

// Env renders the plan as a CGO_LDFLAGS assignment.
func (p Plan) Env() (string, error) {
	flags, err := p.FlagString()
	if err != nil {
		return "", err
	}
	return "CGO_LDFLAGS=" + flags, nil
}

// cgoFlags joins LDFLAGS for a #cgo line. Backslash escapes every
// character there, quoted or not, so Windows paths need it doubled.
func (p Plan) cgoFlags() string {
	flags := p.LDFLAGS()
	for i, f := range flags {
		if f != "" && !strings.ContainsAny(f, " \t\n\r'\"\\") {
			continue
		}
		var b strings.Builder
		b.WriteByte('\'')
		for _, r := range f {
			if r == '\\' || r == '\'' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('\'')
		flags[i] = b.String()
	}
	return strings.Join(flags, " ")
}

var cgoTemplate = template.Must(template.New("cgo").Parse(`// Code generated by whispersys. DO NOT EDIT.

package {{ .Package }}

/*
#cgo LDFLAGS: {{ .Flags }}
*/
import "C"
`))

// CgoFile renders a Go source file for package pkg whose cgo preamble
// carries the plan.
func (p Plan) CgoFile(pkg string) ([]byte, error) {
	if pkg == "" {
		return nil, fmt.Errorf("package name required")
	}

	var b bytes.Buffer
	if err := cgoTemplate.Execute(&b, struct {
		Package string
		Flags   string
	}{pkg, p.cgoFlags()}); err != nil {
		return nil, err
	}
	return format.Source(b.Bytes())
}
