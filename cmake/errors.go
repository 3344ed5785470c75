package cmake

import (
	"fmt"
	"strings"
)

// BuildError is returned when a build step exits unsuccessfully. It carries
// the full output of the step.
type BuildError struct {
	Step    string
	Command string
	Output  string
	Err     error
}

func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cmake %s failed: %v", e.Step, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString("\n\nBuild output:\n")
		b.WriteString(out)
	}
	return b.String()
}

func (e *BuildError) Unwrap() error { return e.Err }
