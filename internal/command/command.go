// Package command runs the external tools used during a build.
package command

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command is a single invocation of an external tool.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is appended to the environment of the current process.
	Env    []string
	Output io.Writer
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner executes a command, writing its combined output to cmd.Output.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

type RunnerFunc func(ctx context.Context, cmd Command) error

func (f RunnerFunc) Run(ctx context.Context, cmd Command) error { return f(ctx, cmd) }

type execRunner struct{}

func (execRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = c.Output
	cmd.Stderr = c.Output
	return cmd.Run()
}

// Exec runs commands as child processes.
func Exec() Runner { return execRunner{} }
