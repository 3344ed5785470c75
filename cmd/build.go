package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ollama/whispersys/bindgen"
	"github.com/ollama/whispersys/link"
	"github.com/ollama/whispersys/sysbuild"
)

// Link plan renderings selected with --emit.
const (
	EmitDirectives = "directives"
	EmitLDFLAGS    = "ldflags"
	EmitEnv        = "env"
	EmitCgo        = "cgo"
	EmitJSON       = "json"
)

var emitFormats = []string{EmitDirectives, EmitLDFLAGS, EmitEnv, EmitCgo, EmitJSON}

func NewBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Stage, build and install whisper.cpp, then print the link plan",
		Args:  cobra.NoArgs,
		RunE:  buildHandler,
	}

	cmd.Flags().String("emit", EmitDirectives, "Link plan format ("+strings.Join(emitFormats, ", ")+")")
	cmd.Flags().String("package", bindgen.DefaultPackage, "Package name of the generated cgo file")
	cmd.Flags().String("output", "", "Write the link plan to this file instead of stdout")
	return cmd
}

func buildHandler(cmd *cobra.Command, args []string) error {
	emit, _ := cmd.Flags().GetString("emit")
	pkg, _ := cmd.Flags().GetString("package")
	output, _ := cmd.Flags().GetString("output")

	// validate before spending minutes in the native build
	if _, err := renderPlan(link.Plan{}, emit, pkg); err != nil {
		return err
	}

	opts, err := options(cmd)
	if err != nil {
		return err
	}

	if !opts.Settings.DocsOnly {
		if err := sysbuild.CheckTools(opts); err != nil {
			return err
		}
	}

	r, err := sysbuild.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if r.DocsOnly {
		fmt.Fprintf(cmd.ErrOrStderr(), "bindings written to %s, native build skipped\n", r.Bindings.Dir)
		return nil
	}

	b, err := renderPlan(r.Plan, emit, pkg)
	if err != nil {
		return err
	}

	if output != "" {
		return writeFileAtomic(output, b)
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}

func renderPlan(plan link.Plan, emit, pkg string) ([]byte, error) {
	switch emit {
	case EmitDirectives:
		var b bytes.Buffer
		for _, line := range plan.Directives() {
			fmt.Fprintln(&b, line)
		}
		return b.Bytes(), nil
	case EmitLDFLAGS:
		flags, err := plan.FlagString()
		if err != nil {
			return nil, err
		}
		return []byte(flags + "\n"), nil
	case EmitEnv:
		env, err := plan.Env()
		if err != nil {
			return nil, err
		}
		return []byte(env + "\n"), nil
	case EmitCgo:
		return plan.CgoFile(pkg)
	case EmitJSON:
		b, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown --emit format %q, expected one of %s", emit, strings.Join(emitFormats, ", "))
	}
}

// writeFileAtomic writes to a temporary file next to path and renames it
// into place.
func writeFileAtomic(path string, b []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".whispersys-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if _, err := io.Copy(f, bytes.NewReader(b)); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
