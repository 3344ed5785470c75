package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ollama/whispersys/bindgen"
)

func NewBindingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bindings",
		Short: "Generate the Go bindings only",
		Long: `Generate the Go bindings for the whisper C API into <out-dir>/bindings.

When c-for-go is not installed or generation fails, the bundled bindings
are written instead. Set WHISPER_DONT_GENERATE_BINDINGS to always use them.`,
		Args: cobra.NoArgs,
		RunE: bindingsHandler,
	}

	cmd.Flags().String("package", bindgen.DefaultPackage, "Package name of the generated bindings")
	cmd.Flags().Bool("bundled", false, "Print the bundled bindings and exit")
	return cmd
}

func bindingsHandler(cmd *cobra.Command, args []string) error {
	if bundled, _ := cmd.Flags().GetBool("bundled"); bundled {
		_, err := cmd.OutOrStdout().Write(bindgen.Bundled())
		return err
	}

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	pkg, _ := cmd.Flags().GetString("package")

	g := &bindgen.Generator{}
	res, err := g.Generate(cmd.Context(), bindgen.Request{
		Header:      s.Header,
		IncludeDirs: []string{s.SourceDir, filepath.Join(s.SourceDir, "include"), filepath.Join(s.SourceDir, "ggml", "include")},
		OutDir:      s.OutDir,
		Package:     pkg,
		Skip:        s.SkipBindings,
		Fallback:    s.BindingsFallback,
	})
	if err != nil {
		return err
	}

	source := "generated"
	if res.Fallback {
		source = "bundled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s bindings written to %s\n", source, res.Dir)
	return nil
}
