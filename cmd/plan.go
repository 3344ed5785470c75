package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ollama/whispersys/sysbuild"
)

func NewPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the native build configuration and link plan without building",
		Args:  cobra.NoArgs,
		RunE:  planHandler,
	}

	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

type planOutput struct {
	Target      string            `json:"target"`
	Features    string            `json:"features"`
	Config      json.Marshaler    `json:"config"`
	SearchPaths []string          `json:"search_paths"`
	Libraries   []string          `json:"libraries"`
	Artifact    map[string]string `json:"artifact"`
}

func planHandler(cmd *cobra.Command, args []string) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}

	r, err := sysbuild.Plan(opts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		libs := make([]string, len(r.Plan.Libraries))
		for i, l := range r.Plan.Libraries {
			libs[i] = l.String()
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(planOutput{
			Target:      r.Triple.String(),
			Features:    r.Flags.String(),
			Config:      r.Defines,
			SearchPaths: r.Plan.SearchPaths,
			Libraries:   libs,
			Artifact: map[string]string{
				"prefix":    r.Artifact.Prefix,
				"build_dir": r.Artifact.BuildDir,
				"lib_dir":   r.Artifact.LibDir,
			},
		})
	}

	var config, directives [][]string
	for k, v := range r.Defines.All() {
		config = append(config, []string{k, v})
	}
	for _, p := range r.Plan.SearchPaths {
		directives = append(directives, []string{"search", p})
	}
	for _, l := range r.Plan.Libraries {
		directives = append(directives, []string{string(l.Kind), l.Name})
	}

	if !isTerminal(w) {
		for _, row := range config {
			fmt.Fprintf(w, "-D%s=%s\n", row[0], row[1])
		}
		for _, line := range r.Plan.Directives() {
			fmt.Fprintln(w, line)
		}
		return nil
	}

	fmt.Fprintf(w, "target %s, features [%s]\n\n", r.Triple, r.Flags)
	renderTable(w, []string{"CONFIG", "VALUE"}, config)
	fmt.Fprintln(w)
	renderTable(w, []string{"LINK", "NAME"}, directives)
	return nil
}

func renderTable(w io.Writer, header []string, data [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
