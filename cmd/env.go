package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/ollama/whispersys/envconfig"
)

func NewEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show the environment variables whispersys reads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env := envconfig.OS()
			vars := envconfig.AsMap(env)

			names := make([]string, 0, len(vars))
			for name := range vars {
				names = append(names, name)
			}
			slices.Sort(names)

			var data [][]string
			for _, name := range names {
				v := vars[name]
				data = append(data, []string{v.Name, fmt.Sprint(v.Value), v.Description})
			}
			for _, kv := range envconfig.Prefixed(env, envconfig.NativePrefix) {
				if kv[0] != envconfig.SkipBindingsVar {
					data = append(data, []string{kv[0], kv[1], "Forwarded to the native build"})
				}
			}

			w := cmd.OutOrStdout()
			if !isTerminal(w) {
				for _, row := range data {
					fmt.Fprintf(w, "%s=%s\n", row[0], row[1])
				}
				return nil
			}

			renderTable(w, []string{"NAME", "VALUE", "DESCRIPTION"}, data)
			return nil
		},
	}
}
