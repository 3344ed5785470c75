package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ollama/whispersys/capability"
	"github.com/ollama/whispersys/envconfig"
	"github.com/ollama/whispersys/logutil"
	"github.com/ollama/whispersys/sysbuild"
)

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "whispersys",
		Short: "Build whisper.cpp and plan how to link it",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Disable usage printing on errors
			cmd.SilenceUsage = true

			verbose, _ := cmd.Flags().GetCount("verbose")
			level := logutil.Level(envconfig.LogLevel(envconfig.OS()), verbose)
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), level))
			return nil
		},
	}

	cobra.EnableCommandSorting = false

	flags := rootCmd.PersistentFlags()
	flags.CountP("verbose", "v", "Increase log verbosity (-vv for trace)")
	flags.StringP("target", "t", "", "Target triple (env: "+envconfig.TargetVar+")")
	flags.StringP("out-dir", "o", "", "Output directory (env: "+envconfig.OutDirVar+")")
	flags.String("source", "", "whisper.cpp source tree or .tar.xz archive (env: "+envconfig.SourceDirVar+")")
	flags.String("header", "", "Header bindings are generated from (env: "+envconfig.HeaderVar+")")
	flags.StringP("features", "f", "", "Comma separated capabilities (env: "+envconfig.FeaturesVar+")")
	flags.String("profile", "", "Build profile (env: "+envconfig.ProfileVar+")")
	flags.IntP("jobs", "j", 0, "Parallel compile jobs (env: "+envconfig.JobsVar+")")
	flags.StringP("config", "c", "", "Configuration file (env: "+envconfig.ConfigVar+")")

	rootCmd.AddCommand(
		NewBuildCmd(),
		NewPlanCmd(),
		NewBindingsCmd(),
		NewCleanCmd(),
		NewEnvCmd(),
	)

	return rootCmd
}

// loadSettings resolves settings from flags, then the environment, then the
// configuration file, then defaults.
func loadSettings(cmd *cobra.Command) (envconfig.Settings, error) {
	env := envconfig.OS()

	var file *envconfig.File
	var err error
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		file, err = envconfig.LoadFile(path)
	} else {
		file, err = envconfig.FindFile(env)
	}
	if err != nil {
		return envconfig.Settings{}, err
	}

	s := envconfig.Load(env, file)

	overrides := map[string]*string{
		"target":   &s.Target,
		"out-dir":  &s.OutDir,
		"source":   &s.SourceDir,
		"header":   &s.Header,
		"features": &s.Features,
		"profile":  &s.Profile,
	}
	for name, dst := range overrides {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	if cmd.Flags().Changed("jobs") {
		s.Jobs, _ = cmd.Flags().GetInt("jobs")
	}

	if _, err := capability.Parse(s.Features); err != nil {
		return envconfig.Settings{}, err
	}

	return s, nil
}

func options(cmd *cobra.Command) (sysbuild.Options, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return sysbuild.Options{}, err
	}
	return sysbuild.Options{Settings: s, Env: envconfig.OS()}, nil
}

func NewCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove staged sources, bindings and build outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			if err := sysbuild.Clean(s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleaned %s\n", s.OutDir)
			return nil
		},
	}
}
