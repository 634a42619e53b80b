package main

import (
	"github.com/spf13/cobra"

	"github.com/kamazee/vcutil/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration that archive would use after merging defaults, the
config file, VCUTIL_* environment variables and flags. Secrets are redacted.`,
		Args: cobra.NoArgs,
	}
	flags := addConfigFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		l, err := flags.loader()
		if err != nil {
			return err
		}
		cfg, err := l.Read(flags.path)
		if err != nil {
			return err
		}
		out, err := config.Render(cfg.Redacted())
		if err != nil {
			return err
		}
		if _, err := cmd.OutOrStdout().Write(out); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			cmd.PrintErrf("warning: %v\n", err)
		}
		return nil
	}
	return cmd
}
