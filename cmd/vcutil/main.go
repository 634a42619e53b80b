package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kamazee/vcutil/pkg/vcerrors"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load() // Ignore error if .env doesn't exist

	root := &cobra.Command{
		Use:   "vcutil",
		Short: "vcutil - incremental table archiver",
		Long: `vcutil walks a table along a date/time or integer column in fixed-size windows,
appends each window's rows to a destination file and optionally deletes exactly
the rows it exported.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vcutil v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newArchiveCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVerifyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error category to a process exit status.
func exitCode(err error) int {
	switch {
	case vcerrors.IsType(err, vcerrors.ErrorTypeCanceled):
		return 130
	case vcerrors.IsType(err, vcerrors.ErrorTypeConfig):
		return 2
	default:
		return 1
	}
}
