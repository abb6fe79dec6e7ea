package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var hostFlag string

var rootCmd = &cobra.Command{
	Use:   "gepi-cli",
	Short: "gepi-cli drives a gepi-server instance from the terminal.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&hostFlag, "host", "",
		"Base url of the gepi-server instance (defaults to the one saved at login).",
	)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
