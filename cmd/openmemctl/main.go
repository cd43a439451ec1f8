package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverFlag string
	rootCmd    = &cobra.Command{
		Use:   "openmemctl",
		Short: "CLI client for the openmem REST API",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "http://localhost:8765", "openmem server base URL")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
