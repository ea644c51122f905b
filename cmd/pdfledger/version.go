package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/pdfledger"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of pdfledger",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pdfledger version %s\n", strings.TrimSpace(pdfledger.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
