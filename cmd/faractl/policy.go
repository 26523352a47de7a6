package main

import (
	"context"

	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Policy inspection commands",
}

var policyInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the governor's active policy file",
	Run: func(cmd *cobra.Command, args []string) {
		info, err := newClient().PolicyInfo(context.Background())
		if err != nil {
			fatal(err)
		}
		printResult(info)
	},
}

func init() {
	policyCmd.AddCommand(policyInfoCmd)
	rootCmd.AddCommand(policyCmd)
}
