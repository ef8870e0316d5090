package main

import (
	"fmt"

	"github.com/benaskins/keystash/internal/keychain"
	"github.com/spf13/cobra"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the item kinds and which attribute holds the realm",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\trealm is the server\n", keychain.InternetPassword)
		fmt.Fprintf(out, "%s\trealm is the service\n", keychain.GenericPassword)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}
