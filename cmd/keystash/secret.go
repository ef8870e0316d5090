package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readSecret takes the secret from args when given, otherwise prompts on a
// terminal or reads in from a pipe.
func readSecret(args []string, in *os.File, out io.Writer) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if term.IsTerminal(int(in.Fd())) {
		fmt.Fprint(out, "Enter secret value: ")
		b, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

var getCmd = &cobra.Command{
	Use:   "get <account> <realm>",
	Short: "Print the secret stored for account and realm",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		val, ok, err := s.store.Lookup(args[0], args[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no %s stored for %s at %s", s.store.Kind(), args[0], args[1])
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <account> <realm> [secret]",
	Short: "Store a secret, replacing any existing one",
	Long:  "Store a secret. If secret is omitted, prompts on a terminal or reads stdin (useful for piping).",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readSecret(args[2:], os.Stdin, os.Stderr)
		if err != nil {
			return err
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.store.Upsert(value, args[0], args[1], ownerOptions(s.owner)...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Secret for %s at %s stored\n", args[0], args[1])
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <account> <realm> [secret]",
	Short: "Store a new secret, failing if one exists",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := readSecret(args[2:], os.Stdin, os.Stderr)
		if err != nil {
			return err
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.store.Add(value, args[0], args[1], ownerOptions(s.owner)...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Secret for %s at %s added\n", args[0], args[1])
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <account> <realm>",
	Short:   "Remove the secret stored for account and realm",
	Aliases: []string{"delete"},
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.store.RemoveOne(args[0], args[1], ownerOptions(s.owner)...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Secret for %s at %s removed\n", args[0], args[1])
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove every secret of the selected kind tagged with --owner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if s.owner == nil {
			return fmt.Errorf("purge requires --owner (or owner in config)")
		}
		if err := s.store.RemoveAllByOwner(*s.owner); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Secrets owned by %s purged\n", s.owner)
		return nil
	},
}

var rotateCommand string

var rotateCmd = &cobra.Command{
	Use:   "rotate <account> <realm>",
	Short: "Replace a secret with the output of a command",
	Long:  "Run --command through /bin/sh and store its trimmed stdout as the new secret. The old secret is kept if the command fails.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.store.Rotate(args[0], args[1], rotateCommand, ownerOptions(s.owner)...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Secret for %s at %s rotated\n", args[0], args[1])
		return nil
	},
}

func init() {
	rotateCmd.Flags().StringVar(&rotateCommand, "command", "", "Shell command whose output becomes the new secret")
	rotateCmd.MarkFlagRequired("command")

	rootCmd.AddCommand(getCmd, setCmd, addCmd, rmCmd, purgeCmd, rotateCmd)
}
