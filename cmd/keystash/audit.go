package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/benaskins/keystash/internal/audit"
	"github.com/spf13/cobra"
)

var (
	auditFollow bool
	auditLimit  int
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the credential audit log",
	Args:  cobra.NoArgs,
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().BoolVarP(&auditFollow, "follow", "f", false, "Keep printing entries as they are appended")
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Number of recent entries to show (0 for all)")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	path, err := activeConfig.AuditLogPath()
	if err != nil {
		return err
	}

	entries, err := audit.ReadAll(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if !auditFollow {
			fmt.Fprintln(cmd.OutOrStdout(), "No audit entries")
			return nil
		}
	case err != nil:
		return err
	}
	if auditLimit > 0 && len(entries) > auditLimit {
		entries = entries[len(entries)-auditLimit:]
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tKIND\tACCOUNT\tREALM\tOWNER\tRESULT")
	for _, e := range entries {
		printEntry(w, e)
	}
	w.Flush()

	if !auditFollow {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := touchFile(path); err != nil {
		return err
	}
	return audit.Follow(ctx, path, func(e audit.Entry) {
		printEntry(w, e)
		w.Flush()
	})
}

func printEntry(w io.Writer, e audit.Entry) {
	owner := e.Owner
	if owner == "" {
		owner = "-"
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		e.Timestamp.Local().Format(time.DateTime),
		e.Action, e.Kind, e.Account, e.Realm, owner, entryResult(e))
}

func entryResult(e audit.Entry) string {
	switch {
	case e.Error != "" && e.Code != 0:
		return fmt.Sprintf("error %d", e.Code)
	case e.Error != "":
		return "error"
	case e.Found != nil && !*e.Found:
		return "absent"
	}
	return "ok"
}

// touchFile creates path if it does not exist so it can be watched.
func touchFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("creating audit log: %w", err)
	}
	return f.Close()
}
