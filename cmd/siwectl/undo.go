package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"example.com/siwegate/internal/common"
	"example.com/siwegate/internal/siwe"
)

func newUndoCmd() *cobra.Command {
	var audit, out string
	cmd := &cobra.Command{
		Use:   "undo <fixed-file>",
		Short: "Revert the most recent fix run recorded in an audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if audit == "" {
				return errors.New("required: --audit")
			}
			return runUndo(cmd, args[0], audit, out)
		},
	}
	cmd.Flags().StringVar(&audit, "audit", "", "audit log (jsonl) written by fix --audit")
	cmd.Flags().StringVarP(&out, "out", "o", "", "restored output file (default stdout)")
	return cmd
}

func runUndo(cmd *cobra.Command, path, audit, out string) error {
	entries, err := common.ReadPatchLog(audit)
	if err != nil {
		return fmt.Errorf("read audit: %w", err)
	}
	run := common.LastRun(entries)
	if len(run) == 0 {
		return errors.New("audit log is empty")
	}
	msg, patchedHash, err := readMessage(cmd, path)
	if err != nil {
		return err
	}

	status := newPrinter(cmd.ErrOrStderr())
	original := run[0].MessageSHA256
	applied, skipped := 0, 0
	for _, e := range run {
		next, err := revertEntry(msg, e)
		if err != nil {
			status.warn("skip %s: %v", e.Code, err)
			skipped++
			continue
		}
		msg = next
		applied++
	}

	if err := writeOutput(cmd, out, msg); err != nil {
		return err
	}
	restoredHash := common.Sha256String(msg)
	fmt.Fprintf(cmd.ErrOrStderr(), "Reverted %d fix(es), skipped %d\n", applied, skipped)
	fmt.Fprintf(cmd.ErrOrStderr(), "Patched SHA256:  %s\n", patchedHash)
	fmt.Fprintf(cmd.ErrOrStderr(), "Restored SHA256: %s\n", restoredHash)
	if original != "" && restoredHash != original {
		status.warn("restored message differs from the original (%s); layout repairs cannot be reverted", original)
	}
	return nil
}

// revertEntry writes the recorded Before value back into its field.
func revertEntry(msg string, e common.PatchEntry) (string, error) {
	if e.Field == "" {
		return "", errors.New("layout repair has no field to restore")
	}
	field, err := siwe.ParseField(e.Field)
	if err != nil {
		return "", err
	}
	if e.Before == "" {
		return siwe.RemoveField(msg, field)
	}
	return siwe.ReplaceField(msg, field, e.Before)
}
