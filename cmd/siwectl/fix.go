package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/siwegate/internal/common"
	"example.com/siwegate/internal/rules"
)

type fixOptions struct {
	profile  string
	out      string
	audit    string
	targeted bool
	maxSize  int
}

func newFixCmd(a *app) *cobra.Command {
	opts := &fixOptions{}
	cmd := &cobra.Command{
		Use:   "fix [file|-]",
		Short: "Repair the fixable defects of a sign-in message",
		Long: "Repair fixable defects and write the result. By default the message is regenerated in canonical layout; " +
			"--targeted edits only the affected lines and leaves everything else byte-identical.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(cmd, a, opts, messageArg(args))
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.profile, "profile", "p", "", "validation profile")
	f.StringVarP(&opts.out, "out", "o", "", "output file (default stdout)")
	f.StringVar(&opts.audit, "audit", "", "append applied fixes to this JSONL audit log")
	f.BoolVar(&opts.targeted, "targeted", false, "edit only the affected lines instead of regenerating")
	f.IntVar(&opts.maxSize, "max-size", 0, "maximum message size in bytes")
	return cmd
}

func runFix(cmd *cobra.Command, a *app, opts *fixOptions, path string) error {
	msg, sum, err := readMessage(cmd, path)
	if err != nil {
		return err
	}
	cfg, err := a.config(opts.profile, !opts.targeted, opts.maxSize)
	if err != nil {
		return err
	}
	eng := a.engine()
	stderr := newPrinter(cmd.ErrOrStderr())

	var (
		fixed   string
		applied []rules.AppliedFix
		final   rules.ValidationResult
	)
	if opts.targeted {
		fixed, applied, final = eng.TargetedFix(msg, cfg)
	} else {
		res := eng.Validate(msg, cfg)
		fixed, applied = msg, res.AppliedFixes
		if res.FixedMessage != "" {
			fixed = res.FixedMessage
		}
		final = eng.Validate(fixed, rules.Config{Profile: cfg.Profile, MaxMessageSize: cfg.MaxMessageSize})
	}

	if opts.audit != "" && len(applied) > 0 {
		if err := appendAudit(opts.audit, sum, applied); err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
	}
	if err := writeOutput(cmd, opts.out, fixed); err != nil {
		return err
	}
	a.logger.Info("fix complete",
		zap.String("input", path),
		zap.Int("applied", len(applied)),
		zap.Bool("targeted", opts.targeted),
		zap.Bool("valid", final.IsValid))

	if len(applied) == 0 {
		stderr.warn("no automatic fixes applied")
	}
	stderr.fixes(applied)
	if !final.IsValid {
		for _, d := range final.Errors {
			stderr.diagnostic(d)
		}
		return errInvalid
	}
	return nil
}

func appendAudit(path, sum string, applied []rules.AppliedFix) error {
	return common.NewPatchLog(path).AppendRun(sum, time.Time{}, rules.AuditEntries(applied)...)
}
