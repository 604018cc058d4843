package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"example.com/siwegate/internal/rules"
)

type validateOptions struct {
	profile  string
	autoFix  bool
	asJSON   bool
	maxSize  int
	fixedOut string
	field    string
	quick    bool
}

func newValidateCmd(a *app) *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Validate a sign-in message",
		Long:  "Validate an EIP-4361 message read from a file or stdin and print its diagnostics. The exit status is 1 when the message has errors.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, a, opts, messageArg(args))
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.profile, "profile", "p", "", "validation profile (strict, basic, security, development or an installed one)")
	f.BoolVar(&opts.autoFix, "autofix", false, "also compute a repaired message")
	f.BoolVar(&opts.asJSON, "json", false, "print the validation result as JSON")
	f.IntVar(&opts.maxSize, "max-size", 0, fmt.Sprintf("reject messages larger than this many bytes (default %d)", rules.DefaultMaxMessageSize))
	f.StringVar(&opts.fixedOut, "fixed-out", "", "write the repaired message to this file (implies --autofix)")
	f.StringVar(&opts.field, "field", "", "validate a single field only")
	f.BoolVar(&opts.quick, "quick", false, "parse and run field rules only, printing counts")
	return cmd
}

func runValidate(cmd *cobra.Command, a *app, opts *validateOptions, path string) error {
	msg, _, err := readMessage(cmd, path)
	if err != nil {
		return err
	}
	eng := a.engine()
	out := cmd.OutOrStdout()

	switch {
	case opts.field != "":
		diags, err := eng.ValidateField(msg, opts.field)
		if err != nil {
			return err
		}
		if opts.asJSON {
			return writeJSON(cmd, diags)
		}
		if len(diags) == 0 {
			a.out.cs.Pass.Fprintf(out, "%s ok\n", opts.field)
			return nil
		}
		for _, d := range diags {
			a.out.diagnostic(d)
		}
		return errInvalid
	case opts.quick:
		q := eng.QuickValidate(msg)
		if opts.asJSON {
			if err := writeJSON(cmd, q); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "errors=%d warnings=%d complete=%t\n", q.ErrorCount, q.WarningCount, q.IsComplete)
		}
		if q.HasErrors {
			return errInvalid
		}
		return nil
	}

	cfg, err := a.config(opts.profile, opts.autoFix || opts.fixedOut != "", opts.maxSize)
	if err != nil {
		return err
	}
	res := eng.Validate(msg, cfg)
	if opts.asJSON {
		if err := writeJSON(cmd, res); err != nil {
			return err
		}
	} else {
		a.out.result(path, res)
		if res.FixedMessage != "" && opts.fixedOut == "" {
			a.out.fixes(res.AppliedFixes)
			a.out.title("\nRepaired message:")
			fmt.Fprintln(out, res.FixedMessage)
		}
	}
	if opts.fixedOut != "" && res.FixedMessage != "" {
		if err := writeOutput(cmd, opts.fixedOut, res.FixedMessage); err != nil {
			return err
		}
	}
	if !res.IsValid {
		return errInvalid
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
