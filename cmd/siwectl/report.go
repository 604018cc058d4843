package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/siwegate/internal/report"
	"example.com/siwegate/internal/rules"
)

type reportOptions struct {
	profile  string
	jsonOut  string
	pdfOut   string
	lang     string
	fromJSON string
	signKey  string
	kid      string
	jwsOut   string
	fromJWS  string
	pubKey   string
}

func newReportCmd(a *app) *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report [file|-]",
		Short: "Export a validation report as JSON and/or PDF",
		Long: "Validate a message with auto-fix enabled and export the report. With --from-json an existing " +
			"JSON report is rendered instead; --from-jws does the same for a signed report after checking its " +
			"signature against --pubkey.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, a, opts, args)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.profile, "profile", "p", "", "validation profile")
	f.StringVar(&opts.jsonOut, "json-out", "", "write the report as JSON to this file")
	f.StringVar(&opts.pdfOut, "pdf", "", "render the report as PDF to this file")
	f.StringVar(&opts.lang, "lang", "en", "PDF language (en|tr)")
	f.StringVar(&opts.fromJSON, "from-json", "", "render a previously saved JSON report")
	f.StringVar(&opts.jwsOut, "jws-out", "", "write the report signed with --sign-key to this file")
	f.StringVar(&opts.signKey, "sign-key", "", "RSA private key (PEM) used for --jws-out")
	f.StringVar(&opts.kid, "kid", "", "key id recorded in the signature header")
	f.StringVar(&opts.fromJWS, "from-jws", "", "render a signed report after verifying it")
	f.StringVar(&opts.pubKey, "pubkey", "", "RSA public key or certificate (PEM) for --from-jws")
	return cmd
}

func runReport(cmd *cobra.Command, a *app, opts *reportOptions, args []string) error {
	lang, err := report.ParseLanguage(opts.lang)
	if err != nil {
		return err
	}

	if (opts.jwsOut == "") != (opts.signKey == "") {
		return errors.New("--jws-out and --sign-key must be given together")
	}
	if opts.fromJSON != "" && opts.fromJWS != "" {
		return errors.New("--from-json and --from-jws are mutually exclusive")
	}

	var rep rules.Report
	switch {
	case opts.fromJSON != "" || opts.fromJWS != "":
		if len(args) > 0 {
			return errors.New("--from-json and --from-jws do not take a message argument")
		}
		if opts.fromJSON != "" {
			rep, err = report.LoadReportJSON(opts.fromJSON)
		} else {
			if opts.pubKey == "" {
				return errors.New("--from-jws needs --pubkey")
			}
			rep, err = report.VerifyReportJWS(opts.fromJWS, opts.pubKey)
		}
		if err != nil {
			return err
		}
	default:
		msg, _, err := readMessage(cmd, messageArg(args))
		if err != nil {
			return err
		}
		cfg, err := a.config(opts.profile, true, 0)
		if err != nil {
			return err
		}
		rep = rules.ExportReport(a.engine().Validate(msg, cfg))
	}

	if opts.jsonOut != "" {
		if err := report.SaveReportJSON(rep, opts.jsonOut); err != nil {
			return fmt.Errorf("save json report: %w", err)
		}
	}
	if opts.pdfOut != "" {
		if err := report.SaveReportPDF(rep, opts.pdfOut, lang); err != nil {
			return fmt.Errorf("render pdf report: %w", err)
		}
	}
	if opts.jwsOut != "" {
		if err := report.SaveReportJWS(rep, opts.signKey, opts.kid, opts.jwsOut); err != nil {
			return err
		}
	}
	a.logger.Info("report exported",
		zap.String("json", opts.jsonOut),
		zap.String("pdf", opts.pdfOut),
		zap.String("jws", opts.jwsOut),
		zap.String("lang", string(lang)))

	if opts.jsonOut == "" && opts.pdfOut == "" && opts.jwsOut == "" {
		return writeJSON(cmd, rep)
	}
	printReportSummary(a.out, rep)
	return nil
}

func printReportSummary(p *printer, rep rules.Report) {
	s := rep.Summary
	if s.IsValid {
		p.cs.Pass.Fprint(p.w, "PASS")
	} else {
		p.cs.Fail.Fprint(p.w, "FAIL")
	}
	fmt.Fprintf(p.w, " profile=%s errors=%d warnings=%d suggestions=%d fixable=%d\n",
		s.Profile, s.Errors, s.Warnings, s.Suggestions, s.Fixable)
	if s.SigningDigest != "" {
		p.cs.Muted.Fprintf(p.w, "digest %s\n", s.SigningDigest)
	}
}
