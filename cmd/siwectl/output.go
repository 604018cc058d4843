package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"example.com/siwegate/internal/rules"
	"example.com/siwegate/internal/siwe"
)

// colorScheme groups the colors used for terminal output.
type colorScheme struct {
	Title   *color.Color
	Pass    *color.Color
	Fail    *color.Color
	Error   *color.Color
	Warning *color.Color
	Info    *color.Color
	Code    *color.Color
	Muted   *color.Color
}

func defaultColorScheme() *colorScheme {
	return &colorScheme{
		Title:   color.New(color.FgHiWhite, color.Bold),
		Pass:    color.New(color.FgGreen, color.Bold),
		Fail:    color.New(color.FgRed, color.Bold),
		Error:   color.New(color.FgRed),
		Warning: color.New(color.FgYellow),
		Info:    color.New(color.FgCyan),
		Code:    color.New(color.FgHiWhite),
		Muted:   color.New(color.FgHiBlack),
	}
}

type printer struct {
	w  io.Writer
	cs *colorScheme
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, cs: defaultColorScheme()}
}

func (p *printer) severity(s siwe.Severity) *color.Color {
	switch s {
	case siwe.SeverityError:
		return p.cs.Error
	case siwe.SeverityWarning:
		return p.cs.Warning
	default:
		return p.cs.Info
	}
}

// result prints the verdict line followed by one line per diagnostic.
func (p *printer) result(name string, res rules.ValidationResult) {
	if res.IsValid {
		p.cs.Pass.Fprint(p.w, "PASS")
	} else {
		p.cs.Fail.Fprint(p.w, "FAIL")
	}
	fmt.Fprintf(p.w, " %s (profile %s: %d errors, %d warnings, %d suggestions)\n",
		name, res.Profile, len(res.Errors), len(res.Warnings), len(res.Suggestions))
	for _, d := range res.Diagnostics() {
		p.diagnostic(d)
	}
}

func (p *printer) diagnostic(d siwe.ValidationError) {
	fmt.Fprintf(p.w, "  %4d:%-2d ", d.Line, d.Column)
	p.severity(d.Severity).Fprintf(p.w, "%-7s ", d.Severity)
	p.cs.Code.Fprintf(p.w, "%s", d.Code)
	fmt.Fprintf(p.w, " %s", d.Message)
	if d.Fixable {
		p.cs.Muted.Fprint(p.w, " [fixable]")
	}
	fmt.Fprintln(p.w)
	if d.Suggestion != "" {
		p.cs.Muted.Fprintf(p.w, "          hint: %s\n", d.Suggestion)
	}
}

func (p *printer) fixes(fixes []rules.AppliedFix) {
	for _, f := range fixes {
		p.cs.Pass.Fprint(p.w, "  fixed ")
		p.cs.Code.Fprintf(p.w, "%s", f.Code)
		if f.Field != "" {
			fmt.Fprintf(p.w, " %s: %q -> %q", f.Field, f.Before, f.After)
		}
		fmt.Fprintln(p.w)
	}
}

func (p *printer) title(s string) {
	p.cs.Title.Fprintln(p.w, s)
}

func (p *printer) warn(format string, args ...any) {
	p.cs.Warning.Fprintf(p.w, "warning: "+format+"\n", args...)
}
