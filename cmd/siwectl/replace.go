package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type replaceOptions struct {
	set            []string
	remove         []string
	addResource    []string
	removeResource []string
	lineBreaks     bool
	out            string
	inPlace        bool
}

func newReplaceCmd(a *app) *cobra.Command {
	opts := &replaceOptions{}
	cmd := &cobra.Command{
		Use:   "replace [file|-]",
		Short: "Edit individual fields without touching the rest of the message",
		Long: "Apply minimal-diff edits to a message. Edits run in flag order: --set, --remove, " +
			"--add-resource, --remove-resource, then --fix-line-breaks.",
		Example: "  siwectl replace msg.txt --set version=1 --set nonce=Qm7vX2pLk9RtW4zN --remove requestId",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplace(cmd, a, opts, messageArg(args))
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&opts.set, "set", nil, "field=value assignment; repeatable")
	f.StringArrayVar(&opts.remove, "remove", nil, "optional field to remove; repeatable")
	f.StringArrayVar(&opts.addResource, "add-resource", nil, "resource URI to append; repeatable")
	f.StringArrayVar(&opts.removeResource, "remove-resource", nil, "resource URI to drop; repeatable")
	f.BoolVar(&opts.lineBreaks, "fix-line-breaks", false, "normalize blank lines and trailing whitespace")
	f.StringVarP(&opts.out, "out", "o", "", "output file (default stdout)")
	f.BoolVarP(&opts.inPlace, "in-place", "i", false, "rewrite the input file")
	return cmd
}

func runReplace(cmd *cobra.Command, a *app, opts *replaceOptions, path string) error {
	if opts.inPlace {
		if path == "-" {
			return fmt.Errorf("--in-place needs a file argument")
		}
		if opts.out != "" {
			return fmt.Errorf("--in-place and --out are mutually exclusive")
		}
		opts.out = path
	}
	msg, _, err := readMessage(cmd, path)
	if err != nil {
		return err
	}
	repl := a.engine().Replacer()

	for _, assignment := range opts.set {
		name, value, ok := strings.Cut(assignment, "=")
		if !ok {
			return fmt.Errorf("--set %q: expected field=value", assignment)
		}
		if msg, err = repl.ReplaceField(msg, strings.TrimSpace(name), value); err != nil {
			return err
		}
	}
	for _, name := range opts.remove {
		if msg, err = repl.RemoveField(msg, name); err != nil {
			return err
		}
	}
	for _, uri := range opts.addResource {
		if msg, err = repl.AddResource(msg, uri); err != nil {
			return err
		}
	}
	for _, uri := range opts.removeResource {
		var removed bool
		if msg, removed = repl.RemoveResource(msg, uri); !removed {
			newPrinter(cmd.ErrOrStderr()).warn("resource %s not present", uri)
		}
	}
	if opts.lineBreaks {
		msg = repl.FixLineBreaks(msg)
	}
	return writeOutput(cmd, opts.out, msg)
}
