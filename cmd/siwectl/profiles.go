package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"example.com/siwegate/internal/rules"
)

func newProfilesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage validation profiles",
		Long:  "List the available validation profiles and manage profile packs installed in the local repository.",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available profiles and installed packs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runProfilesList(a)
			},
		},
		&cobra.Command{
			Use:   "install <file>",
			Short: "Install a profile pack (yaml, toml or json)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				pack, err := a.repo.Install(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out.w, "Installed pack %s (%s) to %s\n", pack.Name, strings.Join(pack.Profiles, ", "), pack.Path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <pack>",
			Short: "Remove an installed profile pack",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.repo.Remove(args[0]); err != nil {
					if errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("pack %s is not installed", args[0])
					}
					return err
				}
				fmt.Fprintf(a.out.w, "Removed pack %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "set-default <profile>",
			Short: "Use a profile when --profile is not given",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.repo.SetDefaultProfile(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.out.w, "Default profile set to %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func runProfilesList(a *app) error {
	def, hasDefault, err := a.repo.DefaultProfile()
	if err != nil {
		return err
	}
	if !hasDefault {
		def = rules.ProfileStrict
	}

	a.out.title("Profiles")
	tw := tabwriter.NewWriter(a.out.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSECURITY\tRULES\tDEFAULT")
	for _, name := range a.profiles.Names() {
		p, _ := a.profiles.Lookup(name)
		mark := ""
		if name == def {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\n", name, p.SecurityChecks, len(p.Rules), mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	packs, err := a.repo.ListInstalled()
	if err != nil {
		return err
	}
	if len(packs) == 0 {
		return nil
	}
	fmt.Fprintln(a.out.w)
	a.out.title("Installed packs")
	tw = tabwriter.NewWriter(a.out.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PACK\tPROFILES\tPATH")
	for _, p := range packs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, strings.Join(p.Profiles, ","), p.Path)
	}
	return tw.Flush()
}
