package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/siwegate/internal/common"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// errInvalid signals that at least one message failed validation. The
// diagnostics have already been printed, so main only sets the exit code.
var errInvalid = errors.New("validation failed")

func main() {
	err := newRootCmd().Execute()
	_ = common.SyncLogger()
	switch {
	case err == nil:
	case errors.Is(err, errInvalid):
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "siwectl",
		Short:         "Validate, repair and report on Sign-In with Ethereum messages",
		Long:          "siwectl checks EIP-4361 sign-in messages against a validation profile, repairs fixable defects and renders reports.",
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file (log settings, default profile, profile files)")
	pf.StringArrayVar(&a.profileFiles, "profile-file", nil, "additional profile file (yaml, toml or json); repeatable")
	pf.StringVar(&a.profilesDir, "profiles-dir", "", "profile repository directory (default ~/.siwegate/profiles)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level override (debug|info|warn|error)")
	pf.StringVar(&a.colorMode, "color", "auto", "colorize output (auto|on|off)")

	root.AddCommand(
		newValidateCmd(a),
		newFixCmd(a),
		newUndoCmd(),
		newTemplateCmd(a),
		newReplaceCmd(a),
		newReportCmd(a),
		newBatchCmd(a),
		newProfilesCmd(a),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "siwectl %s (built %s)\n", version, buildDate)
			return nil
		},
	}
}
