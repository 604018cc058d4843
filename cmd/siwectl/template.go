package main

import (
	"github.com/spf13/cobra"

	"example.com/siwegate/internal/siwe"
)

func newTemplateCmd(a *app) *cobra.Command {
	var (
		overrides siwe.Fields
		out       string
	)
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Generate a compliant message with secure defaults",
		Long:  "Generate an EIP-4361 message with a fresh nonce, the current time and a ten minute lifetime. Flags override individual fields.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if overrides.Address != "" {
				if fixed, ok := siwe.RepairAddress(overrides.Address); ok {
					overrides.Address = fixed
				}
			}
			msg, err := a.engine().Fixer().GenerateTemplate(overrides)
			if err != nil {
				return err
			}
			return writeOutput(cmd, out, msg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&overrides.Domain, "domain", "", "requesting domain")
	f.StringVar(&overrides.Address, "address", "", "account address (checksummed on output)")
	f.StringVar(&overrides.Statement, "statement", "", "human readable statement")
	f.StringVar(&overrides.URI, "uri", "", "resource URI (default https://<domain>)")
	f.StringVar(&overrides.ChainID, "chain-id", "", "EIP-155 chain id")
	f.StringVar(&overrides.Nonce, "nonce", "", "nonce (default: freshly generated)")
	f.StringVar(&overrides.ExpirationTime, "expiration-time", "", "RFC 3339 expiration time")
	f.StringVar(&overrides.NotBefore, "not-before", "", "RFC 3339 not-before time")
	f.StringVar(&overrides.RequestID, "request-id", "", "request id (default: random UUID)")
	f.StringArrayVar(&overrides.Resources, "resource", nil, "resource URI; repeatable")
	f.StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
