package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/backkem/rf24relay/pkg/identity"
)

var forceGenerate bool

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show or generate the server identity",
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the server and network addresses and the public key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		id, err := identity.Load(cfg.Paths.Identity, passphrase())
		if err != nil {
			return err
		}
		pub := id.PublicKey()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "server:     %x\n", id.Server)
		fmt.Fprintf(out, "network:    %x\n", id.Network)
		fmt.Fprintf(out, "public key: %x\n", pub)
		return nil
	},
}

var identityGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new server identity",
	Long: `Generate writes a new identity file. Devices paired with the previous
identity must repeat their key exchange. The private key is sealed when
` + PassphraseEnv + ` is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path := cfg.Paths.Identity
		if _, err := os.Stat(path); err == nil && !forceGenerate {
			return fmt.Errorf("%s exists, use --force to replace it", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		id, err := identity.Generate(nil)
		if err != nil {
			return err
		}
		if err := id.Save(path, passphrase()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s written to %s\n", id, path)
		return nil
	},
}

func init() {
	identityGenerateCmd.Flags().BoolVarP(&forceGenerate, "force", "f", false, "Replace an existing identity")
	identityCmd.AddCommand(identityShowCmd, identityGenerateCmd)
}
