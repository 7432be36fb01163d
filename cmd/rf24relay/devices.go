package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/registry"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Inspect the device table",
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List paired devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tUUID\tKEYED\tIV")
		for _, d := range reg.Devices() {
			iv := "-"
			if d.IV != nil {
				iv = fmt.Sprintf("%x", d.IV)
			}
			fmt.Fprintf(w, "%d\t%s\t%t\t%s\n", d.Address, d.UUID, d.PublicKey != nil, iv)
		}
		return w.Flush()
	},
}

var devicesForgetCmd = &cobra.Command{
	Use:   "forget <uuid>",
	Short: "Remove a device and release its address",
	Long: `Forget removes a device from the table. Stop the relay first: a running
relay keeps its own copy of the table and rewrites the file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		uuid, err := frame.ParseUUID(args[0])
		if err != nil {
			return err
		}
		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		if err := reg.Forget(uuid); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", uuid)
		return nil
	},
}

func openRegistry(cmd *cobra.Command) (*registry.Registry, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	reg := registry.New(registry.Config{
		Storage:       registry.NewFileStorage(cfg.Paths.Registry),
		LoggerFactory: cfg.LoggerFactory(),
	})
	if err := reg.Load(); err != nil {
		return nil, err
	}
	return reg, nil
}

func init() {
	devicesCmd.AddCommand(devicesListCmd, devicesForgetCmd)
}
