package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/backkem/rf24relay/pkg/discovery"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find relays advertised on the local network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		r, err := discovery.NewResolver(discovery.ResolverConfig{
			BrowseTimeout: discoverTimeout,
			LoggerFactory: cfg.LoggerFactory(),
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), discoverTimeout)
		defer cancel()
		relays, err := r.Browse(ctx)
		if err != nil {
			return err
		}
		n := 0
		for rel := range relays {
			n++
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tserver=%x channel=%s encoding=%s\n",
				rel.Instance, rel.URL(), rel.TXT.Server, rel.TXT.Channel, rel.TXT.Encoding)
		}
		if n == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no relay found")
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVarP(&discoverTimeout, "timeout", "t", 3*time.Second, "Browse duration")
}
