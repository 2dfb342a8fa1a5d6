package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/syepes/hubitat-exporter/pkg/promserver"
)

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "run a single scrape and print the exposition to stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := hubClientFromFlags()
		if err != nil {
			return err
		}
		detailed := viper.GetBool("hubitat-device-details")
		if detailed {
			if err := c.Login(ctx); err != nil {
				log.Ctx(ctx).Err(err).Msg("logging in to hub; device details will use simple labels")
			}
		}
		body, res := promserver.NewServer(ctx, c, promserver.WithDetailedMode(detailed)).Scrape(ctx)
		if _, err := fmt.Fprint(cmd.OutOrStdout(), body); err != nil {
			return err
		}
		if len(res.FailedStages) > 0 {
			return fmt.Errorf("scrape incomplete, failed stages: %v", res.FailedStages)
		}
		return nil
	},
}
