package cmd

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/syepes/hubitat-exporter/pkg/outputter"
	"github.com/syepes/hubitat-exporter/pkg/promserver"
)

func init() {
	devicesCmd.Flags().StringP(
		"output",
		"o",
		"text",
		"output format, one of: "+strings.Join(outputter.Names, ", "))
	rootCmd.AddCommand(devicesCmd)
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "list the hub's devices with their inventory record and exported values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		l := log.Ctx(ctx)
		out, err := outputter.ByName(viper.GetString("output"))
		if err != nil {
			return err
		}
		c, err := hubClientFromFlags()
		if err != nil {
			return err
		}

		var inventory promserver.InventoryIndex
		if viper.GetBool("hubitat-device-details") {
			if err := c.Login(ctx); err != nil {
				l.Err(err).Msg("logging in to hub; listing devices without inventory")
			} else if records, err := c.Inventory(ctx); err != nil {
				l.Err(err).Msg("fetching device inventory; listing devices without inventory")
			} else {
				inventory = promserver.NewInventoryIndex(records)
			}
		}

		ids, err := c.DeviceIDs(ctx)
		if err != nil {
			return fmt.Errorf("fetching device list: %w", err)
		}
		details, err := c.DeviceDetails(ctx, ids)
		if err != nil {
			return fmt.Errorf("fetching device details: %w", err)
		}
		return out(ctx, cmd.OutOrStdout(), "devices", "devices", promserver.DeviceViews(details, inventory))
	},
}
