// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cobaltcore-dev/dhsmr/pkg/zbd"
)

var infoCmd = &cobra.Command{
	Use:   "info <config-string>",
	Short: "Dump the metadata geometry of an existing backing file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := zbd.Open(args[0], 0)
		if err != nil {
			return err
		}
		defer d.Close()

		info := d.Info()
		log.Info().
			Str("model", info.Model).
			Str("type", info.DevType).
			Str("serial", info.Serial).
			Uint32("lba_size", info.LBASize).
			Uint64("phys_capacity", info.PhysCapacity).
			Uint64("logical_capacity", info.LogicalCap).
			Uint64("zone_size", info.ZoneSize).
			Uint32("zones", info.NrZones).
			Uint32("conv_zones", info.NrConvZones).
			Uint32("realms", info.NrRealms).
			Uint32("smr_gain", info.SMRGain).
			Bool("urswrz", info.URSWRZ).
			Bool("realms_feature", info.RealmsFeat).
			Msg("device geometry")
		for i, dom := range info.Domains {
			log.Info().
				Int("domain", i).
				Str("type", dom.Type.String()).
				Uint64("start_lba", dom.Start).
				Uint64("end_lba", dom.End).
				Uint64("zones", dom.NrZones).
				Msg("zone domain")
		}
		for cond, n := range d.ZoneSummary() {
			log.Info().Str("cond", cond).Uint32("zones", n).Msg("zone summary")
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <config-string>",
	Short: "Validate the metadata of an existing backing file without reformatting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := zbd.Check(args[0]); err != nil {
			return fmt.Errorf("metadata validation failed: %w", err)
		}
		fmt.Println("metadata OK")
		return nil
	},
}
