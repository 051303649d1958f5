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

var (
	formatSize uint64
)

var formatCmd = &cobra.Command{
	Use:   "format <config-string>",
	Short: "Create and format a backing file for a device config string",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if formatSize == 0 {
			return fmt.Errorf("a nonzero --size is required")
		}
		d, err := zbd.Open(args[0], formatSize)
		if err != nil {
			return err
		}
		defer d.Close()
		log.Info().
			Str("device", d.Name).
			Str("model", d.Profile().Name).
			Uint32("lba_size", d.LBASize()).
			Uint64("capacity_lbas", d.Capacity()).
			Msg("device formatted")
		return nil
	},
}

func init() {
	formatCmd.Flags().Uint64Var(&formatSize, "size", 0, "Nominal device size in bytes")
}
