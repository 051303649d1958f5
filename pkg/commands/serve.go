// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cobaltcore-dev/dhsmr/pkg/zbd"
)

// serveCmd attaches the configured devices and keeps them available for a
// host runtime. The SCSI transport itself belongs to the embedding target
// runtime; standalone serving is for soak testing and metrics scraping.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Attach the configured devices and serve metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices := viper.GetStringSlice("devices")
		if len(devices) == 0 {
			return fmt.Errorf("no devices configured; set devices in the config file or DHSMR_DEVICES")
		}
		size := viper.GetUint64("size")

		var metrics *zbd.Metrics
		if viper.GetBool("prometheus") {
			metrics = zbd.NewMetrics()
			metrics.Register()
			zbd.StartPrometheusMetricsServer(viper.GetInt("prometheus-port"))
		}

		var pub *zbd.Publisher
		if url := viper.GetString("nats-url"); url != "" {
			var err error
			pub, err = zbd.NewPublisher(url, viper.GetString("nats-subject"))
			if err != nil {
				return fmt.Errorf("connecting to NATS: %w", err)
			}
			defer pub.Close()
		}

		var attached []*zbd.Device
		for _, raw := range devices {
			d, err := zbd.Open(raw, size)
			if err != nil {
				return err
			}
			if metrics != nil {
				d.SetMetrics(metrics)
			}
			if pub != nil {
				d.SetPublisher(pub)
			}
			attached = append(attached, d)
			log.Info().Str("device", d.Name).Msg("device attached")
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		for _, d := range attached {
			if err := d.Close(); err != nil {
				log.Error().Err(err).Str("device", d.Name).Msg("closing device failed")
			}
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringSlice("devices", nil, "Device config strings (dhsmr/[opts]@path)")
	serveCmd.Flags().Uint64("size", 0, "Nominal device size in bytes for fresh backing files")
	serveCmd.Flags().Bool("prometheus", false, "Enable Prometheus metrics")
	serveCmd.Flags().Int("prometheus-port", getEnvInt("DHSMR_PROMETHEUS_PORT", 9198), "Prometheus metrics port")
	serveCmd.Flags().String("nats-url", getEnv("DHSMR_NATS_URL", ""), "NATS server URL for lifecycle events")
	serveCmd.Flags().String("nats-subject", getEnv("DHSMR_NATS_SUBJECT", "dhsmr.events"), "NATS subject for lifecycle events")

	viper.SetEnvPrefix("DHSMR")
	viper.AutomaticEnv()
	if err := viper.BindPFlags(serveCmd.Flags()); err != nil {
		log.Error().Err(err).Msg("binding serve flags failed")
	}
}
