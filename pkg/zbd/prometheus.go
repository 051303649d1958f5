// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/cobaltcore-dev/dhsmr/pkg/scsi"
)

// Metrics is the per-process prometheus metric set, shared by all devices
// and labeled per device.
type Metrics struct {
	commandsTotal        *prometheus.CounterVec
	checkConditionsTotal *prometheus.CounterVec
	openZones            *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dhsmr_commands_total",
				Help: "SCSI commands handled, by device and opcode",
			},
			[]string{"device", "opcode"},
		),
		checkConditionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dhsmr_check_conditions_total",
				Help: "Commands terminated with CHECK CONDITION, by device and additional sense code",
			},
			[]string{"device", "asc"},
		),
		openZones: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dhsmr_open_zones",
				Help: "Currently open zones, by device and open kind",
			},
			[]string{"device", "kind"},
		),
	}
}

// Register adds the metric set to the default registry.
func (m *Metrics) Register() {
	prometheus.MustRegister(m.commandsTotal, m.checkConditionsTotal, m.openZones)
}

// ObserveCommand records one handled command and its outcome.
func (m *Metrics) ObserveCommand(device string, op byte, resp scsi.Response) {
	m.commandsTotal.WithLabelValues(device, fmt.Sprintf("%#02x", op)).Inc()
	if resp.Status == scsi.StatusCheckCondition {
		m.checkConditionsTotal.WithLabelValues(device, fmt.Sprintf("%#04x", resp.Asc)).Inc()
	}
}

// UpdateZoneGauges refreshes the open-zone gauges from the device lists.
func (m *Metrics) UpdateZoneGauges(d *Device) {
	m.openZones.WithLabelValues(d.Name, "implicit").Set(float64(d.impOpen.size))
	m.openZones.WithLabelValues(d.Name, "explicit").Set(float64(d.expOpen.size))
}

// StartPrometheusMetricsServer exposes /metrics on the given port.
func StartPrometheusMetricsServer(port int) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		addr := fmt.Sprintf(":%d", port)
		log.Info().Str("addr", addr).Msg("starting prometheus metrics endpoint")
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error().Err(err).Msg("prometheus metrics endpoint failed")
		}
	}()
}
