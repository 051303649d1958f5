// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher emits device lifecycle events (format, mutate, sanitize,
// reformat-after-corruption) to NATS. Optional; a nil publisher on the
// device disables eventing.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// DeviceEvent is the JSON payload published per lifecycle event.
type DeviceEvent struct {
	Device string `json:"device"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
	Time   string `json:"time"`
}

// NewPublisher connects to the NATS server. The connection is owned by the
// publisher and closed by Close.
func NewPublisher(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	log.Info().Str("nats_url", url).Str("subject", subject).Msg("connected to NATS server")
	return &Publisher{nc: nc, subject: subject}, nil
}

func (p *Publisher) Publish(device, kind, detail string) {
	ev := DeviceEvent{
		Device: device,
		Kind:   kind,
		Detail: detail,
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("marshaling device event failed")
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		log.Error().Err(err).Str("subject", p.subject).Msg("publishing device event failed")
	}
}

func (p *Publisher) Close() {
	p.nc.Close()
}
