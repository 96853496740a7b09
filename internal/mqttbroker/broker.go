// Package mqttbroker runs an embeddable MQTT broker used for local
// development and integration testing of the automotive session feed,
// so the feed's wire path is exercisable without a real vehicle bus or an
// external broker deployment.
package mqttbroker

import (
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"
)

// Broker wraps an in-process mochi-mqtt server.
type Broker struct {
	srv *mqtt.Server
	log zerolog.Logger
}

// Start brings up a broker listening on addr (e.g. ":1883") with no auth,
// suitable for local dev and tests only.
func Start(addr string, log zerolog.Logger) (*Broker, error) {
	srv := mqtt.New(nil)
	if err := srv.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, err
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "afengine-dev", Address: addr})
	if err := srv.AddListener(tcp); err != nil {
		return nil, err
	}

	b := &Broker{srv: srv, log: log}
	go func() {
		if err := srv.Serve(); err != nil {
			b.log.Error().Err(err).Msg("embedded mqtt broker stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("embedded mqtt broker listening")
	return b, nil
}

// Close shuts the broker down.
func (b *Broker) Close() error {
	b.log.Info().Msg("embedded mqtt broker shutting down")
	return b.srv.Close()
}
