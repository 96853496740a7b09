package session

import (
	"encoding/json"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/afengine/afengine/internal/focus"
)

// pairingEvent is the wire shape published on the vehicle session-bus topic
// whenever a display is paired to (or unpaired from) a session token.
type pairingEvent struct {
	Token     string `json:"token"`
	DisplayID int    `json:"displayId"`
	Unpair    bool   `json:"unpair"`
}

// MQTTFeed subscribes to a vehicle-bus topic and writes session→display
// pairings into a Resolver as they occur. It runs entirely outside the
// request path: Resolver.Put/Delete are the only calls it ever makes, and
// Resolver is itself mutex-guarded, so this goroutine never contends with
// in-flight requestFocus/getStatus handling beyond that lock.
type MQTTFeed struct {
	conn      mqtt.Client
	resolver  *Resolver
	topic     string
	connected atomic.Bool
	log       zerolog.Logger
}

// FeedOptions configures the feed's MQTT connection.
type FeedOptions struct {
	BrokerURL string
	ClientID  string
	Topic     string
	Username  string
	Password  string
	Log       zerolog.Logger
}

// Connect dials the broker and begins writing pairing updates into
// resolver. The resolver should already hold any static defaults (see
// NewFixedAutomotiveResolver); this feed only ever adds or removes entries
// on top of them.
func Connect(opts FeedOptions, resolver *Resolver) (*MQTTFeed, error) {
	f := &MQTTFeed{
		resolver: resolver,
		topic:    opts.Topic,
		log:      opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(f.onConnect).
		SetConnectionLostHandler(f.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	f.conn = mqtt.NewClient(clientOpts)
	token := f.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *MQTTFeed) onConnect(client mqtt.Client) {
	f.connected.Store(true)
	f.log.Info().Str("topic", f.topic).Msg("session feed connected, subscribing")
	token := client.Subscribe(f.topic, 1, f.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		f.log.Error().Err(err).Msg("session feed subscribe failed")
	}
}

func (f *MQTTFeed) onConnectionLost(_ mqtt.Client, err error) {
	f.connected.Store(false)
	f.log.Warn().Err(err).Msg("session feed connection lost, will auto-reconnect")
}

func (f *MQTTFeed) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var ev pairingEvent
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		f.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("session feed: malformed pairing event")
		return
	}
	if ev.Token == "" {
		return
	}
	if ev.Unpair {
		f.resolver.Delete(ev.Token)
		f.log.Info().Str("token", ev.Token).Msg("session feed: unpaired")
		return
	}
	f.resolver.Put(ev.Token, focus.DisplayID(ev.DisplayID))
	f.log.Info().Str("token", ev.Token).Int("display_id", ev.DisplayID).Msg("session feed: paired")
}

// IsConnected reports whether the feed currently has a live broker
// connection.
func (f *MQTTFeed) IsConnected() bool {
	return f.connected.Load()
}

// Close disconnects the feed.
func (f *MQTTFeed) Close() {
	f.log.Info().Msg("disconnecting session feed")
	f.conn.Disconnect(1000)
}
