package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/afengine/afengine/internal/mqttbroker"
)

var brokerAddr string

func init() {
	brokerCmd.Flags().StringVar(&brokerAddr, "addr", ":1883", "TCP listen address for the embedded broker")
}

var brokerCmd = &cobra.Command{
	Use:   "broker",
	Short: "Run an embeddable MQTT broker for local development and testing",
	Long:  "Runs the mochi-mqtt broker used to exercise the automotive session feed without a real vehicle bus.",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := zerolog.New(os.Stdout).With().Timestamp().Logger()

		b, err := mqttbroker.Start(brokerAddr, log)
		if err != nil {
			return err
		}
		defer b.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}
