// Package ingest consumes pipeline messages from the broker, runs the
// anomaly aggregator over each one, and publishes resulting alerts.
// Processing is strictly sequential: one message is fully handled before
// the next is taken, so detectors never share an accumulator across runs.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/driftwatch/driftwatch/internal/conf"
	"github.com/driftwatch/driftwatch/internal/detector"
	"github.com/driftwatch/driftwatch/internal/logger"
	"github.com/driftwatch/driftwatch/internal/telemetry"
)

const (
	connectTimeout = 30 * time.Second
	publishTimeout = 10 * time.Second

	// inboxSize buffers broker deliveries ahead of the sequential worker.
	inboxSize = 256

	outcomeOK      = "ok"
	outcomeAlert   = "alert"
	outcomeDropped = "dropped"
)

// Consumer runs the consume → detect → publish loop.
type Consumer struct {
	settings conf.BrokerSettings
	agg      *detector.Aggregator
	log      logger.Logger

	client mqtt.Client
	inbox  chan []byte
}

// NewConsumer creates a Consumer. Connect is deferred to Run.
func NewConsumer(settings conf.BrokerSettings, agg *detector.Aggregator, log logger.Logger) *Consumer {
	c := &Consumer{
		settings: settings,
		agg:      agg,
		log:      log,
		inbox:    make(chan []byte, inboxSize),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(settings.URL).
		SetClientID(settings.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("broker connection lost", logger.Error(err))
		})
	c.client = mqtt.NewClient(opts)
	return c
}

// Run connects to the broker and processes messages until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("broker connect timed out after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	c.log.Info("connected to broker",
		logger.String("url", c.settings.URL),
		logger.String("input_topic", c.settings.InputTopic))

	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect(uint(publishTimeout.Milliseconds()))
			c.log.Info("consumer stopped")
			return nil
		case raw := <-c.inbox:
			c.process(ctx, raw)
		}
	}
}

// onConnect (re)subscribes the input topic. Runs on every reconnect.
func (c *Consumer) onConnect(client mqtt.Client) {
	token := client.Subscribe(c.settings.InputTopic, c.settings.QoS, func(_ mqtt.Client, m mqtt.Message) {
		payload := make([]byte, len(m.Payload()))
		copy(payload, m.Payload())
		c.inbox <- payload
	})
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Error("failed to subscribe input topic",
				logger.String("topic", c.settings.InputTopic),
				logger.Error(err))
		}
	}()
}

// process handles one raw pipeline message end to end.
func (c *Consumer) process(ctx context.Context, raw []byte) {
	msg, err := detector.ParseMessage(raw)
	if err != nil {
		telemetry.MessagesProcessed.WithLabelValues(outcomeDropped).Inc()
		c.log.Warn("dropping malformed pipeline message", logger.Error(err))
		return
	}

	alert := c.agg.Run(ctx, msg)
	if alert == nil {
		telemetry.MessagesProcessed.WithLabelValues(outcomeOK).Inc()
		c.log.Debug("no anomalies found",
			logger.String("article_id", msg.Metadata.ID))
		return
	}

	if err := c.publishAlert(alert); err != nil {
		// The alert is lost; broker QoS owns redelivery of the input.
		telemetry.MessagesProcessed.WithLabelValues(outcomeDropped).Inc()
		c.log.Error("failed to publish alert",
			logger.String("alert_id", alert.ID),
			logger.Error(err))
		return
	}
	telemetry.MessagesProcessed.WithLabelValues(outcomeAlert).Inc()
	c.log.Info("alert published",
		logger.String("alert_id", alert.ID),
		logger.String("article_id", alert.ArticleID),
		logger.String("domain", alert.Domain),
		logger.Float64("score", alert.TotalScore))
}

func (c *Consumer) publishAlert(alert *detector.Alert) error {
	payload, err := json.Marshal(alert.Record())
	if err != nil {
		return fmt.Errorf("failed to encode alert %s: %w", alert.ID, err)
	}

	token := c.client.Publish(c.settings.AlertsTopic, c.settings.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("alert publish timed out after %s", publishTimeout)
	}
	return token.Error()
}
