package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// ErrPermanent marks a handler failure that redelivery cannot fix. Such
// messages are terminated instead of nak'd.
var ErrPermanent = errors.New("permanent failure")

// NATSMetrics receives message counts
type NATSMetrics interface {
	RecordNATSMessagePublished(subject string)
	RecordNATSMessageReceived(subject string)
}

// NATSClient wraps a NATS connection with JetStream
type NATSClient struct {
	servers              string
	name                 string
	nc                   *nats.Conn
	js                   nats.JetStreamContext
	subscriptions        map[string]*nats.Subscription
	mu                   sync.RWMutex
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	maxDeliver           int
	ackWait              time.Duration
	metrics              NATSMetrics
}

// NewNATSClient creates a new NATS client
func NewNATSClient(servers string, metrics NATSMetrics) *NATSClient {
	return &NATSClient{
		servers:              servers,
		name:                 "colorgame",
		subscriptions:        make(map[string]*nats.Subscription),
		reconnectDelay:       2 * time.Second,
		maxReconnectAttempts: -1,
		maxDeliver:           10,
		ackWait:              30 * time.Second,
		metrics:              metrics,
	}
}

// Connect establishes a connection to the NATS server with JetStream
func (c *NATSClient) Connect(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(c.name),
		nats.MaxReconnects(c.maxReconnectAttempts),
		nats.ReconnectWait(c.reconnectDelay),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
			} else {
				log.Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			fields := log.Fields{"error": err}
			if sub != nil {
				fields["subject"] = sub.Subject
			}
			log.WithFields(fields).Error("NATS async error")
		}),
	}

	// Connect to NATS
	nc, err := nats.Connect(c.servers, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Create JetStream context
	js, err := nc.JetStream(nats.Context(ctx))
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.mu.Lock()
	c.nc = nc
	c.js = js
	c.mu.Unlock()

	log.WithField("servers", c.servers).Info("Connected to NATS with JetStream")
	return nil
}

// Subscribe attaches a durable, manually acknowledged consumer. Handler
// errors are nak'd for redelivery up to the delivery limit; errors wrapping
// ErrPermanent are terminated at once.
func (c *NATSClient) Subscribe(subject, durable string, handler func(ctx context.Context, data []byte) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	// Durable consumer name, scoped to this service
	consumerName := fmt.Sprintf("%s-%s", c.name, sanitizeConsumerName(durable))

	// Subscribe with manual acknowledgment
	sub, err := c.js.Subscribe(
		subject,
		func(msg *nats.Msg) {
			if c.metrics != nil {
				c.metrics.RecordNATSMessageReceived(subject)
			}

			// Process the message
			if err := handler(context.Background(), msg.Data); err != nil {
				fields := log.Fields{
					"subject": subject,
					"error":   err,
				}
				if meta, metaErr := msg.Metadata(); metaErr == nil {
					fields["delivered"] = meta.NumDelivered
				}

				if errors.Is(err, ErrPermanent) {
					log.WithFields(fields).Error("Dropping message after permanent failure")
					if termErr := msg.Term(); termErr != nil {
						log.WithError(termErr).Error("Failed to TERM message")
					}
					return
				}

				// Negative acknowledgment for retry
				log.WithFields(fields).Warn("Failed to process message")
				if nakErr := msg.NakWithDelay(c.reconnectDelay); nakErr != nil {
					log.WithError(nakErr).Error("Failed to NAK message")
				}
				return
			}

			// Acknowledge successful processing
			if ackErr := msg.Ack(); ackErr != nil {
				log.WithError(ackErr).Error("Failed to ACK message")
			}
		},
		nats.Durable(consumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(c.maxDeliver),
		nats.AckWait(c.ackWait),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.subscriptions[subject] = sub
	log.WithFields(log.Fields{
		"subject":  subject,
		"consumer": consumerName,
	}).Info("Subscribed to NATS subject")
	return nil
}

// Close gracefully shuts down the NATS connection
func (c *NATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Drain all subscriptions
	for subject, sub := range c.subscriptions {
		if err := sub.Drain(); err != nil {
			log.WithFields(log.Fields{
				"subject": subject,
				"error":   err,
			}).Error("Failed to drain subscription")
		}
	}
	c.subscriptions = make(map[string]*nats.Subscription)

	// Close the connection
	if c.nc != nil {
		c.nc.Close()
		log.Info("NATS connection closed")
	}
	return nil
}

// IsConnected returns true if the client is connected to NATS
func (c *NATSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nc != nil && c.nc.IsConnected()
}

// ensureStream creates the stream if it does not exist yet
func (c *NATSClient) ensureStream(cfg *nats.StreamConfig) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	// Check if stream exists
	if _, err := js.StreamInfo(cfg.Name); err == nil {
		log.WithField("stream", cfg.Name).Info("JetStream stream already exists")
		return nil
	}

	// Create the stream
	if _, err := js.AddStream(cfg); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
	}

	log.WithFields(log.Fields{
		"stream":   cfg.Name,
		"subjects": cfg.Subjects,
	}).Info("Created JetStream stream")
	return nil
}

// PublishMsg publishes a message through JetStream and waits for the stream ack
func (c *NATSClient) PublishMsg(ctx context.Context, msg *nats.Msg) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return fmt.Errorf("not connected to NATS JetStream")
	}

	ack, err := js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish message to subject %s: %w", msg.Subject, err)
	}
	if c.metrics != nil {
		c.metrics.RecordNATSMessagePublished(msg.Subject)
	}

	log.WithFields(log.Fields{
		"subject":   msg.Subject,
		"size":      len(msg.Data),
		"sequence":  ack.Sequence,
		"duplicate": ack.Duplicate,
	}).Debug("Published message to NATS")
	return nil
}

func sanitizeConsumerName(name string) string {
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, "*", "wildcard")
	return strings.ReplaceAll(name, ">", "all")
}
