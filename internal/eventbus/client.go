package eventbus

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	nc "github.com/nats-io/nats.go"
)

// Message is a received NATS message, decoupled from the nats.go type so
// callers in other packages don't need to import it directly.
type Message struct {
	Subject string
	Data    []byte
}

// Client wraps a NATS connection with the small set of operations the
// engine needs: publish JSON-encoded lifecycle events, and let subscribers
// (the websocket live-tail hub) drain them back out.
type Client struct {
	conn *nc.Conn
}

// NewClient connects to url with indefinite auto-reconnect, matching the
// engine's expectation that a transient embedded-server hiccup never loses
// a subscriber.
func NewClient(url string) (*Client, error) {
	opts := []nc.Option{
		nc.ReconnectWait(2 * time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			if err != nil {
				log.Printf("[EVENTBUS] disconnected: %v", err)
			}
		}),
		nc.ReconnectHandler(func(conn *nc.Conn) {
			log.Printf("[EVENTBUS] reconnected to %s", conn.ConnectedUrl())
		}),
	}
	conn, err := nc.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("eventbus: connect: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Publish JSON-encodes v and publishes it to subject. Satisfies
// internal/executor.Publisher.
func (c *Client) Publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("eventbus: marshal: %w", err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("eventbus: publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers an asynchronous handler for subject (which may use
// NATS wildcard tokens, e.g. "blueprint.*.node.*.status").
func (c *Client) Subscribe(subject string, handler func(Message)) (*nc.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nc.Msg) {
		handler(Message{Subject: msg.Subject, Data: msg.Data})
	})
	if err != nil {
		return nil, fmt.Errorf("eventbus: subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Flush blocks until buffered outbound data reaches the server.
func (c *Client) Flush() error {
	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("eventbus: flush: %w", err)
	}
	return nil
}

// IsConnected reports whether the client currently holds a live connection.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
