package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"
)

// OrderStatusEvent is one status update pushed by the broker over the order
// stream.
type OrderStatusEvent struct {
	BrokerOrderID string   `json:"broker_order_id"`
	Status        string   `json:"status"`
	FilledQty     float64  `json:"filled_qty"`
	FillPrice     *float64 `json:"fill_price,omitempty"`
	Reason        string   `json:"reason,omitempty"`
}

// StatusHandler receives decoded events. It is called from the stream's read
// goroutine; handlers that do real work should hand off to the task queue.
type StatusHandler func(ctx context.Context, event OrderStatusEvent)

// StatusStream consumes the broker's websocket order-status feed and forwards
// every event to the handler. It reconnects with backoff until the context is
// canceled.
type StatusStream struct {
	url     string
	apiKey  string
	handler StatusHandler
}

func NewStatusStream(url, apiKey string, handler StatusHandler) *StatusStream {
	return &StatusStream{url: url, apiKey: apiKey, handler: handler}
}

// Run blocks, reading events until the context is canceled.
func (s *StatusStream) Run(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("status stream url not configured")
	}

	backoff := time.Second
	for {
		if err := s.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.WithError(err).Warn("Order status stream disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *StatusStream) consumeOnce(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout:  15 * time.Second,
		EnableCompression: true,
		Proxy:             http.ProxyFromEnvironment,
	}

	header := http.Header{}
	header.Set("x-api-key", s.apiKey)

	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	logger.WithField("url", s.url).Info("Order status stream connected")

	// Close the connection when the context is canceled so ReadMessage
	// returns instead of blocking forever.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}

		var event OrderStatusEvent
		if err := json.Unmarshal(msg, &event); err != nil {
			logger.WithError(err).WithField("payload", string(msg)).
				Warn("Skipping undecodable status event")
			continue
		}
		if event.BrokerOrderID == "" {
			continue
		}

		s.handler(ctx, event)
	}
}
