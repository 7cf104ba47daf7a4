package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStatusStreamDeliversEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var apiKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("x-api-key")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		messages := []string{
			`{"broker_order_id":"brk-1","status":"PARTIALLY_FILLED","filled_qty":1,"fill_price":50}`,
			`not json`,
			`{"status":"FILLED"}`,
			`{"broker_order_id":"brk-1","status":"FILLED","filled_qty":2,"fill_price":50.5}`,
		}
		for _, msg := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}

		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	var mu sync.Mutex
	var events []OrderStatusEvent
	gotTwo := make(chan struct{})

	stream := NewStatusStream(
		"ws"+strings.TrimPrefix(server.URL, "http"),
		"key-1",
		func(_ context.Context, event OrderStatusEvent) {
			mu.Lock()
			events = append(events, event)
			if len(events) == 2 {
				close(gotTwo)
			}
			mu.Unlock()
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	streamDone := make(chan struct{})
	go func() {
		_ = stream.Run(ctx)
		close(streamDone)
	}()

	select {
	case <-gotTwo:
	case <-time.After(5 * time.Second):
		t.Fatal("events not delivered")
	}
	cancel()

	select {
	case <-streamDone:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop on cancel")
	}

	mu.Lock()
	defer mu.Unlock()

	// Undecodable payloads and events without a broker id are skipped.
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].BrokerOrderID != "brk-1" || events[0].Status != "PARTIALLY_FILLED" || events[0].FilledQty != 1 {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Status != "FILLED" || events[1].FillPrice == nil || *events[1].FillPrice != 50.5 {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if apiKey != "key-1" {
		t.Fatalf("api key header not sent, got %q", apiKey)
	}
}

func TestStatusStreamRequiresURL(t *testing.T) {
	stream := NewStatusStream("", "key", func(context.Context, OrderStatusEvent) {})
	if err := stream.Run(context.Background()); err == nil {
		t.Fatal("missing url must be an error")
	}
}
