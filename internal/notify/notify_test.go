package notify

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"rvpf/internal/point"
	"rvpf/internal/value"
)

// Test a subscriber receiving a published update.
func TestPublish(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p := &point.Point{UUID: uuid.New(), Name: "flow"}
	hub.Publish(point.NewValue(p, value.Double(3.25)))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update Update
	if err := client.ReadJSON(&update); err != nil {
		t.Fatalf("read: %v", err)
	}
	if update.Point != "flow" || update.Kind != "double" || update.Value != "3.25" {
		t.Errorf("unexpected update: %+v", update)
	}
}

// Test that a disconnected client is dropped on the next publish.
func TestDropsDeadClients(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	server := httptest.NewServer(hub)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	client.Close()

	p := &point.Point{UUID: uuid.New(), Name: "x"}
	for i := 0; i < 10 && hub.Clients() > 0; i++ {
		hub.Publish(point.NewValue(p, value.Long(int64(i))))
		time.Sleep(20 * time.Millisecond)
	}
	if hub.Clients() != 0 {
		t.Errorf("dead client still registered")
	}
}
