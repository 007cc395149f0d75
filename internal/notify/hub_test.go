package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/license"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func registerTestClient(t *testing.T, hub *Hub, buffer int) *Client {
	t.Helper()
	client := &Client{
		hub:  hub,
		send: make(chan []byte, buffer),
	}
	hub.register <- client
	require.Eventually(t, func() bool {
		return hub.ClientCount() > 0
	}, time.Second, 5*time.Millisecond)
	return client
}

func receiveMessage(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case data := <-client.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return Message{}
	}
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub := testHub(t)
	first := registerTestClient(t, hub, 4)
	second := registerTestClient(t, hub, 4)

	hub.NotifyLimitWarning(context.Background(), "tenant-1", "payroll", license.WarningEvent{
		LimitType:  "employees",
		Percentage: 90,
	})

	for _, client := range []*Client{first, second} {
		msg := receiveMessage(t, client)
		assert.Equal(t, TypeLimitWarning, msg.Type)
		assert.Equal(t, "tenant-1", msg.TenantID)
		assert.Equal(t, "payroll", msg.ModuleKey)
	}
}

func TestHubSlowClientDoesNotBlock(t *testing.T) {
	hub := testHub(t)
	slow := registerTestClient(t, hub, 0)
	healthy := registerTestClient(t, hub, 4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.NotifyLimitViolation(context.Background(), "tenant-1", "payroll", license.ViolationEvent{
			LimitType: "employees",
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}

	msg := receiveMessage(t, healthy)
	assert.Equal(t, TypeLimitViolation, msg.Type)
	select {
	case <-slow.send:
		t.Fatal("slow client should have been skipped")
	default:
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := testHub(t)
	client := registerTestClient(t, hub, 4)

	hub.unregister <- client

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, time.Second, 5*time.Millisecond)

	_, open := <-client.send
	assert.False(t, open)
}

func TestHubExpiryNotificationPayload(t *testing.T) {
	hub := testHub(t)
	client := registerTestClient(t, hub, 4)

	hub.NotifyExpiryWarning(context.Background(), "tenant-2", "recruiting", license.ExpiryStatus{
		DaysLeft:     10,
		NeedsRenewal: true,
	})

	msg := receiveMessage(t, client)
	assert.Equal(t, TypeExpiryWarning, msg.Type)
	assert.Equal(t, "tenant-2", msg.TenantID)

	payload, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	var status license.ExpiryStatus
	require.NoError(t, json.Unmarshal(payload, &status))
	assert.True(t, status.NeedsRenewal)
	assert.Equal(t, 10, status.DaysLeft)
}
