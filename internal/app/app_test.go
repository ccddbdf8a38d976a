package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirestack/realtime/internal/config"
	"github.com/hirestack/realtime/internal/credentials"
	"github.com/hirestack/realtime/internal/dispatch"
	"github.com/hirestack/realtime/internal/pubsub"
)

func testConfig() *config.Config {
	return &config.Config{
		APIURL:               "http://127.0.0.1:9999",
		WSURL:                "ws://127.0.0.1:9999/ws/notifications",
		Token:                "test-token",
		NotificationPageSize: 20,
	}
}

func TestNew_WiresCollaborators(t *testing.T) {
	client, err := New(testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close(context.Background()) })

	assert.NotNil(t, client.Guards)
	assert.NotNil(t, client.Bus)
	assert.NotNil(t, client.Dispatcher)
	assert.NotNil(t, client.Channel)
	assert.NotNil(t, client.Store)
	assert.Nil(t, client.Status, "no status server without an address")
}

func TestNew_NotificationFramesReachStore(t *testing.T) {
	client, err := New(testConfig(), WithCredentials(credentials.Static("t")))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close(context.Background()) })

	client.Dispatcher.Dispatch([]byte(`{"type":"notification","data":{"id":9,"title":"Offer extended"}}`))

	items := client.Store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, int64(9), items[0].ID)
	assert.Equal(t, 1, client.Store.UnreadCount())
}

func TestNew_InjectedCollaboratorsAreKept(t *testing.T) {
	bus := pubsub.NewBus()
	d := dispatch.New(dispatch.WithPublisher(bus))

	client, err := New(testConfig(), WithBus(bus), WithDispatcher(d))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close(context.Background()) })

	assert.Same(t, bus, client.Bus)
	assert.Same(t, d, client.Dispatcher)
}
