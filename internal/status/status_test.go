package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirestack/realtime/internal/channel"
	"github.com/hirestack/realtime/internal/notifications"
	"github.com/hirestack/realtime/internal/ratelimit"
)

type nopAPI struct{}

func (nopAPI) List(ctx context.Context, page, pageSize int) ([]notifications.Item, error) {
	return nil, nil
}
func (nopAPI) UnreadCount(ctx context.Context) (int, error)    { return 0, nil }
func (nopAPI) MarkRead(ctx context.Context, ids []int64) error { return nil }
func (nopAPI) MarkAllRead(ctx context.Context) error           { return nil }

func TestStatusReport(t *testing.T) {
	guards := ratelimit.NewGuards()
	t.Cleanup(guards.Stop)

	ch := channel.New(channel.Config{Endpoint: "ws://localhost/ws"}, "")
	store := notifications.NewStore(nopAPI{})

	srv := New("127.0.0.1:0", ch, store, guards)

	guards.API.CanMakeRequest("local")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	c := srv.echo.NewContext(req, rec)

	require.NoError(t, srv.handleStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "idle", report.ConnectionState)
	assert.Equal(t, 0, report.UnreadCount)
	assert.Equal(t, 99, report.Guards["api"].Remaining)
	assert.Equal(t, 5, report.Guards["auth"].Remaining)
}
