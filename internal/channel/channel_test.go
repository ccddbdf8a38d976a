package channel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readResult struct {
	data []byte
	err  error
}

// fakeConn is a scripted transport connection.
type fakeConn struct {
	reads chan readResult

	mu     sync.Mutex
	writes [][]byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan readResult, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-f.reads:
		return websocket.TextMessage, r.data, r.err
	case <-f.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
	})
	return nil
}

func (f *fakeConn) pushFrame(data []byte) {
	f.reads <- readResult{data: data}
}

func (f *fakeConn) pushError(err error) {
	f.reads <- readResult{err: err}
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out scripted connections in order and records every dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	urls  []string
	gate  chan struct{} // when non-nil, Dial blocks until the gate is fed
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if len(d.conns) == 0 {
		return nil, errors.New("no more scripted connections")
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func fastBackoff() Backoff {
	return Backoff{
		InitialDelay: 20 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Factor:       2,
		Jitter:       false,
	}
}

func TestChannel_ConnectFiresCallbackAndOpens(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	connected := make(chan struct{})
	ch := New(Config{Endpoint: "wss://example.test/ws/notifications", Backoff: fastBackoff()}, "tok",
		WithDialer(dialer),
		OnConnect(func() { close(connected) }),
	)
	defer ch.Disconnect()

	ch.Connect()

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("connect callback not fired")
	}
	assert.Equal(t, StateOpen, ch.State())
	assert.Equal(t, 1, dialer.calls())
}

func TestChannel_AppendsEncodedTokenQuery(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	ch := New(Config{Endpoint: "wss://example.test/ws/chat", Backoff: fastBackoff()}, "abc def+g",
		WithDialer(dialer))
	defer ch.Disconnect()

	ch.Connect()

	assert.Eventually(t, func() bool { return dialer.calls() == 1 }, time.Second, 5*time.Millisecond)
	dialer.mu.Lock()
	url := dialer.urls[0]
	dialer.mu.Unlock()
	assert.Equal(t, "wss://example.test/ws/chat?token=abc+def%2Bg", url)
}

func TestChannel_FramesReachCallbackInOrder(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	var mu sync.Mutex
	var frames []string
	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: fastBackoff()}, "tok",
		WithDialer(dialer),
		OnFrame(func(data []byte) {
			mu.Lock()
			defer mu.Unlock()
			frames = append(frames, string(data))
		}),
	)
	defer ch.Disconnect()

	ch.Connect()
	conn.pushFrame([]byte(`{"type":"typing"}`))
	conn.pushFrame([]byte(`{"type":"pong"}`))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`{"type":"typing"}`, `{"type":"pong"}`}, frames)
}

func TestChannel_NormalCloseDoesNotReconnect(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: fastBackoff()}, "tok",
		WithDialer(dialer))
	defer ch.Disconnect()

	ch.Connect()
	assert.Eventually(t, func() bool { return ch.State() == StateOpen }, time.Second, 5*time.Millisecond)

	conn.pushError(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"})

	assert.Eventually(t, func() bool { return ch.State() == StateClosed }, time.Second, 5*time.Millisecond)

	// Well past the retry delay: still exactly one dial.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, dialer.calls())

	code, _ := ch.LastClose()
	assert.Equal(t, websocket.CloseNormalClosure, code)
}

func TestChannel_AbnormalCloseReconnectsExactlyOnce(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}

	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: fastBackoff()}, "tok",
		WithDialer(dialer))
	defer ch.Disconnect()

	ch.Connect()
	assert.Eventually(t, func() bool { return ch.State() == StateOpen }, time.Second, 5*time.Millisecond)

	conn1.pushError(&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "dropped"})

	assert.Eventually(t, func() bool {
		return dialer.calls() == 2 && ch.State() == StateOpen
	}, time.Second, 5*time.Millisecond)

	// No duplicate attempt sneaks in afterwards.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, dialer.calls())
}

func TestChannel_AccessDeniedDoesNotReconnect(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: fastBackoff()}, "tok",
		WithDialer(dialer))
	defer ch.Disconnect()

	ch.Connect()
	assert.Eventually(t, func() bool { return ch.State() == StateOpen }, time.Second, 5*time.Millisecond)

	conn.pushError(&websocket.CloseError{Code: CloseAccessDenied, Text: "access denied"})

	assert.Eventually(t, func() bool { return ch.State() == StateClosed }, time.Second, 5*time.Millisecond)

	// No retry timer was armed.
	ch.mu.Lock()
	timer := ch.retryTimer
	ch.mu.Unlock()
	assert.Nil(t, timer)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, dialer.calls())
}

func TestChannel_DisconnectCancelsPendingReconnect(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn, newFakeConn()}}

	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: Backoff{
		InitialDelay: 60 * time.Millisecond,
		MaxDelay:     time.Second,
		Factor:       2,
	}}, "tok", WithDialer(dialer))

	ch.Connect()
	assert.Eventually(t, func() bool { return ch.State() == StateOpen }, time.Second, 5*time.Millisecond)

	// Abnormal drop arms the retry timer...
	conn.pushError(&websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "dropped"})
	assert.Eventually(t, func() bool { return ch.State() == StateClosed }, time.Second, 5*time.Millisecond)

	// ...and a logical teardown must disarm it. Advancing past the delay
	// must not resurrect the connection.
	ch.Disconnect()
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 1, dialer.calls())
	assert.Equal(t, StateIdle, ch.State())
}

func TestChannel_SendIsNoOpWhenNotOpen(t *testing.T) {
	dialer := &fakeDialer{}
	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: fastBackoff()}, "tok",
		WithDialer(dialer))

	err := ch.Send(map[string]string{"type": "typing"})
	require.NoError(t, err)
	assert.Equal(t, 0, dialer.calls())
}

func TestChannel_SendWritesJSONWhenOpen(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: fastBackoff()}, "tok",
		WithDialer(dialer))
	defer ch.Disconnect()

	ch.Connect()
	assert.Eventually(t, func() bool { return ch.State() == StateOpen }, time.Second, 5*time.Millisecond)

	require.NoError(t, ch.Send(map[string]string{"type": "typing"}))

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.writes, 1)
	assert.JSONEq(t, `{"type":"typing"}`, string(conn.writes[0]))
}

func TestChannel_DuplicateConnectIsGuarded(t *testing.T) {
	gate := make(chan struct{})
	dialer := &fakeDialer{conns: []*fakeConn{newFakeConn()}, gate: gate}

	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: fastBackoff()}, "tok",
		WithDialer(dialer))
	defer ch.Disconnect()

	ch.Connect()
	ch.Connect()
	ch.Connect()
	close(gate)

	assert.Eventually(t, func() bool { return ch.State() == StateOpen }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, dialer.calls())
}

func TestChannel_ClearedCredentialDisconnects(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn}}

	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: fastBackoff()}, "tok",
		WithDialer(dialer))

	ch.Connect()
	assert.Eventually(t, func() bool { return ch.State() == StateOpen }, time.Second, 5*time.Millisecond)

	ch.SetCredential("")

	assert.Equal(t, StateIdle, ch.State())
	assert.True(t, conn.isClosed())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, dialer.calls(), "no reconnect without a credential")
}

func TestChannel_RotatedCredentialReconnects(t *testing.T) {
	conn1 := newFakeConn()
	conn2 := newFakeConn()
	dialer := &fakeDialer{conns: []*fakeConn{conn1, conn2}}

	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: fastBackoff()}, "old-token",
		WithDialer(dialer))
	defer ch.Disconnect()

	ch.Connect()
	assert.Eventually(t, func() bool { return ch.State() == StateOpen }, time.Second, 5*time.Millisecond)

	ch.SetCredential("new-token")

	assert.Eventually(t, func() bool {
		return dialer.calls() == 2 && ch.State() == StateOpen
	}, time.Second, 5*time.Millisecond)

	assert.True(t, conn1.isClosed())
	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	assert.Contains(t, dialer.urls[1], "token=new-token")
}

func TestChannel_ConnectWithoutCredentialStaysIdle(t *testing.T) {
	dialer := &fakeDialer{}
	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: fastBackoff()}, "",
		WithDialer(dialer))

	ch.Connect()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateIdle, ch.State())
	assert.Equal(t, 0, dialer.calls())
}

func TestChannel_StopsAfterMaxAttempts(t *testing.T) {
	// Every dial fails; the channel must stop retrying after the ceiling.
	dialer := &fakeDialer{}
	ch := New(Config{Endpoint: "wss://example.test/ws", Backoff: Backoff{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Factor:       1,
		MaxAttempts:  3,
	}}, "tok", WithDialer(dialer))
	defer ch.Disconnect()

	ch.Connect()

	assert.Eventually(t, func() bool { return dialer.calls() == 4 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 4, dialer.calls(), "initial dial plus three retries, then give up")
	assert.Equal(t, StateClosed, ch.State())
}

func TestBackoff_DelayGrowsAndCaps(t *testing.T) {
	b := Backoff{InitialDelay: time.Second, MaxDelay: 4 * time.Second, Factor: 2}

	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 4*time.Second, b.Delay(3))
	assert.Equal(t, 4*time.Second, b.Delay(4))
}

func TestBackoff_JitterStaysInBounds(t *testing.T) {
	b := Backoff{InitialDelay: time.Second, MaxDelay: time.Minute, Factor: 2, Jitter: true}

	for i := 0; i < 100; i++ {
		d := b.Delay(1)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1500*time.Millisecond)
	}
}
