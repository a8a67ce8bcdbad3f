package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDiscoverer hands the browse callbacks to the test so discovery
// events can be driven without a network.
type fakeDiscoverer struct {
	mu    sync.Mutex
	found func(ServiceInstance)
	lost  func(name string)
}

func (d *fakeDiscoverer) Browse(ctx context.Context, found func(ServiceInstance), lost func(name string)) error {
	d.mu.Lock()
	d.found = found
	d.lost = lost
	d.mu.Unlock()
	return nil
}

func (d *fakeDiscoverer) emitFound(inst ServiceInstance) {
	d.mu.Lock()
	found := d.found
	d.mu.Unlock()
	if found != nil {
		found(inst)
	}
}

func (d *fakeDiscoverer) emitLost(name string) {
	d.mu.Lock()
	lost := d.lost
	d.mu.Unlock()
	if lost != nil {
		lost(name)
	}
}

// frameServer is a collector stand-in capturing every wire frame.
type frameServer struct {
	srv    *httptest.Server
	frames chan WireMessage
}

func newFrameServer(t *testing.T) *frameServer {
	t.Helper()
	fs := &frameServer{frames: make(chan WireMessage, 256)}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/logs", r.URL.Path)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg WireMessage
			if err := json.Unmarshal(data, &msg); err == nil {
				fs.frames <- msg
			}
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *frameServer) hostPort(t *testing.T) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(fs.srv.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func (fs *frameServer) next(t *testing.T) WireMessage {
	t.Helper()
	select {
	case msg := <-fs.frames:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return WireMessage{}
	}
}

func waitConnected(t *testing.T, tr *Transport) {
	t.Helper()
	require.Eventually(t, tr.Connected, 2*time.Second, 10*time.Millisecond)
}

func TestTransportEnableValidation(t *testing.T) {
	cases := []struct {
		name string
		opts EnableOptions
	}{
		{"no endpoint", EnableOptions{}},
		{"host without port", EnableOptions{Host: "localhost"}},
		{"port without host", EnableOptions{Port: 9400}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tr := NewTransport()
			assert.Error(t, tr.Enable(c.opts))
			assert.Equal(t, TransportDisabled, tr.State())
		})
	}
}

func TestTransportManualConnect(t *testing.T) {
	fs := newFrameServer(t)
	host, port := fs.hostPort(t)

	tr := NewTransport()
	defer tr.Disable()
	require.NoError(t, tr.Enable(EnableOptions{Host: host, Port: port, Path: "/logs"}))
	waitConnected(t, tr)

	now := time.Now()
	tr.Send(Record{Time: now, Level: LevelWarning, Message: "low disk", Tag: "Storage", Err: fmt.Errorf("enospc"), Location: "disk.go:12"})

	msg := fs.next(t)
	assert.Equal(t, "warning", msg.Level)
	assert.Equal(t, LevelWarning.Priority(), msg.LevelValue)
	assert.Equal(t, "low disk", msg.Message)
	assert.Equal(t, "Storage", msg.Tag)
	assert.Equal(t, "enospc", msg.Error)
	assert.Equal(t, "disk.go:12", msg.Location)
	assert.Equal(t, now.UnixMilli(), msg.TimestampMs)
}

func TestTransportBufferingDropOldestAndFlush(t *testing.T) {
	disc := &fakeDiscoverer{}
	tr := NewTransport(WithDiscoverer(disc))
	defer tr.Disable()
	require.NoError(t, tr.Enable(EnableOptions{AutoDiscover: true, Path: "/logs"}))
	assert.Equal(t, TransportDiscovering, tr.State())

	// 101 sends while disconnected: capacity is 100, the oldest drops.
	for i := 0; i <= 100; i++ {
		tr.Send(Record{Time: time.Now(), Level: LevelInfo, Message: fmt.Sprintf("msg-%d", i)})
	}
	assert.Equal(t, 100, tr.QueueLen())

	fs := newFrameServer(t)
	host, port := fs.hostPort(t)
	disc.emitFound(ServiceInstance{Name: "collector-1", Host: host, Port: port})
	waitConnected(t, tr)

	// The buffer flushes in original submission order, minus the dropped
	// oldest record.
	for i := 1; i <= 100; i++ {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), fs.next(t).Message)
	}
	require.Eventually(t, func() bool { return tr.QueueLen() == 0 }, 2*time.Second, 10*time.Millisecond)

	// Live sends go straight through.
	tr.Send(Record{Time: time.Now(), Level: LevelInfo, Message: "live"})
	assert.Equal(t, "live", fs.next(t).Message)
}

func TestTransportStatusTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []TransportState
	var sessionID string

	disc := &fakeDiscoverer{}
	tr := NewTransport(WithDiscoverer(disc), WithStatus(func(state TransportState, sid string) {
		mu.Lock()
		seen = append(seen, state)
		if state == TransportConnected {
			sessionID = sid
		}
		mu.Unlock()
	}))
	defer tr.Disable()

	fs := newFrameServer(t)
	host, port := fs.hostPort(t)

	require.NoError(t, tr.Enable(EnableOptions{AutoDiscover: true, Path: "/logs"}))
	disc.emitFound(ServiceInstance{Name: "collector-1", Host: host, Port: port})
	waitConnected(t, tr)

	mu.Lock()
	got := append([]TransportState(nil), seen...)
	sid := sessionID
	mu.Unlock()

	assert.Equal(t, []TransportState{TransportDiscovering, TransportConnecting, TransportConnected}, got)
	assert.NotEmpty(t, sid, "connected status must carry a session id")
}

func TestTransportServiceNameFilter(t *testing.T) {
	disc := &fakeDiscoverer{}
	tr := NewTransport(WithDiscoverer(disc))
	defer tr.Disable()

	fs := newFrameServer(t)
	host, port := fs.hostPort(t)

	require.NoError(t, tr.Enable(EnableOptions{AutoDiscover: true, Path: "/logs", ServiceName: "wanted"}))

	disc.emitFound(ServiceInstance{Name: "other", Host: host, Port: port})
	time.Sleep(100 * time.Millisecond)
	assert.False(t, tr.Connected(), "non-matching instance must be ignored")

	disc.emitFound(ServiceInstance{Name: "wanted", Host: host, Port: port})
	waitConnected(t, tr)
}

func TestTransportLostServiceDisconnects(t *testing.T) {
	disc := &fakeDiscoverer{}
	tr := NewTransport(WithDiscoverer(disc), WithReconnectInterval(time.Hour))
	defer tr.Disable()

	fs := newFrameServer(t)
	host, port := fs.hostPort(t)

	require.NoError(t, tr.Enable(EnableOptions{AutoDiscover: true, Path: "/logs"}))
	disc.emitFound(ServiceInstance{Name: "collector-1", Host: host, Port: port})
	waitConnected(t, tr)

	disc.emitLost("collector-1")
	require.Eventually(t, func() bool { return !tr.Connected() }, 2*time.Second, 10*time.Millisecond)

	// Records buffer again while the collector is gone.
	tr.Send(Record{Time: time.Now(), Level: LevelInfo, Message: "while away"})
	assert.Equal(t, 1, tr.QueueLen())
}

func TestTransportConnectFailureBuffers(t *testing.T) {
	// Grab a port nothing listens on.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	tr := NewTransport(WithReconnectInterval(time.Hour))
	defer tr.Disable()
	require.NoError(t, tr.Enable(EnableOptions{Host: "127.0.0.1", Port: port, Path: "/logs"}))

	require.Eventually(t, func() bool { return tr.State() == TransportDisconnected }, 2*time.Second, 10*time.Millisecond)

	tr.Send(Record{Time: time.Now(), Level: LevelError, Message: "unsent"})
	assert.Equal(t, 1, tr.QueueLen())
}

func TestTransportDisable(t *testing.T) {
	fs := newFrameServer(t)
	host, port := fs.hostPort(t)

	tr := NewTransport()
	require.NoError(t, tr.Enable(EnableOptions{Host: host, Port: port, Path: "/logs"}))
	waitConnected(t, tr)

	tr.Disable()
	assert.Equal(t, TransportDisabled, tr.State())
	assert.False(t, tr.Connected())

	// Disabled transports drop records instead of buffering.
	tr.Send(Record{Time: time.Now(), Level: LevelInfo, Message: "dropped"})
	assert.Zero(t, tr.QueueLen())
}

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"empty defaults", "", "/logs"},
		{"missing slash", "stream", "/stream"},
		{"already rooted", "/ingest", "/ingest"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, normalizePath(c.input))
		})
	}
}
