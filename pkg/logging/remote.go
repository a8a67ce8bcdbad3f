package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TransportState describes the remote transport lifecycle.
type TransportState string

const (
	TransportDisabled     TransportState = "disabled"
	TransportDiscovering  TransportState = "discovering"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportDisconnected TransportState = "disconnected"
)

const (
	// queueCapacity bounds the undelivered-record buffer; overflow drops
	// the oldest record.
	queueCapacity = 100

	defaultConnectTimeout    = 5 * time.Second
	defaultReconnectInterval = 5 * time.Second
	writeTimeout             = 5 * time.Second
)

// WireMessage is the JSON frame sent per log record over the collector
// connection. The collector decodes the same shape.
type WireMessage struct {
	Timestamp   string `json:"timestamp"`
	TimestampMs int64  `json:"timestampMs"`
	Level       string `json:"level"`
	LevelValue  int    `json:"levelValue"`
	Message     string `json:"message"`
	Tag         string `json:"tag,omitempty"`
	Error       string `json:"error,omitempty"`
	StackTrace  string `json:"stackTrace,omitempty"`
	Location    string `json:"location"`
}

// EnableOptions configures how the transport reaches a collector. With
// AutoDiscover the endpoint comes from mDNS (optionally filtered by
// ServiceName); otherwise Host and Port are required.
type EnableOptions struct {
	AutoDiscover bool
	Host         string
	Port         int
	Path         string
	ServiceName  string
}

// StatusFunc observes transport state changes. sessionID is non-empty only
// for TransportConnected.
type StatusFunc func(state TransportState, sessionID string)

// Transport streams log records to a collector over a reconnecting
// WebSocket connection, buffering while disconnected. All network and
// discovery failures are absorbed: Send never panics and never surfaces an
// error to the log call site.
type Transport struct {
	mu      sync.Mutex
	writeMu sync.Mutex

	dialer            *websocket.Dialer
	disc              Discoverer
	diag              func(Level, string)
	status            StatusFunc
	reconnectInterval time.Duration

	enabled        bool
	state          TransportState
	opts           EnableOptions
	conn           *websocket.Conn
	sessionID      string
	connecting     bool
	connected      bool
	queue          []WireMessage
	reconnectTimer *time.Timer
	discCancel     context.CancelFunc
	discoveredName string
}

// TransportOption customizes a Transport at construction.
type TransportOption func(*Transport)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) TransportOption {
	return func(t *Transport) { t.dialer = d }
}

// WithDiscoverer injects the service discoverer, allowing test doubles.
func WithDiscoverer(d Discoverer) TransportOption {
	return func(t *Transport) { t.disc = d }
}

// WithStatus registers a state-change observer.
func WithStatus(fn StatusFunc) TransportOption {
	return func(t *Transport) { t.status = fn }
}

// WithDiagnostics routes transport-internal problems to fn.
func WithDiagnostics(fn func(Level, string)) TransportOption {
	return func(t *Transport) { t.diag = fn }
}

// WithReconnectInterval overrides the fixed reconnect interval; tests use
// short intervals.
func WithReconnectInterval(d time.Duration) TransportOption {
	return func(t *Transport) { t.reconnectInterval = d }
}

// NewTransport creates a disabled transport.
func NewTransport(opts ...TransportOption) *Transport {
	t := &Transport{
		dialer:            &websocket.Dialer{HandshakeTimeout: defaultConnectTimeout},
		disc:              MDNSDiscoverer{},
		diag:              func(Level, string) {},
		reconnectInterval: defaultReconnectInterval,
		state:             TransportDisabled,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Enable starts discovery or a direct connection attempt. Enabling an
// already enabled transport disables it first.
func (t *Transport) Enable(opts EnableOptions) error {
	t.mu.Lock()
	if t.enabled {
		t.mu.Unlock()
		t.Disable()
		t.mu.Lock()
	}
	if !opts.AutoDiscover && (opts.Host == "" || opts.Port <= 0) {
		t.mu.Unlock()
		return fmt.Errorf("remote: host and port are required without auto-discovery")
	}
	t.enabled = true
	t.opts = opts

	if opts.AutoDiscover {
		t.state = TransportDiscovering
		ctx, cancel := context.WithCancel(context.Background())
		t.discCancel = cancel
		disc := t.disc
		cb := t.status
		t.mu.Unlock()
		t.notify(cb, TransportDiscovering, "")
		if err := disc.Browse(ctx, t.onServiceFound, t.onServiceLost); err != nil {
			t.mu.Lock()
			t.enabled = false
			t.state = TransportDisabled
			if t.discCancel != nil {
				t.discCancel()
				t.discCancel = nil
			}
			t.mu.Unlock()
			return fmt.Errorf("remote: start discovery: %w", err)
		}
		return nil
	}

	host, port, path := opts.Host, opts.Port, opts.Path
	t.mu.Unlock()
	go t.connect(host, port, path)
	return nil
}

// Send delivers one record to the collector, or enqueues it into the
// bounded buffer while disconnected (capacity 100, drop-oldest). Send
// failures fall back to enqueueing.
func (t *Transport) Send(rec Record) {
	msg := encodeWire(rec)
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return
	}
	if !t.connected || t.conn == nil {
		t.enqueueLocked(msg)
		t.mu.Unlock()
		return
	}
	conn := t.conn
	t.mu.Unlock()

	if !t.writeWire(conn, msg) {
		t.mu.Lock()
		t.enqueueLocked(msg)
		t.mu.Unlock()
		t.dropConnection(conn)
	}
}

// Disable halts all transport activity: discovery and reconnect timers are
// cancelled, the connection closed, and the buffer cleared. In-flight
// sends finish; future ones are dropped.
func (t *Transport) Disable() {
	t.mu.Lock()
	t.enabled = false
	t.state = TransportDisabled
	if t.discCancel != nil {
		t.discCancel()
		t.discCancel = nil
	}
	t.cancelReconnectLocked()
	conn := t.conn
	t.conn = nil
	t.connected = false
	t.queue = nil
	t.sessionID = ""
	t.discoveredName = ""
	cb := t.status
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	t.notify(cb, TransportDisabled, "")
}

// State returns the current lifecycle state.
func (t *Transport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connected reports whether a collector connection is live.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// QueueLen returns the number of buffered undelivered records.
func (t *Transport) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// connect dials the collector. The connecting flag prevents concurrent
// attempts; a dial timeout counts as a connection failure.
func (t *Transport) connect(host string, port int, path string) {
	t.mu.Lock()
	if !t.enabled || t.connecting || t.connected {
		t.mu.Unlock()
		return
	}
	t.connecting = true
	t.state = TransportConnecting
	cb := t.status
	t.mu.Unlock()
	t.notify(cb, TransportConnecting, "")

	endpoint := fmt.Sprintf("ws://%s:%d%s", host, port, normalizePath(path))
	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	conn, resp, err := t.dialer.DialContext(ctx, endpoint, nil)
	cancel()
	if err != nil && resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	t.mu.Lock()
	t.connecting = false
	if !t.enabled {
		t.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		t.state = TransportDisconnected
		t.scheduleReconnectLocked()
		cb = t.status
		t.mu.Unlock()
		t.diag(LevelWarning, fmt.Sprintf("remote: connect %s failed: %v", endpoint, err))
		t.notify(cb, TransportDisconnected, "")
		return
	}
	t.conn = conn
	t.connected = true
	t.sessionID = uuid.NewString()
	t.state = TransportConnected
	t.cancelReconnectLocked()
	pending := t.queue
	t.queue = nil
	sid := t.sessionID
	cb = t.status
	t.mu.Unlock()

	t.diag(LevelSuccess, "remote: connected to "+endpoint)
	t.notify(cb, TransportConnected, sid)

	// Flush buffered records in original submission order.
	for i, msg := range pending {
		if !t.writeWire(conn, msg) {
			t.mu.Lock()
			rest := append([]WireMessage(nil), pending[i:]...)
			t.queue = append(rest, t.queue...)
			if len(t.queue) > queueCapacity {
				t.queue = t.queue[len(t.queue)-queueCapacity:]
			}
			t.mu.Unlock()
			t.dropConnection(conn)
			return
		}
	}

	go t.readLoop(conn)
}

// readLoop consumes inbound frames; collectors may send acknowledgements
// or commands, which are logged and not otherwise processed. Read errors
// trigger the shared disconnect path.
func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.dropConnection(conn)
			return
		}
		t.diag(LevelDebug, "remote: message from collector: "+string(data))
	}
}

// dropConnection tears down conn (if still current) and schedules a
// reconnect attempt.
func (t *Transport) dropConnection(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = nil
	t.connected = false
	t.sessionID = ""
	_ = conn.Close()
	if !t.enabled {
		t.mu.Unlock()
		return
	}
	t.state = TransportDisconnected
	t.scheduleReconnectLocked()
	cb := t.status
	t.mu.Unlock()

	t.diag(LevelWarning, "remote: disconnected from collector")
	t.notify(cb, TransportDisconnected, "")
}

// onServiceFound reacts to a discovered collector instance.
func (t *Transport) onServiceFound(inst ServiceInstance) {
	t.mu.Lock()
	if !t.enabled || t.connected || t.connecting {
		t.mu.Unlock()
		return
	}
	if t.opts.ServiceName != "" && inst.Name != t.opts.ServiceName {
		t.mu.Unlock()
		return
	}
	t.discoveredName = inst.Name
	path := t.opts.Path
	t.mu.Unlock()

	t.diag(LevelInfo, fmt.Sprintf("remote: discovered collector %q at %s:%d", inst.Name, inst.Host, inst.Port))
	go t.connect(inst.Host, inst.Port, path)
}

// onServiceLost reacts to the connected collector disappearing from the
// network: the connection is dropped and discovery resumes.
func (t *Transport) onServiceLost(name string) {
	t.mu.Lock()
	if !t.enabled || t.discoveredName != name {
		t.mu.Unlock()
		return
	}
	t.discoveredName = ""
	conn := t.conn
	t.mu.Unlock()

	t.diag(LevelWarning, fmt.Sprintf("remote: collector %q lost", name))
	if conn != nil {
		t.dropConnection(conn)
	}
	t.mu.Lock()
	resumed := t.enabled && !t.connected && !t.connecting
	if resumed {
		t.state = TransportDiscovering
	}
	cb := t.status
	t.mu.Unlock()
	if resumed {
		t.notify(cb, TransportDiscovering, "")
	}
}

// scheduleReconnectLocked arms the fixed-interval reconnect timer unless
// one is already pending.
func (t *Transport) scheduleReconnectLocked() {
	if t.reconnectTimer != nil || !t.enabled {
		return
	}
	t.reconnectTimer = time.AfterFunc(t.reconnectInterval, t.reconnectTick)
}

func (t *Transport) cancelReconnectLocked() {
	if t.reconnectTimer != nil {
		t.reconnectTimer.Stop()
		t.reconnectTimer = nil
	}
}

// reconnectTick retries a manual connection or returns to discovering;
// it cancels itself when an attempt is in flight or already connected.
func (t *Transport) reconnectTick() {
	t.mu.Lock()
	t.reconnectTimer = nil
	if !t.enabled || t.connected || t.connecting {
		t.mu.Unlock()
		return
	}
	opts := t.opts
	if opts.AutoDiscover {
		t.state = TransportDiscovering
		cb := t.status
		t.mu.Unlock()
		t.notify(cb, TransportDiscovering, "")
		return
	}
	t.mu.Unlock()
	t.connect(opts.Host, opts.Port, opts.Path)
}

// enqueueLocked appends msg to the bounded buffer, dropping the oldest
// record on overflow.
func (t *Transport) enqueueLocked(msg WireMessage) {
	if len(t.queue) >= queueCapacity {
		copy(t.queue, t.queue[1:])
		t.queue[len(t.queue)-1] = msg
		return
	}
	t.queue = append(t.queue, msg)
}

// writeWire sends one frame. A marshal failure drops the record but keeps
// the connection; a write failure reports false so the caller can buffer
// and disconnect.
func (t *Transport) writeWire(conn *websocket.Conn, msg WireMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		t.diag(LevelWarning, fmt.Sprintf("remote: encode record: %v", err))
		return true
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.diag(LevelWarning, fmt.Sprintf("remote: send failed: %v", err))
		return false
	}
	return true
}

func (t *Transport) notify(cb StatusFunc, state TransportState, sessionID string) {
	if cb == nil {
		return
	}
	defer func() { _ = recover() }()
	cb(state, sessionID)
}

func encodeWire(rec Record) WireMessage {
	var errText string
	if rec.Err != nil {
		errText = rec.Err.Error()
	}
	return WireMessage{
		Timestamp:   rec.Time.UTC().Format(time.RFC3339Nano),
		TimestampMs: rec.Time.UnixMilli(),
		Level:       rec.Level.String(),
		LevelValue:  rec.Level.Priority(),
		Message:     rec.Message,
		Tag:         rec.Tag,
		Error:       errText,
		StackTrace:  rec.Stack,
		Location:    rec.Location,
	}
}

func normalizePath(path string) string {
	if path == "" {
		return "/logs"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
