// Package collector implements the remote log collector: producers stream
// log records in over WebSocket connections, watchers subscribe to a live
// level-filtered feed, and records are optionally archived to SQLite.
package collector

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mkohara/beacon/pkg/logging"
)

// producerInfo tracks one connected log producer.
type producerInfo struct {
	ID         string
	Remote     string
	Connected  time.Time
	LastActive time.Time
	Received   uint64
}

// watcherInfo tracks one connected live-feed subscriber. sendMu serializes
// frames onto the connection.
type watcherInfo struct {
	ID         string
	Remote     string
	Connected  time.Time
	LastActive time.Time
	MinLevel   logging.Level
	sendMu     sync.Mutex
}

// Stats is the health endpoint payload.
type Stats struct {
	Status        string `json:"status"`
	Producers     int    `json:"producers"`
	Watchers      int    `json:"watchers"`
	Received      uint64 `json:"received"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// Collector accepts producer and watcher connections and fans records
// from the former out to the latter.
type Collector struct {
	cfg      *Config
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	producers map[*websocket.Conn]*producerInfo
	watchers  map[*websocket.Conn]*watcherInfo

	archive  *logging.Archive
	received atomic.Uint64
	started  time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a collector. An empty ArchivePath disables archiving; an
// archive that fails to open is a startup error, not a degraded mode.
func New(cfg *Config) (*Collector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		producers: make(map[*websocket.Conn]*producerInfo),
		watchers:  make(map[*websocket.Conn]*watcherInfo),
		started:   time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	if cfg.ArchivePath != "" {
		archive, err := logging.OpenArchive(cfg.ArchivePath, cfg.ArchiveMaxRows, func(level logging.Level, msg string) {
			slog.Warn("archive", slog.String("detail", msg), slog.String("level", level.String()))
		})
		if err != nil {
			cancel()
			return nil, err
		}
		c.archive = archive
	}

	go c.staleConnectionChecker()

	return c, nil
}

// Handler returns the collector's HTTP surface wrapped in the logging and
// recovery middleware chain.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/logs", c.handleIngest)
	mux.HandleFunc("/watch", c.handleWatch)
	mux.HandleFunc("/healthz", c.handleHealth)

	chain := Chain(
		Logger(),
		Recovery(),
	)
	return chain(mux)
}

// Stats returns a snapshot of the collector's counters.
func (c *Collector) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Status:        "ok",
		Producers:     len(c.producers),
		Watchers:      len(c.watchers),
		Received:      c.received.Load(),
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
	}
}

// Close disconnects every client and releases the archive.
func (c *Collector) Close() {
	c.cancel()
	c.mu.Lock()
	for conn := range c.producers {
		conn.Close()
	}
	for conn := range c.watchers {
		conn.Close()
	}
	c.producers = make(map[*websocket.Conn]*producerInfo)
	c.watchers = make(map[*websocket.Conn]*watcherInfo)
	c.mu.Unlock()
	if c.archive != nil {
		if err := c.archive.Close(); err != nil {
			slog.Error("closing archive", slog.String("error", err.Error()))
		}
	}
}

// handleIngest upgrades a producer connection and starts its read loop.
func (c *Collector) handleIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("producer upgrade failed", slog.String("error", err.Error()))
		return
	}

	info := &producerInfo{
		ID:         uuid.NewString(),
		Remote:     r.RemoteAddr,
		Connected:  time.Now(),
		LastActive: time.Now(),
	}

	c.mu.Lock()
	c.producers[conn] = info
	c.mu.Unlock()

	slog.Info("producer connected", slog.String("producer", info.ID), slog.String("remote", info.Remote))
	go c.readProducer(conn, info)
}

// readProducer consumes wire frames from one producer until the
// connection drops.
func (c *Collector) readProducer(conn *websocket.Conn, info *producerInfo) {
	defer c.dropProducer(conn, info)

	conn.SetReadLimit(c.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		c.touchProducer(conn)
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	go c.pingLoop(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Error("producer read error", slog.String("producer", info.ID), slog.String("error", err.Error()))
			}
			return
		}
		c.touchProducer(conn)
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		var msg logging.WireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("dropping malformed log frame", slog.String("producer", info.ID), slog.String("error", err.Error()))
			continue
		}
		c.ingest(info, msg)
	}
}

// ingest records, prints, archives, and broadcasts one log message.
func (c *Collector) ingest(info *producerInfo, msg logging.WireMessage) {
	c.received.Add(1)
	c.mu.Lock()
	info.Received++
	c.mu.Unlock()

	fields := []any{
		slog.String("producer", info.ID),
		slog.String("level", msg.Level),
	}
	if msg.Tag != "" {
		fields = append(fields, slog.String("tag", msg.Tag))
	}
	if msg.Error != "" {
		fields = append(fields, slog.String("error", msg.Error))
	}
	if msg.Location != "" {
		fields = append(fields, slog.String("location", msg.Location))
	}
	switch {
	case msg.LevelValue >= logging.LevelError.Priority():
		slog.Error(msg.Message, fields...)
	case msg.LevelValue >= logging.LevelWarning.Priority():
		slog.Warn(msg.Message, fields...)
	case msg.LevelValue >= logging.LevelInfo.Priority():
		slog.Info(msg.Message, fields...)
	default:
		slog.Debug(msg.Message, fields...)
	}

	if c.archive != nil {
		c.archive.Append(wireToRecord(msg))
	}
	c.broadcast(msg)
}

// handleWatch upgrades a watcher connection. The optional level query
// parameter sets the minimum level of the feed; anything unrecognized
// means everything.
func (c *Collector) handleWatch(w http.ResponseWriter, r *http.Request) {
	minLevel := logging.LevelTemp
	if s := r.URL.Query().Get("level"); s != "" {
		if lvl, ok := logging.ParseLevel(s); ok {
			minLevel = lvl
		}
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("watcher upgrade failed", slog.String("error", err.Error()))
		return
	}

	info := &watcherInfo{
		ID:         uuid.NewString(),
		Remote:     r.RemoteAddr,
		Connected:  time.Now(),
		LastActive: time.Now(),
		MinLevel:   minLevel,
	}

	c.mu.Lock()
	c.watchers[conn] = info
	c.mu.Unlock()

	slog.Info("watcher connected", slog.String("watcher", info.ID), slog.String("minLevel", minLevel.String()))
	go c.readWatcher(conn, info)
}

// readWatcher drains a watcher's inbound frames; watchers are not expected
// to send anything, the loop exists to observe the close.
func (c *Collector) readWatcher(conn *websocket.Conn, info *watcherInfo) {
	defer c.dropWatcher(conn, info)

	conn.SetReadLimit(c.cfg.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		c.touchWatcher(conn)
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	go c.pingLoop(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		c.touchWatcher(conn)
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
}

// broadcast sends msg to every watcher whose minimum level admits it.
// A failing watcher is dropped without affecting the others.
func (c *Collector) broadcast(msg logging.WireMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("encoding broadcast frame", slog.String("error", err.Error()))
		return
	}

	c.mu.RLock()
	targets := make(map[*websocket.Conn]*watcherInfo, len(c.watchers))
	for conn, info := range c.watchers {
		if msg.LevelValue >= info.MinLevel.Priority() {
			targets[conn] = info
		}
	}
	c.mu.RUnlock()

	for conn, info := range targets {
		info.sendMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
		err := conn.WriteMessage(websocket.TextMessage, data)
		info.sendMu.Unlock()
		if err != nil {
			slog.Warn("watcher send failed", slog.String("watcher", info.ID), slog.String("error", err.Error()))
			go c.dropWatcher(conn, info)
		}
	}
}

// handleHealth reports liveness and counters.
func (c *Collector) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.Stats()); err != nil {
		slog.Error("encoding health response", slog.String("error", err.Error()))
	}
}

// pingLoop keeps one connection alive until it closes or the collector
// shuts down.
func (c *Collector) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.cfg.WriteWait)); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// staleConnectionChecker closes connections idle beyond the read timeout.
// Read deadlines catch most of these; the checker covers connections whose
// read loop is wedged.
func (c *Collector) staleConnectionChecker() {
	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.closeStaleConnections()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Collector) closeStaleConnections() {
	now := time.Now()
	c.mu.RLock()
	var stale []*websocket.Conn
	for conn, info := range c.producers {
		if now.Sub(info.LastActive) > c.cfg.ReadTimeout {
			slog.Info("producer timed out", slog.String("producer", info.ID))
			stale = append(stale, conn)
		}
	}
	for conn, info := range c.watchers {
		if now.Sub(info.LastActive) > c.cfg.ReadTimeout {
			slog.Info("watcher timed out", slog.String("watcher", info.ID))
			stale = append(stale, conn)
		}
	}
	c.mu.RUnlock()
	for _, conn := range stale {
		conn.Close()
	}
}

func (c *Collector) touchProducer(conn *websocket.Conn) {
	c.mu.Lock()
	if info, ok := c.producers[conn]; ok {
		info.LastActive = time.Now()
	}
	c.mu.Unlock()
}

func (c *Collector) touchWatcher(conn *websocket.Conn) {
	c.mu.Lock()
	if info, ok := c.watchers[conn]; ok {
		info.LastActive = time.Now()
	}
	c.mu.Unlock()
}

func (c *Collector) dropProducer(conn *websocket.Conn, info *producerInfo) {
	c.mu.Lock()
	_, present := c.producers[conn]
	delete(c.producers, conn)
	c.mu.Unlock()
	conn.Close()
	if present {
		slog.Info("producer disconnected", slog.String("producer", info.ID), slog.Uint64("received", info.Received))
	}
}

func (c *Collector) dropWatcher(conn *websocket.Conn, info *watcherInfo) {
	c.mu.Lock()
	_, present := c.watchers[conn]
	delete(c.watchers, conn)
	c.mu.Unlock()
	conn.Close()
	if present {
		slog.Info("watcher disconnected", slog.String("watcher", info.ID))
	}
}

// wireToRecord rebuilds a Record from its wire encoding for archiving.
func wireToRecord(msg logging.WireMessage) logging.Record {
	rec := logging.Record{
		Time:     time.UnixMilli(msg.TimestampMs),
		Message:  msg.Message,
		Tag:      msg.Tag,
		Stack:    msg.StackTrace,
		Location: msg.Location,
	}
	if lvl, ok := logging.ParseLevel(msg.Level); ok {
		rec.Level = lvl
	}
	if msg.Error != "" {
		rec.Err = wireError(msg.Error)
	}
	return rec
}

type wireError string

func (e wireError) Error() string { return string(e) }
