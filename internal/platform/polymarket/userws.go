package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polywatcher/internal/crypto"
	"github.com/alanyoungcy/polywatcher/internal/domain"
)

const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPingInterval is how often protocol-level pings are sent.
	wsPingInterval = 10 * time.Second

	// wsPongWait is how long to wait for a pong before the read fails.
	wsPongWait = 30 * time.Second

	// watchdogInterval is how often the idle watchdog checks activity.
	watchdogInterval = time.Second
)

// TradeHandler is called for every trade event on the user channel.
type TradeHandler func(domain.Trade)

// OrderHandler is called for every order lifecycle event on the user channel.
type OrderHandler func(domain.Order)

// UserWSConfig configures the user-channel WebSocket listener.
type UserWSConfig struct {
	// URL is the user channel endpoint, e.g.
	// "wss://ws-subscriptions-clob.polymarket.com/ws/user".
	URL string

	// Creds authenticate the subscription.
	Creds crypto.APICreds

	// Markets restricts the subscription to these condition ids. Empty
	// subscribes to all of the account's markets.
	Markets []string

	// IdleTimeout force-closes the connection when no message of any kind
	// has arrived for this long, triggering a reconnect. Zero disables the
	// watchdog.
	IdleTimeout time.Duration

	// ReconnectDelay is the fixed pause between reconnect attempts.
	ReconnectDelay time.Duration
}

// UserWS maintains the authenticated user-channel WebSocket connection. It
// reconnects automatically after failures and after idle-watchdog closes,
// resubscribing on every new connection. Malformed payloads are logged and
// dropped; they never interrupt the stream.
type UserWS struct {
	cfg    UserWSConfig
	logger *slog.Logger

	onTrade TradeHandler
	onOrder OrderHandler

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}

	// lastActivity is the unix-nano time of the last received message.
	lastActivity atomic.Int64
}

// NewUserWS creates the listener. Handlers must be registered before Run.
func NewUserWS(cfg UserWSConfig, logger *slog.Logger) *UserWS {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &UserWS{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "userws")),
		done:   make(chan struct{}),
	}
}

// OnTrade registers the trade event handler.
func (w *UserWS) OnTrade(h TradeHandler) { w.onTrade = h }

// OnOrder registers the order event handler.
func (w *UserWS) OnOrder(h OrderHandler) { w.onOrder = h }

// Run connects and processes messages until ctx is canceled or Close is
// called. Each failed or idle-closed connection is retried after the
// configured delay.
func (w *UserWS) Run(ctx context.Context) error {
	for {
		if err := w.runOnce(ctx); err != nil {
			w.logger.Warn("connection ended", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case <-time.After(w.cfg.ReconnectDelay):
		}
		w.logger.Info("reconnecting", slog.Duration("delay", w.cfg.ReconnectDelay))
	}
}

// Close shuts the listener down. Safe to call more than once.
func (w *UserWS) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait),
		)
		return w.conn.Close()
	}
	return nil
}

// runOnce dials, subscribes, and reads messages until the connection dies.
func (w *UserWS) runOnce(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/userws: dial: %w", err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.Close()
		return nil
	}
	w.conn = conn
	w.mu.Unlock()

	w.logger.Info("connected", slog.String("url", w.cfg.URL))
	w.lastActivity.Store(time.Now().UnixNano())

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	if err := w.subscribe(conn); err != nil {
		conn.Close()
		return err
	}

	// Per-connection goroutines end when this session closes.
	sessionDone := make(chan struct{})
	defer close(sessionDone)

	go w.pingLoop(conn, sessionDone)
	if w.cfg.IdleTimeout > 0 {
		go w.watchdogLoop(conn, sessionDone)
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			select {
			case <-w.done:
				return nil
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("polymarket/userws: %w: %v", domain.ErrWSDisconnect, err)
		}

		w.lastActivity.Store(time.Now().UnixNano())
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		w.handleMessage(message)
	}
}

// subscribe sends the authenticated user-channel subscription.
func (w *UserWS) subscribe(conn *websocket.Conn) error {
	sub := map[string]any{
		"type": "USER",
		"auth": map[string]string{
			"apiKey":     w.cfg.Creds.Key,
			"secret":     w.cfg.Creds.Secret,
			"passphrase": w.cfg.Creds.Passphrase,
		},
		"markets": append([]string{}, w.cfg.Markets...),
	}

	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("polymarket/userws: marshal subscribe: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("polymarket/userws: subscribe: %w", err)
	}

	w.logger.Info("subscribed", slog.Int("markets", len(w.cfg.Markets)))
	return nil
}

// pingLoop keeps the connection alive with protocol-level pings.
func (w *UserWS) pingLoop(conn *websocket.Conn, sessionDone <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sessionDone:
			return
		case <-w.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// watchdogLoop force-closes the connection when no message has arrived for
// IdleTimeout, handing control back to Run for a reconnect. A healthy but
// silent subscription is indistinguishable from a dead one.
func (w *UserWS) watchdogLoop(conn *websocket.Conn, sessionDone <-chan struct{}) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sessionDone:
			return
		case <-w.done:
			return
		case <-ticker.C:
			last := time.Unix(0, w.lastActivity.Load())
			if idle := time.Since(last); idle > w.cfg.IdleTimeout {
				w.logger.Info("idle timeout, forcing reconnect", slog.Duration("idle", idle))
				conn.Close()
				return
			}
		}
	}
}

// handleMessage classifies and dispatches one raw frame. The server may
// batch several events in a JSON array.
func (w *UserWS) handleMessage(raw []byte) {
	if string(raw) == "PONG" {
		return
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(raw, &batch); err != nil {
		batch = []json.RawMessage{raw}
	}

	for _, item := range batch {
		w.dispatch(item)
	}
}

func (w *UserWS) dispatch(raw json.RawMessage) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		w.logger.Warn("dropping malformed message", slog.String("error", err.Error()))
		return
	}

	switch envelope.EventType {
	case "trade":
		var msg TradeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			w.logger.Warn("dropping malformed trade", slog.String("error", err.Error()))
			return
		}
		if w.onTrade != nil {
			w.onTrade(msg.ToDomain())
		}

	case "order":
		var msg OrderMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			w.logger.Warn("dropping malformed order", slog.String("error", err.Error()))
			return
		}
		if w.onOrder != nil {
			w.onOrder(msg.ToDomain())
		}

	default:
		w.logger.Debug("ignoring message", slog.String("event_type", envelope.EventType))
	}
}
