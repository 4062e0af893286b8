// Package feed implements domain.MarketFeed against a CLOB-style websocket
// market data endpoint.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openmarket/trademanager/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	defaultReconnectInitial    = 1 * time.Second
	defaultReconnectMax        = 60 * time.Second
	defaultReconnectMultiplier = 2.0
)

// Option configures a Feed at construction time.
type Option func(*Feed)

// WithAllowOneSidedBook controls whether a book frame with only one side
// populated yields a usable mid-price from that side alone. Defaults to true,
// matching the venue's own behavior; operators and tests may disable it.
func WithAllowOneSidedBook(allow bool) Option {
	return func(f *Feed) { f.allowOneSidedBook = allow }
}

// WithReconnectPolicy overrides the default 1s/60s/x2 backoff.
func WithReconnectPolicy(initial, max time.Duration, multiplier float64) Option {
	return func(f *Feed) {
		f.reconnectInitial = initial
		f.reconnectMax = max
		f.reconnectMultiplier = multiplier
	}
}

// Feed implements domain.MarketFeed over a gorilla/websocket connection. It
// re-architects the venue's callback-style client into a lazy price
// sequence: Prices() returns one long-lived channel, and connection health is
// an independently observable signal rather than something callers infer
// from callback activity.
type Feed struct {
	wsURL  string
	logger *slog.Logger

	allowOneSidedBook   bool
	reconnectInitial    time.Duration
	reconnectMax        time.Duration
	reconnectMultiplier float64

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	desired   map[string]struct{}
	closed    bool

	prices chan domain.PriceUpdate
	done   chan struct{}
}

// New creates a Feed for the given websocket URL. Connect must be called
// before any price updates are delivered.
func New(wsURL string, logger *slog.Logger, opts ...Option) *Feed {
	f := &Feed{
		wsURL:               wsURL,
		logger:               logger.With(slog.String("component", "feed")),
		allowOneSidedBook:    true,
		reconnectInitial:     defaultReconnectInitial,
		reconnectMax:         defaultReconnectMax,
		reconnectMultiplier:  defaultReconnectMultiplier,
		desired:              make(map[string]struct{}),
		prices:               make(chan domain.PriceUpdate, 256),
		done:                 make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Connect starts the connection-management goroutine and returns
// immediately; the first dial happens on that goroutine. It never blocks
// waiting for the connection to succeed; failures are handled by the
// reconnect loop. It returns an error only when ctx is already canceled or
// the feed has been closed.
func (f *Feed) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("feed: connect: %w", err)
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return fmt.Errorf("feed: %w", domain.ErrWSDisconnect)
	}
	f.mu.Unlock()

	go f.runLoop(ctx)
	return nil
}

// Subscribe adds tokenIDs to the desired subscription set. Safe to call
// before Connect; the aggregate set is flushed as one frame once connected.
func (f *Feed) Subscribe(tokenIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range tokenIDs {
		f.desired[id] = struct{}{}
	}
	f.sendSubscribeFrameLocked(tokenIDs)
}

// Unsubscribe removes tokenIDs from the desired subscription set.
func (f *Feed) Unsubscribe(tokenIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range tokenIDs {
		delete(f.desired, id)
	}
	f.sendUnsubscribeFrameLocked(tokenIDs)
}

// Prices returns the feed's lazy, infinite price sequence. The same channel
// is returned on every call; it is never closed or restarted across
// reconnects, so consumers must tolerate missed updates during an outage.
func (f *Feed) Prices() <-chan domain.PriceUpdate {
	return f.prices
}

// IsConnected reports whether the underlying websocket is currently live.
func (f *Feed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SubscribedTokens returns the current desired subscription set.
func (f *Feed) SubscribedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.desired))
	for id := range f.desired {
		out = append(out, id)
	}
	return out
}

// Close shuts down the connection and stops all feed goroutines.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	conn := f.conn
	f.mu.Unlock()

	close(f.done)
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}

// wireCommand is the outbound subscribe/unsubscribe frame.
type wireCommand struct {
	Auth      struct{} `json:"auth"`
	Type      string   `json:"type"`
	AssetIDs  []string `json:"assets_ids"`
	Operation string   `json:"operation"`
}

func (f *Feed) sendSubscribeFrameLocked(tokenIDs []string) {
	if f.conn == nil || len(tokenIDs) == 0 {
		return
	}
	f.writeFrameLocked(wireCommand{Type: "market", AssetIDs: tokenIDs, Operation: "subscribe"})
}

func (f *Feed) sendUnsubscribeFrameLocked(tokenIDs []string) {
	if f.conn == nil || len(tokenIDs) == 0 {
		return
	}
	f.writeFrameLocked(wireCommand{Type: "market", AssetIDs: tokenIDs, Operation: "unsubscribe"})
}

func (f *Feed) writeFrameLocked(cmd wireCommand) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := f.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		f.logger.Warn("write frame failed", slog.String("error", err.Error()))
	}
}

// runLoop owns the connect/reconnect lifecycle for the lifetime of ctx.
func (f *Feed) runLoop(ctx context.Context) {
	delay := f.reconnectInitial
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		default:
		}

		connectedThisAttempt, err := f.dialAndServe(ctx)
		if err != nil {
			f.logger.Warn("feed connection ended", slog.String("error", err.Error()))
		}

		f.mu.Lock()
		f.connected = false
		f.mu.Unlock()

		if connectedThisAttempt {
			delay = f.reconnectInitial
		}

		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case <-time.After(delay):
		}

		if !connectedThisAttempt {
			delay = time.Duration(float64(delay) * f.reconnectMultiplier)
			if delay > f.reconnectMax {
				delay = f.reconnectMax
			}
		}
	}
}

// dialAndServe dials one connection, resends the aggregate subscription set,
// and serves it (read loop + ping loop) until the connection drops; ctx
// cancellation stops the ping loop, and the read loop then ends once the
// connection is closed or its read deadline passes. The
// returned bool reports whether the connection was ever established, so the
// caller's backoff counter resets even when the connection later drops --
// only a failed dial should grow the delay.
func (f *Feed) dialAndServe(ctx context.Context) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("feed: dial: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	var desired []string
	for id := range f.desired {
		desired = append(desired, id)
	}
	if len(desired) > 0 {
		f.writeFrameLocked(wireCommand{Type: "market", AssetIDs: desired, Operation: "subscribe"})
	}
	f.mu.Unlock()

	f.logger.Info("feed connected", slog.Int("subscriptions", len(desired)))

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go f.pingLoop(connCtx, conn)

	return true, f.readLoop(conn)
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) readLoop(conn *websocket.Conn) error {
	defer conn.Close()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		f.handleMessage(message)
	}
}

// inboundEnvelope identifies the frame type before full decode.
type inboundEnvelope struct {
	EventType string `json:"event_type"`
}

type wireBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wireBook struct {
	AssetID   string          `json:"asset_id"`
	Bids      []wireBookLevel `json:"bids"`
	Asks      []wireBookLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
}

type wireLastTrade struct {
	AssetID   string `json:"asset_id"`
	Price     string `json:"price"`
	Timestamp string `json:"timestamp"`
}

// handleMessage decodes one inbound frame and, if it carries a usable price,
// emits a PriceUpdate. Unparseable payloads and unrecognized event types are
// logged and dropped; they never surface as errors to the Worker.
func (f *Feed) handleMessage(raw []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		f.logger.Debug("feed: dropped non-JSON frame")
		return
	}

	switch env.EventType {
	case "book":
		var b wireBook
		if err := json.Unmarshal(raw, &b); err != nil {
			return
		}
		f.emitFromBook(b)
	case "price_change":
		// Incremental book deltas do not carry a standalone price; the next
		// book snapshot or last_trade_price frame supplies it.
	case "last_trade_price", "best_bid_ask":
		var t wireLastTrade
		if err := json.Unmarshal(raw, &t); err != nil {
			return
		}
		f.emitFromLastTrade(t)
	default:
		f.logger.Debug("feed: ignoring frame", slog.String("event_type", env.EventType))
	}
}

func (f *Feed) emitFromBook(b wireBook) {
	var bestBid, bestAsk float64
	var haveBid, haveAsk bool

	for _, lvl := range b.Bids {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		if !haveBid || p > bestBid {
			bestBid, haveBid = p, true
		}
	}
	for _, lvl := range b.Asks {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil {
			continue
		}
		if !haveAsk || p < bestAsk {
			bestAsk, haveAsk = p, true
		}
	}

	var mid float64
	switch {
	case haveBid && haveAsk:
		mid = (bestBid + bestAsk) / 2
	case haveBid && f.allowOneSidedBook:
		mid = bestBid
	case haveAsk && f.allowOneSidedBook:
		mid = bestAsk
	default:
		return
	}

	f.emitPrice(b.AssetID, mid, b.Timestamp)
}

func (f *Feed) emitFromLastTrade(t wireLastTrade) {
	p, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return
	}
	f.emitPrice(t.AssetID, p, t.Timestamp)
}

// emitPrice emits only prices in (0,1]; anything outside that range is
// dropped, not clamped.
func (f *Feed) emitPrice(assetID string, price float64, rawTimestamp string) {
	if price <= 0 || price > 1 {
		return
	}

	ts := time.Now().UTC()
	if unix, err := strconv.ParseInt(rawTimestamp, 10, 64); err == nil && unix > 0 {
		ts = time.Unix(unix, 0).UTC()
	}

	update := domain.PriceUpdate{TokenID: assetID, Price: price, Timestamp: ts}
	select {
	case f.prices <- update:
	default:
		f.logger.Warn("feed: price channel full, dropping update", slog.String("token", assetID))
	}
}

var _ domain.MarketFeed = (*Feed)(nil)
