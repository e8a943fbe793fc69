package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/R3E-Network/social_layer/pkg/logger"
	"github.com/R3E-Network/social_layer/pkg/metrics"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	channelBufferSize        = 64
)

// ErrNotConnected is returned when a channel operation needs an open socket.
var ErrNotConnected = errors.New("realtime: not connected")

// RealtimeClient handles Supabase Realtime subscriptions over the phoenix protocol.
type RealtimeClient struct {
	mu          sync.Mutex
	writeMu     sync.Mutex
	url         string
	accessToken string
	heartbeat   time.Duration
	conn        *websocket.Conn
	channels    map[string]*Channel
	done        chan struct{}
	ref         int64

	metrics *metrics.Metrics
	log     *logger.Logger
}

// RealtimeConfig configures a RealtimeClient.
type RealtimeConfig struct {
	URL    string
	APIKey string
	// AccessToken is sent with every channel join so RLS applies to change events.
	AccessToken       string
	HeartbeatInterval time.Duration
	Metrics           *metrics.Metrics
	Logger            *logger.Logger
}

// PostgresChangesConfig configures a postgres changes subscription.
type PostgresChangesConfig struct {
	Event  string // INSERT, UPDATE, DELETE, *
	Schema string
	Table  string
	Filter string // Optional filter like "user_id=eq.<id>"
}

// PostgresChange is one row change pushed by the server.
type PostgresChange struct {
	Type            string
	Schema          string
	Table           string
	CommitTimestamp string
	Record          json.RawMessage
	OldRecord       json.RawMessage
}

// Decode unmarshals the new row into v.
func (c *PostgresChange) Decode(v any) error {
	if len(c.Record) == 0 {
		return errors.New("change carries no record")
	}
	return json.Unmarshal(c.Record, v)
}

// ChangeHandler handles postgres change events for one channel, in arrival order.
type ChangeHandler func(change *PostgresChange)

// Subscription is an active change subscription.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
}

// ChangeSubscriber opens postgres changes subscriptions.
type ChangeSubscriber interface {
	Subscribe(ctx context.Context, cfg PostgresChangesConfig, handler ChangeHandler) (Subscription, error)
}

var _ ChangeSubscriber = (*RealtimeClient)(nil)

// NewRealtimeClient creates a new realtime client.
func NewRealtimeClient(cfg RealtimeConfig) (*RealtimeClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}

	wsURL, err := websocketURL(cfg.URL, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &RealtimeClient{
		url:         wsURL,
		accessToken: cfg.AccessToken,
		heartbeat:   interval,
		channels:    make(map[string]*Channel),
		metrics:     cfg.Metrics,
		log:         log.Named("realtime"),
	}, nil
}

func websocketURL(projectURL, apiKey string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(projectURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported realtime url scheme %q", u.Scheme)
	}
	u.Path += "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", apiKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SetAccessToken changes the token sent on subsequent channel joins.
func (r *RealtimeClient) SetAccessToken(token string) {
	r.mu.Lock()
	r.accessToken = token
	r.mu.Unlock()
}

// Connect establishes the WebSocket connection.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectLocked(ctx)
}

func (r *RealtimeClient) connectLocked(ctx context.Context) error {
	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.readLoop(conn, r.done)
	go r.heartbeatLoop(r.done)

	return nil
}

// Disconnect closes the WebSocket connection and stops every channel.
func (r *RealtimeClient) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}

	close(r.done)
	for topic, ch := range r.channels {
		ch.stop()
		delete(r.channels, topic)
	}

	r.writeMu.Lock()
	err := r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	r.writeMu.Unlock()

	r.conn.Close()
	r.conn = nil
	if err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

// SubscribeToPostgresChanges joins a new channel listening to row changes matching cfg.
// It connects first when needed.
func (r *RealtimeClient) SubscribeToPostgresChanges(ctx context.Context, cfg PostgresChangesConfig, handler ChangeHandler) (*Channel, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("table is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}

	r.mu.Lock()
	if err := r.connectLocked(ctx); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	ch := &Channel{
		client:  r,
		topic:   fmt.Sprintf("realtime:%s:%s", cfg.Table, uuid.NewString()),
		config:  cfg,
		handler: handler,
		events:  make(chan *PostgresChange, channelBufferSize),
		done:    make(chan struct{}),
	}
	ch.joinRef = r.nextRef()
	r.channels[ch.topic] = ch
	token := r.accessToken
	conn := r.conn
	r.mu.Unlock()

	go ch.deliver()

	filter := map[string]any{
		"event":  cfg.Event,
		"schema": cfg.Schema,
		"table":  cfg.Table,
	}
	if cfg.Filter != "" {
		filter["filter"] = cfg.Filter
	}
	payload := map[string]any{
		"config": map[string]any{
			"broadcast":        map[string]any{"self": false},
			"presence":         map[string]any{"key": ""},
			"postgres_changes": []any{filter},
		},
	}
	if token != "" {
		payload["access_token"] = token
	}

	if err := r.write(conn, phoenixMessage{
		Topic:   ch.topic,
		Event:   "phx_join",
		Payload: payload,
		Ref:     ch.joinRef,
		JoinRef: ch.joinRef,
	}); err != nil {
		r.removeChannel(ch)
		return nil, fmt.Errorf("send join: %w", err)
	}

	return ch, nil
}

// Subscribe implements ChangeSubscriber.
func (r *RealtimeClient) Subscribe(ctx context.Context, cfg PostgresChangesConfig, handler ChangeHandler) (Subscription, error) {
	ch, err := r.SubscribeToPostgresChanges(ctx, cfg, handler)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

type phoenixMessage struct {
	Topic   string `json:"topic"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	Ref     string `json:"ref"`
	JoinRef string `json:"join_ref,omitempty"`
}

func (r *RealtimeClient) nextRef() string {
	return strconv.FormatInt(atomic.AddInt64(&r.ref, 1), 10)
}

func (r *RealtimeClient) write(conn *websocket.Conn, msg phoenixMessage) error {
	if conn == nil {
		return ErrNotConnected
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (r *RealtimeClient) removeChannel(ch *Channel) {
	r.mu.Lock()
	if r.channels[ch.topic] == ch {
		delete(r.channels, ch.topic)
	}
	r.mu.Unlock()
	ch.stop()
}

func (r *RealtimeClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				r.log.WithError(err).Warn("realtime connection closed")
				r.dropped(conn)
			}
			return
		}
		r.dispatch(message, done)
	}
}

// dropped forgets a connection the server closed so the next subscribe dials again.
// Channels joined on it are stopped; their subscribers have to subscribe again.
func (r *RealtimeClient) dropped(conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != conn {
		return
	}
	close(r.done)
	for topic, ch := range r.channels {
		ch.stop()
		delete(r.channels, topic)
	}
	r.conn.Close()
	r.conn = nil
}

func (r *RealtimeClient) dispatch(message []byte, done chan struct{}) {
	if !gjson.ValidBytes(message) {
		r.log.Warn("discarding malformed realtime frame")
		return
	}
	frame := gjson.ParseBytes(message)
	topic := frame.Get("topic").String()

	switch frame.Get("event").String() {
	case "postgres_changes":
	case "phx_reply":
		if status := frame.Get("payload.status").String(); status != "ok" {
			r.log.WithFields(map[string]any{
				"topic":  topic,
				"status": status,
				"reason": frame.Get("payload.response.reason").String(),
			}).Warn("realtime reply not ok")
		}
		return
	case "phx_error", "phx_close":
		r.log.WithField("topic", topic).Warn("realtime channel closed by server")
		return
	default:
		return
	}

	r.mu.Lock()
	ch := r.channels[topic]
	r.mu.Unlock()
	if ch == nil {
		return
	}

	data := frame.Get("payload.data")
	change := &PostgresChange{
		Type:            data.Get("type").String(),
		Schema:          data.Get("schema").String(),
		Table:           data.Get("table").String(),
		CommitTimestamp: data.Get("commit_timestamp").String(),
	}
	if rec := data.Get("record"); rec.Exists() {
		change.Record = json.RawMessage(rec.Raw)
	}
	if old := data.Get("old_record"); old.Exists() {
		change.OldRecord = json.RawMessage(old.Raw)
	}
	if change.Table == "" {
		change.Table = ch.config.Table
	}
	r.metrics.RecordRealtimeEvent(change.Table, change.Type)

	select {
	case ch.events <- change:
	case <-ch.done:
	case <-done:
	}
}

func (r *RealtimeClient) heartbeatLoop(done chan struct{}) {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			conn := r.conn
			r.mu.Unlock()
			err := r.write(conn, phoenixMessage{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: map[string]any{},
				Ref:     r.nextRef(),
			})
			if err != nil {
				r.log.WithError(err).Warn("realtime heartbeat failed")
			}
		}
	}
}

// =============================================================================
// Channel
// =============================================================================

// Channel is one joined realtime topic.
type Channel struct {
	client  *RealtimeClient
	topic   string
	joinRef string
	config  PostgresChangesConfig
	handler ChangeHandler

	events   chan *PostgresChange
	done     chan struct{}
	stopOnce sync.Once
}

// Topic returns the channel topic.
func (c *Channel) Topic() string {
	return c.topic
}

// Unsubscribe leaves the channel and stops delivery.
func (c *Channel) Unsubscribe(_ context.Context) error {
	r := c.client
	r.mu.Lock()
	_, joined := r.channels[c.topic]
	conn := r.conn
	r.mu.Unlock()

	if !joined {
		c.stop()
		return nil
	}
	r.removeChannel(c)

	if conn == nil {
		return nil
	}
	if err := r.write(conn, phoenixMessage{
		Topic:   c.topic,
		Event:   "phx_leave",
		Payload: map[string]any{},
		Ref:     r.nextRef(),
		JoinRef: c.joinRef,
	}); err != nil {
		return fmt.Errorf("send leave: %w", err)
	}
	return nil
}

func (c *Channel) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Channel) deliver() {
	for {
		select {
		case <-c.done:
			return
		case change := <-c.events:
			c.handler(change)
		}
	}
}
