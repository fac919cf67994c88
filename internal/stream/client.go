package stream

import (
	"context"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ExecutionSnapshot is the latest venue-side view of one tracked order.
type ExecutionSnapshot struct {
	OrderID              string    `json:"id"`
	ExecQty              float64   `json:"execQty"`
	TargetSize           float64   `json:"targetSize"`
	MaxOrderSize         float64   `json:"maxOrderSize"`
	MaxAliveOrderTimeMS  int64     `json:"maxAliveOrderTime"`
	ChildOrderDelayMS    int64     `json:"childOrderDelay"`
	MaxRetryAsLimitOrder int       `json:"maxRetryAsLimitOrder"`
	State                string    `json:"state"`
	ReceivedAt           time.Time `json:"-"`
}

type executionBatch struct {
	Events []ExecutionSnapshot `json:"events"`
}

// Counter matches the metrics counter used to track reconnects.
type Counter interface {
	Inc()
}

// Client keeps a single execution-update connection alive and demultiplexes
// inbound events by order id. Subscriptions are reference counted: the
// connection starts with the first subscriber and tears down when the last
// one leaves. The feed carries no ordering guarantee beyond arrival order;
// callers watch MessageAge to decide whether the view has gone stale.
type Client struct {
	url            string
	reconnectDelay time.Duration
	log            *zap.Logger
	reconnects     Counter

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    map[string]struct{}
	latest  map[string]ExecutionSnapshot
	lastMsg time.Time
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(url string, reconnectDelay time.Duration, reconnects Counter, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		log:            log,
		reconnects:     reconnects,
		subs:           make(map[string]struct{}),
		latest:         make(map[string]ExecutionSnapshot),
	}
}

// Subscribe registers interest in an order id. The first subscription spins
// up the connection loop.
func (c *Client) Subscribe(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[orderID] = struct{}{}
	if c.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true
	done := make(chan struct{})
	c.done = done
	go func() {
		defer close(done)
		c.run(ctx)
	}()
}

// Unsubscribe drops an order id; when no subscribers remain, the connection
// is torn down and its snapshot discarded.
func (c *Client) Unsubscribe(orderID string) {
	c.mu.Lock()
	delete(c.subs, orderID)
	delete(c.latest, orderID)
	stop := len(c.subs) == 0 && c.running
	var cancel context.CancelFunc
	if stop {
		cancel = c.cancel
		c.cancel = nil
		c.running = false
	}
	c.mu.Unlock()
	if stop && cancel != nil {
		cancel()
	}
}

// Latest returns the most recent execution snapshot for an order id, if any
// has arrived since subscription.
func (c *Client) Latest(orderID string) (ExecutionSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.latest[orderID]
	return snap, ok
}

// MessageAge reports how long ago the last message arrived. ok is false
// before the first message; a large age on an open connection means the
// view is frozen and in-flight orders should be treated as unknown.
func (c *Client) MessageAge() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastMsg.IsZero() {
		return 0, false
	}
	return time.Since(c.lastMsg), true
}

// Close tears the connection down regardless of remaining subscribers.
func (c *Client) Close() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.running = false
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (c *Client) run(ctx context.Context) {
	for {
		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("stream disconnected", zap.Error(err))
		if c.reconnects != nil {
			c.reconnects.Inc()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "reset")
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	handshake := map[string]any{"method": "subscribe", "channel": "executions"}
	payload, err := json.Marshal(handshake)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return err
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	var batch executionBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		c.log.Debug("dropping unparseable stream message", zap.Error(err))
		return
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastMsg = now
	for _, ev := range batch.Events {
		if ev.OrderID == "" {
			continue
		}
		if _, subscribed := c.subs[ev.OrderID]; !subscribed {
			continue
		}
		ev.ReceivedAt = now
		c.latest[ev.OrderID] = ev
	}
}
