package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// WSClientImpl implements WSClient using gorilla/websocket.
//
// Signature subscriptions are one-shot: the node fires a single
// notification once the transaction is processed and removes the
// subscription. Lost connections are not resubscribed; subscribers see
// a closed channel and fall back to status polling.
type WSClientImpl struct {
	endpoint string
	config   WSClientConfig

	conn      *websocket.Conn
	writeMu   sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps subscription ID to the waiting channel
	subs   map[int64]chan SignatureNotification
	subsMu sync.Mutex

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan int64
	pendingSubsMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSClient creates a new WebSocket client and connects to the endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClientImpl, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	c := &WSClientImpl{
		endpoint:    endpoint,
		config:      cfg,
		subs:        make(map[int64]chan SignatureNotification),
		pendingSubs: make(map[uint64]chan int64),
		done:        make(chan struct{}),
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// SubscribeSignature subscribes to the processed notification for signature.
func (c *WSClientImpl) SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureNotification, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("websocket client closed")
	}

	reqID := c.requestID.Add(1)
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      reqID,
		"method":  "signatureSubscribe",
		"params": []interface{}{
			signature,
			map[string]interface{}{"commitment": "confirmed"},
		},
	}

	subIDCh := make(chan int64, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = subIDCh
	c.pendingSubsMu.Unlock()

	if err := c.write(req); err != nil {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
		return nil, fmt.Errorf("send subscribe request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("websocket client closed")
	case subID, ok := <-subIDCh:
		if !ok {
			return nil, fmt.Errorf("subscription rejected")
		}
		ch := make(chan SignatureNotification, 1)
		c.subsMu.Lock()
		c.subs[subID] = ch
		c.subsMu.Unlock()
		return ch, nil
	}
}

// Close closes the WebSocket connection and all live subscriptions.
func (c *WSClientImpl) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)
	err := c.conn.Close()
	c.wg.Wait()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
	return err
}

// write sends one JSON frame under the write lock.
func (c *WSClientImpl) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// wsMessage is the union of subscription confirmations and notifications.
type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot int64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Err interface{} `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// readLoop dispatches incoming frames until the connection dies.
func (c *WSClientImpl) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.failAll()
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch {
		case msg.ID != 0:
			c.handleSubscribeReply(msg)
		case msg.Method == "signatureNotification" && msg.Params != nil:
			c.handleNotification(msg)
		}
	}
}

// handleSubscribeReply resolves a pending subscription request.
func (c *WSClientImpl) handleSubscribeReply(msg wsMessage) {
	c.pendingSubsMu.Lock()
	ch, ok := c.pendingSubs[msg.ID]
	delete(c.pendingSubs, msg.ID)
	c.pendingSubsMu.Unlock()
	if !ok {
		return
	}

	if msg.Error != nil {
		close(ch)
		return
	}
	var subID int64
	if err := json.Unmarshal(msg.Result, &subID); err != nil {
		close(ch)
		return
	}
	ch <- subID
}

// handleNotification delivers the one-shot signature result.
func (c *WSClientImpl) handleNotification(msg wsMessage) {
	c.subsMu.Lock()
	ch, ok := c.subs[msg.Params.Subscription]
	delete(c.subs, msg.Params.Subscription)
	c.subsMu.Unlock()
	if !ok {
		return
	}

	ch <- SignatureNotification{
		Slot: msg.Params.Result.Context.Slot,
		Err:  msg.Params.Result.Value.Err,
	}
	close(ch)
}

// failAll closes every live channel so waiters fall back to polling.
func (c *WSClientImpl) failAll() {
	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingSubsMu.Lock()
	for id, ch := range c.pendingSubs {
		close(ch)
		delete(c.pendingSubs, id)
	}
	c.pendingSubsMu.Unlock()
}

// pingLoop keeps the connection alive.
func (c *WSClientImpl) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Ensure WSClientImpl implements WSClient
var _ WSClient = (*WSClientImpl)(nil)
