// Package userstream runs one Binance user-data-stream state machine per
// account (C3) plus its scoped listen-key keepalive (C4). Decoded events
// are pushed into a shared pipeline queue for the persistence/notification
// consumers; the account's tg_group is read by the producing goroutine
// on every push, so a C6 rewrite takes effect on the very next event
// without restarting the stream.
package userstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/iamOgunyinka/binance-monitor/pkg/exchanges/binance/spot"
)

// State names the C3 state machine's coarse phases. The REST/WS
// dial/handshake sub-states named in the state diagram collapse into
// StateConnect here: Go's http/websocket clients do not expose
// intermediate TLS/handshake states to wait on individually.
type State int

const (
	StateInit State = iota
	StateGetListenKey
	StateConnect
	StateStreaming
	StateBackoff
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateGetListenKey:
		return "GET_LISTEN_KEY"
	case StateConnect:
		return "CONNECT_WS"
	case StateStreaming:
		return "STREAMING"
	case StateBackoff:
		return "BACKOFF"
	case StateTerminal:
		return "TERMINAL"
	default:
		return "UNKNOWN"
	}
}

const (
	backoffDuration  = 10 * time.Second
	keepaliveEvery   = 30 * time.Minute
	handshakeTimeout = 20 * time.Second
)

// Identity is an account's immutable identity: equality over
// (alias, api key, secret key). The secret key is unused by this package
// today (the stream never signs a request) but is carried for identity
// comparison, matching the data model's equality rule.
type Identity struct {
	Alias     string
	APIKey    string
	SecretKey string
}

// Equal reports whether two identities refer to the same account.
func (i Identity) Equal(o Identity) bool {
	return i.Alias == o.Alias && i.APIKey == o.APIKey && i.SecretKey == o.SecretKey
}

// Sink receives decoded events. internal/pipeline.Queue[any] satisfies it.
type Sink interface {
	Append(item any)
	AppendList(items []any)
}

// Client owns one account's user-data-stream state machine.
type Client struct {
	identity Identity
	rest     *spot.Client
	wsHost   string
	sink     Sink

	tgGroupMu sync.RWMutex
	tgGroup   string

	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
	backo  *backoff.ConstantBackOff
}

// New builds a C3 client for one account. It does not start streaming
// until Start is called.
func New(identity Identity, tgGroup string, sink Sink, testnet bool) *Client {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	c := &Client{
		identity: identity,
		rest:     spot.New(spot.Config{APIKey: identity.APIKey, APISecret: identity.SecretKey, Testnet: testnet}),
		wsHost:   host,
		sink:     sink,
		tgGroup:  tgGroup,
		backo:    backoff.NewConstantBackOff(backoffDuration),
	}
	c.state.Store(int32(StateInit))
	return c
}

// Identity returns the account this client streams for.
func (c *Client) Identity() Identity { return c.identity }

// State returns the current coarse state, for diagnostics.
func (c *Client) State() State { return State(c.state.Load()) }

// SetTgGroup rewrites the label stamped onto future outgoing events. It
// never restarts the stream (§4.6's tg_changed is a label-only effect).
func (c *Client) SetTgGroup(tgGroup string) {
	c.tgGroupMu.Lock()
	c.tgGroup = tgGroup
	c.tgGroupMu.Unlock()
}

func (c *Client) currentTgGroup() string {
	c.tgGroupMu.RLock()
	defer c.tgGroupMu.RUnlock()
	return c.tgGroup
}

// Start begins the INIT → ... → STREAMING loop in a background goroutine.
// It returns immediately.
func (c *Client) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)
}

// Stop transitions the client to TERMINAL and waits for its goroutine to
// exit.
func (c *Client) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.state.Store(int32(StateTerminal))
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.state.Store(int32(StateGetListenKey))
		listenKey, err := c.getListenKeyWithRetry(ctx)
		if err != nil {
			log.Printf("❌ userstream[%s]: listen key acquisition failed: %v", c.identity.Alias, err)
			if !c.sleepBackoff(ctx) {
				return
			}
			continue
		}

		c.state.Store(int32(StateConnect))
		if err := c.streamOnce(ctx, listenKey); err != nil {
			log.Printf("❌ userstream[%s]: stream error: %v", c.identity.Alias, err)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		c.state.Store(int32(StateBackoff))
		log.Printf("🔄 userstream[%s]: backing off %s before reconnect", c.identity.Alias, backoffDuration)
		if !c.sleepBackoff(ctx) {
			return
		}
	}
}

func (c *Client) sleepBackoff(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backo.NextBackOff()):
		return true
	}
}

// getListenKeyWithRetry implements the one-shot in-place retry on a
// transient 5xx recovered from the original listen-key acquisition code:
// one immediate retry, then fall back to the caller's BACKOFF state.
func (c *Client) getListenKeyWithRetry(ctx context.Context) (string, error) {
	key, err := c.rest.CreateListenKey(ctx)
	if err == nil {
		return key, nil
	}
	if !isTransientStatus(err) {
		return "", err
	}
	log.Printf("⚠️ userstream[%s]: transient listen key error, retrying once: %v", c.identity.Alias, err)
	return c.rest.CreateListenKey(ctx)
}

func isTransientStatus(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "status 5")
}

func (c *Client) streamOnce(ctx context.Context, listenKey string) error {
	u := url.URL{Scheme: "wss", Host: c.wsHost, Path: "/ws/" + listenKey}
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial user stream: %w", err)
	}
	defer conn.Close()
	defer c.rest.CloseListenKey(context.Background(), listenKey)

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	})

	c.state.Store(int32(StateStreaming))
	log.Printf("✅ userstream[%s]: streaming", c.identity.Alias)

	keepaliveCtx, stopKeepalive := context.WithCancel(ctx)
	defer stopKeepalive()
	go c.runKeepalive(keepaliveCtx, listenKey)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read user stream frame: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
		c.handleFrame(msg)
	}
}

// runKeepalive is C4: a timer scoped to the C3 goroutine that spawned it,
// so it cannot outlive the stream. A successful PUT does not reset the
// timer's own deadline — the next fire is always keepaliveEvery after the
// previous, regardless of how long the PUT itself took.
func (c *Client) runKeepalive(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(keepaliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := c.rest.KeepAliveListenKey(ctx, listenKey)
			if err != nil {
				log.Printf("⚠️ userstream[%s]: keepalive failed: %v", c.identity.Alias, err)
			} else {
				log.Printf("🔄 userstream[%s]: keepalive ok", c.identity.Alias)
			}
		}
	}
}

func (c *Client) handleFrame(msg []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		log.Printf("⚠️ userstream[%s]: malformed frame: %v", c.identity.Alias, err)
		return
	}

	tgGroup := c.currentTgGroup()

	switch env.EventType {
	case "executionReport":
		var p executionReportPayload
		if err := json.Unmarshal(msg, &p); err != nil {
			log.Printf("⚠️ userstream[%s]: malformed executionReport: %v", c.identity.Alias, err)
			return
		}
		c.sink.Append(any(OrderEvent{
			ForAlias:        c.identity.Alias,
			TgGroup:         tgGroup,
			Instrument:      p.Symbol,
			Side:            p.Side,
			Type:            p.OrderType,
			TIF:             p.TIF,
			Quantity:        p.Quantity,
			Price:           p.Price,
			StopPrice:       p.StopPrice,
			ExecType:        p.ExecType,
			Status:          p.Status,
			RejectReason:    p.RejectReason,
			OrderID:         p.OrderID.String(),
			LastFillQty:     p.LastFillQty,
			CumQty:          p.CumQty,
			LastPrice:       p.LastPrice,
			Commission:      p.Commission,
			CommissionAsset: p.CommissionAsset.String(),
			TradeID:         p.TradeID.String(),
			EventTime:       epochMsToUTC(p.EventTimeMs),
			TxnTime:         epochMsToUTC(p.TxnTimeMs),
		}))

	case "balanceUpdate":
		var p balanceUpdatePayload
		if err := json.Unmarshal(msg, &p); err != nil {
			log.Printf("⚠️ userstream[%s]: malformed balanceUpdate: %v", c.identity.Alias, err)
			return
		}
		c.sink.Append(any(BalanceEvent{
			ForAlias:   c.identity.Alias,
			TgGroup:    tgGroup,
			Instrument: p.Asset,
			Delta:      p.Delta,
			ClearTime:  epochMsToUTC(p.ClearTimeMs),
			EventTime:  epochMsToUTC(p.EventTimeMs),
		}))

	case "outboundAccountPosition":
		var p outboundAccountPositionPayload
		if err := json.Unmarshal(msg, &p); err != nil {
			log.Printf("⚠️ userstream[%s]: malformed outboundAccountPosition: %v", c.identity.Alias, err)
			return
		}
		batch := make([]any, 0, len(p.Balances))
		eventTime := epochMsToUTC(p.EventTimeMs)
		for _, b := range p.Balances {
			batch = append(batch, any(AccountPositionEvent{
				ForAlias:  c.identity.Alias,
				TgGroup:   tgGroup,
				Asset:     b.Asset,
				Free:      b.Free,
				Locked:    b.Locked,
				EventTime: eventTime,
			}))
		}
		c.sink.AppendList(batch)
	}
}
