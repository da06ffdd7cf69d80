// Package feed runs the single public market-ticker WebSocket (C2): it
// seeds the known-symbol set via REST, then streams !miniTicker@arr frames
// into the shared price table, reconnecting on any read error.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iamOgunyinka/binance-monitor/internal/pricetable"
	"github.com/iamOgunyinka/binance-monitor/pkg/exchanges/binance/spot"
)

const (
	idleTimeout    = 20 * time.Second
	reconnectPause = 2 * time.Second
)

// Feed owns the lifetime of the public ticker stream.
type Feed struct {
	table   *pricetable.Table
	rest    *spot.Client
	dialer  *websocket.Dialer
	wsURL   string
}

// New builds a market ticker feed writing into table.
func New(table *pricetable.Table, rest *spot.Client, testnet bool) *Feed {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	u := url.URL{Scheme: "wss", Host: host, Path: "/ws/!miniTicker@arr"}
	return &Feed{
		table:  table,
		rest:   rest,
		dialer: websocket.DefaultDialer,
		wsURL:  u.String(),
	}
}

// Start seeds the symbol set and begins the reconnect-on-error read loop.
// It returns immediately; the loop runs until ctx is cancelled.
func (f *Feed) Start(ctx context.Context) {
	f.seed(ctx)
	go f.run(ctx)
}

func (f *Feed) seed(ctx context.Context) {
	prices, err := f.rest.GetTickerPrices(ctx)
	if err != nil {
		log.Printf("⚠️ feed: ticker price seed failed: %v", err)
		return
	}
	for _, p := range prices {
		last, convErr := strconv.ParseFloat(p.Price, 64)
		if convErr != nil {
			continue
		}
		f.table.Put(p.Symbol, last, 0)
	}
	log.Printf("✅ feed: seeded %d symbols from REST", len(prices))
}

func (f *Feed) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.streamOnce(ctx); err != nil {
			log.Printf("❌ feed: stream error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectPause):
		}
	}
}

func (f *Feed) streamOnce(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial miniTicker stream: %w", err)
	}
	defer conn.Close()

	log.Println("🔄 feed: connected to !miniTicker@arr")

	_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read miniTicker frame: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		f.handleFrame(msg)
	}
}

type miniTickerElement struct {
	Symbol  string          `json:"s"`
	Close   json.RawMessage `json:"c"`
	Open    json.RawMessage `json:"o"`
}

func (f *Feed) handleFrame(msg []byte) {
	var elements []miniTickerElement
	if err := json.Unmarshal(msg, &elements); err != nil {
		log.Printf("⚠️ feed: malformed miniTicker frame: %v", err)
		return
	}
	for _, e := range elements {
		if e.Symbol == "" {
			continue
		}
		last := parseNumber(e.Close)
		open24h := parseNumber(e.Open)
		f.table.Put(e.Symbol, last, open24h)
	}
}

func parseNumber(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	var f float64
	_ = json.Unmarshal(raw, &f)
	return f
}
