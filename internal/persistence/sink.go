// Package persistence is the persistence sink of the user-stream queue
// (C8): it dispatches each decoded order/balance/account event into the
// account's own `<prefix>_orders` / `<prefix>_balance` / `<prefix>_account`
// table, creating those tables idempotently on first sight of an alias. A
// companion goroutine pings the database every 15 minutes to catch a dead
// connection early.
package persistence

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/iamOgunyinka/binance-monitor/internal/userstream"
	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

const keepaliveInterval = 15 * time.Minute

// Source is anything the sink can pull events from. internal/pipeline's
// Queue[any] satisfies it.
type Source interface {
	Get() (any, bool)
}

// Sink consumes decoded user-stream events and writes them to SQLite.
type Sink struct {
	database *db.Database
	queue    Source

	mu     sync.Mutex
	tables map[string]string // alias -> table prefix, populated on first sight
}

// New builds a persistence sink over database, draining queue.
func New(database *db.Database, queue Source) *Sink {
	return &Sink{
		database: database,
		queue:    queue,
		tables:   make(map[string]string),
	}
}

// Run drains the queue until it is closed or ctx is cancelled, persisting
// each item. main does not start it: there the single user-stream consumer
// is notify.RunPipeline, which calls HandleEvent after the notifier.
func (s *Sink) Run(ctx context.Context) {
	for {
		item, ok := s.queue.Get()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.HandleEvent(ctx, item)
	}
}

// HandleEvent persists a single decoded event. Exported so a combined
// consumer loop (notify+persistence sharing the single user-stream queue)
// can call it directly after the notifier has had first crack at the item.
func (s *Sink) HandleEvent(ctx context.Context, item any) {
	switch ev := item.(type) {
	case userstream.OrderEvent:
		prefix := s.prefixFor(ctx, ev.ForAlias)
		if prefix == "" {
			return
		}
		row := db.OrderRow{
			Instrument: ev.Instrument, Side: ev.Side, Type: ev.Type, TIF: ev.TIF,
			Qty: ev.Quantity, Price: ev.Price, StopPrice: ev.StopPrice, ExecType: ev.ExecType,
			Status: ev.Status, RejectReason: ev.RejectReason, OrderID: ev.OrderID,
			LastFillQty: ev.LastFillQty, CumQty: ev.CumQty, LastPrice: ev.LastPrice,
			Commission: ev.Commission, CommissionAsset: ev.CommissionAsset,
			TradeID: ev.TradeID, EventTime: ev.EventTime, TxnTime: ev.TxnTime,
		}
		if err := s.database.InsertOrderRow(ctx, prefix, row); err != nil {
			log.Printf("❌ persistence[%s]: insert order failed: %v", ev.ForAlias, err)
		}

	case userstream.BalanceEvent:
		prefix := s.prefixFor(ctx, ev.ForAlias)
		if prefix == "" {
			return
		}
		row := db.BalanceRow{Instrument: ev.Instrument, Balance: ev.Delta, EventTime: ev.EventTime, ClearTime: ev.ClearTime}
		if err := s.database.InsertBalanceRow(ctx, prefix, row); err != nil {
			log.Printf("❌ persistence[%s]: insert balance failed: %v", ev.ForAlias, err)
		}

	case userstream.AccountPositionEvent:
		prefix := s.prefixFor(ctx, ev.ForAlias)
		if prefix == "" {
			return
		}
		row := db.AccountRow{Asset: ev.Asset, Free: ev.Free, Locked: ev.Locked, EventTime: ev.EventTime}
		if err := s.database.InsertAccountRow(ctx, prefix, row); err != nil {
			log.Printf("❌ persistence[%s]: insert account position failed: %v", ev.ForAlias, err)
		}

	default:
		log.Printf("⚠️ persistence: unrecognized event type %T", item)
	}
}

// prefixFor returns the cached table prefix for alias, creating the
// backing tables on first sight. An empty return means table creation
// failed and the event was already logged and dropped.
func (s *Sink) prefixFor(ctx context.Context, alias string) string {
	s.mu.Lock()
	prefix, known := s.tables[alias]
	s.mu.Unlock()
	if known {
		return prefix
	}

	prefix = db.TablePrefix(alias)
	if err := s.database.EnsureAccountTables(ctx, prefix); err != nil {
		log.Printf("❌ persistence[%s]: create tables failed: %v", alias, err)
		return ""
	}

	s.mu.Lock()
	s.tables[alias] = prefix
	s.mu.Unlock()
	log.Printf("💾 persistence[%s]: tables ready (prefix=%s)", alias, prefix)
	return prefix
}

// RunKeepalive issues SELECT 1 every 15 minutes; on failure it logs,
// reconnects, and retries once after 1 second before waiting for the next
// tick (§4.8).
func RunKeepalive(ctx context.Context, database *db.Database) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := database.Ping(ctx); err != nil {
				log.Printf("⚠️ persistence: DB keepalive failed: %v", err)
				if reErr := database.Reopen(); reErr != nil {
					log.Printf("❌ persistence: DB reconnect failed: %v", reErr)
					continue
				}
				time.Sleep(time.Second)
				if err := database.Ping(ctx); err != nil {
					log.Printf("❌ persistence: DB keepalive retry failed: %v", err)
					continue
				}
			}
			log.Printf("✅ persistence: DB keepalive ok")
		}
	}
}
