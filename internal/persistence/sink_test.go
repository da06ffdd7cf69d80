package persistence

import (
	"context"
	"testing"

	"github.com/iamOgunyinka/binance-monitor/internal/userstream"
	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

type fakeSource struct {
	items []any
	i     int
}

func (f *fakeSource) Get() (any, bool) {
	if f.i >= len(f.items) {
		return nil, false
	}
	item := f.items[f.i]
	f.i++
	return item, true
}

func TestSinkCreatesTablesOnFirstSightAndInserts(t *testing.T) {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	source := &fakeSource{items: []any{
		userstream.OrderEvent{ForAlias: "Alice-1", Instrument: "BTCUSDT", Side: "BUY", OrderID: "1"},
		userstream.BalanceEvent{ForAlias: "Alice-1", Instrument: "BTC", Delta: "1.0"},
		userstream.AccountPositionEvent{ForAlias: "Alice-1", Asset: "ETH", Free: "2.0"},
	}}

	s := New(database, source)
	s.Run(context.Background())

	prefix := db.TablePrefix("Alice-1")
	var count int
	if err := database.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+prefix+"_orders").Scan(&count); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 order row, got %d", count)
	}
	if err := database.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+prefix+"_balance").Scan(&count); err != nil {
		t.Fatalf("count balance: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 balance row, got %d", count)
	}
	if err := database.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+prefix+"_account").Scan(&count); err != nil {
		t.Fatalf("count account: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 account row, got %d", count)
	}
}
