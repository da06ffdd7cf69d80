package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iamOgunyinka/binance-monitor/internal/pricetable"
	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

type memQueue struct {
	mu    chan struct{}
	items []any
}

func newMemQueue() *memQueue {
	return &memQueue{mu: make(chan struct{}, 1000)}
}

func (q *memQueue) Append(item any) {
	q.items = append(q.items, item)
	q.mu <- struct{}{}
}

func (q *memQueue) Get() (any, bool) {
	<-q.mu
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func newTestDatabase(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func TestSampleDefaultsOrderPriceAndQuantityFromFirstPrice(t *testing.T) {
	table := pricetable.New()
	table.Put("BTCUSDT", 50000, 49000)

	s := New(nil, table, nil)
	rt := &runningTask{task: ScheduledTask{
		RequestID: "r1", Symbol: "BTCUSDT", Direction: DirectionBuy, TaskType: TaskTypePnL,
		Money: decimal.NewFromInt(1000),
	}}

	result := s.sample(rt, time.Unix(0, 0))
	if !result.OrderPrice.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("expected order price defaulted to 50000, got %s", result.OrderPrice)
	}
	wantQty := decimal.NewFromInt(1000).Div(decimal.NewFromInt(50000))
	if !result.Quantity.Equal(wantQty) {
		t.Fatalf("expected quantity %s, got %s", wantQty, result.Quantity)
	}
	if !result.PnL.IsZero() {
		t.Fatalf("expected zero pnl when mkt == order price, got %s", result.PnL)
	}
}

func TestSampleEmitsZeroMktPriceWhenSymbolUnknown(t *testing.T) {
	table := pricetable.New()
	s := New(nil, table, nil)
	rt := &runningTask{task: ScheduledTask{RequestID: "r2", Symbol: "ETHUSDT", TaskType: TaskTypePnL}}

	result := s.sample(rt, time.Unix(0, 0))
	if !result.MktPrice.IsZero() {
		t.Fatalf("expected mkt_price=0 for unknown symbol, got %s", result.MktPrice)
	}
}

func TestComputePnLBuyAndSellAndPriceChange(t *testing.T) {
	order := decimal.NewFromInt(100)
	mkt := decimal.NewFromInt(110)
	qty := decimal.NewFromInt(2)

	buy := computePnL(TaskTypePnL, DirectionBuy, order, mkt, qty, decimal.Zero)
	if !buy.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected buy pnl 20, got %s", buy)
	}

	sell := computePnL(TaskTypePnL, DirectionSell, order, mkt, qty, decimal.Zero)
	if !sell.Equal(decimal.NewFromInt(-20)) {
		t.Fatalf("expected sell pnl -20, got %s", sell)
	}

	change := computePnL(TaskTypePriceChange, DirectionNone, order, mkt, qty, decimal.NewFromInt(100))
	if !change.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected price change 10%%, got %s", change)
	}
}

func TestHandleTaskInitiatedStartsTickerAndPersistsRunning(t *testing.T) {
	database := newTestDatabase(t)
	table := pricetable.New()
	table.Put("BTCUSDT", 100, 90)
	queue := newMemQueue()
	s := New(database, table, queue)
	ctx := context.Background()

	task := ScheduledTask{
		RequestID: "r3", Username: "dave", Symbol: "BTCUSDT", Direction: DirectionBuy,
		PeriodSecs: 3600, TaskType: TaskTypePnL, Status: StatusInitiated,
	}
	if err := database.CreateScheduledTask(ctx, db.ScheduledTaskRow{
		RequestID: task.RequestID, ForUsername: task.Username, TokenName: task.Symbol,
		Side: "buy", MonitorTimeSecs: task.PeriodSecs, Status: int(StatusInitiated),
		TaskType: int(TaskTypePnL), OrderPrice: decimal.Zero, Money: decimal.Zero, Quantity: decimal.Zero,
	}); err != nil {
		t.Fatalf("create task row: %v", err)
	}

	s.handleTask(ctx, task)

	row, err := database.GetScheduledTask(ctx, "r3")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if row.Status != int(StatusRunning) {
		t.Fatalf("expected status running after initiate, got %d", row.Status)
	}

	s.mu.Lock()
	_, running := s.tasks["r3"]
	s.mu.Unlock()
	if !running {
		t.Fatalf("expected a live ticker for r3")
	}
	s.stopTask("r3")
}

func TestHandleTaskRemoveDeletesRow(t *testing.T) {
	database := newTestDatabase(t)
	queue := newMemQueue()
	s := New(database, pricetable.New(), queue)
	ctx := context.Background()

	if err := database.CreateScheduledTask(ctx, db.ScheduledTaskRow{
		RequestID: "r4", ForUsername: "erin", TokenName: "BTCUSDT", Side: "buy",
		MonitorTimeSecs: 60, Status: int(StatusRunning), TaskType: int(TaskTypePnL),
		OrderPrice: decimal.Zero, Money: decimal.Zero, Quantity: decimal.Zero,
	}); err != nil {
		t.Fatalf("create task row: %v", err)
	}

	s.handleTask(ctx, ScheduledTask{RequestID: "r4", Status: StatusRemove})

	if _, err := database.GetScheduledTask(ctx, "r4"); err == nil {
		t.Fatalf("expected task row to be deleted")
	}
}

func TestHandleResultCreatesRecordsTableAndInserts(t *testing.T) {
	database := newTestDatabase(t)
	s := New(database, pricetable.New(), newMemQueue())
	ctx := context.Background()

	s.handleResult(ctx, TaskResult{
		RequestID: "r5", Symbol: "BTCUSDT", Username: "Frank-2", CurrentTime: time.Unix(0, 0),
		TaskType: TaskTypePnL, OrderPrice: decimal.NewFromInt(100), MktPrice: decimal.NewFromInt(110),
		Money: decimal.NewFromInt(1000), Quantity: decimal.NewFromInt(10), PnL: decimal.NewFromInt(100),
	})

	var count int
	row := database.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM frank2_records")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count records: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record row, got %d", count)
	}
}
