package scheduler

import (
	"context"
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iamOgunyinka/binance-monitor/internal/pricetable"
	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

// startupGrace is how long the scheduler waits after boot before reloading
// persisted tasks, giving the market ticker stream (C2) time to populate C1
// so the first sample of a reloaded task isn't a spurious mkt_price=0.
const startupGrace = 15 * time.Second

// Source is anything the scheduler can pull ScheduledTask/TaskResult
// events from. internal/pipeline's Queue[any] satisfies it.
type Source interface {
	Get() (any, bool)
}

// Sink is anything the scheduler can push ScheduledTask/TaskResult events
// onto — the same queue it reads from, so a ticker's result or a restart's
// reinjected task loops back through Run.
type Sink interface {
	Append(item any)
}

type runningTask struct {
	task   ScheduledTask
	cancel context.CancelFunc
}

// Scheduler is the Task Scheduler (C10).
type Scheduler struct {
	database *db.Database
	table    *pricetable.Table
	queue    interface {
		Source
		Sink
	}

	mu    sync.Mutex
	tasks map[string]*runningTask // request_id -> running ticker
}

// New builds a scheduler sampling table, persisting to database, driven by
// and feeding back into queue.
func New(database *db.Database, table *pricetable.Table, queue interface {
	Source
	Sink
}) *Scheduler {
	return &Scheduler{
		database: database,
		table:    table,
		queue:    queue,
		tasks:    make(map[string]*runningTask),
	}
}

// Run is the watcher loop: it drains the queue until closed or ctx is
// cancelled, dispatching each ScheduledTask or TaskResult.
func (s *Scheduler) Run(ctx context.Context) {
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
		switch v := item.(type) {
		case ScheduledTask:
			s.handleTask(ctx, v)
		case TaskResult:
			s.handleResult(ctx, v)
		default:
			log.Printf("⚠️ scheduler: unrecognized queue item %T", item)
		}
	}
}

func (s *Scheduler) handleTask(ctx context.Context, task ScheduledTask) {
	switch task.Status {
	case StatusInitiated:
		task.Status = StatusRunning
		begin := sql.NullTime{Time: time.Now().UTC(), Valid: true}
		if err := s.database.UpdateScheduledTaskStatus(ctx, task.RequestID, int(StatusRunning), &begin, nil); err != nil {
			log.Printf("❌ scheduler[%s]: persist running status failed: %v", task.RequestID, err)
		}
		s.startTicker(ctx, task)
		log.Printf("✅ scheduler[%s]: task initiated, now running", task.RequestID)

	case StatusRunning:
		// Startup/restart reload path: the row is already marked running
		// in the DB, just needs its ticker recreated in this process.
		s.startTicker(ctx, task)
		log.Printf("🔄 scheduler[%s]: ticker (re)started", task.RequestID)

	case StatusStopped:
		s.stopTask(task.RequestID)
		end := sql.NullTime{Time: time.Now().UTC(), Valid: true}
		if err := s.database.UpdateScheduledTaskStatus(ctx, task.RequestID, int(StatusStopped), nil, &end); err != nil {
			log.Printf("❌ scheduler[%s]: persist stopped status failed: %v", task.RequestID, err)
		}
		log.Printf("🔄 scheduler[%s]: stopped", task.RequestID)

	case StatusRemove:
		s.stopTask(task.RequestID)
		if err := s.database.DeleteScheduledTask(ctx, task.RequestID); err != nil {
			log.Printf("❌ scheduler[%s]: delete failed: %v", task.RequestID, err)
		}
		log.Printf("🗑️ scheduler[%s]: removed", task.RequestID)

	case StatusRestarted:
		s.stopTask(task.RequestID)
		s.reloadStopped(ctx, task.RequestID)

	default:
		log.Printf("⚠️ scheduler[%s]: unknown status %d", task.RequestID, task.Status)
	}
}

func (s *Scheduler) handleResult(ctx context.Context, result TaskResult) {
	prefix := db.TablePrefix(result.Username)
	if err := s.database.EnsureRecordsTable(ctx, prefix); err != nil {
		log.Printf("❌ scheduler[%s]: create records table failed: %v", result.RequestID, err)
		return
	}
	row := db.RecordRow{
		TokenName: result.Symbol, SampledAt: result.CurrentTime, Profit: result.PnL,
		MktPrice: result.MktPrice, OrderedPrice: result.OrderPrice, Money: result.Money,
		Quantity: result.Quantity, ColID: result.ColumnID, TaskType: int(result.TaskType),
		RequestID: result.RequestID, Side: sideFromDirection(result.Direction),
	}
	if err := s.database.InsertRecordRow(ctx, prefix, row); err != nil {
		log.Printf("❌ scheduler[%s]: insert record failed: %v", result.RequestID, err)
	}
}

// startTicker replaces any existing ticker for task.RequestID and starts a
// fresh one bound to (request_id, period_secs).
func (s *Scheduler) startTicker(parent context.Context, task ScheduledTask) {
	s.stopTask(task.RequestID)

	ctx, cancel := context.WithCancel(parent)
	rt := &runningTask{task: task, cancel: cancel}

	s.mu.Lock()
	s.tasks[task.RequestID] = rt
	s.mu.Unlock()

	go s.runTicker(ctx, rt)
}

func (s *Scheduler) stopTask(requestID string) {
	s.mu.Lock()
	rt, ok := s.tasks[requestID]
	if ok {
		delete(s.tasks, requestID)
	}
	s.mu.Unlock()
	if ok {
		rt.cancel()
	}
}

// runTicker samples the price table every period_secs and pushes a
// TaskResult back onto the queue. The per-task clock advances by
// period_secs on every tick regardless of whether a price was available,
// per the scheduler's sampling contract.
func (s *Scheduler) runTicker(ctx context.Context, rt *runningTask) {
	period := time.Duration(rt.task.PeriodSecs) * time.Second
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	clock := rt.task.LastBeginAt
	if clock.IsZero() {
		clock = time.Now().UTC()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := s.sample(rt, clock)
			s.queue.Append(any(result))
			clock = clock.Add(period)
		}
	}
}

func (s *Scheduler) sample(rt *runningTask, at time.Time) TaskResult {
	t := &rt.task
	result := TaskResult{
		RequestID: t.RequestID, Symbol: t.Symbol, Username: t.Username,
		CurrentTime: at, Direction: t.Direction, TaskType: t.TaskType,
		ColumnID: t.ColumnID, Money: t.Money,
	}

	price, ok := s.table.Get(t.Symbol)
	if !ok {
		result.MktPrice = decimal.Zero
		result.OrderPrice = t.OrderPrice
		result.Quantity = t.Quantity
		result.PnL = decimal.Zero
		return result
	}

	mkt := decimal.NewFromFloat(price.Last)
	if t.OrderPrice.IsZero() {
		t.OrderPrice = mkt
	}
	if t.Quantity.IsZero() && t.Money.GreaterThan(decimal.Zero) {
		t.Quantity = t.Money.Div(t.OrderPrice)
	}

	result.OrderPrice = t.OrderPrice
	result.Quantity = t.Quantity
	result.MktPrice = mkt
	result.PnL = computePnL(t.TaskType, t.Direction, t.OrderPrice, mkt, t.Quantity, decimal.NewFromFloat(price.Open24h))
	return result
}

// reloadStopped reloads any `stopped` task rows for requestID, flips them
// to running with last_begin_time=now, and reinjects them as new
// ScheduledTask events — the restart path's "stop+forget, then reload and
// relaunch" semantics.
func (s *Scheduler) reloadStopped(ctx context.Context, requestID string) {
	row, err := s.database.GetScheduledTask(ctx, requestID)
	if err != nil {
		log.Printf("⚠️ scheduler[%s]: restart reload found no row: %v", requestID, err)
		return
	}
	if Status(row.Status) != StatusStopped {
		log.Printf("⚠️ scheduler[%s]: restart requested but stored status is %d, not stopped", requestID, row.Status)
		return
	}

	now := time.Now().UTC()
	begin := sql.NullTime{Time: now, Valid: true}
	if err := s.database.UpdateScheduledTaskStatus(ctx, requestID, int(StatusRunning), &begin, nil); err != nil {
		log.Printf("❌ scheduler[%s]: persist restarted status failed: %v", requestID, err)
		return
	}

	task := taskFromRow(*row)
	task.Status = StatusRunning
	task.LastBeginAt = now
	s.queue.Append(any(task))
	log.Printf("✅ scheduler[%s]: restarted", requestID)
}

func taskFromRow(row db.ScheduledTaskRow) ScheduledTask {
	t := ScheduledTask{
		RequestID: row.RequestID, Username: row.ForUsername, Symbol: row.TokenName,
		Direction: directionFromSide(row.Side), PeriodSecs: row.MonitorTimeSecs, ColumnID: row.ColID,
		TaskType: TaskType(row.TaskType), OrderPrice: row.OrderPrice, Money: row.Money,
		Quantity: row.Quantity, Status: Status(row.Status),
	}
	if row.LastBeginTime != nil {
		t.LastBeginAt = *row.LastBeginTime
	}
	if row.LastEndTime != nil {
		t.LastEndAt = *row.LastEndTime
	}
	return t
}

// Bootstrap reloads every `initiated`/`running` task after startupGrace,
// giving the market feed time to warm the price table first.
func (s *Scheduler) Bootstrap(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(startupGrace):
	}

	rows, err := s.database.ListScheduledTasksByStatus(ctx, int(StatusInitiated), int(StatusRunning))
	if err != nil {
		log.Printf("❌ scheduler: startup reload failed: %v", err)
		return
	}
	for _, row := range rows {
		task := taskFromRow(row)
		task.Status = StatusRunning
		s.queue.Append(any(task))
	}
	log.Printf("✅ scheduler: reloaded %d task(s) on startup", len(rows))
}
