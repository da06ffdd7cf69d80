// Package scheduler is the Task Scheduler (C10): a watcher loop that turns
// ScheduledTask rows into per-task tickers sampling the shared price table,
// and folds the resulting TaskResult samples into their own per-username
// records table.
package scheduler

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status mirrors a ScheduledTask's lifecycle state, matching the
// `scheduled_tasks.status` column's integer encoding.
type Status int

const (
	StatusUnknown Status = iota
	StatusInitiated
	StatusRunning
	StatusStopped
	StatusRestarted
	StatusRemove
)

// Direction is the side a task is watching P&L for.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionBuy
	DirectionSell
)

// TaskType selects which formula a ticker applies on each sample.
type TaskType int

const (
	TaskTypePnL TaskType = iota
	TaskTypePriceChange
)

// ScheduledTask is one user-requested watch: "tell me P&L (or price-change)
// on this symbol every period_secs, starting from this order/quantity."
type ScheduledTask struct {
	RequestID   string
	Username    string
	Symbol      string
	Direction   Direction
	PeriodSecs  int64
	ColumnID    string
	TaskType    TaskType
	OrderPrice  decimal.Decimal
	Money       decimal.Decimal
	Quantity    decimal.Decimal
	Status      Status
	LastBeginAt time.Time
	LastEndAt   time.Time
}

// TaskResult is one sample emitted by a task's ticker.
type TaskResult struct {
	RequestID   string
	Symbol      string
	Username    string
	CurrentTime time.Time
	Direction   Direction
	TaskType    TaskType
	ColumnID    string
	OrderPrice  decimal.Decimal
	MktPrice    decimal.Decimal
	Money       decimal.Decimal
	Quantity    decimal.Decimal
	PnL         decimal.Decimal
}

func directionFromSide(side string) Direction {
	switch side {
	case "buy", "BUY":
		return DirectionBuy
	case "sell", "SELL":
		return DirectionSell
	default:
		return DirectionNone
	}
}

func sideFromDirection(d Direction) string {
	switch d {
	case DirectionBuy:
		return "buy"
	case DirectionSell:
		return "sell"
	default:
		return "none"
	}
}
