package db

import (
	"time"

	"github.com/shopspring/decimal"
)

// Host is one row of the authoritative `hosts` table (spec §3 Account).
// SecretKeyEncrypted is the AES-256-GCM ciphertext produced by pkg/crypto;
// SecretKeyVersion names which master key encrypted it.
type Host struct {
	Alias              string
	APIKey             string
	SecretKeyEncrypted string
	SecretKeyVersion   int
	TgGroup            string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ScheduledTaskRow is the persisted shape of a ScheduledTask.
type ScheduledTaskRow struct {
	RequestID       string
	ForUsername     string
	TokenName       string
	Side            string
	MonitorTimeSecs int64
	ColID           string
	Status          int
	TaskType        int
	OrderPrice      decimal.Decimal
	Money           decimal.Decimal
	Quantity        decimal.Decimal
	CreatedTime     time.Time
	LastBeginTime   *time.Time
	LastEndTime     *time.Time
}

// OrderRow is one row of a per-account `<prefix>_orders` table.
type OrderRow struct {
	Instrument      string
	Side            string
	Type            string
	TIF             string
	Qty             string
	Price           string
	StopPrice       string
	ExecType        string
	Status          string
	RejectReason    string
	OrderID         string
	LastFillQty     string
	CumQty          string
	LastPrice       string
	Commission      string
	CommissionAsset string
	TradeID         string
	EventTime       string
	TxnTime         string
	CreatedTime     time.Time
}

// BalanceRow is one row of a per-account `<prefix>_balance` table.
type BalanceRow struct {
	Instrument string
	Balance    string
	EventTime  string
	ClearTime  string
}

// AccountRow is one row of a per-account `<prefix>_account` table, holding
// one asset snapshot from an outboundAccountPosition event (Open Question
// resolution: persisted rather than dropped, see DESIGN.md).
type AccountRow struct {
	Asset     string
	Free      string
	Locked    string
	EventTime string
}

// RecordRow is one row of a per-username `<prefix>_records` table, one
// TaskResult sample.
type RecordRow struct {
	TokenName    string
	SampledAt    time.Time
	Profit       decimal.Decimal
	MktPrice     decimal.Decimal
	OrderedPrice decimal.Decimal
	Money        decimal.Decimal
	Quantity     decimal.Decimal
	ColID        string
	TaskType     int
	RequestID    string
	Side         string
}
