package userstream

import (
	"encoding/json"
	"strconv"
	"time"
)

// StringOrNumber decodes a JSON field that the exchange sends as either a
// quoted string or a bare number (the commission-asset field, `N`, is the
// only one observed to vary) and always stringifies it.
type StringOrNumber string

func (s *StringOrNumber) UnmarshalJSON(raw []byte) error {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		*s = StringOrNumber(str)
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return err
	}
	*s = StringOrNumber(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

func (s StringOrNumber) String() string { return string(s) }

// OrderEvent mirrors an executionReport push, stamped with the account
// that produced it. RejectReason and LastFillQty are threaded through as
// the raw strings the exchange sent — "0" means "filled zero", not
// "absent" — so they are never reinterpreted as numbers here.
type OrderEvent struct {
	ForAlias        string
	TgGroup         string
	Instrument      string
	Side            string
	Type            string
	TIF             string
	Quantity        string
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
}

// BalanceEvent mirrors a balanceUpdate push.
type BalanceEvent struct {
	ForAlias   string
	TgGroup    string
	Instrument string
	Delta      string
	ClearTime  string
	EventTime  string
}

// AccountPositionEvent mirrors one asset entry out of an
// outboundAccountPosition push's B[] array; a single event carries one of
// these per asset, batched atomically by the producer.
type AccountPositionEvent struct {
	ForAlias  string
	TgGroup   string
	Asset     string
	Free      string
	Locked    string
	EventTime string
}

// The exchange uses keys that differ only by case ("e"/"E", "o"/"O",
// "f"/"F", "i"/"I"). encoding/json falls back to a case-insensitive match
// when a key has no exact field, so each struct declares both spellings to
// keep one key from landing in (or failing on) the other's field.
type wsEnvelope struct {
	EventType   string `json:"e"`
	EventTimeMs int64  `json:"E"`
}

type executionReportPayload struct {
	EventType       string          `json:"e"`
	OrderCreatedMs  int64           `json:"O"`
	IcebergQty      string          `json:"F"`
	IgnoreI         json.Number     `json:"I"`
	Symbol          string          `json:"s"`
	Side            string          `json:"S"`
	OrderType       string          `json:"o"`
	TIF             string          `json:"f"`
	Quantity        string          `json:"q"`
	Price           string          `json:"p"`
	StopPrice       string          `json:"P"`
	ExecType        string          `json:"x"`
	Status          string          `json:"X"`
	RejectReason    string          `json:"r"`
	OrderID         json.Number     `json:"i"`
	LastFillQty     string          `json:"l"`
	CumQty          string          `json:"z"`
	LastPrice       string          `json:"L"`
	Commission      string          `json:"n"`
	CommissionAsset StringOrNumber  `json:"N"`
	TradeID         json.Number     `json:"t"`
	EventTimeMs     int64           `json:"E"`
	TxnTimeMs       int64           `json:"T"`
}

type balanceUpdatePayload struct {
	EventType   string `json:"e"`
	Asset       string `json:"a"`
	Delta       string `json:"d"`
	ClearTimeMs int64  `json:"T"`
	EventTimeMs int64  `json:"E"`
}

type accountPositionBalance struct {
	Asset  string `json:"a"`
	Free   string `json:"f"`
	Locked string `json:"l"`
}

type outboundAccountPositionPayload struct {
	EventType   string                    `json:"e"`
	EventTimeMs int64                     `json:"E"`
	Balances    []accountPositionBalance  `json:"B"`
}

// epochMsToUTC converts an epoch-millisecond field to "YYYY-MM-DD HH:MM:SS"
// UTC, per the wire-event data model. A zero or negative value (field
// absent) yields an empty string rather than the 1970 epoch.
func epochMsToUTC(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05")
}
