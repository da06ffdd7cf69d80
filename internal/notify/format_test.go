package notify

import (
	"strings"
	"testing"

	"github.com/iamOgunyinka/binance-monitor/internal/userstream"
)

func TestFormatOrderEscapesSpacesAndNewlines(t *testing.T) {
	ev := userstream.OrderEvent{
		Instrument: "BTCUSDT", Side: "BUY", Type: "LIMIT", Price: "50000.00",
		Quantity: "0.01", LastFillQty: "0.01", ExecType: "TRADE", Status: "FILLED",
		OrderID: "123", EventTime: "2024-01-01 00:00:00", TxnTime: "2024-01-01 00:00:01",
		Commission: "0.001", CommissionAsset: "BNB",
	}
	out := formatOrder(ev)
	if strings.Contains(out, " ") {
		t.Fatalf("expected no literal spaces, got %q", out)
	}
	if !strings.Contains(out, "BTCUSDT") || !strings.Contains(out, "%0A") {
		t.Fatalf("expected payload to contain instrument and %%0A separators, got %q", out)
	}
	if !strings.Contains(out, "Fee:%200.001%20(%20BNB%20)%0A") {
		t.Fatalf("expected fee line with escaped spaces, got %q", out)
	}
}

func TestFormatBalanceAndAccountPosition(t *testing.T) {
	bal := formatBalance(userstream.BalanceEvent{Instrument: "USDT", Delta: "10.0", ClearTime: "2024-01-01 00:00:00", EventTime: "2024-01-01 00:00:00"})
	if !strings.Contains(bal, "BalanceUpdate") {
		t.Fatalf("expected BalanceUpdate marker, got %q", bal)
	}
	acct := formatAccountPosition(userstream.AccountPositionEvent{Asset: "ETH", Free: "1.0", Locked: "0.0", EventTime: "2024-01-01 00:00:00"})
	if !strings.Contains(acct, "AccountUpdate") || strings.Contains(acct, " ") {
		t.Fatalf("expected AccountUpdate marker with no literal spaces, got %q", acct)
	}
}
