// Package notify is the Chat Notifier (C9) and Chat-Id Resolver (C11): it
// formats decoded account events into URL-safe Telegram payloads, sends
// them through a small pool of outbound senders, and resolves a chat's
// human name to the numeric chat_id Telegram's sendMessage endpoint
// requires.
package notify

import (
	"fmt"
	"strings"

	"github.com/iamOgunyinka/binance-monitor/internal/userstream"
)

// urlSafe mirrors the original C++ payload builder's escaping: the
// formatters below write a literal "%0A" wherever a line break goes, and
// urlSafe then turns every space into "%20" after the fields are joined.
// Nothing else is escaped (not full percent-encoding — Telegram's
// sendMessage accepts this form in the query string as-is).
func urlSafe(s string) string {
	return strings.ReplaceAll(s, " ", "%20")
}

func formatOrder(ev userstream.OrderEvent) string {
	var b strings.Builder
	b.WriteString("Exchange: Binance%0A")
	fmt.Fprintf(&b, "OrderID: %s%%0A", ev.OrderID)
	fmt.Fprintf(&b, "Token: %s%%0A", ev.Instrument)
	fmt.Fprintf(&b, "Price: %s%%0A", ev.Price)
	fmt.Fprintf(&b, "Qty: %s%%0A", ev.Quantity)
	fmt.Fprintf(&b, "LastFilled: %s%%0A", ev.LastFillQty)
	fmt.Fprintf(&b, "Side: %s%%0A", ev.Side)
	fmt.Fprintf(&b, "Type: %s%%0A", ev.Type)
	if ev.CommissionAsset != "" {
		fmt.Fprintf(&b, "Fee: %s ( %s )%%0A", ev.Commission, ev.CommissionAsset)
	}
	fmt.Fprintf(&b, "ExeType: %s%%0A", ev.ExecType)
	fmt.Fprintf(&b, "State: %s%%0A", ev.Status)
	fmt.Fprintf(&b, "CreatedTime: %s%%0A", ev.EventTime)
	fmt.Fprintf(&b, "TransactionTime: %s%%0A", ev.TxnTime)
	return urlSafe(b.String())
}

func formatBalance(ev userstream.BalanceEvent) string {
	var b strings.Builder
	b.WriteString("Exchange: Binance%0A")
	b.WriteString("Type: BalanceUpdate%0A")
	fmt.Fprintf(&b, "Token: %s%%0A", ev.Instrument)
	fmt.Fprintf(&b, "Time: %s%%0A", ev.ClearTime)
	fmt.Fprintf(&b, "Balance: %s%%0A", ev.Delta)
	return urlSafe(b.String())
}

func formatAccountPosition(ev userstream.AccountPositionEvent) string {
	var b strings.Builder
	b.WriteString("Exchange: Binance%0A")
	b.WriteString("Type: AccountUpdate%0A")
	fmt.Fprintf(&b, "Token: %s%%0A", ev.Asset)
	fmt.Fprintf(&b, "Free: %s%%0A", ev.Free)
	fmt.Fprintf(&b, "Locked: %s%%0A", ev.Locked)
	fmt.Fprintf(&b, "EventTime: %s%%0A", ev.EventTime)
	return urlSafe(b.String())
}
