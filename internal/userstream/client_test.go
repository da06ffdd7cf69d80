package userstream

import (
	"sync"
	"testing"
)

type fakeSink struct {
	mu    sync.Mutex
	items []any
}

func (f *fakeSink) Append(item any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, item)
}

func (f *fakeSink) AppendList(items []any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, items...)
}

func newTestClient(sink Sink) *Client {
	return New(Identity{Alias: "alice", APIKey: "k", SecretKey: "s"}, "group-a", sink, true)
}

func TestHandleFrameDecodesExecutionReport(t *testing.T) {
	sink := &fakeSink{}
	c := newTestClient(sink)

	frame := []byte(`{"e":"executionReport","s":"BTCUSDT","S":"BUY","o":"LIMIT","f":"GTC",
		"q":"1.0","p":"100.0","P":"0","x":"TRADE","X":"FILLED","r":"NONE","i":123,
		"l":"1.0","z":"1.0","L":"100.0","n":"0.001","N":"BNB","t":555,"E":1577836800000,"T":1577836800000}`)
	c.handleFrame(frame)

	if len(sink.items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(sink.items))
	}
	ev, ok := sink.items[0].(OrderEvent)
	if !ok {
		t.Fatalf("expected OrderEvent, got %T", sink.items[0])
	}
	if ev.ForAlias != "alice" || ev.TgGroup != "group-a" || ev.Instrument != "BTCUSDT" || ev.CommissionAsset != "BNB" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestHandleFrameDecodesBalanceUpdate(t *testing.T) {
	sink := &fakeSink{}
	c := newTestClient(sink)

	frame := []byte(`{"e":"balanceUpdate","a":"BTC","d":"1.00000000","T":1577836800000,"E":1577836800000}`)
	c.handleFrame(frame)

	if len(sink.items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(sink.items))
	}
	ev, ok := sink.items[0].(BalanceEvent)
	if !ok {
		t.Fatalf("expected BalanceEvent, got %T", sink.items[0])
	}
	if ev.Instrument != "BTC" || ev.Delta != "1.00000000" {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestHandleFrameBatchesAccountPosition(t *testing.T) {
	sink := &fakeSink{}
	c := newTestClient(sink)

	frame := []byte(`{"e":"outboundAccountPosition","E":1577836800000,"B":[
		{"a":"BTC","f":"1.0","l":"0.0"},
		{"a":"ETH","f":"2.0","l":"1.0"}
	]}`)
	c.handleFrame(frame)

	if len(sink.items) != 2 {
		t.Fatalf("expected 2 batched items, got %d", len(sink.items))
	}
	first, ok := sink.items[0].(AccountPositionEvent)
	if !ok || first.Asset != "BTC" {
		t.Fatalf("unexpected first item: %+v", sink.items[0])
	}
	second, ok := sink.items[1].(AccountPositionEvent)
	if !ok || second.Asset != "ETH" {
		t.Fatalf("unexpected second item: %+v", sink.items[1])
	}
}

func TestSetTgGroupAffectsFutureEventsOnly(t *testing.T) {
	sink := &fakeSink{}
	c := newTestClient(sink)

	c.handleFrame([]byte(`{"e":"balanceUpdate","a":"BTC","d":"1.0","T":0,"E":0}`))
	c.SetTgGroup("group-b")
	c.handleFrame([]byte(`{"e":"balanceUpdate","a":"ETH","d":"2.0","T":0,"E":0}`))

	first := sink.items[0].(BalanceEvent)
	second := sink.items[1].(BalanceEvent)
	if first.TgGroup != "group-a" {
		t.Fatalf("expected first event to carry original group, got %q", first.TgGroup)
	}
	if second.TgGroup != "group-b" {
		t.Fatalf("expected second event to carry rewritten group, got %q", second.TgGroup)
	}
}
