package feed

import (
	"testing"

	"github.com/iamOgunyinka/binance-monitor/internal/pricetable"
)

func TestParseNumberAcceptsStringOrFloat(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{`"100.5"`, 100.5},
		{`100.5`, 100.5},
		{`"0"`, 0},
	}
	for _, c := range cases {
		got := parseNumber([]byte(c.raw))
		if got != c.want {
			t.Errorf("parseNumber(%s) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestHandleFrameUpdatesPriceTable(t *testing.T) {
	tbl := pricetable.New()
	f := &Feed{table: tbl}
	f.handleFrame([]byte(`[{"s":"BTCUSDT","c":"100.0","o":"80.0"}]`))

	tick, ok := tbl.Get("BTCUSDT")
	if !ok {
		t.Fatal("expected BTCUSDT to be present after frame")
	}
	if tick.Last != 100.0 || tick.Open24h != 80.0 {
		t.Fatalf("unexpected ticker: %+v", tick)
	}
}
