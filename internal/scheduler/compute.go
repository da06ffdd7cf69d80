package scheduler

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// computePnL implements the two task-type formulas exactly as specified:
// pnl task_type uses order/mkt/quantity against the task's direction;
// price_change task_type ignores direction and quantity entirely.
func computePnL(taskType TaskType, direction Direction, orderPrice, mkt, quantity decimal.Decimal, open24h decimal.Decimal) decimal.Decimal {
	switch taskType {
	case TaskTypePnL:
		switch direction {
		case DirectionBuy:
			return mkt.Sub(orderPrice).Mul(quantity)
		case DirectionSell:
			return orderPrice.Sub(mkt).Mul(quantity)
		default:
			return decimal.Zero
		}
	case TaskTypePriceChange:
		if open24h.IsZero() {
			return decimal.Zero
		}
		return mkt.Sub(open24h).Div(open24h).Mul(hundred)
	default:
		return decimal.Zero
	}
}
