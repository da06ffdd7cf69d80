package notify

import (
	"context"
	"log"

	"github.com/iamOgunyinka/binance-monitor/internal/userstream"
)

// Notifier is C9: it resolves an event's chat name to a chat_id, formats
// the event, and dispatches it through the sender pool. Chat-name
// resolution delegates to a ChatResolver; on an unknown name the resolver
// is refreshed once before the event is logged and dropped (§4.9).
type Notifier struct {
	resolver *ChatResolver
	pool     *pool
}

// NewNotifier builds a notifier that sends via botToken and resolves chat
// names through resolver.
func NewNotifier(botToken string, resolver *ChatResolver) *Notifier {
	return &Notifier{resolver: resolver, pool: newPool(botToken)}
}

// HandleEvent formats and sends item if its target chat name is known (or
// becomes known after one resolver refresh); otherwise it is logged and
// dropped. item must be one of userstream's three event types.
func (n *Notifier) HandleEvent(ctx context.Context, item any) {
	name, payload := n.render(item)
	if name == "" {
		return
	}

	chatID, ok := n.resolver.Resolve(name)
	if !ok {
		if err := n.resolver.Refresh(ctx); err != nil {
			log.Printf("⚠️ notify: resolver refresh failed: %v", err)
		}
		chatID, ok = n.resolver.Resolve(name)
	}
	if !ok {
		log.Printf("⚠️ notify: chat name %q still unresolved after refresh, dropping message", name)
		return
	}

	n.pool.dispatch(ctx, chatID, payload)
}

func (n *Notifier) render(item any) (name, payload string) {
	switch ev := item.(type) {
	case userstream.OrderEvent:
		return ev.TgGroup, formatOrder(ev)
	case userstream.BalanceEvent:
		return ev.TgGroup, formatBalance(ev)
	case userstream.AccountPositionEvent:
		return ev.TgGroup, formatAccountPosition(ev)
	default:
		log.Printf("⚠️ notify: unrecognized event type %T", item)
		return "", ""
	}
}

func logSendFailure(chatID string, err error) {
	log.Printf("❌ notify: send to chat_id=%s failed: %v", chatID, err)
}
