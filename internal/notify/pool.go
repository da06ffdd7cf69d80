package notify

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// poolEvictionThreshold mirrors send_telegram_message's pool-size check: an
// idle (completed) sender is only reclaimed once the pool has grown past 3
// senders, otherwise a handful of senders is kept warm.
const poolEvictionThreshold = 3

// telegramRateLimit caps outbound sendMessage calls across the whole pool
// at Telegram's documented per-bot ceiling of 30 messages/second.
const telegramRateLimit = 30

// pool implements the dispatch policy from the original sender pool: reuse
// an available sender if one exists; otherwise, if the pool has grown past
// poolEvictionThreshold, evict an idle sender and reuse its slot; otherwise
// grow the pool with a new sender.
type pool struct {
	botToken string
	limiter  *rate.Limiter

	mu      sync.Mutex
	senders []*sender
}

func newPool(botToken string) *pool {
	return &pool{
		botToken: botToken,
		limiter:  rate.NewLimiter(rate.Limit(telegramRateLimit), telegramRateLimit),
	}
}

// dispatch routes payload to chatID through an available sender, creating
// or reclaiming one per the pool's eviction policy, and sends it in its own
// goroutine (fire-and-forget, matching the original's async senders).
func (p *pool) dispatch(ctx context.Context, chatID, payload string) {
	s := p.acquire()
	go func() {
		if err := s.send(ctx, p.botToken, chatID, payload); err != nil {
			logSendFailure(chatID, err)
		}
	}()
}

func (p *pool) acquire() *sender {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.senders {
		if s.availableWithLessTasks() {
			return s
		}
	}

	if len(p.senders) > poolEvictionThreshold {
		for i, s := range p.senders {
			if s.isIdle() {
				p.senders[i] = newSender(p.limiter)
				return p.senders[i]
			}
		}
	}

	s := newSender(p.limiter)
	p.senders = append(p.senders, s)
	return s
}

func (p *pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.senders)
}
