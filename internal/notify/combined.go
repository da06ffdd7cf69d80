package notify

import (
	"context"

	"github.com/iamOgunyinka/binance-monitor/internal/persistence"
)

// Source is the single user-stream queue consumer interface; internal/pipeline's
// Queue[any] satisfies it.
type Source interface {
	Get() (any, bool)
}

// RunPipeline is the one true consumer of the user-stream queue: per item
// it first formats and sends the Telegram notification, then persists the
// event, matching the "first ... send, then persist" ordering (§4.9). This
// keeps notify and persistence from racing as independent consumers of a
// queue that only supports one.
func RunPipeline(ctx context.Context, queue Source, notifier *Notifier, sink *persistence.Sink) {
	for {
		item, ok := queue.Get()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		notifier.HandleEvent(ctx, item)
		sink.HandleEvent(ctx, item)
	}
}
