package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxInFlightPerSender mirrors tg_message_sender's available_with_less_tasks:
// a sender stops accepting new payloads once 10 requests are outstanding.
const maxInFlightPerSender = 10

// sender owns one http.Client. It keeps no queue of its own: each payload
// the pool hands it is sent from its own goroutine, so several sends may be
// in flight at once. It counts how many are still in flight so the pool can
// tell whether it has room for more work.
type sender struct {
	httpClient *http.Client
	limiter    *rate.Limiter

	mu        sync.Mutex
	inFlight  int
	completed bool // true once the in-flight count has dropped back to zero
}

func newSender(limiter *rate.Limiter) *sender {
	return &sender{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    limiter,
	}
}

// availableWithLessTasks reports whether this sender can accept one more
// payload right now. A sender that has already drained its queue and gone
// idle is excluded: it is retired, not reused, so the pool can recycle its
// slot explicitly once it has grown past poolEvictionThreshold.
func (s *sender) availableWithLessTasks() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.completed && s.inFlight < maxInFlightPerSender
}

func (s *sender) isIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// send performs one sendMessage call, honoring the shared outbound rate
// limit before dialing out.
func (s *sender) send(ctx context.Context, botToken, chatID, payload string) error {
	s.mu.Lock()
	s.inFlight++
	s.completed = false
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		if s.inFlight == 0 {
			s.completed = true
		}
		s.mu.Unlock()
	}()

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage?chat_id=%s&text=%s", telegramBaseURL, botToken, chatID, payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendMessage status %d", resp.StatusCode)
	}
	log.Printf("✅ notify: sent message to chat_id=%s", chatID)
	return nil
}
