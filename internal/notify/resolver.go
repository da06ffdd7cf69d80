package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

// ChatResolver is C11: it maps a human chat name (a Telegram group title or
// a private-chat username) to the numeric chat_id the sendMessage endpoint
// requires, by polling getUpdates (Refresh) and remembering the most recent
// sighting of each name. Nothing polls on a timer: Refresh runs when a
// caller asks for it, which the notifier does on a cache miss. The cache is
// warmed from the database at
// startup and every new resolution is persisted back, so a restart does not
// require the bot to see fresh chat activity before it can send again.
type ChatResolver struct {
	botToken   string
	baseURL    string
	httpClient *http.Client
	database   *db.Database

	mu      sync.RWMutex
	cache   map[string]string // name -> chat_id
	updates int64             // highest update_id seen, for the offset param
}

const telegramBaseURL = "https://api.telegram.org"

// NewChatResolver builds a resolver and warms its cache from database.
func NewChatResolver(ctx context.Context, botToken string, database *db.Database) *ChatResolver {
	r := &ChatResolver{
		botToken:   botToken,
		baseURL:    telegramBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		database:   database,
		cache:      make(map[string]string),
	}
	if cached, err := database.ListChatCache(ctx); err == nil {
		r.mu.Lock()
		for name, id := range cached {
			r.cache[name] = id
		}
		r.mu.Unlock()
		log.Printf("📊 resolver: warmed %d cached chat names", len(cached))
	} else {
		log.Printf("⚠️ resolver: cache warm failed: %v", err)
	}
	return r
}

// Resolve returns the cached chat_id for name, if known.
func (r *ChatResolver) Resolve(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.cache[name]
	return id, ok
}

type tgUpdatesResponse struct {
	OK     bool `json:"ok"`
	Result []struct {
		UpdateID int64 `json:"update_id"`
		Message  struct {
			Chat struct {
				ID       int64  `json:"id"`
				Type     string `json:"type"`
				Title    string `json:"title"`
				Username string `json:"username"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"result"`
}

// Refresh polls getUpdates once and folds any new chat sightings into the
// cache, persisting each one. A group's name is its title; a private
// chat's name is the other party's username (mirrors the original
// on_tg_update_completion field choice).
func (r *ChatResolver) Refresh(ctx context.Context) error {
	r.mu.RLock()
	offset := r.updates + 1
	r.mu.RUnlock()

	url := fmt.Sprintf("%s/bot%s/getUpdates?offset=%d&timeout=0", r.baseURL, r.botToken, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build getUpdates request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("getUpdates: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read getUpdates body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("getUpdates status %d", resp.StatusCode)
	}

	var parsed tgUpdatesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("decode getUpdates: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("getUpdates returned ok=false")
	}

	var maxUpdate int64
	newNames := 0
	for _, upd := range parsed.Result {
		if upd.UpdateID > maxUpdate {
			maxUpdate = upd.UpdateID
		}
		chat := upd.Message.Chat
		if chat.ID == 0 {
			continue
		}
		var name string
		switch chat.Type {
		case "private":
			name = chat.Username
		default:
			name = chat.Title
		}
		if name == "" {
			continue
		}
		chatID := fmt.Sprintf("%d", chat.ID)

		r.mu.Lock()
		if r.cache[name] != chatID {
			r.cache[name] = chatID
			newNames++
		}
		r.mu.Unlock()

		if err := r.database.UpsertChatCache(ctx, name, chatID); err != nil {
			log.Printf("⚠️ resolver: persist chat cache for %q failed: %v", name, err)
		}
	}

	if maxUpdate > 0 {
		r.mu.Lock()
		r.updates = maxUpdate
		r.mu.Unlock()
	}
	if newNames > 0 {
		log.Printf("🔄 resolver: learned %d new chat name(s)", newNames)
	}
	return nil
}
