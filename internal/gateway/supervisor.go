// Package gateway is the stream supervisor (C6): it owns the set of live
// internal/userstream.Client instances, one per account, keyed by the
// account's immutable api_key. It consumes reconciler events from C5 and
// creates, stops, or relabels clients accordingly; at startup it
// enumerates the stored account set and starts one client per account
// before the reconciler's first tick.
package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/iamOgunyinka/binance-monitor/internal/reconcile"
	"github.com/iamOgunyinka/binance-monitor/internal/userstream"
	"github.com/iamOgunyinka/binance-monitor/pkg/crypto"
	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

// Source yields reconcile events. internal/pipeline's Queue[any]
// satisfies it.
type Source interface {
	Get() (any, bool)
}

// Sink is what a userstream.Client pushes decoded events into.
type Sink = userstream.Sink

// identityKey is api_key alone — plaintext, immutable, and deterministic
// — so the supervisor and the reconciler that feeds it agree on one
// identity regardless of whether a client has been materialized yet.
// secret_key_encrypted is deliberately excluded: pkg/crypto's Encrypt
// draws a fresh random nonce every call, so the ciphertext changes on
// every UpsertHost even when the secret itself didn't, which would make
// keying on it misread a tg_group-only edit as a brand new account.
func identityKey(apiKey string) string {
	return apiKey
}

// Supervisor owns the live client set.
type Supervisor struct {
	database *db.Database
	keys     *crypto.KeyManager
	sink     Sink
	testnet  bool

	mu      sync.Mutex
	clients map[string]*userstream.Client
}

// New builds a supervisor. sink is where every account's decoded events
// are pushed (the shared user-stream queue).
func New(database *db.Database, keys *crypto.KeyManager, sink Sink, testnet bool) *Supervisor {
	return &Supervisor{
		database: database,
		keys:     keys,
		sink:     sink,
		testnet:  testnet,
		clients:  make(map[string]*userstream.Client),
	}
}

// Bootstrap enumerates every stored account and starts one client each;
// meant to run once at process startup, before the reconciler's first
// tick so accounts already on file stream immediately.
func (s *Supervisor) Bootstrap(ctx context.Context) error {
	hosts, err := s.database.ListHosts(ctx)
	if err != nil {
		return fmt.Errorf("list hosts: %w", err)
	}
	for _, h := range hosts {
		s.startFromHost(ctx, h)
	}
	log.Printf("✅ gateway: bootstrapped %d account stream(s)", len(hosts))
	return nil
}

func (s *Supervisor) startFromHost(ctx context.Context, h db.Host) {
	key := identityKey(h.APIKey)

	s.mu.Lock()
	_, exists := s.clients[key]
	s.mu.Unlock()
	if exists {
		return
	}

	secret, err := s.keys.Decrypt(h.SecretKeyEncrypted)
	if err != nil {
		log.Printf("❌ gateway: decrypt secret failed for %s: %v", h.Alias, err)
		return
	}

	client := userstream.New(userstream.Identity{Alias: h.Alias, APIKey: h.APIKey, SecretKey: secret}, h.TgGroup, s.sink, s.testnet)

	s.mu.Lock()
	s.clients[key] = client
	s.mu.Unlock()

	client.Start(ctx)
	log.Printf("✅ gateway[%s]: stream started", h.Alias)
}

// ConsumeFrom processes reconcile events read from src until it closes
// or ctx is cancelled. Meant to be the body of a dedicated long-lived
// goroutine, started from main alongside the reconciler itself.
func (s *Supervisor) ConsumeFrom(ctx context.Context, src Source) {
	for {
		item, ok := src.Get()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		ev, ok := item.(reconcile.Event)
		if !ok {
			log.Printf("⚠️ gateway: unrecognized event type %T", item)
			continue
		}
		s.handleEvent(ctx, ev)
	}
}

func (s *Supervisor) handleEvent(ctx context.Context, ev reconcile.Event) {
	key := identityKey(ev.Identity.APIKey)

	switch ev.Change {
	case reconcile.ChangeNone:
		s.startFromIdentity(ctx, ev.Identity, key, ev.TgGroup)

	case reconcile.ChangeRemoved:
		s.mu.Lock()
		client, exists := s.clients[key]
		if exists {
			delete(s.clients, key)
		}
		s.mu.Unlock()
		if exists {
			client.Stop()
			log.Printf("🔄 gateway[%s]: stream stopped (account removed)", ev.Identity.Alias)
		}

	case reconcile.ChangeTgChanged:
		s.mu.Lock()
		client, exists := s.clients[key]
		s.mu.Unlock()
		if exists {
			client.SetTgGroup(ev.TgGroup)
			log.Printf("🔄 gateway[%s]: tg_group rewritten to %q", ev.Identity.Alias, ev.TgGroup)
		}
	}
}

// startFromIdentity mirrors startFromHost but is driven by a reconcile
// event instead of a freshly-read db.Host row; id.SecretKey here is still
// the ciphertext (reconcile never decrypts it).
func (s *Supervisor) startFromIdentity(ctx context.Context, id userstream.Identity, key, tgGroup string) {
	s.mu.Lock()
	_, exists := s.clients[key]
	s.mu.Unlock()
	if exists {
		return
	}

	secret, err := s.keys.Decrypt(id.SecretKey)
	if err != nil {
		log.Printf("❌ gateway: decrypt secret failed for %s: %v", id.Alias, err)
		return
	}

	client := userstream.New(userstream.Identity{Alias: id.Alias, APIKey: id.APIKey, SecretKey: secret}, tgGroup, s.sink, s.testnet)

	s.mu.Lock()
	s.clients[key] = client
	s.mu.Unlock()

	client.Start(ctx)
	log.Printf("✅ gateway[%s]: stream started", id.Alias)
}

// Stop stops every live client; used on process shutdown.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	clients := make([]*userstream.Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[string]*userstream.Client)
	s.mu.Unlock()

	for _, c := range clients {
		c.Stop()
	}
}

// Len reports the number of live clients, for diagnostics.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
