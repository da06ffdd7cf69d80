// Package reconcile is the account reconciler (C5): every 10 seconds it
// loads the authoritative `hosts` table and diffs it against the set it
// saw on the previous tick, emitting one event per account that was
// added, removed, or whose tg_group label changed. The cache is updated
// only after emission completes for the tick.
package reconcile

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/iamOgunyinka/binance-monitor/internal/userstream"
	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

const tickInterval = 10 * time.Second

// ChangeKind names the observable effect of an account diff, per the
// data model's `change:{none|removed|tg_changed}` field. "None" marks a
// brand new account — there was no prior record to differ from.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeRemoved
	ChangeTgChanged
)

// Event is one diffed account, pushed to the host queue for C6.
// Identity.SecretKey carries the ciphertext as stored in `hosts` —
// reconcile never decrypts it, it only forwards it; C6 decrypts it once,
// right before constructing a live stream client.
type Event struct {
	Identity userstream.Identity
	TgGroup  string
	Change   ChangeKind
}

// Sink is where diffed events go. internal/pipeline's Queue[any]
// satisfies it.
type Sink interface {
	Append(item any)
}

type cachedAccount struct {
	identity userstream.Identity
	tgGroup  string
}

// immutableKey is the reconciliation set's element identity: api_key
// alone. api_key is plaintext and never rewritten for a given account,
// unlike secret_key_encrypted — which is AES-256-GCM ciphertext with a
// fresh random nonce on every encryption (pkg/crypto's Encrypt), so it
// changes on every UpsertHost call even when the underlying secret is
// unchanged. Keying on it would make a tg_group-only edit (which always
// re-encrypts the secret) look like the account itself was replaced.
// §4.5 is explicit that neither an alias rename nor a tg_group rewrite
// alone should be treated as account removal+add, so the cache is keyed
// on the one credential field that is both immutable and deterministic.
func immutableKey(apiKey string) string {
	return apiKey
}

// Reconciler owns the 10s diff loop.
type Reconciler struct {
	database *db.Database
	sink     Sink

	mu   sync.Mutex
	prev map[string]cachedAccount // immutableKey -> last seen account
}

// New builds a reconciler over database, pushing diffed events to sink.
func New(database *db.Database, sink Sink) *Reconciler {
	return &Reconciler{
		database: database,
		sink:     sink,
		prev:     make(map[string]cachedAccount),
	}
}

// Run ticks every 10 seconds until ctx is cancelled. It is meant to run
// as a dedicated long-lived goroutine.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	hosts, err := r.database.ListHosts(ctx)
	if err != nil {
		log.Printf("❌ reconcile: list hosts failed: %v", err)
		return
	}

	current := make(map[string]cachedAccount, len(hosts))
	for _, h := range hosts {
		key := immutableKey(h.APIKey)
		current[key] = cachedAccount{
			identity: userstream.Identity{Alias: h.Alias, APIKey: h.APIKey, SecretKey: h.SecretKeyEncrypted},
			tgGroup:  h.TgGroup,
		}
	}

	r.mu.Lock()
	prev := r.prev
	r.mu.Unlock()

	for key, acc := range current {
		prior, existed := prev[key]
		switch {
		case !existed:
			r.emit(Event{Identity: acc.identity, TgGroup: acc.tgGroup, Change: ChangeNone})
		case prior.tgGroup != acc.tgGroup || prior.identity.Alias != acc.identity.Alias:
			r.emit(Event{Identity: acc.identity, TgGroup: acc.tgGroup, Change: ChangeTgChanged})
		}
	}
	for key, acc := range prev {
		if _, stillPresent := current[key]; !stillPresent {
			r.emit(Event{Identity: acc.identity, TgGroup: acc.tgGroup, Change: ChangeRemoved})
		}
	}

	r.mu.Lock()
	r.prev = current
	r.mu.Unlock()
}

func (r *Reconciler) emit(ev Event) {
	switch ev.Change {
	case ChangeNone:
		log.Printf("📊 reconcile[%s]: account added", ev.Identity.Alias)
	case ChangeRemoved:
		log.Printf("📊 reconcile[%s]: account removed", ev.Identity.Alias)
	case ChangeTgChanged:
		log.Printf("📊 reconcile[%s]: tg_group changed to %q", ev.Identity.Alias, ev.TgGroup)
	}
	r.sink.Append(any(ev))
}
