package reconcile

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/iamOgunyinka/binance-monitor/pkg/crypto"
	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

type recordingSink struct {
	events []Event
}

func (r *recordingSink) Append(item any) {
	r.events = append(r.events, item.(Event))
}

func newTestDatabase(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database
}

func newTestKeyManager(t *testing.T) *crypto.KeyManager {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	t.Setenv("MASTER_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(key))
	km, err := crypto.NewKeyManager()
	if err != nil {
		t.Fatalf("new key manager: %v", err)
	}
	return km
}

// TestTgChangeThroughReencryptionDoesNotLookLikeRemoveAndAdd exercises the
// only path the running system actually takes for a tg_group edit: the
// control plane re-encrypts the secret on every UpsertHost
// (control/accounts.go), and pkg/crypto's Encrypt draws a fresh nonce each
// call, so the ciphertext differs across the two upserts even though the
// plaintext secret is identical. Keying the diff on api_key alone must
// still see this as the same account with only tg_group having changed.
func TestTgChangeThroughReencryptionDoesNotLookLikeRemoveAndAdd(t *testing.T) {
	database := newTestDatabase(t)
	keys := newTestKeyManager(t)
	sink := &recordingSink{}
	r := New(database, sink)
	ctx := context.Background()

	encrypted1, err := keys.Encrypt("topsecret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := database.UpsertHost(ctx, db.Host{Alias: "dave", APIKey: "k9", SecretKeyEncrypted: encrypted1, TgGroup: "g1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r.tick(ctx)
	sink.events = nil

	encrypted2, err := keys.Encrypt("topsecret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if encrypted2 == encrypted1 {
		t.Fatalf("expected re-encryption to produce a different ciphertext (fresh nonce), got the same string")
	}
	if err := database.UpsertHost(ctx, db.Host{Alias: "dave", APIKey: "k9", SecretKeyEncrypted: encrypted2, TgGroup: "g2"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r.tick(ctx)

	if len(sink.events) != 1 || sink.events[0].Change != ChangeTgChanged || sink.events[0].TgGroup != "g2" {
		t.Fatalf("expected exactly 1 ChangeTgChanged event with g2, got %+v", sink.events)
	}
}

func TestTickEmitsAddedThenTgChangedThenRemoved(t *testing.T) {
	database := newTestDatabase(t)
	sink := &recordingSink{}
	r := New(database, sink)
	ctx := context.Background()

	if err := database.UpsertHost(ctx, db.Host{Alias: "alice", APIKey: "k1", SecretKeyEncrypted: "s1", TgGroup: "g1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r.tick(ctx)
	if len(sink.events) != 1 || sink.events[0].Change != ChangeNone {
		t.Fatalf("expected 1 ChangeNone event, got %+v", sink.events)
	}

	sink.events = nil
	if err := database.UpsertHost(ctx, db.Host{Alias: "alice", APIKey: "k1", SecretKeyEncrypted: "s1", TgGroup: "g2"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r.tick(ctx)
	if len(sink.events) != 1 || sink.events[0].Change != ChangeTgChanged || sink.events[0].TgGroup != "g2" {
		t.Fatalf("expected 1 ChangeTgChanged event with g2, got %+v", sink.events)
	}

	sink.events = nil
	if err := database.DeleteHost(ctx, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	r.tick(ctx)
	if len(sink.events) != 1 || sink.events[0].Change != ChangeRemoved {
		t.Fatalf("expected 1 ChangeRemoved event, got %+v", sink.events)
	}
}

func TestTickIsQuietWhenNothingChanged(t *testing.T) {
	database := newTestDatabase(t)
	sink := &recordingSink{}
	r := New(database, sink)
	ctx := context.Background()

	if err := database.UpsertHost(ctx, db.Host{Alias: "carol", APIKey: "k3", SecretKeyEncrypted: "s3", TgGroup: "g1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r.tick(ctx)
	sink.events = nil
	r.tick(ctx)
	if len(sink.events) != 0 {
		t.Fatalf("expected no events on unchanged tick, got %+v", sink.events)
	}
}
