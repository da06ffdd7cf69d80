package control

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/iamOgunyinka/binance-monitor/internal/scheduler"
	"github.com/iamOgunyinka/binance-monitor/pkg/crypto"
	"github.com/iamOgunyinka/binance-monitor/pkg/db"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingTaskSink struct {
	items []any
}

func (r *recordingTaskSink) Append(item any) { r.items = append(r.items, item) }

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

func bearerToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + signed
}

func TestCreateAccountEncryptsSecretAndPersists(t *testing.T) {
	database := newTestDatabase(t)
	km := newTestKeyManager(t)
	sink := &recordingTaskSink{}
	s := NewServer(database, km, sink, "test-secret")

	body, _ := json.Marshal(createAccountRequest{Alias: "alice", APIKey: "k1", SecretKey: "topsecret", TgGroup: "g1"})
	req := httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, "test-secret"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	hosts, err := database.ListHosts(context.Background())
	if err != nil {
		t.Fatalf("list hosts: %v", err)
	}
	if len(hosts) != 1 || hosts[0].Alias != "alice" {
		t.Fatalf("expected 1 host named alice, got %+v", hosts)
	}
	if hosts[0].SecretKeyEncrypted == "topsecret" {
		t.Fatalf("expected secret key to be encrypted at rest")
	}
}

func TestCreateAccountRejectsMissingAuth(t *testing.T) {
	database := newTestDatabase(t)
	km := newTestKeyManager(t)
	s := NewServer(database, km, &recordingTaskSink{}, "test-secret")

	body, _ := json.Marshal(createAccountRequest{Alias: "bob", APIKey: "k", SecretKey: "s"})
	req := httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestCreateTaskPersistsAndEnqueues(t *testing.T) {
	database := newTestDatabase(t)
	km := newTestKeyManager(t)
	sink := &recordingTaskSink{}
	s := NewServer(database, km, sink, "test-secret")

	body, _ := json.Marshal(createTaskRequest{
		Username: "carol", Symbol: "btcusdt", Side: "buy", PeriodSecs: 60, TaskType: 0, Money: "1000",
	})
	req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, "test-secret"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(sink.items) != 1 {
		t.Fatalf("expected 1 task enqueued, got %d", len(sink.items))
	}
	task, ok := sink.items[0].(scheduler.ScheduledTask)
	if !ok {
		t.Fatalf("expected a scheduler.ScheduledTask, got %T", sink.items[0])
	}
	if task.Symbol != "BTCUSDT" || task.Status != scheduler.StatusInitiated {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestUpdateTaskEnqueuesStatusTransition(t *testing.T) {
	database := newTestDatabase(t)
	km := newTestKeyManager(t)
	sink := &recordingTaskSink{}
	s := NewServer(database, km, sink, "test-secret")

	body, _ := json.Marshal(updateTaskRequest{Status: "stopped"})
	req := httptest.NewRequest(http.MethodPut, "/tasks/abc1234567", bytes.NewReader(body))
	req.Header.Set("Authorization", bearerToken(t, "test-secret"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	task := sink.items[0].(scheduler.ScheduledTask)
	if task.RequestID != "abc1234567" || task.Status != scheduler.StatusStopped {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestGetTaskResultsRequiresUsername(t *testing.T) {
	database := newTestDatabase(t)
	km := newTestKeyManager(t)
	s := NewServer(database, km, &recordingTaskSink{}, "test-secret")

	req := httptest.NewRequest(http.MethodGet, "/tasks/abc1234567/results", nil)
	req.Header.Set("Authorization", bearerToken(t, "test-secret"))
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without username, got %d", rec.Code)
	}
}
