// Package db owns every SQL statement this bridge issues: the static
// `hosts`/`scheduled_tasks` schema plus the per-account/per-username tables
// created on first sight by the persistence sink and task scheduler. No
// prepared statements are used anywhere (Open Question resolution, see
// DESIGN.md) — every call is an ad hoc Exec/Query, matching the teacher.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("record not found")

// TablePrefix derives the `<prefix>` used by `<prefix>_orders`,
// `<prefix>_balance`, `<prefix>_account` and `<prefix>_records`: strip
// non-alphanumeric characters from alias, lowercase what remains (§3's
// account→table name derivation).
func TablePrefix(alias string) string {
	var b strings.Builder
	for _, r := range alias {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ----------------------------------------
// hosts
// ----------------------------------------

// UpsertHost inserts or updates an account row.
func (d *Database) UpsertHost(ctx context.Context, h Host) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO hosts (alias, api_key, secret_key_encrypted, secret_key_version, tg_group, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(alias) DO UPDATE SET
			api_key = excluded.api_key,
			secret_key_encrypted = excluded.secret_key_encrypted,
			secret_key_version = excluded.secret_key_version,
			tg_group = excluded.tg_group,
			updated_at = CURRENT_TIMESTAMP
	`, h.Alias, h.APIKey, h.SecretKeyEncrypted, h.SecretKeyVersion, h.TgGroup)
	return err
}

// DeleteHost removes an account by alias.
func (d *Database) DeleteHost(ctx context.Context, alias string) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM hosts WHERE alias = ?`, alias)
	return err
}

// ListHosts returns every account in the authoritative table, ordered by
// alias for deterministic reconciler diffing.
func (d *Database) ListHosts(ctx context.Context) ([]Host, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT alias, api_key, secret_key_encrypted, secret_key_version, COALESCE(tg_group, ''), created_at, updated_at
		FROM hosts ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("list hosts: %w", err)
	}
	defer rows.Close()

	var out []Host
	for rows.Next() {
		var h Host
		if err := rows.Scan(&h.Alias, &h.APIKey, &h.SecretKeyEncrypted, &h.SecretKeyVersion, &h.TgGroup, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan host: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ----------------------------------------
// scheduled_tasks
// ----------------------------------------

// CreateScheduledTask inserts a new task row.
func (d *Database) CreateScheduledTask(ctx context.Context, t ScheduledTaskRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (
			request_id, for_username, token_name, side, monitor_time_secs, col_id,
			status, task_type, order_price, money, quantity, created_time, last_begin_time, last_end_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, ?, ?)
	`, t.RequestID, t.ForUsername, t.TokenName, t.Side, t.MonitorTimeSecs, t.ColID,
		t.Status, t.TaskType, t.OrderPrice.String(), t.Money.String(), t.Quantity.String(),
		t.LastBeginTime, t.LastEndTime)
	return err
}

// UpdateScheduledTaskStatus updates status and, when non-nil, the begin/end
// timestamps of a task.
func (d *Database) UpdateScheduledTaskStatus(ctx context.Context, requestID string, status int, lastBegin, lastEnd *sql.NullTime) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET status = ?,
		    last_begin_time = COALESCE(?, last_begin_time),
		    last_end_time = COALESCE(?, last_end_time)
		WHERE request_id = ?
	`, status, lastBegin, lastEnd, requestID)
	return err
}

// DeleteScheduledTask removes a task row (status=remove).
func (d *Database) DeleteScheduledTask(ctx context.Context, requestID string) error {
	_, err := d.DB.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE request_id = ?`, requestID)
	return err
}

// GetScheduledTask fetches one task by request_id.
func (d *Database) GetScheduledTask(ctx context.Context, requestID string) (*ScheduledTaskRow, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT request_id, for_username, token_name, side, monitor_time_secs, COALESCE(col_id, ''),
		       status, task_type, order_price, money, quantity, created_time, last_begin_time, last_end_time
		FROM scheduled_tasks WHERE request_id = ?
	`, requestID)
	t, err := scanScheduledTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListScheduledTasksByStatus returns every task whose status is in the
// given set; the scheduler's startup reload uses it for `initiated` and
// `running`. The restart path reads its one row with GetScheduledTask.
func (d *Database) ListScheduledTasksByStatus(ctx context.Context, statuses ...int) ([]ScheduledTaskRow, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, 0, len(statuses))
	for i, s := range statuses {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, s)
	}

	rows, err := d.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT request_id, for_username, token_name, side, monitor_time_secs, COALESCE(col_id, ''),
		       status, task_type, order_price, money, quantity, created_time, last_begin_time, last_end_time
		FROM scheduled_tasks WHERE status IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	defer rows.Close()

	var out []ScheduledTaskRow
	for rows.Next() {
		t, err := scanScheduledTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduledTask(s rowScanner) (*ScheduledTaskRow, error) {
	var t ScheduledTaskRow
	var orderPrice, money, quantity string
	if err := s.Scan(&t.RequestID, &t.ForUsername, &t.TokenName, &t.Side, &t.MonitorTimeSecs, &t.ColID,
		&t.Status, &t.TaskType, &orderPrice, &money, &quantity, &t.CreatedTime, &t.LastBeginTime, &t.LastEndTime); err != nil {
		return nil, err
	}
	t.OrderPrice = mustDecimal(orderPrice)
	t.Money = mustDecimal(money)
	t.Quantity = mustDecimal(quantity)
	return &t, nil
}

// ----------------------------------------
// Per-account / per-username dynamic tables
// ----------------------------------------

// EnsureAccountTables creates the `<prefix>_orders`, `<prefix>_balance` and
// `<prefix>_account` tables for an alias, idempotently. Per the
// original_source-derived supplement (§6.1 of SPEC_FULL.md), it retries
// once on failure before giving up.
func (d *Database) EnsureAccountTables(ctx context.Context, prefix string) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_orders (
			instrument TEXT, side TEXT, type TEXT, tif TEXT, qty TEXT, price TEXT,
			stop_price TEXT, exec_type TEXT, status TEXT, reject TEXT, order_id TEXT,
			last_fill_qty TEXT, cum_qty TEXT, last_price TEXT, commission TEXT,
			commission_asset TEXT, trade_id TEXT, event_time TEXT, txn_time TEXT,
			created_time DATETIME DEFAULT CURRENT_TIMESTAMP
		)`, prefix),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_balance (
			instrument TEXT, balance TEXT, event_time TEXT, clear_time TEXT
		)`, prefix),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_account (
			asset TEXT, free TEXT, locked TEXT, event_time TEXT
		)`, prefix),
	}
	for _, stmt := range stmts {
		if err := d.execWithRetry(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureRecordsTable creates the `<prefix>_records` table for a username.
func (d *Database) EnsureRecordsTable(ctx context.Context, prefix string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_records (
		token_name TEXT, time DATETIME, profit TEXT, mkt_price TEXT, ordered_price TEXT,
		money TEXT, quantity TEXT, col_id TEXT, task_type INTEGER, request_id TEXT, side TEXT
	)`, prefix)
	return d.execWithRetry(ctx, stmt)
}

// execWithRetry runs stmt, retrying once on failure — mirrors the one-retry
// table-creation behavior observed in the original C++ implementation.
func (d *Database) execWithRetry(ctx context.Context, stmt string) error {
	_, err := d.DB.ExecContext(ctx, stmt)
	if err == nil {
		return nil
	}
	_, err = d.DB.ExecContext(ctx, stmt)
	return err
}

// InsertOrderRow inserts a single order fill/report into `<prefix>_orders`.
func (d *Database) InsertOrderRow(ctx context.Context, prefix string, r OrderRow) error {
	_, err := d.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s_orders (
			instrument, side, type, tif, qty, price, stop_price, exec_type, status, reject,
			order_id, last_fill_qty, cum_qty, last_price, commission, commission_asset,
			trade_id, event_time, txn_time, created_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, prefix),
		r.Instrument, r.Side, r.Type, r.TIF, r.Qty, r.Price, r.StopPrice, r.ExecType, r.Status, r.RejectReason,
		r.OrderID, r.LastFillQty, r.CumQty, r.LastPrice, r.Commission, r.CommissionAsset,
		r.TradeID, r.EventTime, r.TxnTime)
	return err
}

// InsertBalanceRow inserts a single balanceUpdate row into `<prefix>_balance`.
func (d *Database) InsertBalanceRow(ctx context.Context, prefix string, r BalanceRow) error {
	_, err := d.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s_balance (instrument, balance, event_time, clear_time) VALUES (?, ?, ?, ?)
	`, prefix), r.Instrument, r.Balance, r.EventTime, r.ClearTime)
	return err
}

// InsertAccountRow inserts one asset snapshot into `<prefix>_account`.
func (d *Database) InsertAccountRow(ctx context.Context, prefix string, r AccountRow) error {
	_, err := d.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s_account (asset, free, locked, event_time) VALUES (?, ?, ?, ?)
	`, prefix), r.Asset, r.Free, r.Locked, r.EventTime)
	return err
}

// InsertRecordRow inserts one TaskResult sample into `<prefix>_records`.
func (d *Database) InsertRecordRow(ctx context.Context, prefix string, r RecordRow) error {
	_, err := d.DB.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s_records (
			token_name, time, profit, mkt_price, ordered_price, money, quantity, col_id, task_type, request_id, side
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, prefix), r.TokenName, r.SampledAt, r.Profit.String(), r.MktPrice.String(), r.OrderedPrice.String(),
		r.Money.String(), r.Quantity.String(), r.ColID, r.TaskType, r.RequestID, r.Side)
	return err
}

// ListRecords fetches every sampled row for one request_id out of a
// username's `<prefix>_records` table, most recent first.
func (d *Database) ListRecords(ctx context.Context, prefix, requestID string) ([]RecordRow, error) {
	rows, err := d.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT token_name, time, profit, mkt_price, ordered_price, money, quantity, col_id, task_type, request_id, side
		FROM %s_records WHERE request_id = ? ORDER BY time DESC
	`, prefix), requestID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []RecordRow
	for rows.Next() {
		var r RecordRow
		var profit, mktPrice, orderedPrice, money, quantity string
		if err := rows.Scan(&r.TokenName, &r.SampledAt, &profit, &mktPrice, &orderedPrice,
			&money, &quantity, &r.ColID, &r.TaskType, &r.RequestID, &r.Side); err != nil {
			return nil, err
		}
		r.Profit = mustDecimal(profit)
		r.MktPrice = mustDecimal(mktPrice)
		r.OrderedPrice = mustDecimal(orderedPrice)
		r.Money = mustDecimal(money)
		r.Quantity = mustDecimal(quantity)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping is used by the 15-minute DB keepalive goroutine (C8).
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// UpsertChatCache persists one resolved name -> chat_id mapping (C11's
// cache may be persisted to the DB per spec.md §4.11).
func (d *Database) UpsertChatCache(ctx context.Context, name, chatID string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO chat_cache (name, chat_id, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET chat_id = excluded.chat_id, updated_at = CURRENT_TIMESTAMP
	`, name, chatID)
	return err
}

// ListChatCache loads every persisted name -> chat_id mapping, used to
// warm C11's in-memory cache at startup.
func (d *Database) ListChatCache(ctx context.Context) (map[string]string, error) {
	rows, err := d.DB.QueryContext(ctx, "SELECT name, chat_id FROM chat_cache")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, chatID string
		if err := rows.Scan(&name, &chatID); err != nil {
			return nil, err
		}
		out[name] = chatID
	}
	return out, rows.Err()
}
