package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/punchamoorthee/ledgerops/internal/domain"
	"github.com/punchamoorthee/ledgerops/internal/ledger"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	Db *pgxpool.Pool
}

// Open parses dsn, creates the pool and pings it.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{Db: pool}, nil
}

func (s *Postgres) Close() {
	s.Db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.Db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// InTx runs fn in a read-committed transaction. Balance checks lock the
// account row first, so each statement that follows sees the latest commit.
func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func insertErr(err error) error {
	if pgCode(err) == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}

func (t *pgTx) EnsureAccount(ctx context.Context, name string, typ ledger.AccountType) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO accounts (name, type) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING",
		name, string(typ))
	return err
}

func (t *pgTx) Balance(ctx context.Context, name string) (int64, error) {
	var locked string
	err := t.tx.QueryRow(ctx, "SELECT name FROM accounts WHERE name = $1 FOR UPDATE", name).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lock account %s: %w", name, err)
	}

	var balance int64
	err = t.tx.QueryRow(ctx, "SELECT balance_kobo FROM v_balances WHERE account = $1", name).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("balance %s: %w", name, err)
	}
	return balance, nil
}

func (t *pgTx) Balances(ctx context.Context) ([]ledger.Balance, error) {
	rows, err := t.tx.Query(ctx, "SELECT account, type, balance_kobo FROM v_balances ORDER BY account ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Balance
	for rows.Next() {
		var b ledger.Balance
		var typ string
		if err := rows.Scan(&b.Account, &typ, &b.Amount); err != nil {
			return nil, err
		}
		b.Type = ledger.AccountType(typ)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertJournal(ctx context.Context, j ledger.Journal) error {
	batch := &pgx.Batch{}
	batch.Queue(
		"INSERT INTO journals (id, ref_type, ref_id, memo, created_at) VALUES ($1, $2, $3, $4, $5)",
		j.ID, string(j.RefType), j.RefID, j.Memo, j.CreatedAt)
	for _, p := range j.Postings {
		batch.Queue(
			"INSERT INTO postings (id, journal_id, account, dc, amount_kobo, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
			p.ID, p.JournalID, p.Account, string(p.Direction), p.Amount, p.CreatedAt)
	}

	br := t.tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if pgCode(err) == pgForeignKeyViolation {
				return fmt.Errorf("%w: %v", ledger.ErrUnknownAccount, err)
			}
			return fmt.Errorf("insert journal %s: %w", j.ID, err)
		}
	}
	return br.Close()
}

func (t *pgTx) JournalsByRef(ctx context.Context, refType ledger.RefType, refID string) ([]ledger.Journal, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT j.id, j.ref_type, j.ref_id, j.memo, j.created_at,
		       p.id, p.account, p.dc, p.amount_kobo, p.created_at
		FROM journals j
		JOIN postings p ON p.journal_id = j.id
		WHERE j.ref_type = $1 AND j.ref_id = $2
		ORDER BY j.created_at, j.id, p.dc DESC, p.id`,
		string(refType), refID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Journal
	for rows.Next() {
		var (
			j      ledger.Journal
			p      ledger.Posting
			rt, dc string
		)
		if err := rows.Scan(&j.ID, &rt, &j.RefID, &j.Memo, &j.CreatedAt,
			&p.ID, &p.Account, &dc, &p.Amount, &p.CreatedAt); err != nil {
			return nil, err
		}
		j.RefType = ledger.RefType(rt)
		p.JournalID = j.ID
		p.Direction = ledger.Direction(dc)

		if n := len(out); n > 0 && out[n-1].ID == j.ID {
			out[n-1].Postings = append(out[n-1].Postings, p)
			continue
		}
		j.Postings = []ledger.Posting{p}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertMerchant(ctx context.Context, m domain.Merchant) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO merchants (id, name, created_at) VALUES ($1, $2, $3)",
		m.ID, m.Name, m.CreatedAt)
	return insertErr(err)
}

func (t *pgTx) GetMerchant(ctx context.Context, id string) (domain.Merchant, error) {
	var m domain.Merchant
	err := t.tx.QueryRow(ctx, "SELECT id, name, created_at FROM merchants WHERE id = $1", id).
		Scan(&m.ID, &m.Name, &m.CreatedAt)
	return m, notFound(err)
}

func (t *pgTx) InsertUser(ctx context.Context, u domain.User) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO users (id, name, created_at) VALUES ($1, $2, $3)",
		u.ID, u.Name, u.CreatedAt)
	return insertErr(err)
}

func (t *pgTx) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := t.tx.QueryRow(ctx, "SELECT id, name, created_at FROM users WHERE id = $1", id).
		Scan(&u.ID, &u.Name, &u.CreatedAt)
	return u, notFound(err)
}

func (t *pgTx) InsertPaymentIntent(ctx context.Context, pi domain.PaymentIntent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payment_intents (id, merchant_id, amount_kobo, currency, fee_mode, status, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		pi.ID, pi.MerchantID, pi.Amount, pi.Currency, pi.FeeMode, string(pi.Status), pi.IdempotencyKey, pi.CreatedAt, pi.UpdatedAt)
	return insertErr(err)
}

func (t *pgTx) GetPaymentIntent(ctx context.Context, id string) (domain.PaymentIntent, error) {
	var (
		pi     domain.PaymentIntent
		status string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, merchant_id, amount_kobo, currency, fee_mode, status, idempotency_key, created_at, updated_at
		FROM payment_intents WHERE id = $1 FOR UPDATE`, id).
		Scan(&pi.ID, &pi.MerchantID, &pi.Amount, &pi.Currency, &pi.FeeMode, &status, &pi.IdempotencyKey, &pi.CreatedAt, &pi.UpdatedAt)
	pi.Status = domain.PaymentStatus(status)
	return pi, notFound(err)
}

func (t *pgTx) UpdatePaymentIntentStatus(ctx context.Context, id string, status domain.PaymentStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE payment_intents SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertDispute(ctx context.Context, d domain.Dispute) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO disputes (id, payment_intent_id, type, amount_kobo, currency, status, reason, created_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.PaymentIntentID, d.Type, d.Amount, d.Currency, string(d.Status), d.Reason, d.CreatedAt, d.ClosedAt)
	return insertErr(err)
}

func (t *pgTx) CloseDispute(ctx context.Context, id string, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE disputes SET status = $1, closed_at = $2 WHERE id = $3",
		string(domain.DisputeClosed), at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ListDisputes(ctx context.Context, limit int) ([]domain.Dispute, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, payment_intent_id, type, amount_kobo, currency, status, reason, created_at, closed_at
		FROM disputes ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Dispute
	for rows.Next() {
		var (
			d      domain.Dispute
			status string
		)
		if err := rows.Scan(&d.ID, &d.PaymentIntentID, &d.Type, &d.Amount, &d.Currency, &status, &d.Reason, &d.CreatedAt, &d.ClosedAt); err != nil {
			return nil, err
		}
		d.Status = domain.DisputeStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertReversal(ctx context.Context, r domain.Reversal) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO reversals (payment_intent_id, reversal_type, created_at) VALUES ($1, $2, $3)",
		r.PaymentIntentID, r.Type, r.CreatedAt)
	return insertErr(err)
}

func (t *pgTx) HasReversal(ctx context.Context, paymentIntentID, typ string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM reversals WHERE payment_intent_id = $1 AND reversal_type = $2)",
		paymentIntentID, typ).Scan(&exists)
	return exists, err
}

func (t *pgTx) InsertSettlement(ctx context.Context, s domain.Settlement) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO settlements (id, merchant_id, amount_kobo, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.MerchantID, s.Amount, s.Currency, string(s.Status), s.CreatedAt, s.UpdatedAt)
	return insertErr(err)
}

func (t *pgTx) UpdateSettlementStatus(ctx context.Context, id string, status domain.SettlementStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE settlements SET status = $1, updated_at = $2 WHERE id = $3",
		string(status), at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const transferColumns = `id, user_id, amount_kobo, fee_kobo, currency, bank_code, bank_account, narration, status,
	provider_ref, failure_code, failure_reason, submitted_at, last_polled_at, idempotency_key, created_at, updated_at`

func (t *pgTx) InsertTransfer(ctx context.Context, tr domain.Transfer) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO transfers (`+transferColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		tr.ID, tr.UserID, tr.Amount, tr.Fee, tr.Currency, tr.BankCode, tr.BankAccount, tr.Narration, string(tr.Status),
		nullable(tr.ProviderRef), nullable(tr.FailureCode), nullable(tr.FailureReason),
		tr.SubmittedAt, tr.LastPolledAt, tr.IdempotencyKey, tr.CreatedAt, tr.UpdatedAt)
	return insertErr(err)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanTransfer(row pgx.Row) (domain.Transfer, error) {
	var (
		tr                        domain.Transfer
		status                    string
		providerRef, code, reason *string
	)
	err := row.Scan(&tr.ID, &tr.UserID, &tr.Amount, &tr.Fee, &tr.Currency, &tr.BankCode, &tr.BankAccount, &tr.Narration, &status,
		&providerRef, &code, &reason, &tr.SubmittedAt, &tr.LastPolledAt, &tr.IdempotencyKey, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		return domain.Transfer{}, err
	}
	tr.Status = domain.TransferStatus(status)
	if providerRef != nil {
		tr.ProviderRef = *providerRef
	}
	if code != nil {
		tr.FailureCode = *code
	}
	if reason != nil {
		tr.FailureReason = *reason
	}
	return tr, nil
}

func (t *pgTx) GetTransfer(ctx context.Context, id string) (domain.Transfer, error) {
	tr, err := scanTransfer(t.tx.QueryRow(ctx,
		"SELECT "+transferColumns+" FROM transfers WHERE id = $1 FOR UPDATE", id))
	return tr, notFound(err)
}

func (t *pgTx) UpdateTransfer(ctx context.Context, id string, u TransferUpdate) error {
	var status *string
	if u.Status != "" {
		s := string(u.Status)
		status = &s
	}
	var updatedAt *time.Time
	if !u.UpdatedAt.IsZero() {
		updatedAt = &u.UpdatedAt
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE transfers SET
			status = COALESCE($1, status),
			provider_ref = COALESCE($2, provider_ref),
			failure_code = COALESCE($3, failure_code),
			failure_reason = COALESCE($4, failure_reason),
			submitted_at = COALESCE($5, submitted_at),
			last_polled_at = COALESCE($6, last_polled_at),
			updated_at = COALESCE($7, updated_at)
		WHERE id = $8`,
		status, u.ProviderRef, u.FailureCode, u.FailureReason, u.SubmittedAt, u.LastPolledAt, updatedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ListTransfersByStatus(ctx context.Context, status domain.TransferStatus, limit int) ([]domain.Transfer, error) {
	return t.queryTransfers(ctx,
		"SELECT "+transferColumns+" FROM transfers WHERE status = $1 ORDER BY updated_at ASC, id ASC LIMIT $2",
		string(status), limit)
}

func (t *pgTx) ListTransfers(ctx context.Context, limit int) ([]domain.Transfer, error) {
	return t.queryTransfers(ctx,
		"SELECT "+transferColumns+" FROM transfers ORDER BY created_at DESC, id DESC LIMIT $1", limit)
}

func (t *pgTx) queryTransfers(ctx context.Context, sql string, args ...any) ([]domain.Transfer, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transfer
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (t *pgTx) GetIdempotencyRecord(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	var (
		r    domain.IdempotencyRecord
		body []byte
	)
	err := t.tx.QueryRow(ctx,
		"SELECT key, request_hash, response, created_at FROM idempotency_keys WHERE key = $1", key).
		Scan(&r.Key, &r.RequestHash, &body, &r.CreatedAt)
	r.Response = json.RawMessage(body)
	return r, notFound(err)
}

func (t *pgTx) InsertIdempotencyRecord(ctx context.Context, r domain.IdempotencyRecord) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, response, created_at) VALUES ($1, $2, $3, $4)",
		r.Key, r.RequestHash, []byte(r.Response), r.CreatedAt)
	return insertErr(err)
}

func eventTable(stream Stream) (string, error) {
	switch stream {
	case ProviderStream:
		return "provider_events", nil
	case TransferStream:
		return "transfer_events", nil
	}
	return "", fmt.Errorf("unknown stream %q", stream)
}

func (t *pgTx) InsertEvent(ctx context.Context, stream Stream, e domain.Event) error {
	table, err := eventTable(stream)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		"INSERT INTO "+table+" (id, provider_event_id, type, payload, processed, created_at) VALUES ($1, $2, $3, $4, FALSE, $5)",
		e.ID, e.ProviderEventID, e.Type, []byte(e.Payload), e.CreatedAt)
	return insertErr(err)
}

func (t *pgTx) ListUnprocessedEvents(ctx context.Context, stream Stream, limit int) ([]domain.Event, error) {
	table, err := eventTable(stream)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx,
		"SELECT id, provider_event_id, type, payload, processed, created_at FROM "+table+
			" WHERE processed = FALSE ORDER BY created_at ASC, seq ASC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.ProviderEventID, &e.Type, &payload, &e.Processed, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) MarkEventProcessed(ctx context.Context, stream Stream, id string) error {
	table, err := eventTable(stream)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx,
		"UPDATE "+table+" SET processed = TRUE WHERE id = $1 AND processed = FALSE", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyProcessed
	}
	return nil
}
