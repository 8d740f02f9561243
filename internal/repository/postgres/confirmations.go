// Package postgres implements the durable stores of the forwarding service
// against PostgreSQL. All cross-request coordination happens here, through
// transactions and conditional updates; nothing above this layer locks.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haltman-io/mailfwd/internal/domain"
)

// ConfirmationRepo persists pending email confirmations.
type ConfirmationRepo struct{ db *sql.DB }

// NewConfirmationRepo creates a Postgres-backed confirmation store.
func NewConfirmationRepo(db *sql.DB) *ConfirmationRepo { return &ConfirmationRepo{db: db} }

const confirmationColumns = `id, email, token_hash, status, created_at, expires_at,
	confirmed_at, send_count, last_sent_at, attempts_confirm,
	intent, alias_name, alias_domain, request_ip, user_agent`

func scanConfirmation(row interface{ Scan(...interface{}) error }) (*domain.PendingConfirmation, error) {
	var (
		p           domain.PendingConfirmation
		confirmedAt sql.NullTime
		requestIP   []byte
		userAgent   sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Email, &p.TokenHash, &p.Status, &p.CreatedAt, &p.ExpiresAt,
		&confirmedAt, &p.SendCount, &p.LastSentAt, &p.ConfirmAttempts,
		&p.Intent, &p.AliasName, &p.AliasDomain, &requestIP, &userAgent,
	)
	if err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		p.ConfirmedAt = &t
	}
	p.RequestIP = requestIP
	p.UserAgent = userAgent.String
	return &p, nil
}

// GetActivePendingByEmail returns the newest live pending row for an email,
// or nil when none exists. Expiry is evaluated against the database clock.
func (r *ConfirmationRepo) GetActivePendingByEmail(ctx context.Context, email string) (*domain.PendingConfirmation, error) {
	p, err := scanConfirmation(r.db.QueryRowContext(ctx, `
		SELECT `+confirmationColumns+`
		FROM email_confirmations
		WHERE email = $1 AND status = 'pending' AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1`,
		email,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active pending: %w", err)
	}
	return p, nil
}

// CreatePendingParams carries everything a new confirmation row needs.
type CreatePendingParams struct {
	Email       string
	TokenHash   []byte
	TTLMinutes  int
	Intent      domain.Intent
	AliasName   string
	AliasDomain string
	RequestIP   []byte // packed 16-byte form, nil when unknown
	UserAgent   string
}

func (p CreatePendingParams) validate() error {
	if len(p.TokenHash) != 32 {
		return fmt.Errorf("create pending: token hash must be 32 bytes, got %d", len(p.TokenHash))
	}
	if p.TTLMinutes <= 0 || p.TTLMinutes > 24*60 {
		return fmt.Errorf("create pending: ttl %d minutes out of range", p.TTLMinutes)
	}
	if p.Intent == "" || len(p.Intent) > 32 {
		return fmt.Errorf("create pending: invalid intent %q", p.Intent)
	}
	if !domain.ValidAliasName(p.AliasName) {
		return fmt.Errorf("create pending: invalid alias name %q", p.AliasName)
	}
	if !domain.ValidDomainName(p.AliasDomain) {
		return fmt.Errorf("create pending: invalid alias domain %q", p.AliasDomain)
	}
	return nil
}

// CreatePending inserts a fresh pending confirmation in one transaction,
// first flipping any stale pending rows for the same email to expired.
// expires_at is computed by the database clock, not the caller's.
func (r *ConfirmationRepo) CreatePending(ctx context.Context, params CreatePendingParams) (*domain.PendingConfirmation, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create pending: begin: %w", err)
	}
	defer tx.Rollback()

	// Self-healing: rows whose expiry passed without ever being resolved are
	// flipped to their terminal state before the replacement is inserted.
	if _, err := tx.ExecContext(ctx, `
		UPDATE email_confirmations
		SET status = 'expired'
		WHERE email = $1 AND status = 'pending' AND expires_at <= NOW()`,
		params.Email,
	); err != nil {
		return nil, fmt.Errorf("create pending: expire stale: %w", err)
	}

	id := uuid.New().String()
	row := tx.QueryRowContext(ctx, `
		INSERT INTO email_confirmations (
			id, email, token_hash, status, created_at, expires_at,
			request_ip, user_agent, send_count, last_sent_at, attempts_confirm,
			intent, alias_name, alias_domain
		) VALUES (
			$1, $2, $3, 'pending', NOW(), NOW() + make_interval(mins => $4),
			$5, $6, 1, NOW(), 0,
			$7, $8, $9
		)
		RETURNING `+confirmationColumns,
		id, params.Email, params.TokenHash, params.TTLMinutes,
		params.RequestIP, nullString(params.UserAgent),
		params.Intent, params.AliasName, params.AliasDomain,
	)

	p, err := scanConfirmation(row)
	if err != nil {
		return nil, fmt.Errorf("create pending: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create pending: commit: %w", err)
	}
	return p, nil
}

// RotateParams carries a token rotation for the live pending row of an email.
type RotateParams struct {
	Email      string
	TokenHash  []byte
	TTLMinutes int
	RequestIP  []byte
	UserAgent  string
}

// RotateTokenForPending replaces the token of the single live pending row for
// an email: new hash, fresh expiry, bumped send counter. Returns false when
// no live pending row matched, meaning it expired or was confirmed between
// the caller's read and this write.
func (r *ConfirmationRepo) RotateTokenForPending(ctx context.Context, params RotateParams) (bool, error) {
	if len(params.TokenHash) != 32 {
		return false, fmt.Errorf("rotate token: token hash must be 32 bytes, got %d", len(params.TokenHash))
	}
	if params.TTLMinutes <= 0 || params.TTLMinutes > 24*60 {
		return false, fmt.Errorf("rotate token: ttl %d minutes out of range", params.TTLMinutes)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE email_confirmations
		SET token_hash = $1,
		    expires_at = NOW() + make_interval(mins => $2),
		    request_ip = $3,
		    user_agent = $4,
		    send_count = send_count + 1,
		    last_sent_at = NOW()
		WHERE email = $5 AND status = 'pending' AND expires_at > NOW()`,
		params.TokenHash, params.TTLMinutes,
		params.RequestIP, nullString(params.UserAgent), params.Email,
	)
	if err != nil {
		return false, fmt.Errorf("rotate token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rotate token: rows affected: %w", err)
	}
	return n >= 1, nil
}

// GetPendingByTokenHash returns the live pending row carrying this token
// hash, or nil. The status and expiry predicates are re-checked here so a
// stale physical row never resolves.
func (r *ConfirmationRepo) GetPendingByTokenHash(ctx context.Context, hash []byte) (*domain.PendingConfirmation, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("get pending by hash: hash must be 32 bytes, got %d", len(hash))
	}
	p, err := scanConfirmation(r.db.QueryRowContext(ctx, `
		SELECT `+confirmationColumns+`
		FROM email_confirmations
		WHERE token_hash = $1 AND status = 'pending' AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1`,
		hash,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending by hash: %w", err)
	}
	return p, nil
}

// MarkConfirmedByID flips a row to confirmed. The predicate re-checks that
// the row is still pending and unexpired at the moment of the write, so of N
// concurrent confirmations for one token at most one observes true.
func (r *ConfirmationRepo) MarkConfirmedByID(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_confirmations
		SET status = 'confirmed', confirmed_at = NOW()
		WHERE id = $1 AND status = 'pending' AND expires_at > NOW()`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("mark confirmed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark confirmed: rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkExpiredByID flips a still-pending row to expired. Housekeeping only;
// correctness never depends on it.
func (r *ConfirmationRepo) MarkExpiredByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_confirmations
		SET status = 'expired'
		WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	return nil
}

// BumpConfirmAttemptsByID increments the abuse-tracking counter. Best effort:
// failures are returned but callers are expected not to fail their flow on it.
func (r *ConfirmationRepo) BumpConfirmAttemptsByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_confirmations
		SET attempts_confirm = attempts_confirm + 1
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("bump confirm attempts: %w", err)
	}
	return nil
}

// ExpireStale flips every visibly stale pending row to expired and returns
// the number touched. Used by the periodic sweeper.
func (r *ConfirmationRepo) ExpireStale(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE email_confirmations
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= NOW()`,
	)
	if err != nil {
		return 0, fmt.Errorf("expire stale: %w", err)
	}
	return res.RowsAffected()
}

// PurgeTerminalBefore deletes confirmed/expired rows older than the cutoff.
func (r *ConfirmationRepo) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM email_confirmations
		WHERE status IN ('confirmed', 'expired') AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge terminal: %w", err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
