package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/haltman-io/mailfwd/internal/domain"
)

// BanRepo reads the admission-control deny rules. A ban is active while it is
// not revoked and either has no expiry or has not yet reached it.
type BanRepo struct{ db *sql.DB }

// NewBanRepo creates a Postgres-backed ban registry.
func NewBanRepo(db *sql.DB) *BanRepo { return &BanRepo{db: db} }

const activeBanWhere = `revoked_at IS NULL AND (expires_at IS NULL OR expires_at > NOW())`

func (r *BanRepo) isBanned(ctx context.Context, banType domain.BanType, value string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM api_bans
			WHERE ban_type = $1 AND ban_value = $2 AND `+activeBanWhere+`
		)`,
		banType, value,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ban lookup (%s): %w", banType, err)
	}
	return exists, nil
}

// IsBannedEmail reports whether the exact email address is banned.
func (r *BanRepo) IsBannedEmail(ctx context.Context, email string) (bool, error) {
	return r.isBanned(ctx, domain.BanEmail, email)
}

// IsBannedDomain reports whether the exact domain is banned. Suffix matching
// is the caller's concern: it checks each parent domain in turn.
func (r *BanRepo) IsBannedDomain(ctx context.Context, name string) (bool, error) {
	return r.isBanned(ctx, domain.BanDomain, name)
}

// IsBannedIP reports whether the textual IP is banned.
func (r *BanRepo) IsBannedIP(ctx context.Context, ip string) (bool, error) {
	return r.isBanned(ctx, domain.BanIP, ip)
}

// Check runs the combined lookup over every provided value in one query and
// returns the first matching ban type, if any.
func (r *BanRepo) Check(ctx context.Context, email, domainName, ip string) (banned bool, banType domain.BanType, err error) {
	var bt sql.NullString
	err = r.db.QueryRowContext(ctx, `
		SELECT ban_type FROM api_bans
		WHERE `+activeBanWhere+`
		  AND (
			(ban_type = 'email'  AND $1 <> '' AND ban_value = $1) OR
			(ban_type = 'domain' AND $2 <> '' AND ban_value = $2) OR
			(ban_type = 'ip'     AND $3 <> '' AND ban_value = $3)
		  )
		LIMIT 1`,
		email, domainName, ip,
	).Scan(&bt)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("ban check: %w", err)
	}
	return true, domain.BanType(bt.String), nil
}
