package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/haltman-io/mailfwd/internal/domain"
)

// AliasRepo owns the alias table: existence, race-safe creation, deletion.
type AliasRepo struct{ db *sql.DB }

// NewAliasRepo creates a Postgres-backed alias directory.
func NewAliasRepo(db *sql.DB) *AliasRepo { return &AliasRepo{db: db} }

func scanAlias(row interface{ Scan(...interface{}) error }) (*domain.Alias, error) {
	var a domain.Alias
	err := row.Scan(&a.ID, &a.Address, &a.Goto, &a.Active, &a.DomainID, &a.Created, &a.Modified)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByAddress returns the alias for a full address, or nil.
func (r *AliasRepo) GetByAddress(ctx context.Context, address string) (*domain.Alias, error) {
	a, err := scanAlias(r.db.QueryRowContext(ctx, `
		SELECT id, address, goto, active, domain_id, created, modified
		FROM alias
		WHERE address = $1`,
		address,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alias: %w", err)
	}
	return a, nil
}

// ExistsByAddress reports whether an alias row exists, active or not.
func (r *AliasRepo) ExistsByAddress(ctx context.Context, address string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM alias WHERE address = $1)`,
		address,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("alias exists: %w", err)
	}
	return exists, nil
}

// CreateIfNotExists inserts an alias unless the address is already taken.
// The existence check and the insert run in one transaction with the address
// row locked, so two concurrent confirmations for the same address cannot
// both insert. Returns created=false with the existing row when taken.
func (r *AliasRepo) CreateIfNotExists(ctx context.Context, address, gotoEmail, domainID string) (created bool, existing *domain.Alias, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("create alias: begin: %w", err)
	}
	defer tx.Rollback()

	row, err := scanAlias(tx.QueryRowContext(ctx, `
		SELECT id, address, goto, active, domain_id, created, modified
		FROM alias
		WHERE address = $1
		FOR UPDATE`,
		address,
	))
	switch {
	case err == nil:
		return false, row, nil
	case errors.Is(err, sql.ErrNoRows):
		// free to insert
	default:
		return false, nil, fmt.Errorf("create alias: lock check: %w", err)
	}

	id := uuid.New().String()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO alias (id, address, goto, active, domain_id, created, modified)
		VALUES ($1, $2, $3, TRUE, $4, NOW(), NOW())`,
		id, address, gotoEmail, domainID,
	); err != nil {
		return false, nil, fmt.Errorf("create alias: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("create alias: commit: %w", err)
	}
	return true, nil, nil
}

// DeleteByAddress removes an alias and reports whether a row was removed.
func (r *AliasRepo) DeleteByAddress(ctx context.Context, address string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM alias WHERE address = $1`,
		address,
	)
	if err != nil {
		return false, fmt.Errorf("delete alias: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete alias: rows affected: %w", err)
	}
	return n >= 1, nil
}
