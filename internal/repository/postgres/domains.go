package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/haltman-io/mailfwd/internal/domain"
)

// DomainRepo reads the registry of domains aliases can be minted under.
type DomainRepo struct{ db *sql.DB }

// NewDomainRepo creates a Postgres-backed domain registry.
func NewDomainRepo(db *sql.DB) *DomainRepo { return &DomainRepo{db: db} }

// GetActiveByName returns the domain only if it exists and is active.
func (r *DomainRepo) GetActiveByName(ctx context.Context, name string) (*domain.AliasDomain, error) {
	var d domain.AliasDomain
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, active
		FROM domain
		WHERE name = $1 AND active = TRUE`,
		name,
	).Scan(&d.ID, &d.Name, &d.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active domain: %w", err)
	}
	return &d, nil
}

// ExistsActive reports whether an active domain with this name exists.
func (r *DomainRepo) ExistsActive(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM domain WHERE name = $1 AND active = TRUE)`,
		name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("domain exists: %w", err)
	}
	return exists, nil
}
